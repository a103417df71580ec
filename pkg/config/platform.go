package config

import "runtime"

func defaultFacility() string {
	if runtime.GOOS == "windows" {
		return "schtasks"
	}
	return "gocron"
}

func defaultLauncher() string {
	if runtime.GOOS == "windows" {
		return "cmd"
	}
	return "sh"
}

func defaultRuntime() string {
	if runtime.GOOS == "windows" {
		return "python"
	}
	return "python3"
}
