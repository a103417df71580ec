package config

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// BindFlags adds the flags shared by the server binaries and binds them to v,
// so flag > environment > config file > default.
func BindFlags(cmd *cobra.Command, v *viper.Viper, configFile *string) {
	flags := cmd.PersistentFlags()
	flags.StringVar(configFile, "config", "", "Path to a config file (yaml, toml or json)")
	flags.String("addr", "", "Listen address, e.g. :8000")
	flags.String("log-level", "", "Log level (trace|debug|info|notice|warn|error|fatal)")
	_ = v.BindPFlag("server.addr", flags.Lookup("addr"))
	_ = v.BindPFlag("log.level", flags.Lookup("log-level"))
}
