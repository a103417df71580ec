package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"mini-rpa/pkg/config"
	"mini-rpa/pkg/credential"
)

var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Print a fresh shared key",
	Long: `Print a fresh random shared key. Give the same value to the orchestrator
and every agent as ` + config.EnvPrefix + `_SHARED_KEY.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		k, err := credential.GenerateKey()
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), k.Encode())
		return err
	},
}

func init() {
	rootCmd.AddCommand(keygenCmd)
}
