// Package cli implements mnetictl, the operator console for the mnetifi API.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

const defaultAPIURL = "http://localhost:8080"

// NewRootCmd returns the root command for mnetictl.
func NewRootCmd() *cobra.Command {
	o := &options{}

	rootCmd := &cobra.Command{
		Use:           "mnetictl",
		Short:         "mnetictl manages an mnetifi hotspot business from the terminal",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			_ = cmd.Help()
			fmt.Fprintln(cmd.OutOrStdout(), "\nTip: run 'mnetictl login' to start a session.")
			return nil
		},
	}

	apiURL := os.Getenv("MNETIFI_API_URL")
	if apiURL == "" {
		apiURL = defaultAPIURL
	}
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&o.apiURL, "api", apiURL, "API base URL (env MNETIFI_API_URL)")
	flags.StringVar(&o.sessionPath, "session", "", "session file (default is $HOME/.mnetifi/session.yaml)")
	flags.BoolVar(&o.super, "super", false, "use the super admin session")
	flags.DurationVar(&o.idle, "idle", 0, "sign out an admin session idle for longer than this (0 disables)")
	flags.StringVar(&o.output, "output", "text", "output format: json|text")
	flags.BoolVarP(&o.verbose, "verbose", "v", false, "log requests to stderr")

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		switch o.output {
		case "json", "text":
		default:
			return fmt.Errorf("unknown output format %q (want json or text)", o.output)
		}
		if o.idle < 0 {
			return fmt.Errorf("--idle must not be negative")
		}
		return nil
	}

	rootCmd.AddCommand(newLoginCmd(o))
	rootCmd.AddCommand(newLogoutCmd(o))
	rootCmd.AddCommand(newWhoamiCmd(o))
	rootCmd.AddCommand(newRegisterCmd(o))
	rootCmd.AddCommand(newTwoFactorCmd(o))
	rootCmd.AddCommand(newPlansCmd(o))
	rootCmd.AddCommand(newVouchersCmd(o))
	rootCmd.AddCommand(newTransactionsCmd(o))
	rootCmd.AddCommand(newTerminalCmd(o))
	rootCmd.AddCommand(newTenantsCmd(o))
	rootCmd.AddCommand(newVersionCmd())

	return rootCmd
}

