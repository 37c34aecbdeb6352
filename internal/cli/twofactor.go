package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"mnetifi-service/internal/dashboard/client"
	"mnetifi-service/internal/dashboard/notify"
	"mnetifi-service/internal/dashboard/twofactor"
	"mnetifi-service/internal/pkg/validate"
)

const confirmAttempts = 3

func newTwoFactorCmd(o *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "2fa",
		Short: "Manage authenticator-app two-factor sign in",
	}
	cmd.AddCommand(newTwoFactorSetupCmd(o))
	cmd.AddCommand(newTwoFactorDisableCmd(o))
	return cmd
}

func twoFactorFlow(cmd *cobra.Command, o *options) (*twofactor.Flow, error) {
	c, _, err := o.authed()
	if err != nil {
		return nil, err
	}
	me, err := c.Me(cmd.Context())
	if err != nil {
		return nil, err
	}
	return twofactor.New(c, me.TOTPEnabled), nil
}

func newTwoFactorSetupCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "setup",
		Short: "Enable two-factor sign in",
		RunE: func(cmd *cobra.Command, args []string) error {
			flow, err := twoFactorFlow(cmd, o)
			if err != nil {
				return err
			}
			if flow.State() == twofactor.Enabled {
				fmt.Fprintln(cmd.OutOrStdout(), "Two-factor sign in is already enabled.")
				return nil
			}
			setup, err := flow.Begin(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "Add this account to your authenticator app:")
			fmt.Fprintf(out, "  secret: %s\n", setup.Secret)
			fmt.Fprintf(out, "  url:    %s\n\n", setup.OTPAuthURL)

			n := o.notifier(cmd)
			for i := 0; i < confirmAttempts; i++ {
				code, err := o.prompt(cmd, "Code from the app: ")
				if err != nil {
					flow.Cancel()
					return err
				}
				err = flow.Confirm(cmd.Context(), code)
				if err == nil {
					n.Notify(notify.Notification{Level: notify.Success, Title: "Two-factor sign in enabled"})
					return nil
				}
				if !retryableCode(err) {
					flow.Cancel()
					return err
				}
				n.Notify(notify.FromError("Code not accepted", err))
			}
			flow.Cancel()
			return errors.New("two-factor setup cancelled after too many wrong codes")
		},
	}
}

func newTwoFactorDisableCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "disable",
		Short: "Turn two-factor sign in off",
		RunE: func(cmd *cobra.Command, args []string) error {
			flow, err := twoFactorFlow(cmd, o)
			if err != nil {
				return err
			}
			if flow.State() != twofactor.Enabled {
				fmt.Fprintln(cmd.OutOrStdout(), "Two-factor sign in is not enabled.")
				return nil
			}
			password, err := o.promptSecret(cmd, "Password: ")
			if err != nil {
				return err
			}
			code, err := o.prompt(cmd, "Code from the app: ")
			if err != nil {
				return err
			}
			if err := flow.Disable(cmd.Context(), password, code); err != nil {
				o.notifier(cmd).Notify(notify.FromError("Could not disable two-factor", err))
				return err
			}
			o.notifier(cmd).Notify(notify.Notification{Level: notify.Success, Title: "Two-factor sign in disabled"})
			return nil
		},
	}
}

// retryableCode reports whether err means the code itself was wrong.
func retryableCode(err error) bool {
	var fe validate.FieldErrors
	if errors.As(err, &fe) {
		return true
	}
	var apiErr *client.APIError
	return errors.As(err, &apiErr) && apiErr.Status < 500
}
