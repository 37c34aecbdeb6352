package cli

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"mnetifi-service/internal/dashboard/notify"
	"mnetifi-service/internal/dashboard/session"
	"mnetifi-service/internal/pkg/jwt"
)

func newLoginCmd(o *options) *cobra.Command {
	var email, password, code string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and store the session locally",
		Long: `Sign in with your dashboard email and password.

The session is stored in ~/.mnetifi/session.yaml (mode 0600). Admin and
super admin sessions are kept in separate slots; pass --super to the other
commands to use the super admin one.

Examples:
  mnetictl login --email owner@example.com
  MNETIFI_PASSWORD=... mnetictl login --email owner@example.com --code 123456
`,
		RunE: func(cmd *cobra.Command, args []string) error {
			var err error
			if email == "" {
				if email, err = o.prompt(cmd, "Email: "); err != nil {
					return err
				}
			}
			if password == "" {
				password = os.Getenv("MNETIFI_PASSWORD")
			}
			if password == "" {
				if password, err = o.promptSecret(cmd, "Password: "); err != nil {
					return err
				}
			}
			if email == "" || password == "" {
				return errors.New("email and password are required")
			}

			c, err := o.client()
			if err != nil {
				return err
			}
			resp, err := c.Login(cmd.Context(), strings.TrimSpace(email), password, "mnetictl")
			if err != nil {
				o.notifier(cmd).Notify(notify.FromError("Login failed", err))
				return err
			}
			if resp.TwoFactorRequired {
				if code == "" {
					if code, err = o.prompt(cmd, "Authenticator code: "); err != nil {
						return err
					}
				}
				resp, err = c.VerifyTwoFactor(cmd.Context(), resp.ChallengeToken, code)
				if err != nil {
					o.notifier(cmd).Notify(notify.FromError("Verification failed", err))
					return err
				}
			}
			if resp.User == nil || resp.AccessToken == "" {
				return errors.New("login response carried no session")
			}

			store, err := o.store()
			if err != nil {
				return err
			}
			key, err := session.Save(store, resp.User, resp.AccessToken, resp.RefreshToken, o.clock())
			if err != nil {
				return fmt.Errorf("failed to save session: %w", err)
			}

			if o.jsonOutput() {
				return printJSON(cmd, resp.User)
			}
			role := "admin"
			if key == session.KeySuperAdmin {
				role = "super admin"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Signed in as %s (%s).\n", resp.User.Email, role)
			if o.super && key != session.KeySuperAdmin {
				fmt.Fprintln(cmd.ErrOrStderr(), "Warning: this account is not a super admin; --super commands will refuse it.")
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().StringVar(&password, "password", "", "account password (prefer the prompt or MNETIFI_PASSWORD)")
	cmd.Flags().StringVar(&code, "code", "", "authenticator code when two-factor is enabled")
	return cmd
}

func newLogoutCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Revoke the stored session and forget it",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := o.store()
			if err != nil {
				return err
			}
			g := o.guard(store)
			s, err := g.Check()
			if err != nil {
				if errors.Is(err, session.ErrNoSession) || errors.Is(err, session.ErrIdleExpired) {
					fmt.Fprintln(cmd.OutOrStdout(), "Not signed in.")
					return nil
				}
				return err
			}

			c, err := o.client()
			if err != nil {
				return err
			}
			c.SetToken(s.Token)
			if err := c.Logout(cmd.Context()); err != nil {
				o.notifier(cmd).Notify(notify.Notification{
					Level:       notify.Warning,
					Title:       "Server logout failed",
					Description: err.Error(),
				})
			}
			if err := store.Clear(g.Key); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Signed out.")
			return nil
		},
	}
}

func newWhoamiCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in account",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, _, err := o.authed()
			if err != nil {
				return err
			}
			me, err := c.Me(cmd.Context())
			if err != nil {
				return err
			}
			if o.jsonOutput() {
				return printJSON(cmd, me)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s <%s>\n", me.FullName, me.Email)
			if me.TenantID != 0 {
				fmt.Fprintf(out, " - tenant: %d\n", me.TenantID)
			}
			fmt.Fprintf(out, " - roles: %s\n", strings.Join(me.Roles, ", "))
			fmt.Fprintf(out, " - email verified: %s\n", yesNo(me.EmailVerified))
			fmt.Fprintf(out, " - two-factor: %s\n", yesNo(me.TOTPEnabled))
			if containsRole(me.Roles, jwt.RoleSuperAdmin) && !o.super {
				fmt.Fprintln(out, "\nTip: pass --super to use super admin commands.")
			}
			return nil
		},
	}
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func containsRole(roles []string, role string) bool {
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}
