package cli

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"mnetifi-service/internal/dashboard/client"
	"mnetifi-service/internal/dashboard/notify"
	"mnetifi-service/internal/dashboard/session"
	"mnetifi-service/internal/dashboard/wizard"
	"mnetifi-service/internal/domain/tenant"
	"mnetifi-service/internal/pkg/validate"
)

// maxStepAttempts bounds how often one step is re-asked before giving up.
const maxStepAttempts = 5

func newRegisterCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "register",
		Short: "Register a new hotspot business",
		Long: `Walk through the three registration steps: business details, the admin
account, then the subscription plan. Each step is checked by the server
before moving on. Paid plans need a verified email before first login.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := o.client()
			if err != nil {
				return err
			}
			w := wizard.New(c)
			w.Device = "mnetictl"
			return runWizard(cmd, o, c, w)
		},
	}
}

func runWizard(cmd *cobra.Command, o *options, c *client.Client, w *wizard.Wizard) error {
	out := cmd.OutOrStdout()
	attempts := map[wizard.Step]int{}

	for w.Status() == wizard.Editing {
		step := w.Step()
		attempts[step]++
		if attempts[step] > maxStepAttempts {
			return fmt.Errorf("giving up on the %s step", step)
		}
		fmt.Fprintf(out, "\nStep %d of 3: %s\n", step, step)
		if err := askStep(cmd, o, w, step); err != nil {
			return err
		}

		if err := w.Next(); err != nil {
			printFieldErrors(cmd, w.Errors())
			continue
		}
		if err := c.ValidateStep(cmd.Context(), int(step), stepBody(w, step)); err != nil {
			var apiErr *client.APIError
			if errors.As(err, &apiErr) && len(apiErr.Fields) > 0 {
				printFieldErrors(cmd, apiErr.Fields)
				if w.Step() != step {
					w.Back()
				}
				continue
			}
			return err
		}
		if step != wizard.StepPlan {
			continue
		}

		if _, err := w.Submit(cmd.Context()); err != nil {
			var apiErr *client.APIError
			if errors.As(err, &apiErr) && len(apiErr.Fields) > 0 {
				printFieldErrors(cmd, w.Errors())
				continue
			}
			o.notifier(cmd).Notify(notify.FromError("Registration failed", err))
			return err
		}
	}

	res := w.Result()
	if w.Status() == wizard.PendingVerification {
		fmt.Fprintf(out, "\nBusiness registered (tenant %d). Check %s for a verification link, then run 'mnetictl login'.\n",
			res.TenantID, w.Admin.Email)
		return nil
	}

	store, err := o.store()
	if err != nil {
		return err
	}
	if _, err := session.Save(store, res.Login.User, res.Login.AccessToken, res.Login.RefreshToken, o.clock()); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	fmt.Fprintf(out, "\nBusiness registered (tenant %d). You are signed in as %s.\n", res.TenantID, w.Admin.Email)
	return nil
}

func askStep(cmd *cobra.Command, o *options, w *wizard.Wizard, step wizard.Step) error {
	var err error
	ask := func(dst *string, label string) {
		if err == nil {
			*dst, err = o.promptDefault(cmd, label, *dst)
		}
	}
	secret := func(dst *string, label string) {
		if err == nil {
			*dst, err = o.promptSecret(cmd, label)
		}
	}

	switch step {
	case wizard.StepBusiness:
		ask(&w.Business.BusinessName, "Business name: ")
		if err == nil && w.Business.Subdomain == "" {
			w.Business.Subdomain = validate.SuggestSubdomain(w.Business.BusinessName)
		}
		ask(&w.Business.Subdomain, "Subdomain: ")
		ask(&w.Business.BusinessPhone, "Business phone: ")
		ask(&w.Business.BusinessEmail, "Business email: ")
		ask(&w.Business.Location, "Location (optional): ")
	case wizard.StepAdmin:
		ask(&w.Admin.FullName, "Your full name: ")
		if w.Admin.Email == "" {
			w.Admin.Email = w.Business.BusinessEmail
		}
		ask(&w.Admin.Email, "Login email: ")
		secret(&w.Admin.Password, "Password: ")
		secret(&w.Admin.ConfirmPassword, "Confirm password: ")
	case wizard.StepPlan:
		if w.Plan.Tier == "" {
			w.Plan.Tier = tenant.TierTrial
		}
		tier := string(w.Plan.Tier)
		ask(&tier, "Plan (TRIAL, BASIC, PRO, ENTERPRISE): ")
		w.Plan.Tier = tenant.Tier(strings.ToUpper(tier))
		if w.Plan.Tier.Paid() {
			if w.Plan.PaymentPhone == "" {
				w.Plan.PaymentPhone = w.Business.BusinessPhone
			}
			ask(&w.Plan.PaymentPhone, "M-Pesa number to bill: ")
		} else {
			w.Plan.PaymentPhone = ""
		}
	}
	return err
}

func stepBody(w *wizard.Wizard, step wizard.Step) interface{} {
	switch step {
	case wizard.StepBusiness:
		return w.Business
	case wizard.StepAdmin:
		return w.Admin
	default:
		return w.Plan
	}
}

func printFieldErrors(cmd *cobra.Command, fields map[string]string) {
	names := make([]string, 0, len(fields))
	for f := range fields {
		names = append(names, f)
	}
	sort.Strings(names)
	for _, f := range names {
		fmt.Fprintf(cmd.ErrOrStderr(), "  %s: %s\n", f, fields[f])
	}
}
