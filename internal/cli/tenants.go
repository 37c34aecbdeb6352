package cli

import (
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"mnetifi-service/internal/dashboard/client"
	"mnetifi-service/internal/dashboard/mutation"
	"mnetifi-service/internal/domain/resource"
	"mnetifi-service/internal/domain/tenant"
)

// newTenantsCmd holds the platform operator commands. They always use the
// super admin session.
func newTenantsCmd(o *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tenants",
		Short: "Platform operator commands (super admin)",
	}
	cmd.AddCommand(newTenantsListCmd(o))
	cmd.AddCommand(newTenantsStatsCmd(o))
	cmd.AddCommand(newTenantsSetCmd(o, "status", "Suspend, reactivate or expire a tenant"))
	cmd.AddCommand(newTenantsSetCmd(o, "tier", "Change a tenant's subscription tier"))
	return cmd
}

func newTenantsListCmd(o *options) *cobra.Command {
	var status, tier, search string
	var page int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tenants",
		RunE: func(cmd *cobra.Command, args []string) error {
			o.super = true
			ws, err := o.workspace(cmd)
			if err != nil {
				return err
			}
			defer ws.Close()

			q := url.Values{}
			setParam(q, "status", strings.ToUpper(status))
			setParam(q, "tier", strings.ToUpper(tier))
			setParam(q, "search", search)
			setInt(q, "page", page)
			p, err := read[client.Page[tenant.Tenant]](cmd, ws, client.Path("/api/superadmin/tenants", q))
			if err != nil {
				return err
			}
			if o.jsonOutput() {
				return printJSON(cmd, p)
			}
			rows := make([][]string, 0, len(p.Items))
			for _, t := range p.Items {
				rows = append(rows, []string{
					strconv.FormatInt(t.ID, 10),
					t.Name,
					t.Subdomain,
					string(t.SubscriptionTier),
					string(t.Status),
					formatTime(t.TrialExpiresAt),
				})
			}
			if err := printTable(cmd, []string{"ID", "NAME", "SUBDOMAIN", "TIER", "STATUS", "TRIAL ENDS"}, rows); err != nil {
				return err
			}
			pageFooter(cmd, p)
			return nil
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "ACTIVE, SUSPENDED or EXPIRED")
	cmd.Flags().StringVar(&tier, "tier", "", "TRIAL, BASIC, PRO or ENTERPRISE")
	cmd.Flags().StringVar(&search, "search", "", "match names, subdomains and emails")
	cmd.Flags().IntVar(&page, "page", 0, "page number")
	return cmd
}

func newTenantsStatsCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Platform totals",
		RunE: func(cmd *cobra.Command, args []string) error {
			o.super = true
			ws, err := o.workspace(cmd)
			if err != nil {
				return err
			}
			defer ws.Close()

			s, err := read[tenant.PlatformStats](cmd, ws, "/api/superadmin/stats")
			if err != nil {
				return err
			}
			if o.jsonOutput() {
				return printJSON(cmd, s)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Tenants:            %d\n", s.TotalTenants)
			for _, t := range sortedKeys(s.ByTier) {
				fmt.Fprintf(out, " - %-16s  %d\n", t, s.ByTier[tenant.Tier(t)])
			}
			for _, st := range sortedKeys(s.ByStatus) {
				fmt.Fprintf(out, " - %-16s  %d\n", st, s.ByStatus[tenant.Status(st)])
			}
			fmt.Fprintf(out, "Trials ending in 7d: %d\n", s.TrialsExpiring7d)
			fmt.Fprintf(out, "Live connections:   %d\n", s.ConnectedClients)
			return nil
		},
	}
}

func newTenantsSetCmd(o *options, field, short string) *cobra.Command {
	return &cobra.Command{
		Use:   fmt.Sprintf("set-%s <id> <%s>", field, field),
		Short: short,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			o.super = true
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			value := strings.ToUpper(args[1])

			var body interface{}
			switch field {
			case "status":
				s := tenant.Status(value)
				if !s.Valid() {
					return fmt.Errorf("invalid status %q", args[1])
				}
				body = tenant.UpdateStatusRequest{Status: s}
			default:
				t := tenant.Tier(value)
				if !t.Valid() {
					return fmt.Errorf("invalid tier %q", args[1])
				}
				body = tenant.UpdateTierRequest{Tier: t}
			}

			ws, err := o.workspace(cmd)
			if err != nil {
				return err
			}
			defer ws.Close()

			var updated tenant.Tenant
			m := mutation.Update(fmt.Sprintf("/api/superadmin/tenants/%d/%s", id, field), body, resource.Tenant,
				fmt.Sprintf("Tenant %s updated", field))
			m.Out = &updated
			if err := ws.mut.Execute(cmd.Context(), m); err != nil {
				return err
			}
			if o.jsonOutput() {
				return printJSON(cmd, updated)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s, %s\n", updated.Name, updated.Status, updated.SubscriptionTier)
			return nil
		},
	}
}

func sortedKeys[K ~string, V any](m map[K]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, string(k))
	}
	sort.Strings(out)
	return out
}
