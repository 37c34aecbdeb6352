package cli

import (
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"mnetifi-service/internal/dashboard/client"
	"mnetifi-service/internal/dashboard/mutation"
	"mnetifi-service/internal/domain/plan"
	"mnetifi-service/internal/domain/resource"
)

func newPlansCmd(o *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "plans",
		Aliases: []string{"plan"},
		Short:   "List and manage internet plans",
	}
	cmd.AddCommand(newPlansListCmd(o))
	cmd.AddCommand(newPlansCreateCmd(o))
	cmd.AddCommand(newPlansSetActiveCmd(o, "enable", true))
	cmd.AddCommand(newPlansSetActiveCmd(o, "disable", false))
	cmd.AddCommand(newPlansDeleteCmd(o))
	return cmd
}

func newPlansListCmd(o *options) *cobra.Command {
	var planType, search string
	var page, pageSize int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List plans",
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := o.workspace(cmd)
			if err != nil {
				return err
			}
			defer ws.Close()

			q := url.Values{}
			setParam(q, "type", planType)
			setParam(q, "search", search)
			setInt(q, "page", page)
			setInt(q, "page_size", pageSize)
			p, err := read[client.Page[plan.Plan]](cmd, ws, client.Path("/api/plans", q))
			if err != nil {
				return err
			}
			if o.jsonOutput() {
				return printJSON(cmd, p)
			}
			if len(p.Items) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No plans yet. Create one with 'mnetictl plans create'.")
				return nil
			}
			rows := make([][]string, 0, len(p.Items))
			for _, pl := range p.Items {
				rows = append(rows, []string{
					strconv.FormatInt(pl.ID, 10),
					pl.Name,
					string(pl.PlanType),
					formatPrice(pl.Price),
					formatDuration(pl.Duration()),
					deref(pl.SpeedMbps),
					strconv.Itoa(pl.MaxDevices),
					yesNo(pl.IsActive),
				})
			}
			if err := printTable(cmd, []string{"ID", "NAME", "TYPE", "PRICE", "DURATION", "MBPS", "DEVICES", "ACTIVE"}, rows); err != nil {
				return err
			}
			pageFooter(cmd, p)
			return nil
		},
	}
	cmd.Flags().StringVar(&planType, "type", "", "filter by type (HOTSPOT or PPPOE)")
	cmd.Flags().StringVar(&search, "search", "", "match plan names")
	cmd.Flags().IntVar(&page, "page", 0, "page number")
	cmd.Flags().IntVar(&pageSize, "page-size", 0, "items per page")
	return cmd
}

func newPlansCreateCmd(o *options) *cobra.Command {
	var (
		name, planType, price string
		duration              time.Duration
		speed, maxDevices     int
		inactive              bool
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a plan",
		Example: `  mnetictl plans create --name "1 Hour" --price 20 --duration 1h
  mnetictl plans create --name Daily --price 50 --duration 24h --speed 5 --max-devices 2`,
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := decimal.NewFromString(price)
			if err != nil {
				return fmt.Errorf("invalid price %q", price)
			}
			req := plan.CreatePlanRequest{
				Name:            name,
				Price:           amount,
				DurationSeconds: int64(duration / time.Second),
				PlanType:        plan.PlanType(planType),
				MaxDevices:      maxDevices,
			}
			if speed > 0 {
				req.SpeedMbps = &speed
			}
			if inactive {
				active := false
				req.IsActive = &active
			}
			if err := req.Validate(); err != nil {
				printFieldErrors(cmd, fieldErrors(err))
				return err
			}

			ws, err := o.workspace(cmd)
			if err != nil {
				return err
			}
			defer ws.Close()

			var created plan.Plan
			m := mutation.Create("/api/plans", req, resource.Plan, "Plan created")
			m.Out = &created
			m.SuccessDescription = name
			if err := ws.mut.Execute(cmd.Context(), m); err != nil {
				return err
			}
			if o.jsonOutput() {
				return printJSON(cmd, created)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d\n", created.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "plan name")
	cmd.Flags().StringVar(&planType, "type", string(plan.TypeHotspot), "HOTSPOT or PPPOE")
	cmd.Flags().StringVar(&price, "price", "", "price in KES")
	cmd.Flags().DurationVar(&duration, "duration", time.Hour, "access period")
	cmd.Flags().IntVar(&speed, "speed", 0, "speed cap in Mbps (0 for none)")
	cmd.Flags().IntVar(&maxDevices, "max-devices", 1, "devices per purchase")
	cmd.Flags().BoolVar(&inactive, "inactive", false, "create the plan hidden from the portal")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("price")
	return cmd
}

func newPlansSetActiveCmd(o *options, use string, active bool) *cobra.Command {
	short := "Show a plan on the captive portal"
	if !active {
		short = "Hide a plan from the captive portal"
	}
	return &cobra.Command{
		Use:   use + " <id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			ws, err := o.workspace(cmd)
			if err != nil {
				return err
			}
			defer ws.Close()

			title := "Plan enabled"
			if !active {
				title = "Plan disabled"
			}
			return ws.mut.Execute(cmd.Context(), mutation.Update(
				fmt.Sprintf("/api/plans/%d", id),
				plan.UpdatePlanRequest{IsActive: &active},
				resource.Plan, title))
		},
	}
}

func newPlansDeleteCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a plan that nothing references",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			ws, err := o.workspace(cmd)
			if err != nil {
				return err
			}
			defer ws.Close()
			return ws.mut.Execute(cmd.Context(), mutation.Delete(fmt.Sprintf("/api/plans/%d", id), resource.Plan, "Plan deleted"))
		},
	}
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", s)
	}
	return id, nil
}

func setParam(q url.Values, name, v string) {
	if v != "" {
		q.Set(name, v)
	}
}

func setInt(q url.Values, name string, v int) {
	if v > 0 {
		q.Set(name, strconv.Itoa(v))
	}
}

// formatDuration and formatPrice match the dashboard plan card: "1 day",
// "KES 50".
func formatDuration(d time.Duration) string {
	unit := func(n time.Duration, name string) string {
		if n == 1 {
			return "1 " + name
		}
		return fmt.Sprintf("%d %ss", n, name)
	}
	switch {
	case d <= 0:
		return "-"
	case d%(24*time.Hour) == 0:
		return unit(d/(24*time.Hour), "day")
	case d%time.Hour == 0:
		return unit(d/time.Hour, "hour")
	default:
		return unit(d/time.Minute, "minute")
	}
}

func formatPrice(p decimal.Decimal) string {
	if p.IsInteger() {
		return "KES " + p.StringFixed(0)
	}
	return "KES " + p.StringFixed(2)
}
