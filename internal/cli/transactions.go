package cli

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"mnetifi-service/internal/dashboard/client"
	"mnetifi-service/internal/dashboard/export"
	"mnetifi-service/internal/dashboard/livesync"
	"mnetifi-service/internal/dashboard/notify"
	"mnetifi-service/internal/dashboard/poller"
	"mnetifi-service/internal/dashboard/querycache"
	"mnetifi-service/internal/domain/transaction"
	wstypes "mnetifi-service/internal/domain/websocket"
)

const exportPageSize = 100

type txFilters struct {
	status string
	recon  string
	phone  string
	from   string
	to     string
}

func (f *txFilters) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.status, "status", "", "PENDING, COMPLETED or FAILED")
	cmd.Flags().StringVar(&f.recon, "reconciliation", "", "PENDING, MATCHED, MISMATCHED or UNMATCHED")
	cmd.Flags().StringVar(&f.phone, "phone", "", "customer phone")
	cmd.Flags().StringVar(&f.from, "from", "", "first day, YYYY-MM-DD")
	cmd.Flags().StringVar(&f.to, "to", "", "last day, YYYY-MM-DD")
}

func (f *txFilters) values() (url.Values, error) {
	q := url.Values{}
	for _, d := range []string{f.from, f.to} {
		if d == "" {
			continue
		}
		if _, err := time.Parse("2006-01-02", d); err != nil {
			return nil, fmt.Errorf("invalid date %q (want YYYY-MM-DD)", d)
		}
	}
	setParam(q, "status", f.status)
	setParam(q, "reconciliation_status", f.recon)
	setParam(q, "phone", f.phone)
	setParam(q, "from", f.from)
	setParam(q, "to", f.to)
	return q, nil
}

func newTransactionsCmd(o *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "transactions",
		Aliases: []string{"tx"},
		Short:   "M-Pesa payments",
	}
	cmd.AddCommand(newTransactionsListCmd(o))
	cmd.AddCommand(newTransactionsStatsCmd(o))
	cmd.AddCommand(newTransactionsWatchCmd(o))
	cmd.AddCommand(newTransactionsExportCmd(o))
	return cmd
}

func newTransactionsListCmd(o *options) *cobra.Command {
	var f txFilters
	var page, pageSize int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List transactions, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			q, err := f.values()
			if err != nil {
				return err
			}
			setInt(q, "page", page)
			setInt(q, "page_size", pageSize)

			ws, err := o.workspace(cmd)
			if err != nil {
				return err
			}
			defer ws.Close()

			p, err := read[client.Page[transaction.Transaction]](cmd, ws, client.Path("/api/transactions", q))
			if err != nil {
				return err
			}
			if o.jsonOutput() {
				return printJSON(cmd, p)
			}
			if err := printTransactions(cmd, p.Items); err != nil {
				return err
			}
			pageFooter(cmd, p)
			return nil
		},
	}
	f.bind(cmd)
	cmd.Flags().IntVar(&page, "page", 0, "page number")
	cmd.Flags().IntVar(&pageSize, "page-size", 0, "items per page")
	return cmd
}

func printTransactions(cmd *cobra.Command, items []transaction.Transaction) error {
	if len(items) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No transactions.")
		return nil
	}
	rows := make([][]string, 0, len(items))
	for _, t := range items {
		created := t.CreatedAt
		rows = append(rows, []string{
			strconv.FormatInt(t.ID, 10),
			formatTime(&created),
			t.UserPhone,
			t.Amount.StringFixed(2),
			string(t.Status),
			deref(t.MpesaReceiptNumber),
			string(t.ReconciliationStatus),
		})
	}
	return printTable(cmd, []string{"ID", "DATE", "PHONE", "AMOUNT", "STATUS", "RECEIPT", "RECONCILED"}, rows)
}

func newTransactionsStatsCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Payment totals",
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := o.workspace(cmd)
			if err != nil {
				return err
			}
			defer ws.Close()

			s, err := read[transaction.Stats](cmd, ws, "/api/transactions/stats")
			if err != nil {
				return err
			}
			if o.jsonOutput() {
				return printJSON(cmd, s)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Revenue today:  KES %s\n", s.RevenueToday.StringFixed(2))
			fmt.Fprintf(out, "Total revenue:  KES %s\n", s.TotalRevenue.StringFixed(2))
			fmt.Fprintf(out, "Transactions:   %d (%d completed, %d pending, %d failed)\n",
				s.TotalCount, s.CompletedCount, s.PendingCount, s.FailedCount)
			fmt.Fprintf(out, "Success rate:   %.1f%%\n", s.SuccessRate)
			return nil
		},
	}
}

func newTransactionsWatchCmd(o *options) *cobra.Command {
	var f txFilters
	var interval time.Duration
	var updates int
	var live bool

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Show the latest transactions and refresh as payments arrive",
		Long: `Watch the first page of transactions. The list refreshes on a timer and,
unless --live=false, immediately when the server reports a write.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			q, err := f.values()
			if err != nil {
				return err
			}
			ws, err := o.workspace(cmd)
			if err != nil {
				return err
			}
			defer ws.Close()

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			renders := make(chan querycache.State, 1)
			key := querycache.ParseKey(client.Path("/api/transactions", q))
			unsubscribe := ws.cache.Subscribe(key, func(st querycache.State) {
				if st.IsLoading {
					return
				}
				select {
				case renders <- st:
				case <-ctx.Done():
				}
			})
			defer unsubscribe()

			go poller.New(ws.cache, interval).Run(ctx)
			if live {
				n := o.notifier(cmd)
				syncer := livesync.New(ws.api.BaseURL(), ws.api.Token, ws.cache, livesync.Options{
					Logger:    o.log(),
					OnMessage: notificationPrinter(n),
				})
				go func() {
					if err := syncer.Run(ctx); err != nil {
						o.log().Warn("live updates stopped", zap.Error(err))
					}
				}()
			}

			seen := 0
			for {
				select {
				case <-ctx.Done():
					return nil
				case st := <-renders:
					if err := renderWatch(cmd, o, st); err != nil {
						return err
					}
					seen++
					if updates > 0 && seen >= updates {
						return nil
					}
				}
			}
		},
	}
	f.bind(cmd)
	cmd.Flags().DurationVar(&interval, "interval", poller.DefaultInterval, "refresh interval")
	cmd.Flags().IntVar(&updates, "updates", 0, "exit after this many refreshes (0 runs until interrupted)")
	cmd.Flags().BoolVar(&live, "live", true, "refresh on server push events")
	return cmd
}

func renderWatch(cmd *cobra.Command, o *options, st querycache.State) error {
	if st.Err != nil && !st.HasData() {
		o.notifier(cmd).Notify(notify.FromError("Could not load transactions", st.Err))
		return nil
	}
	p, err := querycache.Decode[client.Page[transaction.Transaction]](st.Data)
	if err != nil {
		return err
	}
	if o.jsonOutput() {
		return printJSON(cmd, p)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "\n%s  %d transactions\n", st.UpdatedAt.Local().Format("15:04:05"), p.Total)
	return printTransactions(cmd, p.Items)
}

// notificationPrinter surfaces pushed notifications while watching.
func notificationPrinter(n notify.Notifier) func(*wstypes.WSMessage) {
	return func(m *wstypes.WSMessage) {
		if m.Type != wstypes.EventTypeNotification {
			return
		}
		var data wstypes.NotificationData
		if err := m.DecodeData(&data); err != nil {
			return
		}
		n.Notify(notify.Notification{Level: notify.Info, Title: data.Title, Description: data.Message})
	}
}

var transactionColumns = []export.Column[transaction.Transaction]{
	{Header: "ID", Value: func(t transaction.Transaction) interface{} { return t.ID }},
	{Header: "Date", Value: func(t transaction.Transaction) interface{} { return t.CreatedAt }},
	{Header: "Phone", Value: func(t transaction.Transaction) interface{} { return t.UserPhone }},
	{Header: "Amount", Value: func(t transaction.Transaction) interface{} { return t.Amount }},
	{Header: "Paid", Value: func(t transaction.Transaction) interface{} { return t.PaidAmount }},
	{Header: "Status", Value: func(t transaction.Transaction) interface{} { return string(t.Status) }},
	{Header: "Receipt", Value: func(t transaction.Transaction) interface{} { return t.MpesaReceiptNumber }},
	{Header: "Reconciliation", Value: func(t transaction.Transaction) interface{} { return string(t.ReconciliationStatus) }},
	{Header: "Failure Reason", Value: func(t transaction.Transaction) interface{} { return t.FailureReason }},
	{Header: "Completed", Value: func(t transaction.Transaction) interface{} { return t.CompletedAt }},
}

func newTransactionsExportCmd(o *options) *cobra.Command {
	var f txFilters
	var format, file string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export every matching transaction",
		Example: `  mnetictl transactions export --from 2026-03-01 --to 2026-03-31 --format xls -f march.xls`,
		RunE: func(cmd *cobra.Command, args []string) error {
			q, err := f.values()
			if err != nil {
				return err
			}
			ws, err := o.workspace(cmd)
			if err != nil {
				return err
			}
			defer ws.Close()

			var all []transaction.Transaction
			q.Set("page_size", strconv.Itoa(exportPageSize))
			for page := 1; ; page++ {
				q.Set("page", strconv.Itoa(page))
				p, err := read[client.Page[transaction.Transaction]](cmd, ws, client.Path("/api/transactions", q))
				if err != nil {
					return err
				}
				all = append(all, p.Items...)
				if page >= p.TotalPages || len(p.Items) == 0 {
					break
				}
			}
			return writeExport(cmd, format, file, "Transactions", export.FromRows(transactionColumns, all))
		},
	}
	f.bind(cmd)
	cmd.Flags().StringVar(&format, "format", "csv", "csv or xls")
	cmd.Flags().StringVarP(&file, "file", "f", "", "write to this file instead of stdout")
	return cmd
}
