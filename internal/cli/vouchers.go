package cli

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"mnetifi-service/internal/dashboard/client"
	"mnetifi-service/internal/dashboard/export"
	"mnetifi-service/internal/dashboard/mutation"
	"mnetifi-service/internal/dashboard/querycache"
	"mnetifi-service/internal/domain/resource"
	"mnetifi-service/internal/domain/voucher"
)

// batchPollInterval is how often --wait re-reads a generating batch.
var batchPollInterval = time.Second

func newVouchersCmd(o *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "vouchers",
		Aliases: []string{"voucher"},
		Short:   "Generate, list and export voucher codes",
	}
	cmd.AddCommand(newVouchersListCmd(o))
	cmd.AddCommand(newBatchesCmd(o))
	cmd.AddCommand(newVouchersExportCmd(o))
	cmd.AddCommand(newVoucherToggleCmd(o, "disable"))
	cmd.AddCommand(newVoucherToggleCmd(o, "enable"))
	return cmd
}

func newVouchersListCmd(o *options) *cobra.Command {
	var batchID int64
	var status, code string
	var page, pageSize int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List vouchers",
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := o.workspace(cmd)
			if err != nil {
				return err
			}
			defer ws.Close()

			q := url.Values{}
			if batchID > 0 {
				q.Set("batch_id", strconv.FormatInt(batchID, 10))
			}
			setParam(q, "status", status)
			setParam(q, "code", code)
			setInt(q, "page", page)
			setInt(q, "page_size", pageSize)
			p, err := read[client.Page[voucher.Voucher]](cmd, ws, client.Path("/api/vouchers", q))
			if err != nil {
				return err
			}
			if o.jsonOutput() {
				return printJSON(cmd, p)
			}
			rows := make([][]string, 0, len(p.Items))
			for _, v := range p.Items {
				rows = append(rows, []string{
					v.Code,
					strconv.FormatInt(v.BatchID, 10),
					string(v.Status),
					formatTime(v.ValidUntil),
					formatTime(v.UsedAt),
				})
			}
			if err := printTable(cmd, []string{"CODE", "BATCH", "STATUS", "VALID UNTIL", "USED AT"}, rows); err != nil {
				return err
			}
			pageFooter(cmd, p)
			return nil
		},
	}
	cmd.Flags().Int64Var(&batchID, "batch", 0, "only codes from this batch")
	cmd.Flags().StringVar(&status, "status", "", "AVAILABLE, USED, EXPIRED or DISABLED")
	cmd.Flags().StringVar(&code, "code", "", "find a code")
	cmd.Flags().IntVar(&page, "page", 0, "page number")
	cmd.Flags().IntVar(&pageSize, "page-size", 0, "items per page")
	return cmd
}

func newBatchesCmd(o *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "batches",
		Aliases: []string{"batch"},
		Short:   "Voucher batches",
	}
	cmd.AddCommand(newBatchesListCmd(o))
	cmd.AddCommand(newBatchesCreateCmd(o))
	cmd.AddCommand(newBatchesDisableCmd(o))
	return cmd
}

func newBatchesListCmd(o *options) *cobra.Command {
	var planID int64
	var status string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List voucher batches",
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := o.workspace(cmd)
			if err != nil {
				return err
			}
			defer ws.Close()

			q := url.Values{}
			if planID > 0 {
				q.Set("plan_id", strconv.FormatInt(planID, 10))
			}
			setParam(q, "status", status)
			p, err := read[client.Page[voucher.Batch]](cmd, ws, client.Path("/api/voucher-batches", q))
			if err != nil {
				return err
			}
			if o.jsonOutput() {
				return printJSON(cmd, p)
			}
			rows := make([][]string, 0, len(p.Items))
			for _, b := range p.Items {
				rows = append(rows, []string{
					strconv.FormatInt(b.ID, 10),
					b.Reference,
					b.PlanName,
					strconv.Itoa(b.Quantity),
					strconv.Itoa(b.Remaining()),
					string(b.Status),
					formatTime(b.ValidUntil),
				})
			}
			if err := printTable(cmd, []string{"ID", "REFERENCE", "PLAN", "QTY", "REMAINING", "STATUS", "VALID UNTIL"}, rows); err != nil {
				return err
			}
			pageFooter(cmd, p)
			return nil
		},
	}
	cmd.Flags().Int64Var(&planID, "plan", 0, "only batches for this plan")
	cmd.Flags().StringVar(&status, "status", "", "PENDING, GENERATING, READY, FAILED or DISABLED")
	return cmd
}

func newBatchesCreateCmd(o *options) *cobra.Command {
	var req voucher.CreateBatchRequest
	var validFor time.Duration
	var wait bool

	cmd := &cobra.Command{
		Use:     "create",
		Short:   "Queue a batch of voucher codes",
		Example: `  mnetictl vouchers batches create --plan 3 --quantity 100 --prefix CAFE --wait`,
		RunE: func(cmd *cobra.Command, args []string) error {
			now := o.clock()
			if validFor > 0 {
				until := now.Add(validFor)
				req.ValidUntil = &until
			}
			req.Normalize()
			if err := req.Validate(now); err != nil {
				printFieldErrors(cmd, fieldErrors(err))
				return err
			}

			ws, err := o.workspace(cmd)
			if err != nil {
				return err
			}
			defer ws.Close()

			var batch voucher.Batch
			m := mutation.Create("/api/voucher-batches", req, resource.VoucherBatch, "Voucher batch queued")
			m.Out = &batch
			m.SuccessDescription = fmt.Sprintf("%d codes", req.Quantity)
			if err := ws.mut.Execute(cmd.Context(), m); err != nil {
				return err
			}
			if wait {
				b, err := waitForBatch(cmd.Context(), ws, batch.ID)
				if err != nil {
					return err
				}
				batch = *b
			}
			if o.jsonOutput() {
				return printJSON(cmd, batch)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "batch %d (%s): %s\n", batch.ID, batch.Reference, batch.Status)
			return nil
		},
	}
	cmd.Flags().Int64Var(&req.PlanID, "plan", 0, "plan the codes grant")
	cmd.Flags().IntVar(&req.Quantity, "quantity", 0, fmt.Sprintf("number of codes (1-%d)", voucher.MaxBatchQuantity))
	cmd.Flags().StringVar(&req.Prefix, "prefix", "", fmt.Sprintf("code prefix, up to %d characters", voucher.MaxPrefixLength))
	cmd.Flags().DurationVar(&validFor, "valid-for", 0, "codes expire this long after creation (0 for never)")
	cmd.Flags().BoolVar(&wait, "wait", false, "wait until the codes are generated")
	_ = cmd.MarkFlagRequired("plan")
	_ = cmd.MarkFlagRequired("quantity")
	return cmd
}

// waitForBatch re-reads the batch until the worker finishes it.
func waitForBatch(ctx context.Context, ws *workspace, id int64) (*voucher.Batch, error) {
	key := querycache.ParseKey(fmt.Sprintf("/api/voucher-batches/%d", id))
	ticker := time.NewTicker(batchPollInterval)
	defer ticker.Stop()
	for {
		data, err := ws.cache.Read(ctx, key)
		if err != nil {
			return nil, err
		}
		b, err := querycache.Decode[voucher.Batch](data)
		if err != nil {
			return nil, err
		}
		switch b.Status {
		case voucher.BatchReady, voucher.BatchDisabled:
			return &b, nil
		case voucher.BatchFailed:
			return &b, fmt.Errorf("batch %d failed to generate", id)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
			ws.cache.Invalidate(key)
		}
	}
}

func newBatchesDisableCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "disable <id>",
		Short: "Disable every unused code in a batch",
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
			return ws.mut.Execute(cmd.Context(), mutation.Request{
				Method:       "POST",
				Path:         fmt.Sprintf("/api/voucher-batches/%d/disable", id),
				Entities:     []resource.Entity{resource.VoucherBatch, resource.Voucher},
				SuccessTitle: "Batch disabled",
				ErrorTitle:   "Failed to disable batch",
			})
		},
	}
}

func newVoucherToggleCmd(o *options, action string) *cobra.Command {
	return &cobra.Command{
		Use:   action + " <id>",
		Short: fmt.Sprintf("%s one voucher", titleCase(action)),
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
			return ws.mut.Execute(cmd.Context(), mutation.Request{
				Method:       "POST",
				Path:         fmt.Sprintf("/api/vouchers/%d/%s", id, action),
				Entities:     []resource.Entity{resource.Voucher},
				SuccessTitle: fmt.Sprintf("Voucher %sd", action),
				ErrorTitle:   fmt.Sprintf("Failed to %s voucher", action),
			})
		},
	}
}

var voucherColumns = []export.Column[voucher.Voucher]{
	{Header: "Code", Value: func(v voucher.Voucher) interface{} { return v.Code }},
	{Header: "Batch", Value: func(v voucher.Voucher) interface{} { return v.BatchID }},
	{Header: "Plan", Value: func(v voucher.Voucher) interface{} { return v.PlanID }},
	{Header: "Status", Value: func(v voucher.Voucher) interface{} { return string(v.Status) }},
	{Header: "Valid Until", Value: func(v voucher.Voucher) interface{} { return v.ValidUntil }},
	{Header: "Used At", Value: func(v voucher.Voucher) interface{} { return v.UsedAt }},
}

func newVouchersExportCmd(o *options) *cobra.Command {
	var format, file string

	cmd := &cobra.Command{
		Use:   "export <batch-id>",
		Short: "Export a batch's codes for printing",
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

			codes, err := read[[]voucher.Voucher](cmd, ws, fmt.Sprintf("/api/voucher-batches/%d/vouchers", id))
			if err != nil {
				return err
			}
			return writeExport(cmd, format, file, fmt.Sprintf("Batch %d", id), export.FromRows(voucherColumns, codes))
		},
	}
	cmd.Flags().StringVar(&format, "format", "csv", "csv or xls")
	cmd.Flags().StringVarP(&file, "file", "f", "", "write to this file instead of stdout")
	return cmd
}

// writeExport renders t as CSV or SpreadsheetML to file, or stdout when
// file is empty.
func writeExport(cmd *cobra.Command, format, file, sheet string, t export.Table) error {
	var out io.Writer = cmd.OutOrStdout()
	if file != "" {
		f, err := os.Create(file)
		if err != nil {
			return err
		}
		defer f.Close()
		out = f
	}

	var err error
	switch format {
	case "csv":
		err = export.WriteCSV(out, t)
	case "xls", "excel":
		err = export.WriteExcelXML(out, sheet, t)
	default:
		return fmt.Errorf("unknown export format %q (want csv or xls)", format)
	}
	if err != nil {
		return err
	}
	if file != "" {
		fmt.Fprintf(cmd.ErrOrStderr(), "wrote %d rows to %s\n", len(t.Rows), file)
	}
	return nil
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return string(s[0]-'a'+'A') + s[1:]
}
