package cli

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"mnetifi-service/internal/dashboard/terminal"
)

func newTerminalCmd(o *options) *cobra.Command {
	var hotspotID int64

	cmd := &cobra.Command{
		Use:   "terminal",
		Short: "Run RouterOS commands on a hotspot router",
	}
	cmd.PersistentFlags().Int64Var(&hotspotID, "hotspot", 0, "hotspot id")
	_ = cmd.MarkPersistentFlagRequired("hotspot")

	cmd.AddCommand(&cobra.Command{
		Use:     "exec <command>",
		Short:   "Run one command",
		Example: `  mnetictl terminal exec --hotspot 2 "/ip hotspot active print"`,
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, _, err := o.authed()
			if err != nil {
				return err
			}
			console := terminal.NewConsole(c)
			e, err := console.Run(cmd.Context(), hotspotID, strings.Join(args, " "))
			if err != nil && e.Seq == 0 {
				return err
			}
			if o.jsonOutput() {
				return printJSON(cmd, e)
			}
			printEntry(cmd.OutOrStdout(), e)
			if err != nil {
				return err
			}
			if !e.Success {
				return errors.New("router rejected the command")
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "shell",
		Short: "Interactive console; type 'exit' to leave, 'clear' to reset the log",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, _, err := o.authed()
			if err != nil {
				return err
			}
			console := terminal.NewConsole(c)
			out := cmd.OutOrStdout()
			prompt := fmt.Sprintf("[hotspot %d] > ", hotspotID)
			for {
				line, err := o.prompt(cmd, prompt)
				if errors.Is(err, io.EOF) {
					fmt.Fprintln(out)
					return nil
				}
				if err != nil {
					return err
				}
				switch line {
				case "":
					continue
				case "exit", "quit":
					return nil
				case "clear":
					console.Clear()
					continue
				case "history":
					for _, e := range console.Entries() {
						fmt.Fprintf(out, "%3d  %s\n", e.Seq, e.Command)
					}
					continue
				}
				e, err := console.Run(cmd.Context(), hotspotID, line)
				if err != nil && e.Seq == 0 {
					color.New(color.FgRed).Fprintln(out, err.Error())
					continue
				}
				printEntry(out, e)
			}
		},
	})
	return cmd
}

func printEntry(w io.Writer, e terminal.Entry) {
	mark := color.New(color.FgGreen).Sprint("ok")
	if !e.Success {
		mark = color.New(color.FgRed).Sprint("error")
	}
	fmt.Fprintf(w, "#%d %s %s (%s)\n", e.Seq, e.Timestamp.Local().Format("15:04:05"), e.Command, mark)
	if out := strings.TrimRight(e.Output, "\n"); out != "" {
		fmt.Fprintln(w, out)
	}
}
