package cli

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/term"

	"mnetifi-service/internal/dashboard/client"
	"mnetifi-service/internal/dashboard/mutation"
	"mnetifi-service/internal/dashboard/notify"
	"mnetifi-service/internal/dashboard/querycache"
	"mnetifi-service/internal/dashboard/session"
	"mnetifi-service/internal/pkg/validate"
)

// options holds the persistent flags and the per-run state built from them.
type options struct {
	apiURL      string
	sessionPath string
	super       bool
	idle        time.Duration
	output      string
	verbose     bool

	in     *bufio.Reader
	logger *zap.Logger
}

func (o *options) clock() time.Time { return time.Now() }

func (o *options) log() *zap.Logger {
	if o.logger != nil {
		return o.logger
	}
	o.logger = zap.NewNop()
	if o.verbose {
		if l, err := zap.NewDevelopment(); err == nil {
			o.logger = l
		}
	}
	return o.logger
}

func (o *options) store() (session.Store, error) {
	path := o.sessionPath
	if path == "" {
		var err error
		if path, err = session.DefaultPath(); err != nil {
			return nil, err
		}
	}
	return session.NewFileStore(path), nil
}

func (o *options) guard(store session.Store) *session.Guard {
	if o.super {
		return session.SuperAdminGuard(store)
	}
	return session.AdminGuard(store, o.idle)
}

func (o *options) client() (*client.Client, error) {
	return client.New(client.Config{BaseURL: o.apiURL, Logger: o.log()})
}

// authed returns a client carrying the stored session's token and records
// activity on the session.
func (o *options) authed() (*client.Client, *session.Session, error) {
	store, err := o.store()
	if err != nil {
		return nil, nil, err
	}
	g := o.guard(store)
	s, err := g.Touch()
	switch {
	case errors.Is(err, session.ErrNoSession):
		return nil, nil, errors.New("not signed in; run 'mnetictl login' first")
	case errors.Is(err, session.ErrIdleExpired):
		return nil, nil, errors.New("session expired after inactivity; run 'mnetictl login' again")
	case errors.Is(err, session.ErrWrongRole):
		return nil, nil, fmt.Errorf("the stored session is not a %s session", g.Role)
	case err != nil:
		return nil, nil, err
	}
	c, err := o.client()
	if err != nil {
		return nil, nil, err
	}
	c.SetToken(s.Token)
	return c, s, nil
}

func (o *options) notifier(cmd *cobra.Command) notify.Notifier {
	return notify.NewConsole(cmd.ErrOrStderr())
}

// workspace bundles what a data command needs: an authenticated client, a
// query cache over it and a mutation executor that reports to stderr.
type workspace struct {
	api   *client.Client
	cache *querycache.Cache
	mut   *mutation.Executor
}

func (o *options) workspace(cmd *cobra.Command) (*workspace, error) {
	c, _, err := o.authed()
	if err != nil {
		return nil, err
	}
	cache := querycache.New(querycache.ClientFetcher(c), querycache.Options{Logger: o.log()})
	return &workspace{
		api:   c,
		cache: cache,
		mut:   mutation.NewExecutor(c, cache, o.notifier(cmd), o.log()),
	}, nil
}

func (w *workspace) Close() { w.cache.Close() }

// read fetches path through the cache and decodes it into T.
func read[T any](cmd *cobra.Command, w *workspace, path string) (T, error) {
	data, err := w.cache.Read(cmd.Context(), querycache.ParseKey(path))
	if err != nil {
		var zero T
		return zero, err
	}
	return querycache.Decode[T](data)
}

func (o *options) reader(cmd *cobra.Command) *bufio.Reader {
	if o.in == nil {
		o.in = bufio.NewReader(cmd.InOrStdin())
	}
	return o.in
}

// prompt prints label and reads one trimmed line.
func (o *options) prompt(cmd *cobra.Command, label string) (string, error) {
	fmt.Fprint(cmd.OutOrStdout(), label)
	line, err := o.reader(cmd).ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// promptDefault keeps def when the answer is empty.
func (o *options) promptDefault(cmd *cobra.Command, label, def string) (string, error) {
	if def != "" {
		label = fmt.Sprintf("%s [%s]", strings.TrimSuffix(label, ": "), def) + ": "
	}
	v, err := o.prompt(cmd, label)
	if err != nil || v != "" {
		return v, err
	}
	return def, nil
}

// promptSecret reads without echo when stdin is a terminal.
func (o *options) promptSecret(cmd *cobra.Command, label string) (string, error) {
	if f, ok := cmd.InOrStdin().(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fmt.Fprint(cmd.OutOrStdout(), label)
		b, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(cmd.OutOrStdout())
		if err == nil {
			return strings.TrimSpace(string(b)), nil
		}
	}
	return o.prompt(cmd, label)
}

func (o *options) jsonOutput() bool { return o.output == "json" }

func printJSON(cmd *cobra.Command, v interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printTable(cmd *cobra.Command, headers []string, rows [][]string) error {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, strings.Join(headers, "\t"))
	for _, r := range rows {
		fmt.Fprintln(w, strings.Join(r, "\t"))
	}
	return w.Flush()
}

func pageFooter[T any](cmd *cobra.Command, p client.Page[T]) {
	if p.TotalPages > 1 {
		fmt.Fprintf(cmd.OutOrStdout(), "\npage %d of %d (%d total)\n", p.Page, p.TotalPages, p.Total)
	}
}

func formatTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04")
}

func deref[T any](p *T) string {
	if p == nil {
		return "-"
	}
	return fmt.Sprint(*p)
}

func fieldErrors(err error) validate.FieldErrors {
	var fe validate.FieldErrors
	errors.As(err, &fe)
	return fe
}
