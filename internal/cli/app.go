// Package cli implements the phish-scanner commands.
package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/mikey/phish-scanner/internal/authflow"
	"github.com/mikey/phish-scanner/internal/config"
	"github.com/mikey/phish-scanner/internal/core"
	"github.com/mikey/phish-scanner/internal/credential"
	"github.com/mikey/phish-scanner/internal/export"
	"github.com/mikey/phish-scanner/internal/scan"
	"github.com/mikey/phish-scanner/internal/source"
	"github.com/mikey/phish-scanner/internal/source/relay"
	"go.uber.org/dig"
	"go.uber.org/zap"
)

// Commands lists the supported subcommands
var Commands = []string{"login", "logout", "status", "list", "scan"}

// AppParams are the dependencies of App
type AppParams struct {
	dig.In

	Auth        config.AuthConfig
	Flow        *authflow.Flow
	Credentials *credential.Lifecycle
	Sources     *source.Manager
	Remote      *source.RemoteMailSource
	Table       *source.LocalTableSource
	Relay       *relay.Source
	Pipeline    *scan.Pipeline
	Logger      *zap.Logger
}

// App runs one command per invocation
type App struct {
	auth        config.AuthConfig
	flow        *authflow.Flow
	credentials *credential.Lifecycle
	sources     *source.Manager
	remote      *source.RemoteMailSource
	table       *source.LocalTableSource
	relay       *relay.Source
	pipeline    *scan.Pipeline
	logger      *zap.Logger
	out         io.Writer
	now         func() time.Time
}

// NewApp creates the command runner
func NewApp(p AppParams) *App {
	return &App{
		auth:        p.Auth,
		flow:        p.Flow,
		credentials: p.Credentials,
		sources:     p.Sources,
		remote:      p.Remote,
		table:       p.Table,
		relay:       p.Relay,
		pipeline:    p.Pipeline,
		logger:      p.Logger,
		out:         os.Stdout,
		now:         time.Now,
	}
}

// SetOutput redirects command output
func (a *App) SetOutput(w io.Writer) {
	a.out = w
}

// Run dispatches args[0] to its command
func (a *App) Run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("missing command, expected one of: %s", strings.Join(Commands, ", "))
	}

	cmd, rest := args[0], args[1:]
	switch cmd {
	case "login":
		return a.runLogin(ctx, rest)
	case "logout":
		a.credentials.Clear(ctx)
		fmt.Fprintln(a.out, "Signed out.")
		return nil
	case "status":
		return a.runStatus(ctx)
	case "list":
		return a.runList(ctx, rest)
	case "scan":
		return a.runScan(ctx, rest)
	default:
		return fmt.Errorf("unknown command %q, expected one of: %s", cmd, strings.Join(Commands, ", "))
	}
}

func (a *App) runLogin(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("login", flag.ContinueOnError)
	fs.SetOutput(a.out)
	scope := fs.String("scope", string(core.SlotBasic), "Grant to request (basic, mail)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	slot, ok := core.ParseSlot(*scope)
	if !ok {
		return fmt.Errorf("unknown scope %q", *scope)
	}
	return a.login(ctx, slot)
}

// login runs the redirect flow for slot until the callback is handled
func (a *App) login(ctx context.Context, slot core.Slot) error {
	authURL, release, err := a.flow.Begin(slot)
	if err != nil {
		return err
	}
	defer release()

	listener, err := authflow.NewListener(a.flow, a.auth.RedirectURL, a.logger)
	if err != nil {
		return err
	}
	addr, err := listenAddress(a.auth.RedirectURL)
	if err != nil {
		return err
	}

	fmt.Fprintf(a.out, "Open this URL in your browser to grant %s access:\n\n  %s\n\n", slot, authURL)

	waitCtx, cancel := context.WithTimeout(ctx, a.auth.CallbackTimeout)
	defer cancel()

	result, err := listener.Wait(waitCtx, addr)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("timed out waiting for the authorization callback")
		}
		return err
	}
	if result.Err != nil {
		return result.Err
	}

	fmt.Fprintf(a.out, "Authorized %s access.\n", result.Slot)
	return nil
}

func (a *App) runStatus(ctx context.Context) error {
	now := a.now()
	for _, slot := range core.Slots {
		cred := a.credentials.Current(ctx, slot)
		switch {
		case cred == nil:
			fmt.Fprintf(a.out, "%-6s not authorized\n", slot)
		case a.credentials.IsExpired(cred):
			refresh := "no refresh token"
			if cred.RefreshToken != "" {
				refresh = "refreshable"
			}
			fmt.Fprintf(a.out, "%-6s expired (%s)\n", slot, refresh)
		default:
			expires := time.Unix(cred.IssuedAt+cred.LifetimeSeconds, 0)
			fmt.Fprintf(a.out, "%-6s valid, expires %s\n", slot, expires.Format(time.RFC3339))
		}
	}

	identity, err := a.credentials.Identity(ctx)
	switch {
	case errors.Is(err, credential.ErrNoIdentity):
		fmt.Fprintln(a.out, "user   unknown")
	case err != nil:
		fmt.Fprintf(a.out, "user   unreadable identity (%v)\n", err)
	case identity.Expired(now):
		fmt.Fprintf(a.out, "user   %s (assertion expired)\n", identity.UserID)
	default:
		fmt.Fprintf(a.out, "user   %s\n", identity.UserID)
	}
	return nil
}

// sourceFlags are shared by list and scan
type sourceFlags struct {
	source string
	file   string
	wait   time.Duration
}

func (sf *sourceFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&sf.source, "source", source.RemoteName, "Email source (remote, csv, relay)")
	fs.StringVar(&sf.file, "file", "", "CSV file for the csv source")
	fs.DurationVar(&sf.wait, "wait", 30*time.Second, "How long the relay source accepts messages")
}

func (a *App) runList(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("list", flag.ContinueOnError)
	fs.SetOutput(a.out)
	var sf sourceFlags
	sf.register(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}

	items, err := a.load(ctx, sf)
	if err != nil {
		return err
	}

	for i, item := range items {
		fmt.Fprintf(a.out, "%3d  %-40s  %s\n", i, truncate(item.Subject(), 40), item.Sender())
	}
	fmt.Fprintf(a.out, "%d items\n", len(items))
	return nil
}

func (a *App) runScan(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("scan", flag.ContinueOnError)
	fs.SetOutput(a.out)
	var sf sourceFlags
	sf.register(fs)
	selection := fs.String("select", "all", "Comma-separated item indices, or all")
	exportPath := fs.String("export", "", "Write results to this CSV file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	items, err := a.load(ctx, sf)
	if err != nil {
		return err
	}

	indices, err := ParseSelection(*selection, len(items))
	if err != nil {
		return err
	}
	if err := a.sources.Select(indices); err != nil {
		return err
	}

	a.pipeline.SetObserver(func(done, total int, r core.ScanResult) {
		fmt.Fprintf(a.out, "[%d/%d] %3d  %-15s %-6s  %s\n",
			done, total, r.ItemIndex, r.PredictedLabel, r.Confidence(), truncate(items[r.ItemIndex].Subject(), 40))
	})

	results, scanErr := a.pipeline.RunSelected(ctx, a.sources)
	if scanErr != nil && len(results) == 0 {
		return scanErr
	}

	if *exportPath != "" {
		if err := export.WriteFile(*exportPath, items, results); err != nil {
			return err
		}
		fmt.Fprintf(a.out, "Exported %d results to %s\n", len(results), *exportPath)
	}

	if scanErr != nil {
		return fmt.Errorf("scan stopped after %d of %d items: %w", len(results), len(indices), scanErr)
	}
	return nil
}

// load activates the requested source and returns its items
func (a *App) load(ctx context.Context, sf sourceFlags) ([]core.EmailItem, error) {
	switch sf.source {
	case source.RemoteName:
		if _, err := a.fetchRemote(ctx); err != nil {
			return nil, err
		}
	case source.TableName:
		if sf.file == "" {
			return nil, fmt.Errorf("the csv source needs -file")
		}
		f, err := os.Open(sf.file)
		if err != nil {
			return nil, fmt.Errorf("failed to open %s: %w", sf.file, err)
		}
		defer f.Close()
		if err := a.table.Load(f); err != nil {
			return nil, err
		}
	case relay.Name:
		if err := a.collectRelay(ctx, sf.wait); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unknown source %q", sf.source)
	}

	if err := a.sources.Activate(sf.source); err != nil {
		return nil, err
	}
	return a.sources.Items(), nil
}

// fetchRemote reads the mailbox, running the mail authorization once when
// the session cannot be used.
func (a *App) fetchRemote(ctx context.Context) ([]core.EmailItem, error) {
	items, err := a.remote.Fetch(ctx)
	if err == nil || !core.RequiresReauthorization(err) {
		return items, err
	}

	a.logger.Info("Mailbox access requires authorization", zap.Error(err))
	if err := a.login(ctx, core.SlotMail); err != nil {
		return nil, err
	}
	return a.remote.Fetch(ctx)
}

func (a *App) collectRelay(ctx context.Context, wait time.Duration) error {
	if err := a.relay.Start(); err != nil {
		return err
	}
	defer func() {
		if err := a.relay.Stop(); err != nil {
			a.logger.Warn("Failed to stop relay", zap.Error(err))
		}
	}()

	fmt.Fprintf(a.out, "Accepting messages for %s...\n", wait)
	select {
	case <-time.After(wait):
	case <-ctx.Done():
	}
	return nil
}

// ParseSelection turns "all" or "0,2,5" into indices for a list of n items
func ParseSelection(s string, n int) ([]int, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "all") {
		indices := make([]int, n)
		for i := range indices {
			indices[i] = i
		}
		return indices, nil
	}

	var indices []int
	for _, part := range strings.Split(s, ",") {
		idx, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return nil, fmt.Errorf("%w: %q is not an index", core.ErrInvalidSelection, part)
		}
		indices = append(indices, idx)
	}
	if err := source.ValidateSelection(indices, n); err != nil {
		return nil, err
	}
	return indices, nil
}

// listenAddress derives the local listen address from the redirect URL
func listenAddress(redirectURL string) (string, error) {
	u, err := url.Parse(redirectURL)
	if err != nil {
		return "", fmt.Errorf("invalid redirect URL: %w", err)
	}
	if u.Port() == "" {
		if u.Scheme == "https" {
			return u.Hostname() + ":443", nil
		}
		return u.Hostname() + ":80", nil
	}
	return u.Host, nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
