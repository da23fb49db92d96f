package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/mikey/phish-scanner/internal/adapters/storage"
	"github.com/mikey/phish-scanner/internal/authflow"
	"github.com/mikey/phish-scanner/internal/config"
	"github.com/mikey/phish-scanner/internal/core"
	"github.com/mikey/phish-scanner/internal/credential"
	"github.com/mikey/phish-scanner/internal/scan"
	"github.com/mikey/phish-scanner/internal/source"
	"github.com/mikey/phish-scanner/internal/source/relay"
	"github.com/mikey/phish-scanner/internal/tokenstore"
	"github.com/mikey/phish-scanner/internal/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubBackend struct{}

func (stubBackend) ExchangeCode(context.Context, core.Slot, string) (*core.TokenResponse, error) {
	return &core.TokenResponse{AccessToken: "a"}, nil
}

func (stubBackend) RefreshToken(context.Context, core.Slot, string) (*core.TokenResponse, error) {
	return &core.TokenResponse{AccessToken: "a"}, nil
}

func (stubBackend) RetrieveMail(context.Context, string) ([]core.EmailItem, error) {
	return nil, nil
}

type labelClassifier struct{ label core.Label }

func (c labelClassifier) Name() string    { return "stub" }
func (c labelClassifier) Validate() error { return nil }
func (c labelClassifier) Classify(context.Context, string) (*core.Classification, error) {
	return &core.Classification{Label: c.label, Probabilities: map[core.Label]float64{c.label: 0.85}}, nil
}

func newTestApp(t *testing.T) (*App, *credential.Lifecycle, *bytes.Buffer) {
	logger := zap.NewNop()
	session := config.SessionConfig{Key: "session", LegacyKey: "legacy", ExpiryBuffer: 5 * time.Minute}
	store := tokenstore.New(storage.NewMemoryStore(logger), session, nil, logger)
	lifecycle := credential.NewLifecycle(store, stubBackend{}, session, logger)

	auth := config.AuthConfig{RedirectURL: "http://localhost:3000/redirect", CallbackTimeout: time.Second}
	remote := source.NewRemoteMailSource(lifecycle, stubBackend{}, logger)
	table := source.NewLocalTableSource(logger)
	relaySource := relay.NewSource(config.RelayConfig{ListenAddress: "127.0.0.1:0", Domain: "localhost"}, logger)
	pipeline := scan.NewPipeline(labelClassifier{label: core.LabelLegitimate}, utils.NewTextProcessor(logger), config.ScanConfig{}, logger)

	app := NewApp(AppParams{
		Auth:        auth,
		Flow:        authflow.NewFlow(auth, lifecycle, stubBackend{}, logger),
		Credentials: lifecycle,
		Sources:     source.NewManager(logger, remote, table, relaySource),
		Remote:      remote,
		Table:       table,
		Relay:       relaySource,
		Pipeline:    pipeline,
		Logger:      logger,
	})

	var out bytes.Buffer
	app.SetOutput(&out)
	return app, lifecycle, &out
}

func writeCSV(t *testing.T, content string) string {
	path := filepath.Join(t.TempDir(), "mails.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestListCSV(t *testing.T) {
	app, _, out := newTestApp(t)
	path := writeCSV(t, "subject,content\nHello,\"Body, with comma\"\n,no subject here\n")

	require.NoError(t, app.Run(context.Background(), []string{"list", "-source", "csv", "-file", path}))
	assert.Contains(t, out.String(), "Hello")
	assert.Contains(t, out.String(), source.NoSubject)
	assert.Contains(t, out.String(), "2 items")
}

func TestScanCSVWithExport(t *testing.T) {
	app, _, out := newTestApp(t)
	path := writeCSV(t, "subject,content\na,one\nb,two\nc,three\nd,four\ne,five\n")
	exportPath := filepath.Join(t.TempDir(), "out.csv")

	err := app.Run(context.Background(), []string{"scan", "-source", "csv", "-file", path, "-select", "4,1", "-export", exportPath})
	require.NoError(t, err)
	assert.Contains(t, out.String(), "[2/2]")

	data, err := os.ReadFile(exportPath)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "e,,Legitimate,0.0,0.0,85.0,High", lines[1])
	assert.Equal(t, "b,,Legitimate,0.0,0.0,85.0,High", lines[2])
}

func TestScanRejectsBadSelection(t *testing.T) {
	app, _, _ := newTestApp(t)
	path := writeCSV(t, "subject,content\na,one\n")

	err := app.Run(context.Background(), []string{"scan", "-source", "csv", "-file", path, "-select", "3"})
	assert.ErrorIs(t, err, core.ErrInvalidSelection)
}

func TestStatusAndLogout(t *testing.T) {
	app, lifecycle, out := newTestApp(t)
	ctx := context.Background()

	require.NoError(t, app.Run(ctx, []string{"status"}))
	assert.Contains(t, out.String(), "basic  not authorized")
	assert.Contains(t, out.String(), "user   unknown")

	lifecycle.Merge(ctx, core.SlotMail, &core.TokenResponse{AccessToken: "m", RefreshToken: "r", ExpiresIn: 3600})
	out.Reset()
	require.NoError(t, app.Run(ctx, []string{"status"}))
	assert.Contains(t, out.String(), "mail   valid, expires")

	require.NoError(t, app.Run(ctx, []string{"logout"}))
	assert.Nil(t, lifecycle.Current(ctx, core.SlotMail))
}

func TestUnknownCommand(t *testing.T) {
	app, _, _ := newTestApp(t)
	assert.Error(t, app.Run(context.Background(), nil))
	assert.Error(t, app.Run(context.Background(), []string{"frobnicate"}))
	assert.Error(t, app.Run(context.Background(), []string{"list", "-source", "pigeon"}))
}

func TestParseSelection(t *testing.T) {
	got, err := ParseSelection("all", 3)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2}, got)

	got, err = ParseSelection(" 2, 0 ", 3)
	require.NoError(t, err)
	assert.Equal(t, []int{2, 0}, got)

	_, err = ParseSelection("1,x", 3)
	assert.ErrorIs(t, err, core.ErrInvalidSelection)
	_, err = ParseSelection("1,1", 3)
	assert.ErrorIs(t, err, core.ErrInvalidSelection)
}

func TestListenAddress(t *testing.T) {
	addr, err := listenAddress("http://localhost:3000/redirect")
	require.NoError(t, err)
	assert.Equal(t, "localhost:3000", addr)

	addr, err = listenAddress("http://127.0.0.1/cb")
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:80", addr)
}
