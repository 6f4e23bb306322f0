package daemon

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/PyRo1121/omg-sub002/internal/engine"
	"github.com/PyRo1121/omg-sub002/internal/pkgdb"
	"github.com/PyRo1121/omg-sub002/internal/security"
	"github.com/PyRo1121/omg-sub002/pkg/logging"
	"github.com/PyRo1121/omg-sub002/pkg/ratelimit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testServer(t *testing.T) (*Server, string, func()) {
	t.Helper()

	sync := []pkgdb.Package{{Name: "neovim", Version: "0.10.0", Repo: "extra"}}
	local := []pkgdb.Package{{Name: "neovim", Version: "0.9.0", Repo: "extra", Reason: pkgdb.ReasonExplicit}}
	adapter := pkgdb.NewMemoryAdapter(local, sync)

	log := logging.New("daemon-test", "error", "text")
	eng := engine.New(adapter, log)
	resultCache := NewResultCache(eng)
	rlClient := ratelimit.NewClient(&http.Client{Timeout: time.Second}, ratelimit.DefaultConfig())
	auditRunner := NewAuditRunner(eng, security.NewVulnerabilityCache("arch", rlClient, time.Minute, nil, nil), security.SecurityPolicy{})
	metrics := NewMetrics()

	srv := NewServer(eng, resultCache, auditRunner, metrics, log)

	dir := t.TempDir()
	socketPath := filepath.Join(dir, "omg.sock")

	ctx, cancel := context.WithCancel(context.Background())
	go srv.Serve(ctx, socketPath)

	// give the accept loop a moment to start listening
	for i := 0; i < 100; i++ {
		if _, err := os.Stat(socketPath); err == nil {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	cleanup := func() {
		cancel()
		srv.Shutdown()
		resultCache.Close()
		eng.Close()
	}
	return srv, socketPath, cleanup
}

func TestServerRespondsToPing(t *testing.T) {
	_, socketPath, cleanup := testServer(t)
	defer cleanup()

	client, err := Dial(context.Background(), socketPath)
	require.NoError(t, err)
	defer client.Close()

	require.NoError(t, client.Ping(context.Background()))
}

func TestServerSearchGoesThroughResultCache(t *testing.T) {
	_, socketPath, cleanup := testServer(t)
	defer cleanup()

	client, err := Dial(context.Background(), socketPath)
	require.NoError(t, err)
	defer client.Close()

	results, err := client.Search(context.Background(), "neovim", 10)
	require.NoError(t, err)
	assert.NotEmpty(t, results)
}

func TestServerInfoReturnsPackageNotFoundError(t *testing.T) {
	_, socketPath, cleanup := testServer(t)
	defer cleanup()

	client, err := Dial(context.Background(), socketPath)
	require.NoError(t, err)
	defer client.Close()

	_, err = client.Info(context.Background(), "does-not-exist")
	assert.Error(t, err)
}

func TestServerStatusReportsCounts(t *testing.T) {
	_, socketPath, cleanup := testServer(t)
	defer cleanup()

	client, err := Dial(context.Background(), socketPath)
	require.NoError(t, err)
	defer client.Close()

	raw, err := client.Status(context.Background())
	require.NoError(t, err)

	var status pkgdb.Status
	require.NoError(t, json.Unmarshal(raw, &status))
	assert.Equal(t, 1, status.Total)
}

func TestRunBatchReturnsPartialSuccessEnvelope(t *testing.T) {
	srv, _, cleanup := testServer(t)
	defer cleanup()

	requests := []Request{
		{ID: 1, Kind: MsgPing},
		{ID: 2, Kind: MsgInfo, Payload: mustJSON(t, InfoPayload{Package: "missing-pkg"})},
	}

	result := srv.runBatch(context.Background(), requests)
	require.Len(t, result.Items, 2)
	assert.True(t, result.Items[0].OK)
	assert.False(t, result.Items[1].OK)
	require.NotNil(t, result.Items[1].Error)
}

func mustJSON(t *testing.T, v interface{}) json.RawMessage {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return data
}
