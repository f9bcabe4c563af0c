package exchange

import (
	"io"
	"log/slog"
	"testing"

	"github.com/raphaelgruber/annobridge/internal/exchange/exchangetest"
)

// testEnv bundles a service wired to in-memory collaborators.
type testEnv struct {
	svc      *Service
	registry *exchangetest.Registry
	docs     *exchangetest.DocumentStore
	schema   *exchangetest.SchemaRegistry
	workload *exchangetest.WorkloadManager
	invites  *exchangetest.InviteService
	blob     *exchangetest.BlobStore
}

func newTestEnv(t *testing.T, cfg Config) *testEnv {
	t.Helper()
	if cfg.RepositoryDir == "" {
		cfg.RepositoryDir = t.TempDir()
	}
	env := &testEnv{
		registry: exchangetest.NewRegistry(),
		docs:     exchangetest.NewDocumentStore(),
		schema:   exchangetest.NewSchemaRegistry(),
		workload: exchangetest.NewWorkloadManager(),
		invites:  exchangetest.NewInviteService(),
		blob:     exchangetest.NewBlobStore(true),
	}
	env.svc = NewService(cfg, env.registry, env.docs, env.schema, env.workload, env.invites, env.blob,
		nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
	return env
}
