package exchange

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raphaelgruber/annobridge/internal/exchange/exchangetest"
	"github.com/raphaelgruber/annobridge/internal/messages"
	"github.com/raphaelgruber/annobridge/internal/metrics"
	"github.com/raphaelgruber/annobridge/internal/signature"
)

const testExchangeKey = "e7a5cd49-8b7c-4f3a-a1fb-0a3e4d9ffbc7"

// capturedPost is one signed message received by the fake job flow.
type capturedPost struct {
	path      string
	body      []byte
	signature string
}

// jobFlowServer fakes the marketplace's notification endpoints and records
// every signed POST it receives.
type jobFlowServer struct {
	*httptest.Server
	mu    sync.Mutex
	posts []capturedPost
}

func newJobFlowServer(t *testing.T) *jobFlowServer {
	t.Helper()
	jf := &jobFlowServer{}
	jf.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		jf.mu.Lock()
		jf.posts = append(jf.posts, capturedPost{
			path:      r.URL.Path,
			body:      body,
			signature: r.Header.Get(messages.HeaderExchangeSignature),
		})
		jf.mu.Unlock()
	}))
	t.Cleanup(jf.Close)
	return jf
}

func (jf *jobFlowServer) postsTo(path string) []capturedPost {
	jf.mu.Lock()
	defer jf.mu.Unlock()
	var out []capturedPost
	for _, p := range jf.posts {
		if p.path == path {
			out = append(out, p)
		}
	}
	return out
}

func spanSelectManifestJSON(t *testing.T, dataSrv *httptest.Server) string {
	t.Helper()
	return `{
		"job_id": "7a0b4f9e-94e5-4eb5-b663-2f7f63a0c9b1",
		"requester_description": "Find all animals.",
		"requester_question": {"en": "Where is the rabbit?"},
		"requester_min_repeats": 2,
		"requester_accuracy_target": 0.75,
		"request_type": "span_select",
		"request_config": {"projectTitle": "Rabbit hunt"},
		"taskdata": [
			{"task_key": "t1", "datapoint_uri": "` + dataSrv.URL + `/doc1.txt", "datapoint_hash": "` + document1Hash + `"},
			{"task_key": "t2", "datapoint_uri": "` + dataSrv.URL + `/doc2.txt", "datapoint_hash": "` + document2Hash + `"}
		]
	}`
}

func TestCreateJobBootstrapsProject(t *testing.T) {
	dataSrv := datapointServer(t, map[string]string{
		"/doc1.txt": document1Text,
		"/doc2.txt": document2Text,
	})
	manifestSrv := datapointServer(t, map[string]string{
		"/manifest.json": spanSelectManifestJSON(t, dataSrv),
	})
	jobFlow := newJobFlowServer(t)

	env := newTestEnv(t, Config{
		ExchangeID:    4,
		ExchangeKey:   testExchangeKey,
		JobFlowURL:    jobFlow.URL,
		InviteBaseURL: "https://anno.example.com",
	})

	req := messages.JobRequest{
		JobAddress:  "0xabc123",
		NetworkID:   12345,
		JobManifest: manifestSrv.URL + "/manifest.json",
	}
	require.NoError(t, env.svc.CreateJob(context.Background(), req))

	// Project exists with the manifest-configured title and the rendered
	// description.
	project, err := env.registry.GetProject(context.Background(), "0xabc123")
	require.NoError(t, err)
	assert.Equal(t, "Rabbit hunt", project.Name)
	assert.Contains(t, project.Description, "Find all animals.")
	assert.Contains(t, project.Description, "Where is the rabbit?")

	// Both datapoints were imported.
	docs, err := env.docs.ListSourceDocuments(context.Background(), "0xabc123")
	require.NoError(t, err)
	assert.Len(t, docs, 2)

	// The artifacts are on disk, the manifest byte-for-byte.
	artifactDir := env.svc.artifactDir("0xabc123")
	rawManifest, err := os.ReadFile(filepath.Join(artifactDir, manifestArtifact))
	require.NoError(t, err)
	assert.Equal(t, spanSelectManifestJSON(t, dataSrv), string(rawManifest))
	_, err = os.Stat(filepath.Join(artifactDir, jobRequestArtifact))
	require.NoError(t, err)

	// The invite cap matches the imported document count.
	invite, err := env.invites.GetInvite(context.Background(), "0xabc123")
	require.NoError(t, err)
	assert.Equal(t, 2, invite.MaxAnnotatorCount)

	// A correctly signed invite-link notification went out.
	posts := jobFlow.postsTo(messages.InviteLinkEndpoint)
	require.Len(t, posts, 1)
	assert.True(t, signature.Verify(testExchangeKey, posts[0].body, posts[0].signature))

	var notification messages.InviteLinkNotification
	require.NoError(t, json.Unmarshal(posts[0].body, &notification))
	assert.Equal(t, "0xabc123", notification.JobAddress)
	assert.Equal(t, 12345, notification.NetworkID)
	assert.Equal(t, 4, notification.ExchangeID)
	assert.Contains(t, notification.InviteLink, invite.ID)

	// The submission and manifest fetch show up in the stats.
	snap := env.svc.Metrics().Snapshot()
	assert.EqualValues(t, 1, snap.Operations[metrics.OpJobSubmission].Count)
	assert.EqualValues(t, 1, snap.Operations[metrics.OpManifestFetch].Count)
}

func TestCreateJobRollsBackOnImportFailure(t *testing.T) {
	dataSrv := datapointServer(t, map[string]string{
		"/doc1.txt": document1Text,
		"/doc2.txt": "tampered content",
	})
	manifestSrv := datapointServer(t, map[string]string{
		"/manifest.json": spanSelectManifestJSON(t, dataSrv),
	})
	jobFlow := newJobFlowServer(t)

	env := newTestEnv(t, Config{
		ExchangeID:  4,
		ExchangeKey: testExchangeKey,
		JobFlowURL:  jobFlow.URL,
	})

	req := messages.JobRequest{
		JobAddress:  "0xabc123",
		NetworkID:   12345,
		JobManifest: manifestSrv.URL + "/manifest.json",
	}
	err := env.svc.CreateJob(context.Background(), req)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "t2")

	assert.False(t, env.registry.HasProject("0xabc123"))
	assert.Empty(t, jobFlow.postsTo(messages.InviteLinkEndpoint))
}

func TestCreateJobRejectsUnsupportedRequestType(t *testing.T) {
	manifestSrv := datapointServer(t, map[string]string{
		"/manifest.json": `{"job_id": "x", "request_type": "image_label"}`,
	})
	env := newTestEnv(t, Config{})

	req := messages.JobRequest{
		JobAddress:  "0xdef456",
		NetworkID:   1,
		JobManifest: manifestSrv.URL + "/manifest.json",
	}
	err := env.svc.CreateJob(context.Background(), req)
	require.Error(t, err)
	assert.False(t, env.registry.HasProject("0xdef456"))
}

func TestCreateJobRejectsMissingFields(t *testing.T) {
	env := newTestEnv(t, Config{})

	err := env.svc.CreateJob(context.Background(), messages.JobRequest{NetworkID: 1, JobManifest: "http://x/m.json"})
	require.Error(t, err)

	err = env.svc.CreateJob(context.Background(), messages.JobRequest{JobAddress: "0x1", NetworkID: 1})
	require.Error(t, err)
}

func TestCreateJobRollsBackOnInviteLinkFailure(t *testing.T) {
	dataSrv := datapointServer(t, map[string]string{
		"/doc1.txt": document1Text,
		"/doc2.txt": document2Text,
	})
	manifestSrv := datapointServer(t, map[string]string{
		"/manifest.json": spanSelectManifestJSON(t, dataSrv),
	})
	jobFlow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "job flow unavailable", http.StatusInternalServerError)
	}))
	t.Cleanup(jobFlow.Close)

	env := newTestEnv(t, Config{
		ExchangeID:  4,
		ExchangeKey: testExchangeKey,
		JobFlowURL:  jobFlow.URL,
	})

	req := messages.JobRequest{
		JobAddress:  "0xabc123",
		NetworkID:   12345,
		JobManifest: manifestSrv.URL + "/manifest.json",
	}
	err := env.svc.CreateJob(context.Background(), req)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invite link")

	// The fully bootstrapped project is rolled back when the notification
	// is rejected.
	assert.False(t, env.registry.HasProject("0xabc123"))
}

// brokenDeleteRegistry simulates a registry that accepts writes but cannot
// delete, so rollback itself fails.
type brokenDeleteRegistry struct {
	*exchangetest.Registry
}

func (r *brokenDeleteRegistry) DeleteProject(ctx context.Context, slug string) error {
	return errors.New("registry offline")
}

func TestCreateJobRollbackFailureDoesNotMaskError(t *testing.T) {
	dataSrv := datapointServer(t, map[string]string{
		"/doc1.txt": document1Text,
		"/doc2.txt": "tampered content",
	})
	manifestSrv := datapointServer(t, map[string]string{
		"/manifest.json": spanSelectManifestJSON(t, dataSrv),
	})

	registry := &brokenDeleteRegistry{Registry: exchangetest.NewRegistry()}
	docs := exchangetest.NewDocumentStore()
	var logBuf bytes.Buffer
	svc := NewService(Config{RepositoryDir: t.TempDir()},
		registry, docs, exchangetest.NewSchemaRegistry(), exchangetest.NewWorkloadManager(),
		exchangetest.NewInviteService(), exchangetest.NewBlobStore(false),
		nil, slog.New(slog.NewTextHandler(&logBuf, nil)))

	req := messages.JobRequest{
		JobAddress:  "0xabc123",
		NetworkID:   1,
		JobManifest: manifestSrv.URL + "/manifest.json",
	}
	err := svc.CreateJob(context.Background(), req)
	require.Error(t, err)

	// The hash-mismatch error propagates; the cleanup failure is only
	// logged.
	assert.Contains(t, err.Error(), "t2")
	assert.NotContains(t, err.Error(), "registry offline")
	assert.Contains(t, logBuf.String(), "rollback")
}

func TestCreateJobManifestFetchFailureRollsBack(t *testing.T) {
	manifestSrv := datapointServer(t, nil)
	env := newTestEnv(t, Config{})

	req := messages.JobRequest{
		JobAddress:  "0xmissing",
		NetworkID:   1,
		JobManifest: manifestSrv.URL + "/manifest.json",
	}
	err := env.svc.CreateJob(context.Background(), req)
	require.Error(t, err)
	assert.False(t, env.registry.HasProject("0xmissing"))
}
