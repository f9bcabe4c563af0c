package server_test

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raphaelgruber/annobridge/internal/events"
	"github.com/raphaelgruber/annobridge/internal/exchange"
	"github.com/raphaelgruber/annobridge/internal/exchange/exchangetest"
	"github.com/raphaelgruber/annobridge/internal/messages"
	"github.com/raphaelgruber/annobridge/internal/models"
	"github.com/raphaelgruber/annobridge/internal/server"
	"github.com/raphaelgruber/annobridge/internal/signature"
)

const testHumanKey = "0b0bd52f-3c08-4c8e-94f1-8a7b39a80d3f"

type serverEnv struct {
	registry *exchangetest.Registry
	bus      *events.Bus
	handler  http.Handler
}

func newServerEnv(t *testing.T, humanKey string) *serverEnv {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	registry := exchangetest.NewRegistry()
	svc := exchange.NewService(
		exchange.Config{RepositoryDir: t.TempDir()},
		registry,
		exchangetest.NewDocumentStore(),
		exchangetest.NewSchemaRegistry(),
		exchangetest.NewWorkloadManager(),
		exchangetest.NewInviteService(),
		exchangetest.NewBlobStore(false),
		nil, logger,
	)

	bus := events.NewBus()
	srv := server.New(":0", humanKey, svc, registry, bus, logger)
	return &serverEnv{registry: registry, bus: bus, handler: srv.Handler()}
}

func signedRequest(method, path, body, key string) *http.Request {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(messages.HeaderHumanSignature, signature.Sign(key, []byte(body)))
	return req
}

func manifestServer(t *testing.T, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

const minimalManifest = `{"job_id": "j1", "request_type": "span_select"}`

func TestSubmitJobSigned(t *testing.T) {
	mfSrv := manifestServer(t, minimalManifest)
	env := newServerEnv(t, testHumanKey)

	body := `{"job_address": "0xjob1", "network_id": 1, "job_manifest": "` + mfSrv.URL + `/m.json"}`
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, signedRequest(http.MethodPost, server.APIBase+"/submitJob", body, testHumanKey))

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.True(t, env.registry.HasProject("0xjob1"))
}

func TestSubmitJobMissingSignatureHeader(t *testing.T) {
	env := newServerEnv(t, testHumanKey)

	req := httptest.NewRequest(http.MethodPost, server.APIBase+"/submitJob", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.False(t, env.registry.HasProject("0xjob1"))
}

func TestSubmitJobInvalidSignature(t *testing.T) {
	env := newServerEnv(t, testHumanKey)

	body := `{"job_address": "0xjob1", "network_id": 1, "job_manifest": "http://x/m.json"}`
	req := httptest.NewRequest(http.MethodPost, server.APIBase+"/submitJob", strings.NewReader(body))
	req.Header.Set(messages.HeaderHumanSignature, signature.Sign("11111111-2222-3333-4444-555555555555", []byte(body)))
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.False(t, env.registry.HasProject("0xjob1"))
}

func TestSubmitJobWildcardKeySkipsVerification(t *testing.T) {
	mfSrv := manifestServer(t, minimalManifest)
	env := newServerEnv(t, signature.AnyKey)

	body := `{"job_address": "0xjob2", "network_id": 1, "job_manifest": "` + mfSrv.URL + `/m.json"}`
	req := httptest.NewRequest(http.MethodPost, server.APIBase+"/submitJob", strings.NewReader(body))
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.True(t, env.registry.HasProject("0xjob2"))
}

func TestSubmitJobMalformedBody(t *testing.T) {
	env := newServerEnv(t, testHumanKey)

	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, signedRequest(http.MethodPost, server.APIBase+"/submitJob", "{not json", testHumanKey))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSubmitJobManifestInline(t *testing.T) {
	env := newServerEnv(t, testHumanKey)

	path := server.APIBase + "/submitJobManifest?jobAddress=0xinline&networkId=7"
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, signedRequest(http.MethodPost, path, minimalManifest, testHumanKey))

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.True(t, env.registry.HasProject("0xinline"))
}

func TestSubmitJobManifestMissingParams(t *testing.T) {
	env := newServerEnv(t, testHumanKey)

	path := server.APIBase + "/submitJobManifest?jobAddress=0xinline"
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, signedRequest(http.MethodPost, path, minimalManifest, testHumanKey))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealth(t *testing.T) {
	env := newServerEnv(t, testHumanKey)

	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "ok")
}

func TestProjectStateTransitionPublishesEvent(t *testing.T) {
	env := newServerEnv(t, testHumanKey)
	require.NoError(t, env.registry.CreateProject(t.Context(), &models.Project{
		Slug: "p1", Name: "P1", State: models.ProjectStateAnnotationInProgress,
	}))

	var got []events.ProjectStateChanged
	env.bus.Subscribe(func(evt events.ProjectStateChanged) {
		got = append(got, evt)
	})

	body := `{"state": "ANNOTATION_FINISHED"}`
	req := httptest.NewRequest(http.MethodPost, "/admin/v1/projects/p1/state", strings.NewReader(body))
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	require.Len(t, got, 1)
	assert.Equal(t, "p1", got[0].ProjectSlug)
	assert.Equal(t, models.ProjectStateAnnotationInProgress, got[0].OldState)
	assert.Equal(t, models.ProjectStateAnnotationFinished, got[0].NewState)
}

func TestProjectStateUnknownProject(t *testing.T) {
	env := newServerEnv(t, testHumanKey)

	req := httptest.NewRequest(http.MethodPost, "/admin/v1/projects/nope/state", strings.NewReader(`{"state": "ANNOTATION_FINISHED"}`))
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestProjectStateUnknownState(t *testing.T) {
	env := newServerEnv(t, testHumanKey)

	req := httptest.NewRequest(http.MethodPost, "/admin/v1/projects/p1/state", strings.NewReader(`{"state": "SHIPPED"}`))
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
