package exchange

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raphaelgruber/annobridge/internal/events"
	"github.com/raphaelgruber/annobridge/internal/messages"
	"github.com/raphaelgruber/annobridge/internal/models"
	"github.com/raphaelgruber/annobridge/internal/signature"
)

// submitTestJob drives a full job submission with two documents and an
// accuracy target of 0.75, returning the env and the fake job flow.
func submitTestJob(t *testing.T) (*testEnv, *jobFlowServer) {
	t.Helper()
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
	return env, jobFlow
}

func addAnnotator(env *testEnv, slug, username, wallet string) {
	env.registry.AddUser(models.User{Username: username, UIName: wallet})
	env.registry.GrantPermissions(context.Background(), slug, username, models.PermissionAnnotator)
}

func finishedAnnotation(slug, doc, user string, spans ...models.Span) models.AnnotationDocument {
	return models.AnnotationDocument{
		ProjectSlug:  slug,
		DocumentName: doc,
		Username:     user,
		State:        models.AnnotationDocumentStateFinished,
		Spans:        spans,
	}
}

func TestAnnotationFinishedEndToEnd(t *testing.T) {
	env, jobFlow := submitTestJob(t)
	slug := "0xabc123"

	addAnnotator(env, slug, "annotator-x", "0xwalletX")
	addAnnotator(env, slug, "annotator-y", "0xwalletY")

	agreed := models.Span{Layer: models.SpanLayerName, Begin: 8, End: 16, Value: "rabbit"}

	// Both annotators agree on doc1 and diverge on doc2.
	env.docs.AddAnnotation(finishedAnnotation(slug, "doc1.txt", "annotator-x", agreed))
	env.docs.AddAnnotation(finishedAnnotation(slug, "doc1.txt", "annotator-y", agreed))
	env.docs.AddAnnotation(finishedAnnotation(slug, "doc2.txt", "annotator-x",
		models.Span{Layer: models.SpanLayerName, Begin: 0, End: 4, Value: "rabbit"}))
	env.docs.AddAnnotation(finishedAnnotation(slug, "doc2.txt", "annotator-y",
		models.Span{Layer: models.SpanLayerName, Begin: 0, End: 4, Value: "fox"}))

	env.svc.HandleProjectStateChanged(events.ProjectStateChanged{
		ProjectSlug: slug,
		OldState:    models.ProjectStateAnnotationInProgress,
		NewState:    models.ProjectStateAnnotationFinished,
	})

	// The agreed annotation survives curation, the divergent one does not.
	curated1, err := env.docs.GetCuration(context.Background(), slug, "doc1.txt")
	require.NoError(t, err)
	assert.Equal(t, []models.Span{agreed}, curated1)

	curated2, err := env.docs.GetCuration(context.Background(), slug, "doc2.txt")
	require.NoError(t, err)
	assert.Empty(t, curated2)

	docs, err := env.docs.ListSourceDocuments(context.Background(), slug)
	require.NoError(t, err)
	for _, doc := range docs {
		assert.Equal(t, models.SourceDocumentStateCurationFinished, doc.State)
	}
	project, err := env.registry.GetProject(context.Background(), slug)
	require.NoError(t, err)
	assert.Equal(t, models.ProjectStateCurationFinished, project.State)

	// The result archive landed in the bucket and contains the documents.
	archive, ok := env.blob.Object(slug + "/" + resultsArchiveSuffix)
	require.True(t, ok, "result archive not uploaded")
	zr, err := zip.NewReader(bytes.NewReader(archive), int64(len(archive)))
	require.NoError(t, err)
	names := make(map[string]bool)
	for _, f := range zr.File {
		names[f.Name] = true
	}
	assert.True(t, names["project.json"])
	assert.True(t, names["documents/doc1.txt"])
	assert.True(t, names["curation/doc1.txt.json"])

	// The signed results notification carries the original job address and
	// the payouts.
	posts := jobFlow.postsTo(messages.JobResultsEndpoint)
	require.Len(t, posts, 1)
	assert.True(t, signature.Verify(testExchangeKey, posts[0].body, posts[0].signature))

	var submission messages.JobResultSubmission
	require.NoError(t, json.Unmarshal(posts[0].body, &submission))
	assert.Equal(t, "0xabc123", submission.JobAddress)
	assert.Equal(t, 12345, submission.NetworkID)
	assert.Equal(t, 4, submission.ExchangeID)
	assert.Contains(t, submission.JobData, slug+"/"+resultsArchiveSuffix)

	require.Len(t, submission.Payouts, 2)
	assert.Equal(t, "0xwalletX", submission.Payouts[0].Wallet)
	assert.ElementsMatch(t, []string{"doc1.txt", "doc2.txt"}, submission.Payouts[0].TaskIDs)
	assert.Equal(t, "0xwalletY", submission.Payouts[1].Wallet)
}

func TestOtherTransitionsIgnored(t *testing.T) {
	env, jobFlow := submitTestJob(t)

	env.svc.HandleProjectStateChanged(events.ProjectStateChanged{
		ProjectSlug: "0xabc123",
		OldState:    models.ProjectStateNew,
		NewState:    models.ProjectStateAnnotationInProgress,
	})

	assert.Empty(t, jobFlow.postsTo(messages.JobResultsEndpoint))
}

func TestAnnotationFinishedIgnoresForeignProjects(t *testing.T) {
	jobFlow := newJobFlowServer(t)
	env := newTestEnv(t, Config{
		ExchangeKey: testExchangeKey,
		JobFlowURL:  jobFlow.URL,
	})

	// A project created outside the exchange has no artifacts; the
	// transition must be a silent no-op.
	require.NoError(t, env.registry.CreateProject(context.Background(), &models.Project{
		Slug: "local-project", Name: "Local", State: models.ProjectStateAnnotationFinished,
	}))

	env.svc.HandleProjectStateChanged(events.ProjectStateChanged{
		ProjectSlug: "local-project",
		NewState:    models.ProjectStateAnnotationFinished,
	})

	assert.Empty(t, jobFlow.posts)
}

func TestPublishResultsSkippedWithoutBlobStore(t *testing.T) {
	env, jobFlow := submitTestJob(t)
	env.blob.Enabled = false

	env.svc.HandleProjectStateChanged(events.ProjectStateChanged{
		ProjectSlug: "0xabc123",
		NewState:    models.ProjectStateAnnotationFinished,
	})

	assert.Empty(t, jobFlow.postsTo(messages.JobResultsEndpoint))
	// Curation still ran even though publication was skipped.
	project, err := env.registry.GetProject(context.Background(), "0xabc123")
	require.NoError(t, err)
	assert.Equal(t, models.ProjectStateCurationFinished, project.State)
}

func TestSkipsDocumentsWithoutFinishedAnnotations(t *testing.T) {
	env, _ := submitTestJob(t)
	slug := "0xabc123"

	addAnnotator(env, slug, "annotator-x", "0xwalletX")
	env.docs.AddAnnotation(finishedAnnotation(slug, "doc1.txt", "annotator-x",
		models.Span{Layer: models.SpanLayerName, Begin: 0, End: 4, Value: "rabbit"}))

	env.svc.HandleProjectStateChanged(events.ProjectStateChanged{
		ProjectSlug: slug,
		NewState:    models.ProjectStateAnnotationFinished,
	})

	docs, err := env.docs.ListSourceDocuments(context.Background(), slug)
	require.NoError(t, err)
	states := make(map[string]models.SourceDocumentState)
	for _, doc := range docs {
		states[doc.Name] = doc.State
	}
	assert.Equal(t, models.SourceDocumentStateCurationFinished, states["doc1.txt"])
	assert.Equal(t, models.SourceDocumentStateNew, states["doc2.txt"])
}
