package exchange

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raphaelgruber/annobridge/internal/manifest"
	"github.com/raphaelgruber/annobridge/internal/models"
)

func newBootstrapProject(t *testing.T, env *testEnv) *models.Project {
	t.Helper()
	project := &models.Project{Slug: "0xjob", Name: "0xjob", State: models.ProjectStateNew}
	require.NoError(t, env.registry.CreateProject(context.Background(), project))
	return project
}

func TestBootstrapSpanSelectionDefaults(t *testing.T) {
	env := newTestEnv(t, Config{})
	project := newBootstrapProject(t, env)

	mf := &manifest.JobManifest{RequestType: manifest.RequestTypeSpanSelect}
	require.NoError(t, env.svc.bootstrap(context.Background(), project, mf))

	require.Len(t, env.schema.Layers(), 1)
	layer := env.schema.Layers()[0]
	assert.Equal(t, models.SpanLayerName, layer.Name)
	assert.Equal(t, models.AnchoringModeTokens, layer.Anchoring)
	assert.Equal(t, models.OverlapModeNone, layer.Overlap)
	assert.False(t, layer.CrossSentence)

	require.Len(t, env.schema.Features(), 1)
	assert.Equal(t, "value", env.schema.Features()[0].Name)
	assert.Empty(t, env.schema.Features()[0].TagsetName)
	assert.Empty(t, env.schema.TagSets())
}

func TestBootstrapSpanSelectionConfigured(t *testing.T) {
	env := newTestEnv(t, Config{})
	project := newBootstrapProject(t, env)

	mf := &manifest.JobManifest{
		RequestType: manifest.RequestTypeSpanSelect,
		RequestConfig: map[string]any{
			"anchoring":     "sentences",
			"overlap":       "any",
			"crossSentence": true,
		},
		RequesterRestrictedAnswerSet: map[string]manifest.I18NStrings{
			"cat": {"en": "A cat"},
			"dog": {"en": "  "},
		},
	}
	require.NoError(t, env.svc.bootstrap(context.Background(), project, mf))

	layer := env.schema.Layers()[0]
	assert.Equal(t, models.AnchoringModeSentences, layer.Anchoring)
	assert.Equal(t, models.OverlapModeAny, layer.Overlap)
	assert.True(t, layer.CrossSentence)

	require.Len(t, env.schema.TagSets(), 1)
	assert.Equal(t, tagsetName, env.schema.Features()[0].TagsetName)
	tags := env.schema.Tags(tagsetName)
	require.Len(t, tags, 2)
	assert.Equal(t, "cat", tags[0].Name)
	assert.Equal(t, "A cat", tags[0].Description)
	assert.Equal(t, "dog", tags[1].Name)
	assert.Empty(t, tags[1].Description)
}

func TestBootstrapUnknownAnchoringFallsBack(t *testing.T) {
	env := newTestEnv(t, Config{})
	project := newBootstrapProject(t, env)

	mf := &manifest.JobManifest{
		RequestType:   manifest.RequestTypeSpanSelect,
		RequestConfig: map[string]any{"anchoring": "paragraphs", "overlap": "stacked"},
	}
	require.NoError(t, env.svc.bootstrap(context.Background(), project, mf))

	layer := env.schema.Layers()[0]
	assert.Equal(t, models.AnchoringModeTokens, layer.Anchoring)
	assert.Equal(t, models.OverlapModeNone, layer.Overlap)
}

func TestBootstrapDocumentTagging(t *testing.T) {
	env := newTestEnv(t, Config{})
	project := newBootstrapProject(t, env)

	mf := &manifest.JobManifest{RequestType: manifest.RequestTypeDocumentTagging}
	require.NoError(t, env.svc.bootstrap(context.Background(), project, mf))

	require.Len(t, env.schema.Layers(), 1)
	assert.Equal(t, models.DocumentTagLayerName, env.schema.Layers()[0].Name)
	assert.Equal(t, models.LayerTypeDocumentTag, env.schema.Layers()[0].Type)
}

func TestBootstrapUnsupportedRequestType(t *testing.T) {
	env := newTestEnv(t, Config{})
	project := newBootstrapProject(t, env)

	mf := &manifest.JobManifest{RequestType: "image_label"}
	err := env.svc.bootstrap(context.Background(), project, mf)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "image_label")
	assert.Empty(t, env.schema.Layers())
}

func TestBootstrapGrantsServiceRoles(t *testing.T) {
	env := newTestEnv(t, Config{})
	project := newBootstrapProject(t, env)

	mf := &manifest.JobManifest{RequestType: manifest.RequestTypeSpanSelect}
	require.NoError(t, env.svc.bootstrap(context.Background(), project, mf))

	levels := env.registry.Permissions(project.Slug, serviceUsername)
	assert.Contains(t, levels, models.PermissionManager)
	assert.Contains(t, levels, models.PermissionCurator)
}

func TestBootstrapWorkload(t *testing.T) {
	env := newTestEnv(t, Config{})
	project := newBootstrapProject(t, env)

	mf := &manifest.JobManifest{
		RequestType:         manifest.RequestTypeSpanSelect,
		RequesterMinRepeats: 5,
	}
	require.NoError(t, env.svc.bootstrap(context.Background(), project, mf))

	cfg := env.workload.Workload(project.Slug)
	assert.Equal(t, models.WorkloadTypeDynamic, cfg.Type)
	assert.Equal(t, 5, cfg.DefaultAnnotations)
	assert.Equal(t, 24*time.Hour, cfg.AbandonmentTimeout)
	assert.True(t, cfg.AbandonmentIgnored)
}

func TestBootstrapWorkloadDefaultRepeats(t *testing.T) {
	env := newTestEnv(t, Config{})
	project := newBootstrapProject(t, env)

	mf := &manifest.JobManifest{RequestType: manifest.RequestTypeSpanSelect}
	require.NoError(t, env.svc.bootstrap(context.Background(), project, mf))

	assert.Equal(t, defaultAnnotationsPerDocument, env.workload.Workload(project.Slug).DefaultAnnotations)
}

func TestBootstrapInvite(t *testing.T) {
	env := newTestEnv(t, Config{})
	project := newBootstrapProject(t, env)

	expiration := time.Now().AddDate(1, 0, 0).Unix()
	mf := &manifest.JobManifest{
		RequestType:    manifest.RequestTypeSpanSelect,
		ExpirationDate: expiration,
	}
	require.NoError(t, env.svc.bootstrap(context.Background(), project, mf))

	invite, err := env.invites.GetInvite(context.Background(), project.Slug)
	require.NoError(t, err)
	assert.NotEmpty(t, invite.ID)
	assert.True(t, invite.GuestAccessible)
	assert.True(t, invite.DisableOnAnnotationComplete)
	assert.False(t, invite.AskForEmail)
	assert.Equal(t, userIDPlaceholder, invite.UserIDPlaceholder)
	assert.Equal(t, time.Unix(expiration, 0), invite.ExpirationDate)
}

func TestBootstrapInviteDefaultExpiration(t *testing.T) {
	env := newTestEnv(t, Config{})
	project := newBootstrapProject(t, env)

	mf := &manifest.JobManifest{RequestType: manifest.RequestTypeSpanSelect}
	require.NoError(t, env.svc.bootstrap(context.Background(), project, mf))

	invite, err := env.invites.GetInvite(context.Background(), project.Slug)
	require.NoError(t, err)

	expected := time.Now().AddDate(0, inviteExpirationMonths, 0)
	assert.WithinDuration(t, expected, invite.ExpirationDate, time.Minute)
}
