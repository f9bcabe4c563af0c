package registry

import (
	"context"
	"fmt"
	"time"

	"github.com/surrealdb/surrealdb.go"

	"github.com/raphaelgruber/annobridge/internal/models"
)

type inviteRow struct {
	InviteID                    string    `json:"invite_id"`
	Project                     string    `json:"project"`
	Expiration                  time.Time `json:"expiration"`
	GuestAccessible             bool      `json:"guest_accessible"`
	InvitationText              *string   `json:"invitation_text"`
	UserIDPlaceholder           *string   `json:"user_id_placeholder"`
	MaxAnnotatorCount           int       `json:"max_annotator_count"`
	DisableOnAnnotationComplete bool      `json:"disable_on_annotation_complete"`
	AskForEmail                 bool      `json:"ask_for_email"`
}

func (r inviteRow) toModel() models.ProjectInvite {
	inv := models.ProjectInvite{
		ID:                          r.InviteID,
		ProjectSlug:                 r.Project,
		ExpirationDate:              r.Expiration,
		GuestAccessible:             r.GuestAccessible,
		MaxAnnotatorCount:           r.MaxAnnotatorCount,
		DisableOnAnnotationComplete: r.DisableOnAnnotationComplete,
		AskForEmail:                 r.AskForEmail,
	}
	if r.InvitationText != nil {
		inv.InvitationText = *r.InvitationText
	}
	if r.UserIDPlaceholder != nil {
		inv.UserIDPlaceholder = *r.UserIDPlaceholder
	}
	return inv
}

// CreateLayer adds an annotation layer to a project's task schema.
func (c *Client) CreateLayer(ctx context.Context, layer *models.AnnotationLayer) error {
	_, err := surrealdb.Query[any](ctx, c.db, `
		CREATE type::record("layer", $key) SET
			project = $slug,
			name = $name,
			ui_name = $ui_name,
			type = $type,
			anchoring = $anchoring,
			overlap = $overlap,
			cross_sentence = $cross_sentence
	`, map[string]any{
		"key":            documentKey(layer.ProjectSlug, layer.Name),
		"slug":           layer.ProjectSlug,
		"name":           layer.Name,
		"ui_name":        layer.UIName,
		"type":           layer.Type,
		"anchoring":      optString(string(layer.Anchoring)),
		"overlap":        optString(string(layer.Overlap)),
		"cross_sentence": layer.CrossSentence,
	})
	if err != nil {
		return fmt.Errorf("create layer: %w", wrapQueryError(err))
	}
	return nil
}

// CreateFeature adds a feature to a layer.
func (c *Client) CreateFeature(ctx context.Context, feature *models.AnnotationFeature) error {
	_, err := surrealdb.Query[any](ctx, c.db, `
		CREATE type::record("feature", $key) SET
			project = $slug,
			layer = $layer,
			name = $name,
			ui_name = $ui_name,
			type = $type,
			tagset = $tagset
	`, map[string]any{
		"key":     fmt.Sprintf("%s/%s/%s", feature.ProjectSlug, feature.Layer, feature.Name),
		"slug":    feature.ProjectSlug,
		"layer":   feature.Layer,
		"name":    feature.Name,
		"ui_name": feature.UIName,
		"type":    feature.Type,
		"tagset":  optString(feature.TagsetName),
	})
	if err != nil {
		return fmt.Errorf("create feature: %w", wrapQueryError(err))
	}
	return nil
}

// CreateTagSet adds a closed tag set and its tags to a project. Tag rank
// preserves the order the caller supplied.
func (c *Client) CreateTagSet(ctx context.Context, tagset *models.TagSet, tags []models.Tag) error {
	_, err := surrealdb.Query[any](ctx, c.db, `
		CREATE type::record("tagset", $key) SET
			project = $slug,
			name = $name,
			create_tag = $create_tag
	`, map[string]any{
		"key":        documentKey(tagset.ProjectSlug, tagset.Name),
		"slug":       tagset.ProjectSlug,
		"name":       tagset.Name,
		"create_tag": tagset.CreateTag,
	})
	if err != nil {
		return fmt.Errorf("create tagset: %w", wrapQueryError(err))
	}

	for i, tag := range tags {
		_, err := surrealdb.Query[any](ctx, c.db, `
			CREATE type::record("tag", $key) SET
				project = $slug,
				tagset = $tagset,
				name = $name,
				description = $description,
				rank = $rank
		`, map[string]any{
			"key":         fmt.Sprintf("%s/%s/%s", tagset.ProjectSlug, tagset.Name, tag.Name),
			"slug":        tagset.ProjectSlug,
			"tagset":      tagset.Name,
			"name":        tag.Name,
			"description": optString(tag.Description),
			"rank":        i,
		})
		if err != nil {
			return fmt.Errorf("create tag %q: %w", tag.Name, wrapQueryError(err))
		}
	}
	return nil
}

// SetWorkload upserts the assignment strategy of a project.
func (c *Client) SetWorkload(ctx context.Context, cfg models.WorkloadConfig) error {
	_, err := surrealdb.Query[any](ctx, c.db, `
		UPSERT type::record("workload", $slug) SET
			project = $slug,
			type = $type,
			default_annotations = $default_annotations,
			abandonment_timeout_secs = $abandonment_timeout_secs,
			abandonment_ignored = $abandonment_ignored
	`, map[string]any{
		"slug":                     cfg.ProjectSlug,
		"type":                     cfg.Type,
		"default_annotations":      cfg.DefaultAnnotations,
		"abandonment_timeout_secs": int(cfg.AbandonmentTimeout.Seconds()),
		"abandonment_ignored":      cfg.AbandonmentIgnored,
	})
	if err != nil {
		return fmt.Errorf("set workload: %w", wrapQueryError(err))
	}
	return nil
}

// GetWorkload returns the assignment strategy of a project.
func (c *Client) GetWorkload(ctx context.Context, slug string) (*models.WorkloadConfig, error) {
	type workloadRow struct {
		Project                string `json:"project"`
		Type                   string `json:"type"`
		DefaultAnnotations     int    `json:"default_annotations"`
		AbandonmentTimeoutSecs int    `json:"abandonment_timeout_secs"`
		AbandonmentIgnored     bool   `json:"abandonment_ignored"`
	}

	results, err := surrealdb.Query[[]workloadRow](ctx, c.db, `
		SELECT * FROM type::record("workload", $slug)
	`, map[string]any{"slug": slug})
	if err != nil {
		return nil, fmt.Errorf("get workload: %w", wrapQueryError(err))
	}

	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, fmt.Errorf("get workload %q: %w", slug, ErrNotFound)
	}
	row := (*results)[0].Result[0]
	return &models.WorkloadConfig{
		ProjectSlug:        row.Project,
		Type:               row.Type,
		DefaultAnnotations: row.DefaultAnnotations,
		AbandonmentTimeout: time.Duration(row.AbandonmentTimeoutSecs) * time.Second,
		AbandonmentIgnored: row.AbandonmentIgnored,
	}, nil
}

// CreateInvite stores the join invite of a project. Each project has at
// most one invite.
func (c *Client) CreateInvite(ctx context.Context, invite *models.ProjectInvite) error {
	_, err := surrealdb.Query[any](ctx, c.db, `
		CREATE type::record("invite", $slug) SET
			invite_id = $invite_id,
			project = $slug,
			expiration = <datetime>$expiration,
			guest_accessible = $guest_accessible,
			invitation_text = $invitation_text,
			user_id_placeholder = $user_id_placeholder,
			max_annotator_count = $max_annotator_count,
			disable_on_annotation_complete = $disable_on_annotation_complete,
			ask_for_email = $ask_for_email
	`, map[string]any{
		"slug":                           invite.ProjectSlug,
		"invite_id":                      invite.ID,
		"expiration":                     invite.ExpirationDate.UTC().Format(time.RFC3339),
		"guest_accessible":               invite.GuestAccessible,
		"invitation_text":                optString(invite.InvitationText),
		"user_id_placeholder":            optString(invite.UserIDPlaceholder),
		"max_annotator_count":            invite.MaxAnnotatorCount,
		"disable_on_annotation_complete": invite.DisableOnAnnotationComplete,
		"ask_for_email":                  invite.AskForEmail,
	})
	if err != nil {
		return fmt.Errorf("create invite: %w", wrapQueryError(err))
	}
	return nil
}

// GetInvite returns the invite of a project, or ErrNotFound when the
// project has none.
func (c *Client) GetInvite(ctx context.Context, slug string) (*models.ProjectInvite, error) {
	results, err := surrealdb.Query[[]inviteRow](ctx, c.db, `
		SELECT * FROM type::record("invite", $slug)
	`, map[string]any{"slug": slug})
	if err != nil {
		return nil, fmt.Errorf("get invite: %w", wrapQueryError(err))
	}

	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, fmt.Errorf("get invite %q: %w", slug, ErrNotFound)
	}
	inv := (*results)[0].Result[0].toModel()
	return &inv, nil
}
