package registry

import (
	"context"
	"fmt"
	"time"

	"github.com/surrealdb/surrealdb.go"

	"github.com/raphaelgruber/annobridge/internal/models"
)

type projectRow struct {
	Slug        string    `json:"slug"`
	Name        string    `json:"name"`
	Description *string   `json:"description"`
	State       string    `json:"state"`
	Created     time.Time `json:"created"`
}

func (r projectRow) toModel() models.Project {
	p := models.Project{
		Slug:    r.Slug,
		Name:    r.Name,
		State:   models.ProjectState(r.State),
		Created: r.Created,
	}
	if r.Description != nil {
		p.Description = *r.Description
	}
	return p
}

type userRow struct {
	Username string `json:"username"`
	UIName   string `json:"ui_name"`
}

// CreateProject inserts a new project record. Reusing a slug returns
// ErrAlreadyExists.
func (c *Client) CreateProject(ctx context.Context, p *models.Project) error {
	_, err := surrealdb.Query[any](ctx, c.db, `
		CREATE type::record("project", $slug) SET
			slug = $slug,
			name = $name,
			description = $description,
			state = $state
	`, map[string]any{
		"slug":        p.Slug,
		"name":        p.Name,
		"description": optString(p.Description),
		"state":       string(p.State),
	})
	if err != nil {
		return fmt.Errorf("create project: %w", wrapQueryError(err))
	}
	return nil
}

// GetProject retrieves a project by slug. Returns ErrNotFound when the
// slug is unknown.
func (c *Client) GetProject(ctx context.Context, slug string) (*models.Project, error) {
	results, err := surrealdb.Query[[]projectRow](ctx, c.db, `
		SELECT * FROM type::record("project", $slug)
	`, map[string]any{"slug": slug})
	if err != nil {
		return nil, fmt.Errorf("get project: %w", wrapQueryError(err))
	}

	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, fmt.Errorf("get project %q: %w", slug, ErrNotFound)
	}
	p := (*results)[0].Result[0].toModel()
	return &p, nil
}

// UpdateProject rewrites the mutable fields of an existing project.
func (c *Client) UpdateProject(ctx context.Context, p *models.Project) error {
	_, err := surrealdb.Query[any](ctx, c.db, `
		UPDATE type::record("project", $slug) SET
			name = $name,
			description = $description,
			state = $state
	`, map[string]any{
		"slug":        p.Slug,
		"name":        p.Name,
		"description": optString(p.Description),
		"state":       string(p.State),
	})
	if err != nil {
		return fmt.Errorf("update project: %w", wrapQueryError(err))
	}
	return nil
}

// DeleteProject removes a project and everything it owns: documents,
// annotations, curation output, task schema, workload, permissions and
// the invite.
func (c *Client) DeleteProject(ctx context.Context, slug string) error {
	_, err := surrealdb.Query[any](ctx, c.db, `
		DELETE invite WHERE project = $slug;
		DELETE workload WHERE project = $slug;
		DELETE tag WHERE project = $slug;
		DELETE tagset WHERE project = $slug;
		DELETE feature WHERE project = $slug;
		DELETE layer WHERE project = $slug;
		DELETE curation WHERE project = $slug;
		DELETE annotation_document WHERE project = $slug;
		DELETE source_document WHERE project = $slug;
		DELETE permission WHERE project = $slug;
		DELETE type::record("project", $slug);
	`, map[string]any{"slug": slug})
	if err != nil {
		return fmt.Errorf("delete project: %w", wrapQueryError(err))
	}
	return nil
}

// SetProjectState transitions a project's lifecycle state.
func (c *Client) SetProjectState(ctx context.Context, slug string, state models.ProjectState) error {
	_, err := surrealdb.Query[any](ctx, c.db, `
		UPDATE type::record("project", $slug) SET state = $state
	`, map[string]any{"slug": slug, "state": string(state)})
	if err != nil {
		return fmt.Errorf("set project state: %w", wrapQueryError(err))
	}
	return nil
}

// GrantPermissions assigns project roles to a user, creating the user
// record when it does not exist yet. Granting an already-held role is a
// no-op.
func (c *Client) GrantPermissions(ctx context.Context, slug, username string, levels ...models.PermissionLevel) error {
	_, err := surrealdb.Query[any](ctx, c.db, `
		UPSERT type::record("app_user", $username) SET
			username = $username,
			ui_name = IF ui_name THEN ui_name ELSE $username END
	`, map[string]any{"username": username})
	if err != nil {
		return fmt.Errorf("ensure user: %w", wrapQueryError(err))
	}

	for _, level := range levels {
		_, err := surrealdb.Query[any](ctx, c.db, `
			UPSERT type::record("permission", $key) SET
				project = $slug,
				username = $username,
				level = $level
		`, map[string]any{
			"key":      permissionKey(slug, username, level),
			"slug":     slug,
			"username": username,
			"level":    string(level),
		})
		if err != nil {
			return fmt.Errorf("grant %s: %w", level, wrapQueryError(err))
		}
	}
	return nil
}

// ListUsersWithPermission returns the users holding the given role on a
// project, ordered by username.
func (c *Client) ListUsersWithPermission(ctx context.Context, slug string, level models.PermissionLevel) ([]models.User, error) {
	results, err := surrealdb.Query[[]userRow](ctx, c.db, `
		SELECT username, ui_name FROM app_user
		WHERE username IN (
			SELECT VALUE username FROM permission
			WHERE project = $slug AND level = $level
		)
		ORDER BY username
	`, map[string]any{"slug": slug, "level": string(level)})
	if err != nil {
		return nil, fmt.Errorf("list users with permission: %w", wrapQueryError(err))
	}

	if results == nil || len(*results) == 0 {
		return []models.User{}, nil
	}
	users := make([]models.User, 0, len((*results)[0].Result))
	for _, row := range (*results)[0].Result {
		users = append(users, models.User{Username: row.Username, UIName: row.UIName})
	}
	return users, nil
}

// SetUserUIName records the display identifier a user chose when joining,
// which for protocol projects is their wallet address.
func (c *Client) SetUserUIName(ctx context.Context, username, uiName string) error {
	_, err := surrealdb.Query[any](ctx, c.db, `
		UPSERT type::record("app_user", $username) SET
			username = $username,
			ui_name = $ui_name
	`, map[string]any{"username": username, "ui_name": uiName})
	if err != nil {
		return fmt.Errorf("set user ui name: %w", wrapQueryError(err))
	}
	return nil
}

func permissionKey(slug, username string, level models.PermissionLevel) string {
	return fmt.Sprintf("%s/%s/%s", slug, username, level)
}

func optString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
