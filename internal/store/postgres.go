// Package store is the persistence collaborator. The Project aggregate
// (versions, comments, replies embedded) is stored as a single JSONB
// document and always read and written as one unit; there is no normalized
// form, which is what makes whole-document reconciliation tractable.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"revyze/engine/internal/model"
	"revyze/engine/internal/util"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// LoadProjectsForUser returns the live (non-deleted) projects the identity
// can access: owned plus invited-as-collaborator.
func (s *PostgresStore) LoadProjectsForUser(ctx context.Context, userID, email string) ([]model.Project, error) {
	const query = `
		SELECT data FROM projects
		WHERE deleted_at IS NULL
			AND (owner_id = $1 OR jsonb_exists(COALESCE(data->'collaborators', '[]'::jsonb), $2))
		ORDER BY last_modified DESC
	`
	rows, err := s.db.QueryContext(ctx, query, userID, email)
	if err != nil {
		return nil, fmt.Errorf("load projects: %w", err)
	}
	defer rows.Close()

	var projects []model.Project
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		var p model.Project
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("decode project: %w", err)
		}
		projects = append(projects, p)
	}
	return projects, rows.Err()
}

// GetProject returns the project regardless of its deletion marker, or nil
// when it does not exist.
func (s *PostgresStore) GetProject(ctx context.Context, id string) (*model.Project, error) {
	var raw []byte
	err := s.db.QueryRowContext(ctx, `SELECT data FROM projects WHERE id = $1`, id).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get project: %w", err)
	}
	var p model.Project
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("decode project: %w", err)
	}
	return &p, nil
}

// SaveProject writes the whole aggregate, replacing whatever is stored.
func (s *PostgresStore) SaveProject(ctx context.Context, p *model.Project) error {
	raw, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode project: %w", err)
	}
	var deletedAt *time.Time
	if p.DeletedAt != nil {
		deletedAt = p.DeletedAt
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO projects (id, owner_id, data, deleted_at, last_modified)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (id) DO UPDATE
			SET owner_id = EXCLUDED.owner_id,
				data = EXCLUDED.data,
				deleted_at = EXCLUDED.deleted_at,
				last_modified = NOW()
	`, p.ID, p.OwnerID, raw, deletedAt)
	if err != nil {
		return fmt.Errorf("save project: %w", err)
	}
	return nil
}

// UpdateProjectPartial merges a shallow patch into the stored document.
// Used for narrowly-scoped updates (settings, share settings, zoom) so the
// caller does not have to ship the whole aggregate.
func (s *PostgresStore) UpdateProjectPartial(ctx context.Context, id string, patch map[string]any) error {
	raw, err := json.Marshal(patch)
	if err != nil {
		return fmt.Errorf("encode patch: %w", err)
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE projects SET data = data || $2::jsonb, last_modified = NOW()
		WHERE id = $1 AND deleted_at IS NULL
	`, id, raw)
	if err != nil {
		return fmt.Errorf("patch project: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("patch project: %s not found", id)
	}
	return nil
}

// DeleteProject soft-deletes: the row stays, carrying the deletion marker
// that the reconciliation gate short-circuits on.
func (s *PostgresStore) DeleteProject(ctx context.Context, id, actorID string) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	patch, _ := json.Marshal(map[string]any{"deletedAt": now, "deletedBy": actorID})
	res, err := s.db.ExecContext(ctx, `
		UPDATE projects
		SET data = data || $2::jsonb, deleted_at = NOW(), last_modified = NOW()
		WHERE id = $1 AND deleted_at IS NULL
	`, id, patch)
	if err != nil {
		return fmt.Errorf("delete project: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("delete project: %s not found", id)
	}
	return nil
}

// RestoreProject clears the soft-delete marker.
func (s *PostgresStore) RestoreProject(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE projects
		SET data = (data - 'deletedAt') - 'deletedBy', deleted_at = NULL, last_modified = NOW()
		WHERE id = $1 AND deleted_at IS NOT NULL
	`, id)
	if err != nil {
		return fmt.Errorf("restore project: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("restore project: %s not found", id)
	}
	return nil
}

// AddCollaborator appends an email to the collaborator set if absent and
// returns the updated project, or nil when the project does not exist.
func (s *PostgresStore) AddCollaborator(ctx context.Context, id, email string) (*model.Project, error) {
	_, err := s.db.ExecContext(ctx, `
		UPDATE projects
		SET data = jsonb_set(data, '{collaborators}',
				COALESCE(data->'collaborators', '[]'::jsonb) || to_jsonb($2::text)),
			last_modified = NOW()
		WHERE id = $1 AND deleted_at IS NULL
			AND NOT jsonb_exists(COALESCE(data->'collaborators', '[]'::jsonb), $2)
	`, id, email)
	if err != nil {
		return nil, fmt.Errorf("add collaborator: %w", err)
	}
	return s.liveProject(ctx, id)
}

// RemoveCollaborator drops an email from the collaborator set and returns
// the updated project, or nil when the project does not exist.
func (s *PostgresStore) RemoveCollaborator(ctx context.Context, id, email string) (*model.Project, error) {
	_, err := s.db.ExecContext(ctx, `
		UPDATE projects
		SET data = jsonb_set(data, '{collaborators}',
				(SELECT COALESCE(jsonb_agg(elem), '[]'::jsonb)
				 FROM jsonb_array_elements_text(COALESCE(data->'collaborators', '[]'::jsonb)) AS elem
				 WHERE elem <> $2)),
			last_modified = NOW()
		WHERE id = $1 AND deleted_at IS NULL
	`, id, email)
	if err != nil {
		return nil, fmt.Errorf("remove collaborator: %w", err)
	}
	return s.liveProject(ctx, id)
}

// ResetShareAccess rotates the share token and clears the collaborator set,
// invalidating every outstanding link and invitation at once.
func (s *PostgresStore) ResetShareAccess(ctx context.Context, id string) (*model.Project, error) {
	patch, _ := json.Marshal(map[string]any{
		"collaborators": []string{},
		"shareSettings": model.ShareSettings{Enabled: true, Token: util.NewShareToken(), AccessLevel: model.ShareAccessView},
	})
	_, err := s.db.ExecContext(ctx, `
		UPDATE projects SET data = data || $2::jsonb, last_modified = NOW()
		WHERE id = $1 AND deleted_at IS NULL
	`, id, patch)
	if err != nil {
		return nil, fmt.Errorf("reset share access: %w", err)
	}
	return s.liveProject(ctx, id)
}

// GetSharedProject is the guest path. Returns nil on token mismatch or when
// sharing is disabled so callers present "invalid or expired link" rather
// than a generic error.
func (s *PostgresStore) GetSharedProject(ctx context.Context, id, token string) (*model.Project, error) {
	p, err := s.liveProject(ctx, id)
	if err != nil || p == nil {
		return nil, err
	}
	if !p.Share.Enabled || p.Share.Token == "" || p.Share.Token != token {
		return nil, nil
	}
	return p, nil
}

func (s *PostgresStore) liveProject(ctx context.Context, id string) (*model.Project, error) {
	p, err := s.GetProject(ctx, id)
	if err != nil || p == nil {
		return nil, err
	}
	if p.Deleted() {
		return nil, nil
	}
	return p, nil
}

// GetUserProfile fetches a profile, creating an empty one on first touch.
func (s *PostgresStore) GetUserProfile(ctx context.Context, userID string) (model.UserProfile, error) {
	var p model.UserProfile
	err := s.db.QueryRowContext(ctx, `
		SELECT id, email, display_name, comment_count, reply_count, updated_at
		FROM user_profiles WHERE id = $1
	`, userID).Scan(&p.ID, &p.Email, &p.DisplayName, &p.CommentCount, &p.ReplyCount, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.UserProfile{ID: userID}, nil
	}
	if err != nil {
		return model.UserProfile{}, fmt.Errorf("get profile: %w", err)
	}
	return p, nil
}

// UpdateUserProfile upserts display metadata. Fire-and-forget from the
// caller's perspective.
func (s *PostgresStore) UpdateUserProfile(ctx context.Context, userID, email, displayName string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO user_profiles (id, email, display_name)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET email = EXCLUDED.email, display_name = EXCLUDED.display_name, updated_at = NOW()
	`, userID, email, displayName)
	if err != nil {
		return fmt.Errorf("update profile: %w", err)
	}
	return nil
}

// IncrementUserCounter bumps a best-effort engagement counter. Field must be
// one of the known counter columns.
func (s *PostgresStore) IncrementUserCounter(ctx context.Context, userID, field string) error {
	var column string
	switch field {
	case "commentCount":
		column = "comment_count"
	case "replyCount":
		column = "reply_count"
	default:
		return fmt.Errorf("increment counter: unknown field %q", field)
	}
	_, err := s.db.ExecContext(ctx, fmt.Sprintf(`
		INSERT INTO user_profiles (id, email, %[1]s)
		VALUES ($1, '', 1)
		ON CONFLICT (id) DO UPDATE SET %[1]s = user_profiles.%[1]s + 1, updated_at = NOW()
	`, column), userID)
	if err != nil {
		return fmt.Errorf("increment counter: %w", err)
	}
	return nil
}
