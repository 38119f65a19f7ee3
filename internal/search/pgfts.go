package search

import (
	"context"
	"database/sql"
	"fmt"
)

// PgFTS searches comments directly inside the stored project aggregates.
// Slower than Meilisearch but always available wherever the store is.
type PgFTS struct {
	db *sql.DB
}

func NewPgFTS(db *sql.DB) *PgFTS {
	return &PgFTS{db: db}
}

// Search runs a full-text query over the comments embedded in the project
// document. Soft-deleted comments are skipped.
func (p *PgFTS) Search(ctx context.Context, q Query) ([]Result, int, error) {
	limit := q.Limit
	if limit == 0 {
		limit = 20
	}

	const query = `
		SELECT c->>'id', proj.id, v->>'id', c->>'text',
			COALESCE(c->>'audience', 'pro'), COALESCE(c->>'authorName', ''),
			COALESCE((c->>'resolved')::boolean, false)
		FROM projects proj,
			jsonb_array_elements(COALESCE(proj.data->'versions', '[]'::jsonb)) v,
			jsonb_array_elements(COALESCE(v->'comments', '[]'::jsonb)) c
		WHERE proj.deleted_at IS NULL
			AND proj.id = $1
			AND NOT COALESCE((c->>'deleted')::boolean, false)
			AND to_tsvector('simple', COALESCE(c->>'text', '')) @@ plainto_tsquery('simple', $2)
		LIMIT $3 OFFSET $4
	`
	rows, err := p.db.QueryContext(ctx, query, q.ProjectID, q.Text, limit, q.Offset)
	if err != nil {
		return nil, 0, fmt.Errorf("pgfts search: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		if err := rows.Scan(&r.ID, &r.ProjectID, &r.VersionID, &r.Text, &r.Audience, &r.AuthorName, &r.Resolved); err != nil {
			return nil, 0, fmt.Errorf("pgfts scan: %w", err)
		}
		r.Snippet = r.Text
		results = append(results, r)
	}
	return results, len(results), rows.Err()
}
