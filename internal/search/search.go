// Package search indexes project comments for full-text lookup. Meilisearch
// is preferred when configured and healthy; Postgres FTS over the stored
// aggregates is the fallback. Results are always sanitized by the viewer's
// audience before they leave this package, mirroring the visibility
// predicate applied to rendered comments.
package search

import (
	"revyze/engine/internal/model"
	"revyze/engine/internal/roles"
)

// CommentRecord is the indexed shape of one comment.
type CommentRecord struct {
	ID         string `json:"id"`
	ProjectID  string `json:"projectId"`
	VersionID  string `json:"versionId"`
	Text       string `json:"text"`
	Audience   string `json:"audience"`
	AuthorName string `json:"authorName"`
	Resolved   bool   `json:"resolved"`
}

// Query describes one comment search.
type Query struct {
	Text      string
	ProjectID string
	// ViewerRole restricts results to the audiences that role may see.
	ViewerRole roles.Role
	Limit      int
	Offset     int
}

// Result is a single hit.
type Result struct {
	CommentRecord
	Snippet string `json:"snippet,omitempty"`
}

// Response is what the facade hands back to callers.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

func sanitizeResults(results []Result, viewer roles.Role) []Result {
	filtered := make([]Result, 0, len(results))
	for _, result := range results {
		if !roles.CanSee(viewer, model.Audience(result.Audience)) {
			continue
		}
		filtered = append(filtered, result)
	}
	return filtered
}

// RecordFor builds the indexable record for a comment.
func RecordFor(projectID, versionID string, c model.Comment) CommentRecord {
	return CommentRecord{
		ID:         c.ID,
		ProjectID:  projectID,
		VersionID:  versionID,
		Text:       c.Text,
		Audience:   string(c.Audience),
		AuthorName: c.AuthorName,
		Resolved:   c.Resolved,
	}
}
