package search

import (
	"testing"

	"revyze/engine/internal/model"
	"revyze/engine/internal/roles"
)

func results() []Result {
	return []Result{
		{CommentRecord: CommentRecord{ID: "g1", Audience: "guest"}},
		{CommentRecord: CommentRecord{ID: "p1", Audience: "pro"}},
		{CommentRecord: CommentRecord{ID: "p2", Audience: "pro"}},
	}
}

func ids(rs []Result) []string {
	out := make([]string, len(rs))
	for i, r := range rs {
		out[i] = r.ID
	}
	return out
}

func TestSanitizeByViewerRole(t *testing.T) {
	tests := []struct {
		role roles.Role
		want int
	}{
		{roles.RoleOwner, 3},
		{roles.RoleCollaborator, 2},
		{roles.RoleGuestCommenter, 1},
		{roles.RoleGuestViewer, 1},
	}
	for _, tc := range tests {
		got := sanitizeResults(results(), tc.role)
		if len(got) != tc.want {
			t.Errorf("role %s sees %v, want %d results", tc.role, ids(got), tc.want)
		}
	}
}

func TestSanitizeGuestSeesOnlyGuestAudience(t *testing.T) {
	got := sanitizeResults(results(), roles.RoleGuestViewer)
	if len(got) != 1 || got[0].ID != "g1" {
		t.Fatalf("guest sees %v, want only g1", ids(got))
	}
}

func TestRecordFor(t *testing.T) {
	c := model.Comment{
		ID:         "c1",
		Text:       "move the staircase",
		Audience:   model.AudiencePro,
		AuthorName: "Dana",
		Resolved:   true,
	}
	rec := RecordFor("proj-1", "ver-1", c)
	if rec.ProjectID != "proj-1" || rec.VersionID != "ver-1" {
		t.Errorf("record ids = %s/%s", rec.ProjectID, rec.VersionID)
	}
	if rec.Audience != "pro" || !rec.Resolved || rec.Text != c.Text {
		t.Errorf("record = %+v", rec)
	}
}
