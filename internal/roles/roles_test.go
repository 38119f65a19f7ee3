package roles

import (
	"testing"

	"revyze/engine/internal/model"
)

func project() *model.Project {
	return &model.Project{
		ID:            "proj-1",
		OwnerID:       "user-owner",
		Collaborators: []string{"pro@studio.example"},
		Share:         model.ShareSettings{Enabled: true, AccessLevel: model.ShareAccessView},
	}
}

func TestResolveOrder(t *testing.T) {
	p := project()
	tests := []struct {
		name   string
		viewer Viewer
		want   Role
	}{
		{"impersonation wins", Viewer{UserID: "user-owner", Impersonate: RoleGuestViewer}, RoleGuestViewer},
		{"guest view access", Viewer{IsGuest: true}, RoleGuestViewer},
		{"owner by id", Viewer{UserID: "user-owner"}, RoleOwner},
		{"collaborator by email", Viewer{UserID: "user-2", Email: "pro@studio.example"}, RoleCollaborator},
		{"default viewer", Viewer{UserID: "user-3", Email: "nobody@example.com"}, RoleViewer},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := Resolve(p, tc.viewer); got != tc.want {
				t.Fatalf("Resolve() = %s, want %s", got, tc.want)
			}
		})
	}
}

func TestResolveGuestCommenterOnCommentAccess(t *testing.T) {
	p := project()
	p.Share.AccessLevel = model.ShareAccessComment
	if got := Resolve(p, Viewer{IsGuest: true}); got != RoleGuestCommenter {
		t.Fatalf("Resolve(guest, comment access) = %s, want guest-commenter", got)
	}
}

func TestGuestViewerCannotComment(t *testing.T) {
	if Can(RoleGuestViewer, ActionComment) {
		t.Fatal("guest-viewer must not be allowed to comment")
	}
	if !Can(RoleGuestCommenter, ActionComment) {
		t.Fatal("guest-commenter must be allowed to comment")
	}
}

func TestOnlyOwnerResolvesAndDeletes(t *testing.T) {
	for _, role := range []Role{RoleCollaborator, RoleViewer, RoleGuestViewer, RoleGuestCommenter} {
		if Can(role, ActionResolve) {
			t.Errorf("%s must not resolve comments", role)
		}
		if Can(role, ActionDelete) {
			t.Errorf("%s must not delete", role)
		}
	}
	if !Can(RoleOwner, ActionResolve) || !Can(RoleOwner, ActionDelete) {
		t.Fatal("owner must resolve and delete")
	}
}

func TestNavigationForSignedInEditorsOnly(t *testing.T) {
	for _, role := range []Role{RoleOwner, RoleCollaborator} {
		if !Can(role, ActionNavigate) {
			t.Errorf("%s must be allowed to navigate", role)
		}
	}
	for _, role := range []Role{RoleViewer, RoleGuestViewer, RoleGuestCommenter} {
		if Can(role, ActionNavigate) {
			t.Errorf("%s must not persist navigation state", role)
		}
	}
}

func TestAudiencePartition(t *testing.T) {
	allRoles := []Role{RoleOwner, RoleCollaborator, RoleViewer, RoleGuestViewer, RoleGuestCommenter}
	allAudiences := []model.Audience{model.AudienceGuest, model.AudiencePro}

	// Every audience must be visible to the owner and to at least one
	// non-owner role; no role may see an audience it is not entitled to.
	for _, aud := range allAudiences {
		if !CanSee(RoleOwner, aud) {
			t.Errorf("owner must see audience %s", aud)
		}
		visibleTo := 0
		for _, role := range allRoles {
			if CanSee(role, aud) {
				visibleTo++
			}
		}
		if visibleTo == 0 {
			t.Errorf("audience %s visible to no role", aud)
		}
	}

	if CanSee(RoleGuestViewer, model.AudiencePro) || CanSee(RoleGuestCommenter, model.AudiencePro) {
		t.Error("guest-class roles must not see pro audience")
	}
	if CanSee(RoleCollaborator, model.AudienceGuest) || CanSee(RoleViewer, model.AudienceGuest) {
		t.Error("pro-class roles must not see guest audience")
	}
}

func TestAudienceForAuthors(t *testing.T) {
	if AudienceFor(RoleGuestCommenter) != model.AudienceGuest {
		t.Error("guest-class author must produce guest-audience content")
	}
	for _, role := range []Role{RoleOwner, RoleCollaborator, RoleViewer} {
		if AudienceFor(role) != model.AudiencePro {
			t.Errorf("%s author must produce pro-audience content", role)
		}
	}
}

func TestVisibleCommentsFiltersDeletedAndForeignAudience(t *testing.T) {
	comments := []model.Comment{
		{ID: "g", Audience: model.AudienceGuest},
		{ID: "p", Audience: model.AudiencePro},
		{ID: "d", Audience: model.AudiencePro, Deleted: true},
	}
	owner := VisibleComments(RoleOwner, comments)
	if len(owner) != 2 {
		t.Fatalf("owner sees %d comments, want 2 (deleted hidden)", len(owner))
	}
	guest := VisibleComments(RoleGuestCommenter, comments)
	if len(guest) != 1 || guest[0].ID != "g" {
		t.Fatalf("guest sees %v, want only g", guest)
	}
	pro := VisibleComments(RoleCollaborator, comments)
	if len(pro) != 1 || pro[0].ID != "p" {
		t.Fatalf("collaborator sees %v, want only p", pro)
	}
}

func TestNormalize(t *testing.T) {
	if Normalize("owner") != RoleOwner {
		t.Error("known role should pass through")
	}
	if Normalize("superuser") != RoleViewer {
		t.Error("unknown role should default to viewer")
	}
}
