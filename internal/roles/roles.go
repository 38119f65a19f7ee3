// Package roles derives a viewer's effective project role and the comment
// audience partition that role is entitled to see.
package roles

import "revyze/engine/internal/model"

type Role string
type Action string

const (
	RoleOwner          Role = "owner"
	RoleCollaborator   Role = "collaborator"
	RoleViewer         Role = "viewer"
	RoleGuestViewer    Role = "guest-viewer"
	RoleGuestCommenter Role = "guest-commenter"
)

const (
	ActionView    Action = "view"
	ActionComment Action = "comment"
	ActionResolve Action = "resolve"
	ActionDelete  Action = "delete"
	ActionUpload  Action = "upload"
	ActionShare   Action = "share"
	ActionRestore Action = "restore"
	// ActionNavigate covers persisted workspace navigation and presentation
	// state: current version, active category, zoom, category settings.
	// These fields live on the shared project document, so roles that may
	// only look at the project must not be able to write them.
	ActionNavigate Action = "navigate"
)

// Viewer describes the identity asking for a role. Impersonate is an
// admin-only debugging override threaded explicitly so resolution stays pure.
type Viewer struct {
	UserID      string
	Email       string
	IsGuest     bool
	Impersonate Role
}

// Resolve derives the viewer's effective role on the project. Order:
// impersonation override, guest split by share access level, owner match,
// collaborator match, default viewer.
func Resolve(p *model.Project, v Viewer) Role {
	if v.Impersonate != "" {
		return v.Impersonate
	}
	if v.IsGuest {
		if p != nil && p.Share.AccessLevel == model.ShareAccessComment {
			return RoleGuestCommenter
		}
		return RoleGuestViewer
	}
	if p != nil {
		if v.UserID != "" && v.UserID == p.OwnerID {
			return RoleOwner
		}
		if v.Email != "" && p.HasCollaborator(v.Email) {
			return RoleCollaborator
		}
	}
	return RoleViewer
}

// Can reports whether the role may perform the action.
func Can(role Role, action Action) bool {
	switch role {
	case RoleOwner:
		return true
	case RoleCollaborator:
		return action == ActionView || action == ActionComment || action == ActionUpload || action == ActionNavigate
	case RoleGuestCommenter:
		return action == ActionView || action == ActionComment
	case RoleViewer, RoleGuestViewer:
		return action == ActionView
	default:
		return false
	}
}

// IsGuestClass reports whether the role belongs to the guest partition.
func IsGuestClass(role Role) bool {
	return role == RoleGuestViewer || role == RoleGuestCommenter
}

// AudienceFor maps an author's role to the audience tag stamped on content
// they create. Guest-class authors produce guest-audience content; everyone
// else produces pro-audience content.
func AudienceFor(role Role) model.Audience {
	if IsGuestClass(role) {
		return model.AudienceGuest
	}
	return model.AudiencePro
}

// CanSee is the visibility predicate: the owner sees both audiences, a
// guest-class viewer sees guest content only, everyone else pro content only.
// Apply it before any count or pin computation, never after.
func CanSee(role Role, audience model.Audience) bool {
	switch role {
	case RoleOwner:
		return true
	case RoleGuestViewer, RoleGuestCommenter:
		return audience == model.AudienceGuest
	default:
		return audience == model.AudiencePro
	}
}

// VisibleComments filters out soft-deleted comments and comments outside the
// role's audience.
func VisibleComments(role Role, comments []model.Comment) []model.Comment {
	out := make([]model.Comment, 0, len(comments))
	for _, c := range comments {
		if c.Deleted {
			continue
		}
		if !CanSee(role, c.Audience) {
			continue
		}
		out = append(out, c)
	}
	return out
}

// Normalize maps an arbitrary role string (e.g. from a URL parameter) onto
// the closed role set, defaulting to viewer.
func Normalize(role string) Role {
	switch Role(role) {
	case RoleOwner, RoleCollaborator, RoleViewer, RoleGuestViewer, RoleGuestCommenter:
		return Role(role)
	default:
		return RoleViewer
	}
}
