// Package model defines the project aggregate shared between the local
// workspace, the persistence layer, and the realtime feed. The whole Project
// document (versions, comments, replies embedded) is always read and written
// as one unit; there is no normalized/foreign-key form on the wire.
package model

import (
	"encoding/json"
	"time"
)

// DefaultCategory is assigned to versions uploaded without an explicit
// category and to legacy versions during migration.
const DefaultCategory = "General"

// MoodBoardCategory is a reserved pseudo-category. It never appears in the
// general category list and switching to it with no versions synthesizes one.
const MoodBoardCategory = "Mood Board"

// Audience partitions comment visibility across roles.
type Audience string

const (
	// AudienceGuest marks content visible to guests and the owner.
	AudienceGuest Audience = "guest"
	// AudiencePro marks content visible to professionals and the owner.
	AudiencePro Audience = "pro"
)

// ShareAccess is the access level granted by a share link.
type ShareAccess string

const (
	ShareAccessView    ShareAccess = "view"
	ShareAccessComment ShareAccess = "comment"
)

type CommentReply struct {
	ID         string    `json:"id"`
	Text       string    `json:"text"`
	AuthorID   string    `json:"authorId"`
	AuthorName string    `json:"authorName,omitempty"`
	AuthorRole string    `json:"authorRole,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
	Mentions   []string  `json:"mentions,omitempty"`
}

type Comment struct {
	ID         string `json:"id"`
	// X and Y are percentages (0-100) of the rendered document area, so a
	// pin survives zoom, pan and window resize.
	X          float64        `json:"x"`
	Y          float64        `json:"y"`
	PageNumber int            `json:"pageNumber"`
	Text       string         `json:"text"`
	AuthorID   string         `json:"authorId"`
	AuthorName string         `json:"authorName,omitempty"`
	AuthorRole string         `json:"authorRole,omitempty"`
	Audience   Audience       `json:"audience"`
	Resolved   bool           `json:"resolved"`
	Deleted    bool           `json:"deleted"`
	Timestamp  time.Time      `json:"timestamp"`
	Replies    []CommentReply `json:"replies,omitempty"`
	AIAnalysis string         `json:"aiAnalysis,omitempty"`
	// PushedFromGuestComment back-references the guest comment this one was
	// duplicated from by the owner. Empty for ordinary comments.
	PushedFromGuestComment string `json:"pushedFromGuestComment,omitempty"`
}

type MoodBoardElement struct {
	ID       string  `json:"id"`
	Kind     string  `json:"kind"`
	URL      string  `json:"url,omitempty"`
	Text     string  `json:"text,omitempty"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Width    float64 `json:"width,omitempty"`
	Height   float64 `json:"height,omitempty"`
	Rotation float64 `json:"rotation,omitempty"`
}

type ProjectVersion struct {
	ID string `json:"id"`
	// VersionNumber is the version's position in the project's entire upload
	// history. Assigned at creation, never reused.
	VersionNumber int    `json:"versionNumber"`
	Category      string `json:"category,omitempty"`
	// CategoryVersionNumber is monotonic within the version's category only,
	// independent of the global number.
	CategoryVersionNumber int                `json:"categoryVersionNumber,omitempty"`
	FileURL               string             `json:"fileUrl,omitempty"`
	FileName              string             `json:"fileName,omitempty"`
	FileType              string             `json:"fileType,omitempty"`
	PageCount             int                `json:"pageCount,omitempty"`
	UploadedBy            string             `json:"uploadedBy,omitempty"`
	Timestamp             time.Time          `json:"timestamp"`
	Comments              []Comment          `json:"comments"`
	MoodBoardElements     []MoodBoardElement `json:"moodBoardElements,omitempty"`
}

type ShareSettings struct {
	Enabled     bool        `json:"enabled"`
	Token       string      `json:"token,omitempty"`
	AccessLevel ShareAccess `json:"accessLevel,omitempty"`
	// PasswordHash is a bcrypt hash when the owner password-protects the
	// link; empty means no password.
	PasswordHash string `json:"passwordHash,omitempty"`
}

type CategorySettings struct {
	DefaultPage int `json:"defaultPage,omitempty"`
}

type Project struct {
	ID               string                      `json:"id"`
	OwnerID          string                      `json:"ownerId"`
	OwnerName        string                      `json:"ownerName,omitempty"`
	Name             string                      `json:"name"`
	ClientName       string                      `json:"clientName,omitempty"`
	Collaborators    []string                    `json:"collaborators,omitempty"`
	Versions         []ProjectVersion            `json:"versions"`
	CurrentVersionID string                      `json:"currentVersionId,omitempty"`
	ActiveCategory   string                      `json:"activeCategory,omitempty"`
	CategorySettings map[string]CategorySettings `json:"categorySettings,omitempty"`
	Share            ShareSettings               `json:"shareSettings"`
	ThumbnailURL     string                      `json:"thumbnailUrl,omitempty"`
	ZoomLevel        float64                     `json:"zoomLevel,omitempty"`
	LastModified     time.Time                   `json:"lastModified"`
	DeletedAt        *time.Time                  `json:"deletedAt,omitempty"`
	DeletedBy        string                      `json:"deletedBy,omitempty"`
}

// UserProfile is the acting user's profile as seen by the engagement side
// effects (best-effort counters, display metadata).
type UserProfile struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	DisplayName  string    `json:"displayName,omitempty"`
	CommentCount int       `json:"commentCount,omitempty"`
	ReplyCount   int       `json:"replyCount,omitempty"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Deleted reports whether the project carries a soft-delete marker.
func (p *Project) Deleted() bool {
	return p.DeletedAt != nil
}

// HasCollaborator reports whether email is in the collaborator set.
func (p *Project) HasCollaborator(email string) bool {
	for _, c := range p.Collaborators {
		if c == email {
			return true
		}
	}
	return false
}

// Version returns the version with the given id, or nil.
func (p *Project) Version(id string) *ProjectVersion {
	for i := range p.Versions {
		if p.Versions[i].ID == id {
			return &p.Versions[i]
		}
	}
	return nil
}

// CurrentVersion resolves CurrentVersionID against Versions. If the pointer
// is dangling it falls back to the most recently added version. Returns nil
// only when the project has no versions at all.
func (p *Project) CurrentVersion() *ProjectVersion {
	if v := p.Version(p.CurrentVersionID); v != nil {
		return v
	}
	if len(p.Versions) == 0 {
		return nil
	}
	latest := &p.Versions[0]
	for i := range p.Versions {
		if p.Versions[i].VersionNumber > latest.VersionNumber {
			latest = &p.Versions[i]
		}
	}
	return latest
}

// NextVersionNumber returns the next global version number: one past the
// highest ever assigned, so numbers are never reused even after deletes.
func (p *Project) NextVersionNumber() int {
	max := 0
	for i := range p.Versions {
		if p.Versions[i].VersionNumber > max {
			max = p.Versions[i].VersionNumber
		}
	}
	return max + 1
}

// Clone returns a deep copy. Reducers operate on clones so local state is
// only ever swapped wholesale, never mutated in place.
func (p *Project) Clone() *Project {
	out := *p
	if p.DeletedAt != nil {
		t := *p.DeletedAt
		out.DeletedAt = &t
	}
	out.Collaborators = append([]string(nil), p.Collaborators...)
	if p.CategorySettings != nil {
		out.CategorySettings = make(map[string]CategorySettings, len(p.CategorySettings))
		for k, v := range p.CategorySettings {
			out.CategorySettings[k] = v
		}
	}
	out.Versions = make([]ProjectVersion, len(p.Versions))
	for i := range p.Versions {
		out.Versions[i] = p.Versions[i].clone()
	}
	return &out
}

func (v ProjectVersion) clone() ProjectVersion {
	out := v
	out.Comments = make([]Comment, len(v.Comments))
	for i := range v.Comments {
		out.Comments[i] = v.Comments[i]
		out.Comments[i].Replies = append([]CommentReply(nil), v.Comments[i].Replies...)
		for j := range out.Comments[i].Replies {
			out.Comments[i].Replies[j].Mentions = append([]string(nil), out.Comments[i].Replies[j].Mentions...)
		}
	}
	out.MoodBoardElements = append([]MoodBoardElement(nil), v.MoodBoardElements...)
	return out
}

// Equal reports structural equality of two project documents. Used by the
// reconciliation gate's no-op filter; comparison goes through the wire shape
// so unexported or derived state cannot skew it.
func Equal(a, b *Project) bool {
	if a == nil || b == nil {
		return a == b
	}
	aj, err := json.Marshal(a)
	if err != nil {
		return false
	}
	bj, err := json.Marshal(b)
	if err != nil {
		return false
	}
	return string(aj) == string(bj)
}
