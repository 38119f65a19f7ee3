package workspace

import (
	"context"
	"errors"
	"fmt"
	"log"

	"revyze/engine/internal/ledger"
	"revyze/engine/internal/model"
	"revyze/engine/internal/roles"
	"revyze/engine/internal/search"
	"revyze/engine/internal/storage"
	"revyze/engine/internal/util"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"golang.org/x/crypto/bcrypt"
)

// errUnchanged signals a reducer that found nothing to change. The commit,
// the suppression-window stamp, and the persist are all skipped, so no-op
// calls trigger no remote churn.
var errUnchanged = errors.New("unchanged")

// Every state-changing operation follows the same two-step discipline:
// compute the next Project value from the current one (pure, synchronous),
// swap local state immediately, then persist asynchronously. Persist
// failure surfaces a dismissible warning and is never rolled back; each
// successful local apply feeds the suppression window.

func (s *Service) applyActive(action roles.Action, reduce func(p *model.Project, role roles.Role) error) (*model.Project, error) {
	s.mu.Lock()
	projectID := s.activeProjectID
	p, ok := s.projects[projectID]
	if !ok {
		s.mu.Unlock()
		return nil, ErrNoActiveProject
	}
	role := roles.Resolve(p, s.viewer)
	if !roles.Can(role, action) {
		s.mu.Unlock()
		log.Printf("workspace: %s refused for role %s on %s", action, role, projectID)
		return nil, ErrPermissionDenied
	}

	next := p.Clone()
	if err := reduce(next, role); err != nil {
		if errors.Is(err, errUnchanged) {
			unchanged := p.Clone()
			s.mu.Unlock()
			return unchanged, nil
		}
		s.mu.Unlock()
		return nil, err
	}
	next.LastModified = s.now()
	s.projects[projectID] = next
	s.suppression.NoteLocalWrite(s.now())
	snapshot := next.Clone()
	s.mu.Unlock()

	s.persistAsync(snapshot)
	return snapshot, nil
}

// persistAsync writes the whole aggregate and republishes it on the feed.
// Failures warn; local state stays as-is until the next remote snapshot.
func (s *Service) persistAsync(snapshot *model.Project) {
	s.runAsync(func() {
		ctx := context.Background()
		if err := s.store.SaveProject(ctx, snapshot); err != nil {
			log.Printf("workspace: persist %s: %v", snapshot.ID, err)
			s.notify("Your last change could not be saved. It will remain on screen but may be lost on reload.")
			return
		}
		if s.feed != nil {
			if err := s.feed.Publish(ctx, snapshot); err != nil {
				log.Printf("workspace: publish %s: %v", snapshot.ID, err)
			}
		}
	})
}

// patchAsync merges a narrow patch remotely; the caller has already echoed
// the same shape into local state.
func (s *Service) patchAsync(projectID string, patch map[string]any) {
	s.runAsync(func() {
		if err := s.store.UpdateProjectPartial(context.Background(), projectID, patch); err != nil {
			log.Printf("workspace: patch %s: %v", projectID, err)
			s.notify("Your last change could not be saved.")
		}
	})
}

func (s *Service) bumpCounter(field string) {
	userID := s.viewer.UserID
	if userID == "" {
		return
	}
	s.runAsync(func() {
		if err := s.store.IncrementUserCounter(context.Background(), userID, field); err != nil {
			log.Printf("workspace: increment %s for %s: %v", field, userID, err)
		}
	})
}

// CommentInput is a new pin placement.
type CommentInput struct {
	X          float64
	Y          float64
	PageNumber int
	Text       string
}

func (in CommentInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.Text, validation.Required, validation.Length(1, 4000)),
		validation.Field(&in.X, validation.Min(0.0), validation.Max(100.0)),
		validation.Field(&in.Y, validation.Min(0.0), validation.Max(100.0)),
		validation.Field(&in.PageNumber, validation.Required, validation.Min(1)),
	)
}

// AddComment places a comment on the active, latest version. The author's
// resolved role determines the audience tag; the page binding is immutable
// afterwards.
func (s *Service) AddComment(in CommentInput) (*model.Comment, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	var created model.Comment
	var versionID string
	snapshot, err := s.applyActive(roles.ActionComment, func(p *model.Project, role roles.Role) error {
		v := p.CurrentVersion()
		if v == nil {
			return ErrNoVersions
		}
		latest := ledger.Latest(p.Versions, ledger.CategoryOf(*v))
		if latest == nil || latest.ID != v.ID {
			return ErrVersionNotLatest
		}
		created = model.Comment{
			ID:         util.NewID("cmt"),
			X:          in.X,
			Y:          in.Y,
			PageNumber: in.PageNumber,
			Text:       in.Text,
			AuthorID:   s.viewer.UserID,
			AuthorName: s.viewerName,
			AuthorRole: string(role),
			Audience:   roles.AudienceFor(role),
			Timestamp:  s.now(),
		}
		v.Comments = append(v.Comments, created)
		versionID = v.ID
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.bumpCounter("commentCount")
	if s.index != nil {
		s.index.IndexComment(search.RecordFor(snapshot.ID, versionID, created))
	}
	return &created, nil
}

// ReplyToComment appends an immutable reply. Replies are never edited or
// removed.
func (s *Service) ReplyToComment(commentID, text string, mentions []string) (*model.CommentReply, error) {
	if err := validation.Validate(text, validation.Required, validation.Length(1, 4000)); err != nil {
		return nil, err
	}

	var created model.CommentReply
	_, err := s.applyActive(roles.ActionComment, func(p *model.Project, role roles.Role) error {
		c := findComment(p, commentID)
		if c == nil {
			return ErrNotFound
		}
		created = model.CommentReply{
			ID:         util.NewID("rpl"),
			Text:       text,
			AuthorID:   s.viewer.UserID,
			AuthorName: s.viewerName,
			AuthorRole: string(role),
			Timestamp:  s.now(),
			Mentions:   append([]string(nil), mentions...),
		}
		c.Replies = append(c.Replies, created)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.bumpCounter("replyCount")
	return &created, nil
}

// SetCommentResolved toggles the resolved flag. Owner only.
func (s *Service) SetCommentResolved(commentID string, resolved bool) error {
	_, err := s.applyActive(roles.ActionResolve, func(p *model.Project, _ roles.Role) error {
		c := findComment(p, commentID)
		if c == nil {
			return ErrNotFound
		}
		c.Resolved = resolved
		return nil
	})
	return err
}

// DeleteComment soft-marks a comment. Reply history and the id stay intact
// so realtime diffing remains stable. Owner or the comment's author.
func (s *Service) DeleteComment(commentID string) error {
	s.mu.Lock()
	p, ok := s.projects[s.activeProjectID]
	if !ok {
		s.mu.Unlock()
		return ErrNoActiveProject
	}
	role := roles.Resolve(p, s.viewer)
	c := findComment(p, commentID)
	authorID := ""
	if c != nil {
		authorID = c.AuthorID
	}
	s.mu.Unlock()

	if !roles.Can(role, roles.ActionDelete) && authorID != s.viewer.UserID {
		log.Printf("workspace: delete comment refused for role %s", role)
		return ErrPermissionDenied
	}

	_, err := s.applyActive(roles.ActionView, func(p *model.Project, _ roles.Role) error {
		c := findComment(p, commentID)
		if c == nil {
			return ErrNotFound
		}
		c.Deleted = true
		return nil
	})
	if err != nil {
		return err
	}
	if s.index != nil {
		s.index.DeleteComment(commentID)
	}
	return nil
}

// PushToProfessional duplicates a guest-audience comment into a new
// pro-audience comment carrying a back-reference. This is the only
// sanctioned cross-audience bridge; the original is never mutated.
func (s *Service) PushToProfessional(commentID string) (*model.Comment, error) {
	var created model.Comment
	snapshot, err := s.applyActive(roles.ActionResolve, func(p *model.Project, _ roles.Role) error {
		c := findComment(p, commentID)
		if c == nil {
			return ErrNotFound
		}
		if c.Audience != model.AudienceGuest {
			return fmt.Errorf("push to professional: %w: comment is not guest-audience", ErrPermissionDenied)
		}
		created = *c
		created.ID = util.NewID("cmt")
		created.Audience = model.AudiencePro
		created.PushedFromGuestComment = c.ID
		created.Replies = nil
		created.Resolved = false
		created.Timestamp = s.now()
		v := versionOfComment(p, commentID)
		v.Comments = append(v.Comments, created)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if s.index != nil {
		if v := versionOfComment(snapshot, created.ID); v != nil {
			s.index.IndexComment(search.RecordFor(snapshot.ID, v.ID, created))
		}
	}
	return &created, nil
}

// UploadVersion stores the file first (the entity needs its durable URL),
// then appends a version numbered by both ledgers and makes it current.
func (s *Service) UploadVersion(ctx context.Context, category, fileName, contentType string, blob []byte, pageCount int) (*model.ProjectVersion, error) {
	s.mu.Lock()
	projectID := s.activeProjectID
	s.mu.Unlock()
	if projectID == "" {
		return nil, ErrNoActiveProject
	}

	versionID := util.NewID("ver")
	fileURL, err := s.files.Upload(ctx, storage.VersionPath(projectID, versionID, fileName), blob, contentType)
	if err != nil {
		s.notify("Upload failed. Please try again.")
		return nil, err
	}

	var created model.ProjectVersion
	_, err = s.applyActive(roles.ActionUpload, func(p *model.Project, _ roles.Role) error {
		if category == "" {
			category = model.DefaultCategory
		}
		created = model.ProjectVersion{
			ID:                    versionID,
			VersionNumber:         p.NextVersionNumber(),
			Category:              category,
			CategoryVersionNumber: ledger.NextCategoryVersion(p.Versions, category),
			FileURL:               fileURL,
			FileName:              fileName,
			FileType:              contentType,
			PageCount:             pageCount,
			UploadedBy:            s.viewer.UserID,
			Timestamp:             s.now(),
			Comments:              []model.Comment{},
		}
		p.Versions = append(p.Versions, created)
		p.CurrentVersionID = created.ID
		p.ActiveCategory = category
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &created, nil
}

// RecategorizeVersion moves a version to a new category, reassigning its
// category version number under the new category at write time.
func (s *Service) RecategorizeVersion(versionID, newCategory string) error {
	if newCategory == "" {
		newCategory = model.DefaultCategory
	}
	_, err := s.applyActive(roles.ActionUpload, func(p *model.Project, _ roles.Role) error {
		v := p.Version(versionID)
		if v == nil {
			return ErrNotFound
		}
		if ledger.CategoryOf(*v) == newCategory {
			return errUnchanged
		}
		v.Category = newCategory
		v.CategoryVersionNumber = ledger.NextCategoryVersion(withoutVersion(p.Versions, versionID), newCategory)
		return nil
	})
	return err
}

// RenameVersion updates the display file name.
func (s *Service) RenameVersion(versionID, fileName string) error {
	if err := validation.Validate(fileName, validation.Required, validation.Length(1, 255)); err != nil {
		return err
	}
	_, err := s.applyActive(roles.ActionUpload, func(p *model.Project, _ roles.Role) error {
		v := p.Version(versionID)
		if v == nil {
			return ErrNotFound
		}
		v.FileName = fileName
		return nil
	})
	return err
}

// DeleteVersion removes a version. Deleting the last version of a live
// project is forbidden; the current pointer falls back to the latest
// remaining version.
func (s *Service) DeleteVersion(versionID string) error {
	_, err := s.applyActive(roles.ActionDelete, func(p *model.Project, _ roles.Role) error {
		if p.Version(versionID) == nil {
			return ErrNotFound
		}
		if len(p.Versions) == 1 {
			return ErrLastVersion
		}
		p.Versions = withoutVersion(p.Versions, versionID)
		if p.CurrentVersionID == versionID {
			p.CurrentVersionID = p.CurrentVersion().ID
		}
		return nil
	})
	return err
}

// SwitchVersion makes an existing version current.
func (s *Service) SwitchVersion(versionID string) error {
	_, err := s.applyActive(roles.ActionNavigate, func(p *model.Project, _ roles.Role) error {
		v := p.Version(versionID)
		if v == nil {
			return ErrNotFound
		}
		p.CurrentVersionID = v.ID
		p.ActiveCategory = ledger.CategoryOf(*v)
		return nil
	})
	return err
}

// SwitchCategory changes the active category. With existing versions the
// latest becomes current; an empty Mood Board synthesizes exactly one
// version; an empty general category creates nothing until upload.
func (s *Service) SwitchCategory(category string) error {
	_, err := s.applyActive(roles.ActionNavigate, func(p *model.Project, _ roles.Role) error {
		p.ActiveCategory = category
		if latest := ledger.Latest(p.Versions, category); latest != nil {
			p.CurrentVersionID = latest.ID
			return nil
		}
		if category == model.MoodBoardCategory {
			v := model.ProjectVersion{
				ID:                    util.NewID("ver"),
				VersionNumber:         p.NextVersionNumber(),
				Category:              model.MoodBoardCategory,
				CategoryVersionNumber: 1,
				UploadedBy:            s.viewer.UserID,
				Timestamp:             s.now(),
				Comments:              []model.Comment{},
				MoodBoardElements:     []model.MoodBoardElement{},
			}
			p.Versions = append(p.Versions, v)
			p.CurrentVersionID = v.ID
		}
		return nil
	})
	return err
}

// SetZoom persists the zoom level as a narrow patch.
func (s *Service) SetZoom(level float64) error {
	s.mu.Lock()
	p, ok := s.projects[s.activeProjectID]
	if !ok {
		s.mu.Unlock()
		return ErrNoActiveProject
	}
	if role := roles.Resolve(p, s.viewer); !roles.Can(role, roles.ActionNavigate) {
		s.mu.Unlock()
		log.Printf("workspace: zoom refused for role %s", role)
		return ErrPermissionDenied
	}
	next := p.Clone()
	next.ZoomLevel = level
	s.projects[next.ID] = next
	s.suppression.NoteLocalWrite(s.now())
	projectID := next.ID
	s.mu.Unlock()

	s.patchAsync(projectID, map[string]any{"zoomLevel": level})
	return nil
}

// UpdateCategorySettings echoes the patch locally and persists it narrowly.
func (s *Service) UpdateCategorySettings(category string, settings model.CategorySettings) error {
	s.mu.Lock()
	p, ok := s.projects[s.activeProjectID]
	if !ok {
		s.mu.Unlock()
		return ErrNoActiveProject
	}
	if role := roles.Resolve(p, s.viewer); !roles.Can(role, roles.ActionNavigate) {
		s.mu.Unlock()
		log.Printf("workspace: category settings refused for role %s", role)
		return ErrPermissionDenied
	}
	next := p.Clone()
	if next.CategorySettings == nil {
		next.CategorySettings = make(map[string]model.CategorySettings)
	}
	next.CategorySettings[category] = settings
	s.projects[next.ID] = next
	s.suppression.NoteLocalWrite(s.now())
	projectID := next.ID
	patch := map[string]any{"categorySettings": next.CategorySettings}
	s.mu.Unlock()

	s.patchAsync(projectID, patch)
	return nil
}

// UpdateShareSettings changes link sharing. Owner only.
func (s *Service) UpdateShareSettings(enabled bool, access model.ShareAccess) error {
	_, err := s.applyActive(roles.ActionShare, func(p *model.Project, _ roles.Role) error {
		if p.Share.Token == "" {
			p.Share.Token = util.NewShareToken()
		}
		p.Share.Enabled = enabled
		p.Share.AccessLevel = access
		return nil
	})
	return err
}

// SetSharePassword password-protects the share link; empty removes the
// password.
func (s *Service) SetSharePassword(password string) error {
	hash := ""
	if password != "" {
		hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
		if err != nil {
			return fmt.Errorf("hash share password: %w", err)
		}
		hash = string(hashed)
	}
	_, err := s.applyActive(roles.ActionShare, func(p *model.Project, _ roles.Role) error {
		p.Share.PasswordHash = hash
		return nil
	})
	return err
}

// CheckSharePassword verifies a guest-supplied link password.
func CheckSharePassword(p *model.Project, password string) bool {
	if p.Share.PasswordHash == "" {
		return true
	}
	return bcrypt.CompareHashAndPassword([]byte(p.Share.PasswordHash), []byte(password)) == nil
}

// CreateProject starts a new empty project owned by the viewer. Creation is
// synchronous; there is nothing optimistic to show until the store has the
// document.
func (s *Service) CreateProject(ctx context.Context, name, clientName string) (*model.Project, error) {
	if err := validation.Validate(name, validation.Required, validation.Length(1, 200)); err != nil {
		return nil, err
	}
	if s.viewer.IsGuest || s.viewer.UserID == "" {
		return nil, ErrPermissionDenied
	}
	p := &model.Project{
		ID:         util.NewID("prj"),
		OwnerID:    s.viewer.UserID,
		OwnerName:  s.viewerName,
		Name:       name,
		ClientName: clientName,
		Versions:   []model.ProjectVersion{},
		Share: model.ShareSettings{
			Token:       util.NewShareToken(),
			AccessLevel: model.ShareAccessComment,
		},
		LastModified: s.now(),
	}
	if err := s.store.SaveProject(ctx, p); err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.projects[p.ID] = p.Clone()
	s.mu.Unlock()
	return p.Clone(), nil
}

// AddCollaborator invites a professional by email: optimistic local append,
// remote update, best-effort invitation email.
func (s *Service) AddCollaborator(email string) error {
	if err := validation.Validate(email, validation.Required, is.Email); err != nil {
		return err
	}
	added := false
	snapshot, err := s.applyActive(roles.ActionShare, func(p *model.Project, _ roles.Role) error {
		if p.HasCollaborator(email) {
			return errUnchanged
		}
		p.Collaborators = append(p.Collaborators, email)
		added = true
		return nil
	})
	if err != nil {
		return err
	}
	if !added {
		return nil
	}

	s.runAsync(func() {
		if _, err := s.store.AddCollaborator(context.Background(), snapshot.ID, email); err != nil {
			log.Printf("workspace: add collaborator %s: %v", email, err)
			s.notify("The invitation could not be saved.")
		}
	})
	if s.mail != nil && s.mail.IsConfigured() {
		inviter := s.viewerName
		projectURL := fmt.Sprintf("%s/?project=%s", s.appBase, snapshot.ID)
		s.runAsync(func() {
			if err := s.mail.SendCollaboratorInvitation(email, inviter, snapshot.Name, projectURL); err != nil {
				log.Printf("workspace: invitation email to %s: %v", email, err)
			}
		})
	}
	return nil
}

// RemoveCollaborator revokes an invitation.
func (s *Service) RemoveCollaborator(email string) error {
	snapshot, err := s.applyActive(roles.ActionShare, func(p *model.Project, _ roles.Role) error {
		out := p.Collaborators[:0]
		for _, c := range p.Collaborators {
			if c != email {
				out = append(out, c)
			}
		}
		p.Collaborators = out
		return nil
	})
	if err != nil {
		return err
	}
	s.runAsync(func() {
		if _, err := s.store.RemoveCollaborator(context.Background(), snapshot.ID, email); err != nil {
			log.Printf("workspace: remove collaborator %s: %v", email, err)
			s.notify("The change could not be saved.")
		}
	})
	return nil
}

// ResetShareAccess rotates the share token and clears collaborators; the
// returned document is echoed into local state.
func (s *Service) ResetShareAccess(ctx context.Context) error {
	s.mu.Lock()
	projectID := s.activeProjectID
	role := roles.Resolve(s.projects[projectID], s.viewer)
	s.mu.Unlock()
	if projectID == "" {
		return ErrNoActiveProject
	}
	if !roles.Can(role, roles.ActionShare) {
		log.Printf("workspace: reset share refused for role %s", role)
		return ErrPermissionDenied
	}

	updated, err := s.store.ResetShareAccess(ctx, projectID)
	if err != nil {
		s.notify("Share access could not be reset.")
		return err
	}
	if updated == nil {
		return ErrNotFound
	}
	s.mu.Lock()
	s.projects[projectID] = updated.Clone()
	s.suppression.NoteLocalWrite(s.now())
	s.mu.Unlock()
	return nil
}

// DeleteProject soft-deletes the active project and removes it from the
// local working set. Owner only.
func (s *Service) DeleteProject() error {
	s.mu.Lock()
	projectID := s.activeProjectID
	p, ok := s.projects[projectID]
	if !ok {
		s.mu.Unlock()
		return ErrNoActiveProject
	}
	role := roles.Resolve(p, s.viewer)
	s.mu.Unlock()
	if role != roles.RoleOwner {
		log.Printf("workspace: delete project refused for role %s", role)
		return ErrPermissionDenied
	}

	actorID := s.viewer.UserID
	s.runAsync(func() {
		if err := s.store.DeleteProject(context.Background(), projectID, actorID); err != nil {
			log.Printf("workspace: delete project %s: %v", projectID, err)
			s.notify("The project could not be deleted remotely.")
		}
	})
	s.evict(projectID)
	return nil
}

// RestoreProject clears a soft-delete marker remotely and reloads the
// project into the working set.
func (s *Service) RestoreProject(ctx context.Context, projectID string) error {
	if err := s.store.RestoreProject(ctx, projectID); err != nil {
		s.notify("The project could not be restored.")
		return err
	}
	return nil
}

// SaveThumbnail uploads a captured preview image and patches its URL onto
// the project. Capture mechanics live with the caller; the engine only
// deals in the blob and the resulting URL.
func (s *Service) SaveThumbnail(ctx context.Context, png []byte) error {
	s.mu.Lock()
	p, ok := s.projects[s.activeProjectID]
	if !ok {
		s.mu.Unlock()
		return ErrNoActiveProject
	}
	projectID := p.ID
	s.mu.Unlock()

	url, err := s.files.Upload(ctx, storage.ThumbnailPath(projectID), png, "image/png")
	if err != nil {
		s.notify("The thumbnail could not be saved.")
		return err
	}

	s.mu.Lock()
	if p, ok := s.projects[projectID]; ok {
		next := p.Clone()
		next.ThumbnailURL = url
		s.projects[projectID] = next
		s.suppression.NoteLocalWrite(s.now())
	}
	s.mu.Unlock()

	s.patchAsync(projectID, map[string]any{"thumbnailUrl": url})
	return nil
}

func findComment(p *model.Project, commentID string) *model.Comment {
	for i := range p.Versions {
		for j := range p.Versions[i].Comments {
			if p.Versions[i].Comments[j].ID == commentID {
				return &p.Versions[i].Comments[j]
			}
		}
	}
	return nil
}

func versionOfComment(p *model.Project, commentID string) *model.ProjectVersion {
	for i := range p.Versions {
		for j := range p.Versions[i].Comments {
			if p.Versions[i].Comments[j].ID == commentID {
				return &p.Versions[i]
			}
		}
	}
	return nil
}

func withoutVersion(versions []model.ProjectVersion, versionID string) []model.ProjectVersion {
	out := make([]model.ProjectVersion, 0, len(versions))
	for _, v := range versions {
		if v.ID != versionID {
			out = append(out, v)
		}
	}
	return out
}
