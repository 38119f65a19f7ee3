// Package workspace is the client-side synchronization engine: it applies
// every state-changing operation optimistically to an in-memory project set,
// persists asynchronously without rollback, and reconciles the continuous
// feed of remote snapshots through a suppression gate so a collaborator's
// update can never visibly undo the user's own just-made edit.
package workspace

import (
	"context"
	"log"
	"sync"
	"time"

	"revyze/engine/internal/model"
	"revyze/engine/internal/roles"
	"revyze/engine/internal/search"
)

// dataStore is the persistence collaborator. All remote-call failures are
// converted to errors at the call site and surfaced as warnings; nothing
// here ever rolls local state back.
type dataStore interface {
	LoadProjectsForUser(ctx context.Context, userID, email string) ([]model.Project, error)
	SaveProject(ctx context.Context, p *model.Project) error
	UpdateProjectPartial(ctx context.Context, id string, patch map[string]any) error
	DeleteProject(ctx context.Context, id, actorID string) error
	RestoreProject(ctx context.Context, id string) error
	AddCollaborator(ctx context.Context, id, email string) (*model.Project, error)
	RemoveCollaborator(ctx context.Context, id, email string) (*model.Project, error)
	ResetShareAccess(ctx context.Context, id string) (*model.Project, error)
	GetSharedProject(ctx context.Context, id, token string) (*model.Project, error)
	UpdateUserProfile(ctx context.Context, userID, email, displayName string) error
	IncrementUserCounter(ctx context.Context, userID, field string) error
}

// snapshotFeed delivers authoritative remote snapshots for open projects.
type snapshotFeed interface {
	Publish(ctx context.Context, p *model.Project) error
	Subscribe(ctx context.Context, projectID string, onUpdate func(*model.Project)) (unsubscribe func(), err error)
}

// fileStore accepts a blob plus a path and returns a durable URL.
type fileStore interface {
	Upload(ctx context.Context, path string, blob []byte, contentType string) (string, error)
}

// commentIndex mirrors comment writes into the search index, best-effort.
type commentIndex interface {
	IndexComment(record search.CommentRecord)
	DeleteComment(id string)
	Search(ctx context.Context, q search.Query) search.Response
}

// inviteSender sends collaborator invitations, best-effort.
type inviteSender interface {
	IsConfigured() bool
	SendCollaboratorInvitation(to, inviterName, projectName, projectURL string) error
}

// Notifier receives dismissible user-facing warnings (the fire-and-warn
// half of the optimistic pipeline).
type Notifier func(message string)

type Service struct {
	store   dataStore
	feed    snapshotFeed
	files   fileStore
	index   commentIndex // nil when search is not configured
	mail    inviteSender // nil when SMTP is not configured
	notify  Notifier
	appBase string

	// now and runAsync are injection points for tests; defaults are
	// time.Now and `go fn()`.
	now      func() time.Time
	runAsync func(fn func())

	mu              sync.Mutex
	viewer          roles.Viewer
	viewerName      string
	projects        map[string]*model.Project
	activeProjectID string
	unsubscribe     func()
	suppression     SuppressionPolicy
	// onEvicted is invoked (outside the lock) when the active project is
	// removed remotely and the consumer must navigate away.
	onEvicted func(projectID string)
}

type Options struct {
	Store   dataStore
	Feed    snapshotFeed
	Files   fileStore
	Index   commentIndex
	Mail    inviteSender
	Notify  Notifier
	Viewer  roles.Viewer
	// ViewerName is the acting user's display name, stamped on authored
	// content.
	ViewerName string
	// Suppression defaults to a 2 s window policy.
	Suppression SuppressionPolicy
	// AppBaseURL is used for links embedded in invitation emails.
	AppBaseURL string
	// OnEvicted is called when the active project is soft-deleted remotely.
	OnEvicted func(projectID string)
}

const defaultSuppressWindow = 2000 * time.Millisecond

func New(opts Options) *Service {
	suppression := opts.Suppression
	if suppression == nil {
		suppression = NewWindowPolicy(defaultSuppressWindow)
	}
	notify := opts.Notify
	if notify == nil {
		notify = func(string) {}
	}
	return &Service{
		store:       opts.Store,
		feed:        opts.Feed,
		files:       opts.Files,
		index:       opts.Index,
		mail:        opts.Mail,
		notify:      notify,
		appBase:     opts.AppBaseURL,
		now:         time.Now,
		runAsync:    func(fn func()) { go fn() },
		viewer:      opts.Viewer,
		viewerName:  opts.ViewerName,
		projects:    make(map[string]*model.Project),
		suppression: suppression,
		onEvicted:   opts.OnEvicted,
	}
}

// LoadProjects fetches the viewer's accessible projects and normalizes
// legacy version records. A migration that actually changed something is
// written back once; re-running is a no-op and triggers no write.
func (s *Service) LoadProjects(ctx context.Context) ([]model.Project, error) {
	loaded, err := s.store.LoadProjectsForUser(ctx, s.viewer.UserID, s.viewer.Email)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	for i := range loaded {
		p := loaded[i]
		migrated, changed := migrateProject(&p)
		s.projects[p.ID] = migrated
		if changed {
			snapshot := migrated.Clone()
			s.runAsync(func() {
				if err := s.store.SaveProject(context.Background(), snapshot); err != nil {
					log.Printf("workspace: persist migration %s: %v", snapshot.ID, err)
				}
			})
		}
	}
	out := s.snapshotListLocked()
	s.mu.Unlock()
	return out, nil
}

// Projects returns the current local working set.
func (s *Service) Projects() []model.Project {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotListLocked()
}

func (s *Service) snapshotListLocked() []model.Project {
	out := make([]model.Project, 0, len(s.projects))
	for _, p := range s.projects {
		out = append(out, *p.Clone())
	}
	return out
}

// Project returns a copy of one project from the local working set.
func (s *Service) Project(id string) (*model.Project, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.projects[id]
	if !ok {
		return nil, false
	}
	return p.Clone(), true
}

// ActiveProject returns a copy of the open project, or nil.
func (s *Service) ActiveProject() *model.Project {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.projects[s.activeProjectID]
	if !ok {
		return nil
	}
	return p.Clone()
}

// Role resolves the viewer's effective role on the active project.
func (s *Service) Role() roles.Role {
	s.mu.Lock()
	defer s.mu.Unlock()
	return roles.Resolve(s.projects[s.activeProjectID], s.viewer)
}

// SetViewer swaps the acting identity. Becoming a guest tears down the
// realtime subscription: guests never subscribe. A signed-in identity has
// its profile metadata upserted fire-and-forget.
func (s *Service) SetViewer(v roles.Viewer, displayName string) {
	s.mu.Lock()
	s.viewer = v
	s.viewerName = displayName
	var unsub func()
	if v.IsGuest && s.unsubscribe != nil {
		unsub = s.unsubscribe
		s.unsubscribe = nil
	}
	s.mu.Unlock()
	if unsub != nil {
		unsub()
	}
	if !v.IsGuest && v.UserID != "" {
		s.runAsync(func() {
			if err := s.store.UpdateUserProfile(context.Background(), v.UserID, v.Email, displayName); err != nil {
				log.Printf("workspace: sync profile %s: %v", v.UserID, err)
			}
		})
	}
}

// Open makes the project active and, unless the viewer is a guest, starts
// the realtime subscription for it. Any previous subscription is torn down
// first and the suppression state starts clean.
func (s *Service) Open(ctx context.Context, projectID string) error {
	s.mu.Lock()
	if _, ok := s.projects[projectID]; !ok {
		s.mu.Unlock()
		return ErrNotFound
	}
	prevUnsub := s.unsubscribe
	s.unsubscribe = nil
	s.activeProjectID = projectID
	s.suppression.Reset()
	isGuest := s.viewer.IsGuest
	s.mu.Unlock()

	if prevUnsub != nil {
		prevUnsub()
	}
	if isGuest || s.feed == nil {
		return nil
	}

	unsub, err := s.feed.Subscribe(ctx, projectID, func(p *model.Project) {
		s.ApplySnapshot(p)
	})
	if err != nil {
		return err
	}
	s.mu.Lock()
	// The active project may have changed while subscribing.
	if s.activeProjectID != projectID {
		s.mu.Unlock()
		unsub()
		return nil
	}
	s.unsubscribe = unsub
	s.mu.Unlock()
	return nil
}

// Close tears down the active subscription and clears the active project.
func (s *Service) Close() {
	s.mu.Lock()
	unsub := s.unsubscribe
	s.unsubscribe = nil
	s.activeProjectID = ""
	s.mu.Unlock()
	if unsub != nil {
		unsub()
	}
}

// OpenShared resolves the guest path: share token (and link password, when
// set) are verified and the project joins the local set without any
// realtime subscription. Token mismatch and disabled sharing both present
// as ErrInvalidLink, never a generic error.
func (s *Service) OpenShared(ctx context.Context, projectID, token, password string) (*model.Project, error) {
	p, err := s.store.GetSharedProject(ctx, projectID, token)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, ErrInvalidLink
	}
	if p.Share.PasswordHash != "" && !CheckSharePassword(p, password) {
		return nil, ErrInvalidLink
	}
	migrated, _ := migrateProject(p)

	s.mu.Lock()
	s.projects[migrated.ID] = migrated
	s.activeProjectID = migrated.ID
	s.mu.Unlock()
	return migrated.Clone(), nil
}

// SearchComments queries the comment index for the active project with the
// viewer's audience restriction applied.
func (s *Service) SearchComments(ctx context.Context, text string) search.Response {
	s.mu.Lock()
	projectID := s.activeProjectID
	role := roles.Resolve(s.projects[projectID], s.viewer)
	s.mu.Unlock()
	if s.index == nil || projectID == "" {
		return search.Response{Results: []search.Result{}, Query: text}
	}
	return s.index.Search(ctx, search.Query{Text: text, ProjectID: projectID, ViewerRole: role})
}

// VisibleComments applies the audience predicate and page bounds for the
// current version. Counts must always be computed from this, never from the
// raw comment list.
func (s *Service) VisibleComments() ([]model.Comment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.projects[s.activeProjectID]
	if !ok {
		return nil, ErrNoActiveProject
	}
	v := p.CurrentVersion()
	if v == nil {
		return nil, ErrNoVersions
	}
	role := roles.Resolve(p, s.viewer)
	return roles.VisibleComments(role, v.Comments), nil
}

// migrateProject runs the ledger migration over a project's version list
// and repairs a dangling current-version pointer.
func migrateProject(p *model.Project) (*model.Project, bool) {
	out := p.Clone()
	migrated, changed := migrateVersions(out.Versions)
	out.Versions = migrated
	if out.Version(out.CurrentVersionID) == nil {
		if v := out.CurrentVersion(); v != nil && v.ID != out.CurrentVersionID {
			out.CurrentVersionID = v.ID
			changed = true
		}
	}
	return out, changed
}
