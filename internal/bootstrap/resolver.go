// Package bootstrap reconciles deep-link navigation intents against the
// asynchronous arrival of auth state and the viewer's project list. Share
// links, invitations and referrals all land here as URL query parameters,
// in no guaranteed order relative to sign-in completing or projects
// loading; the resolver holds the pending target until it can be acted on
// exactly once.
package bootstrap

import (
	"log"
	"net/url"
	"sync"
	"time"

	"revyze/engine/internal/ledger"
	"revyze/engine/internal/model"
)

type State string

const (
	StateUnauthenticated State = "unauthenticated"
	StateAuthenticating  State = "authenticating"
	StateNoProjects      State = "authenticated-no-projects"
	StateWithProjects    State = "authenticated-with-projects"
	StateResolved        State = "resolved"
)

// Params are the recognized query parameters. They are read-only inputs;
// the resolver is the only component allowed to rewrite the URL.
type Params struct {
	ProjectID    string
	ShareToken   string
	InviterName  string
	ProjectName  string
	Role         string
	InviteeName  string
	InviteeEmail string
	Referral     string
	// PaymentDone is the post-checkout return flag.
	PaymentDone bool
}

// ParseParams reads the recognized parameters, honoring the legacy
// inviteeName/name and inviteeEmail/email aliases.
func ParseParams(q url.Values) Params {
	name := q.Get("inviteeName")
	if name == "" {
		name = q.Get("name")
	}
	email := q.Get("inviteeEmail")
	if email == "" {
		email = q.Get("email")
	}
	return Params{
		ProjectID:    q.Get("project"),
		ShareToken:   q.Get("token"),
		InviterName:  q.Get("inviterName"),
		ProjectName:  q.Get("projectName"),
		Role:         q.Get("role"),
		InviteeName:  name,
		InviteeEmail: email,
		Referral:     q.Get("ref"),
		PaymentDone:  q.Get("success") == "true",
	}
}

// HasInviteMetadata reports whether the params carry invitation or referral
// context worth a welcome interstitial.
func (p Params) HasInviteMetadata() bool {
	return p.InviterName != "" || p.ProjectName != "" || p.InviteeName != "" ||
		p.InviteeEmail != "" || p.Referral != ""
}

func (p Params) empty() bool {
	return p == Params{}
}

// Navigator is the consumer surface the resolver drives. All methods are
// invoked outside the resolver's lock.
type Navigator interface {
	// OpenProject switches the active project and category.
	OpenProject(projectID, category string)
	// OpenShared routes through the guest/shared path.
	OpenShared(projectID, token string)
	// ShowInterstitial presents the invitation/referral welcome screen.
	ShowInterstitial(p Params)
	// StripQuery removes consumed query parameters from the URL.
	StripQuery()
	// RedirectToDashboard leaves an unauthenticated-facing screen for the
	// default landing screen.
	RedirectToDashboard()
	// OnUnauthenticatedScreen reports whether the viewer currently sits on
	// a login/marketing screen.
	OnUnauthenticatedScreen() bool
}

type Resolver struct {
	nav   Navigator
	grace time.Duration
	// schedule defers the URL strip after a successful switch; tests
	// replace it to run inline.
	schedule func(d time.Duration, fn func())

	mu         sync.Mutex
	state      State
	pending    Params
	projects   []model.Project
	listLoaded bool
	// consumed remembers every target already resolved or declared
	// inaccessible, so re-invocation with the same history can never loop.
	consumed          map[string]bool
	interstitialShown bool
}

type Options struct {
	Navigator Navigator
	// GraceDelay is how long to wait before stripping the URL after a
	// project switch, so in-flight optimistic writes from the switch are
	// not clobbered by a stale snapshot. Defaults to 500 ms.
	GraceDelay time.Duration
}

func New(opts Options) *Resolver {
	grace := opts.GraceDelay
	if grace == 0 {
		grace = 500 * time.Millisecond
	}
	return &Resolver{
		nav:      opts.Navigator,
		grace:    grace,
		schedule: func(d time.Duration, fn func()) { time.AfterFunc(d, fn) },
		state:    StateUnauthenticated,
		consumed: make(map[string]bool),
	}
}

// State returns the resolver's current phase.
func (r *Resolver) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// HandleQuery feeds URL parameters in. A target already consumed in this
// session is ignored even if the same parameters remain in history.
func (r *Resolver) HandleQuery(q url.Values) {
	p := ParseParams(q)
	if p.empty() {
		return
	}

	r.mu.Lock()
	if p.ProjectID != "" && r.consumed[targetKey(p)] {
		r.mu.Unlock()
		return
	}
	r.pending = p
	r.mu.Unlock()
	r.resolve()
}

// SetAuthenticating marks sign-in as in flight. A pending target survives.
func (r *Resolver) SetAuthenticating() {
	r.mu.Lock()
	if r.state == StateUnauthenticated {
		r.state = StateAuthenticating
	}
	r.mu.Unlock()
}

// SetAuthenticated records sign-in completion. Resolution still waits for
// the project list unless the pending target is a shared link.
func (r *Resolver) SetAuthenticated() {
	r.mu.Lock()
	if r.state == StateUnauthenticated || r.state == StateAuthenticating {
		r.state = StateNoProjects
	}
	r.mu.Unlock()
	r.resolve()
}

// SetUnauthenticated resets to the signed-out state, keeping any pending
// target so it survives a round trip through the login screen.
func (r *Resolver) SetUnauthenticated() {
	r.mu.Lock()
	r.state = StateUnauthenticated
	r.projects = nil
	r.listLoaded = false
	r.mu.Unlock()
	r.resolve()
}

// SetProjects records the arrival of the viewer's accessible project list.
func (r *Resolver) SetProjects(projects []model.Project) {
	r.mu.Lock()
	if r.state == StateResolved || r.state == StateUnauthenticated {
		r.mu.Unlock()
		return
	}
	r.projects = projects
	r.listLoaded = true
	if len(projects) > 0 {
		r.state = StateWithProjects
	} else {
		r.state = StateNoProjects
	}
	r.mu.Unlock()
	r.resolve()
}

// resolve is the idempotent core. It is safe to call after every input
// change; it acts at most once per target.
func (r *Resolver) resolve() {
	r.mu.Lock()
	p := r.pending

	if p.empty() {
		r.mu.Unlock()
		return
	}

	// Shared link: bypasses list resolution entirely, any auth state.
	if p.ProjectID != "" && p.ShareToken != "" {
		r.pending = Params{}
		r.consumed[targetKey(p)] = true
		r.state = StateResolved
		r.mu.Unlock()
		r.nav.OpenShared(p.ProjectID, p.ShareToken)
		r.nav.StripQuery()
		return
	}

	// Invitation or referral metadata without a token: welcome interstitial
	// for signed-out viewers only; a signed-in viewer skips it. A project id
	// riding along stays pending for post-auth resolution.
	showInterstitial := false
	if p.HasInviteMetadata() {
		signedOut := r.state == StateUnauthenticated || r.state == StateAuthenticating
		if signedOut && !r.interstitialShown {
			r.interstitialShown = true
			showInterstitial = true
		}
		if p.ProjectID == "" {
			done := !signedOut
			if done {
				r.pending = Params{}
			}
			r.mu.Unlock()
			if showInterstitial {
				r.nav.ShowInterstitial(p)
			}
			if done {
				r.nav.StripQuery()
			}
			return
		}
	}

	// Plain pending target: needs the authenticated project list.
	if p.ProjectID == "" || r.state != StateWithProjects && r.state != StateNoProjects || !r.listLoaded {
		r.mu.Unlock()
		if showInterstitial {
			r.nav.ShowInterstitial(p)
		}
		return
	}

	var match *model.Project
	for i := range r.projects {
		if r.projects[i].ID == p.ProjectID {
			match = &r.projects[i]
			break
		}
	}
	r.pending = Params{}
	r.consumed[targetKey(p)] = true

	if match == nil {
		r.mu.Unlock()
		log.Printf("bootstrap: deep-link target %s not accessible", p.ProjectID)
		r.nav.StripQuery()
		if r.nav.OnUnauthenticatedScreen() {
			r.nav.RedirectToDashboard()
		}
		return
	}

	r.state = StateResolved
	category := landingCategory(match)
	r.mu.Unlock()

	r.nav.OpenProject(match.ID, category)
	r.schedule(r.grace, r.nav.StripQuery)
}

// landingCategory prefers the default category, falling back to the first
// general category the project actually has.
func landingCategory(p *model.Project) string {
	categories := ledger.Categories(p.Versions)
	for _, c := range categories {
		if c == model.DefaultCategory {
			return c
		}
	}
	if len(categories) > 0 {
		return categories[0]
	}
	return model.DefaultCategory
}

func targetKey(p Params) string {
	return p.ProjectID + "\x00" + p.ShareToken
}
