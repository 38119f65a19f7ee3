package workspace

import "errors"

var (
	// ErrNotFound covers missing projects, versions and comments.
	ErrNotFound = errors.New("not found")
	// ErrPermissionDenied marks a refused operation. Callers treat it as a
	// should-not-happen guard, not a user-facing error.
	ErrPermissionDenied = errors.New("permission denied")
	// ErrInvalidLink is the guest path's "invalid or expired link" case:
	// token mismatch, disabled sharing, or wrong link password.
	ErrInvalidLink = errors.New("invalid or expired link")
	// ErrLastVersion guards the invariant that a live project never loses
	// its last version.
	ErrLastVersion = errors.New("cannot delete the last version")
	// ErrVersionNotLatest rejects comments on anything but the active
	// category's latest version.
	ErrVersionNotLatest = errors.New("comments allowed on the latest version only")
	// ErrNoVersions flags a corrupt project with zero resolvable versions;
	// consumers render a recovery screen instead of failing silently.
	ErrNoVersions = errors.New("project has no versions")
	// ErrNoActiveProject is returned by mutations that need an open project.
	ErrNoActiveProject = errors.New("no active project")
)
