package workspace

import (
	"context"
	"testing"
	"time"

	"revyze/engine/internal/model"
)

// openTestService loads one project, opens it, and returns the service with
// its deterministic clock. The feed fake records unsubscribes.
func openTestService(t *testing.T, unsubs *int) (*Service, *fakeClock) {
	t.Helper()
	feed := &fakeFeed{
		subscribeFn: func(ctx context.Context, projectID string, onUpdate func(*model.Project)) (func(), error) {
			return func() {
				if unsubs != nil {
					*unsubs++
				}
			}, nil
		},
	}
	svc, clock := newTestService(&fakeStore{}, feed, ownerViewer())
	loadOne(t, svc, testProject())
	if err := svc.Open(context.Background(), testProjID); err != nil {
		t.Fatalf("Open: %v", err)
	}
	return svc, clock
}

func remoteEdit() *model.Project {
	p := testProject()
	p.Version(testVer2).Comments = append(p.Version(testVer2).Comments, model.Comment{
		ID: "cmt_remote", Text: "from a collaborator", PageNumber: 1, Audience: model.AudiencePro,
	})
	return p
}

func hasComment(p *model.Project, id string) bool {
	return p != nil && findComment(p, id) != nil
}

func TestSnapshotWithinWriteWindowDiscarded(t *testing.T) {
	svc, clock := openTestService(t, nil)

	if _, err := svc.AddComment(CommentInput{X: 5, Y: 5, PageNumber: 1, Text: "local edit"}); err != nil {
		t.Fatalf("AddComment: %v", err)
	}

	clock.Advance(1999 * time.Millisecond)
	svc.ApplySnapshot(remoteEdit())

	if hasComment(svc.ActiveProject(), "cmt_remote") {
		t.Fatal("snapshot inside the write window replaced local state")
	}
}

func TestSnapshotAtWindowBoundaryAccepted(t *testing.T) {
	svc, clock := openTestService(t, nil)

	if _, err := svc.AddComment(CommentInput{X: 5, Y: 5, PageNumber: 1, Text: "local edit"}); err != nil {
		t.Fatalf("AddComment: %v", err)
	}

	clock.Advance(2000 * time.Millisecond)
	svc.ApplySnapshot(remoteEdit())

	if !hasComment(svc.ActiveProject(), "cmt_remote") {
		t.Fatal("snapshot arriving exactly at the window boundary was discarded")
	}
}

func TestSnapshotWithNoRecentWriteAccepted(t *testing.T) {
	svc, _ := openTestService(t, nil)

	svc.ApplySnapshot(remoteEdit())

	if !hasComment(svc.ActiveProject(), "cmt_remote") {
		t.Fatal("snapshot with no local write in flight was discarded")
	}
}

func TestAcceptedSnapshotReplacesWholeDocument(t *testing.T) {
	svc, clock := openTestService(t, nil)

	// Local optimistic edit, then a remote snapshot that does not contain
	// it, arriving after the window. Last writer wins wholesale; the local
	// edit is gone.
	if _, err := svc.AddComment(CommentInput{X: 5, Y: 5, PageNumber: 1, Text: "local edit"}); err != nil {
		t.Fatalf("AddComment: %v", err)
	}
	local := svc.ActiveProject()
	var localID string
	for _, c := range local.CurrentVersion().Comments {
		if c.Text == "local edit" {
			localID = c.ID
		}
	}

	clock.Advance(3 * time.Second)
	svc.ApplySnapshot(remoteEdit())

	p := svc.ActiveProject()
	if hasComment(p, localID) {
		t.Fatal("field-level merge happened; acceptance must be whole-document")
	}
	if !hasComment(p, "cmt_remote") {
		t.Fatal("remote snapshot not applied")
	}
}

func TestDeletedSnapshotBypassesWindowAndEvicts(t *testing.T) {
	var unsubs int
	var evicted []string
	svc, clock := openTestService(t, &unsubs)
	svc.onEvicted = func(projectID string) { evicted = append(evicted, projectID) }

	if _, err := svc.AddComment(CommentInput{X: 5, Y: 5, PageNumber: 1, Text: "local edit"}); err != nil {
		t.Fatalf("AddComment: %v", err)
	}
	clock.Advance(100 * time.Millisecond)

	gone := testProject()
	now := clock.Now()
	gone.DeletedAt = &now
	gone.DeletedBy = "someone_else"
	svc.ApplySnapshot(gone)

	if svc.ActiveProject() != nil {
		t.Fatal("deleted project still active; soft delete must bypass the window")
	}
	if _, ok := svc.Project(testProjID); ok {
		t.Fatal("deleted project still in the working set")
	}
	if unsubs != 1 {
		t.Fatalf("subscription torn down %d times, want 1", unsubs)
	}
	if len(evicted) != 1 || evicted[0] != testProjID {
		t.Fatalf("onEvicted = %v, want [%s]", evicted, testProjID)
	}
}

func TestIdenticalSnapshotIsNoOp(t *testing.T) {
	svc, _ := openTestService(t, nil)

	svc.mu.Lock()
	before := svc.projects[testProjID]
	svc.mu.Unlock()

	svc.ApplySnapshot(testProject())

	svc.mu.Lock()
	after := svc.projects[testProjID]
	svc.mu.Unlock()
	if before != after {
		t.Fatal("structurally identical snapshot replaced local state")
	}
}

func TestSnapshotNormalizedBeforeComparison(t *testing.T) {
	svc, _ := openTestService(t, nil)

	legacy := remoteEdit()
	for i := range legacy.Versions {
		legacy.Versions[i].Category = ""
		legacy.Versions[i].CategoryVersionNumber = 0
	}
	svc.ApplySnapshot(legacy)

	p := svc.ActiveProject()
	if !hasComment(p, "cmt_remote") {
		t.Fatal("legacy-shaped snapshot not applied")
	}
	for _, v := range p.Versions {
		if v.Category == "" || v.CategoryVersionNumber == 0 {
			t.Fatalf("version %s not normalized on arrival", v.ID)
		}
	}
}

func TestSnapshotForBackgroundProjectStored(t *testing.T) {
	svc, _ := openTestService(t, nil)

	other := testProject()
	other.ID = "prj_background"
	other.Name = "Other Campaign"
	svc.ApplySnapshot(other)

	p, ok := svc.Project("prj_background")
	if !ok {
		t.Fatal("snapshot for a non-active project was dropped")
	}
	if p.Name != "Other Campaign" {
		t.Fatalf("stored name = %q", p.Name)
	}
	if active := svc.ActiveProject(); active == nil || active.ID != testProjID {
		t.Fatal("active project changed by a background snapshot")
	}
}
