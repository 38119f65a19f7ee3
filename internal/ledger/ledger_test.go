package ledger

import (
	"reflect"
	"testing"

	"revyze/engine/internal/model"
)

func v(id, category string, global, catNum int) model.ProjectVersion {
	return model.ProjectVersion{ID: id, Category: category, VersionNumber: global, CategoryVersionNumber: catNum}
}

func TestCategoriesSortedAndDefaultSubstituted(t *testing.T) {
	versions := []model.ProjectVersion{
		v("a", "Structural", 1, 1),
		v("b", "", 2, 2),
		v("c", "Electrical", 3, 1),
		v("d", "Structural", 4, 2),
		v("e", model.MoodBoardCategory, 5, 1),
	}
	got := Categories(versions)
	want := []string{"Electrical", model.DefaultCategory, "Structural"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Categories() = %v, want %v", got, want)
	}
}

func TestCategoriesExcludesMoodBoard(t *testing.T) {
	versions := []model.ProjectVersion{v("a", model.MoodBoardCategory, 1, 1)}
	if got := Categories(versions); len(got) != 0 {
		t.Fatalf("expected Mood Board excluded, got %v", got)
	}
}

func TestByCategoryLatestFirst(t *testing.T) {
	versions := []model.ProjectVersion{
		v("a", "Structural", 1, 1),
		v("b", "Structural", 4, 3),
		v("c", "Electrical", 2, 1),
		v("d", "Structural", 3, 2),
	}
	got := ByCategory(versions, "Structural")
	if len(got) != 3 {
		t.Fatalf("expected 3 versions, got %d", len(got))
	}
	for i, wantID := range []string{"b", "d", "a"} {
		if got[i].ID != wantID {
			t.Errorf("position %d = %s, want %s", i, got[i].ID, wantID)
		}
	}
}

func TestNextCategoryVersionIndependentPerCategory(t *testing.T) {
	var versions []model.ProjectVersion
	// Two versions already exist elsewhere; three uploads into Structural
	// must number 1, 2, 3 while the global count continues 3, 4, 5.
	versions = append(versions, v("p1", model.DefaultCategory, 1, 1), v("p2", model.DefaultCategory, 2, 2))
	global := 2
	for i := 1; i <= 3; i++ {
		next := NextCategoryVersion(versions, "Structural")
		if next != i {
			t.Fatalf("upload %d: NextCategoryVersion = %d, want %d", i, next, i)
		}
		global++
		versions = append(versions, v("s", "Structural", global, next))
	}
	if global != 5 {
		t.Fatalf("global count = %d, want 5", global)
	}
	if got := NextCategoryVersion(versions, model.DefaultCategory); got != 3 {
		t.Fatalf("other category affected: NextCategoryVersion = %d, want 3", got)
	}
}

func TestNextCategoryVersionEmptyCategory(t *testing.T) {
	if got := NextCategoryVersion(nil, "Anything"); got != 1 {
		t.Fatalf("NextCategoryVersion(empty) = %d, want 1", got)
	}
}

func TestMigrateLegacyAssignsDefaultsFromGlobalNumber(t *testing.T) {
	versions := []model.ProjectVersion{
		{ID: "legacy", VersionNumber: 7},
		v("modern", "Structural", 8, 1),
	}
	migrated, changed := MigrateLegacy(versions)
	if !changed {
		t.Fatal("expected changed=true on first migration")
	}
	if migrated[0].Category != model.DefaultCategory {
		t.Errorf("category = %q, want default", migrated[0].Category)
	}
	if migrated[0].CategoryVersionNumber != 7 {
		t.Errorf("categoryVersionNumber = %d, want legacy global 7", migrated[0].CategoryVersionNumber)
	}
	if !reflect.DeepEqual(migrated[1], versions[1]) {
		t.Errorf("already-migrated version mutated: %+v", migrated[1])
	}
	// Input must not be touched.
	if versions[0].Category != "" {
		t.Error("MigrateLegacy mutated its input")
	}
}

func TestMigrateLegacyIdempotent(t *testing.T) {
	versions := []model.ProjectVersion{{ID: "legacy", VersionNumber: 3}}
	first, changed := MigrateLegacy(versions)
	if !changed {
		t.Fatal("first run should report a change")
	}
	second, changed := MigrateLegacy(first)
	if changed {
		t.Fatal("second run must be a no-op")
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("second run altered data: %+v vs %+v", first, second)
	}
}

func TestLatest(t *testing.T) {
	versions := []model.ProjectVersion{
		v("a", "Structural", 1, 1),
		v("b", "Structural", 2, 2),
	}
	if got := Latest(versions, "Structural"); got == nil || got.ID != "b" {
		t.Fatalf("Latest = %+v, want b", got)
	}
	if got := Latest(versions, "Electrical"); got != nil {
		t.Fatalf("Latest(empty category) = %+v, want nil", got)
	}
}
