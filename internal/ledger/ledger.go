// Package ledger holds the pure functions over a project's version list:
// category grouping, per-category version numbering, and one-time migration
// of legacy records that predate categories. Everything here is stateless;
// numbering is recomputed from current state at every call so concurrent
// category changes from other sessions cannot skew it.
package ledger

import (
	"sort"

	"revyze/engine/internal/model"
)

// Categories returns the distinct categories across versions, sorted, with
// the default substituted for missing values. The Mood Board pseudo-category
// is excluded; it is surfaced through its own dedicated control.
func Categories(versions []model.ProjectVersion) []string {
	seen := make(map[string]struct{})
	for i := range versions {
		cat := CategoryOf(versions[i])
		if cat == model.MoodBoardCategory {
			continue
		}
		seen[cat] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for cat := range seen {
		out = append(out, cat)
	}
	sort.Strings(out)
	return out
}

// CategoryOf returns the version's category with the default substituted
// when absent.
func CategoryOf(v model.ProjectVersion) string {
	if v.Category == "" {
		return model.DefaultCategory
	}
	return v.Category
}

// ByCategory returns the versions in the given category, latest first by
// category version number.
func ByCategory(versions []model.ProjectVersion, category string) []model.ProjectVersion {
	var out []model.ProjectVersion
	for i := range versions {
		if CategoryOf(versions[i]) == category {
			out = append(out, versions[i])
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CategoryVersionNumber > out[j].CategoryVersionNumber
	})
	return out
}

// Latest returns the version in the category with the highest category
// version number, or nil if the category is empty.
func Latest(versions []model.ProjectVersion, category string) *model.ProjectVersion {
	var latest *model.ProjectVersion
	for i := range versions {
		if CategoryOf(versions[i]) != category {
			continue
		}
		if latest == nil || versions[i].CategoryVersionNumber > latest.CategoryVersionNumber {
			latest = &versions[i]
		}
	}
	return latest
}

// NextCategoryVersion returns 1 for an empty category, else max+1. Callers
// must invoke this at write time, never cache the result.
func NextCategoryVersion(versions []model.ProjectVersion, category string) int {
	max := 0
	for i := range versions {
		if CategoryOf(versions[i]) != category {
			continue
		}
		if versions[i].CategoryVersionNumber > max {
			max = versions[i].CategoryVersionNumber
		}
	}
	return max + 1
}

// MigrateLegacy assigns the default category and seeds the category version
// number from the legacy global number for any version that predates
// categories. Idempotent: a second run reports changed=false and triggers no
// remote write. The input is not mutated.
func MigrateLegacy(versions []model.ProjectVersion) (migrated []model.ProjectVersion, changed bool) {
	migrated = make([]model.ProjectVersion, len(versions))
	copy(migrated, versions)
	for i := range migrated {
		if migrated[i].Category == "" {
			migrated[i].Category = model.DefaultCategory
			changed = true
		}
		if migrated[i].CategoryVersionNumber == 0 {
			migrated[i].CategoryVersionNumber = migrated[i].VersionNumber
			changed = true
		}
	}
	return migrated, changed
}
