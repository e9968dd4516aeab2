package updates

import (
	"sort"
	"strings"

	"github.com/nerrad567/hamonitor/internal/hass"
)

// Category separates Home Assistant's own components from everything else.
type Category string

const (
	CategoryCore       Category = "core"
	CategoryThirdParty Category = "third_party"
)

// EntityPrefix is the id prefix of update entities.
const EntityPrefix = "update."

// coreTokens mark an update as belonging to the Home Assistant platform itself.
var coreTokens = []string{
	"home_assistant",
	"home assistant",
	"hassio",
	"supervisor",
	"operating_system",
	"operating system",
	" core",
	"_core",
}

// UpdateRecord is an actionable pending update.
type UpdateRecord struct {
	EntityID         string   `json:"entity_id"`
	Name             string   `json:"name"`
	InstalledVersion string   `json:"installed_version"`
	LatestVersion    string   `json:"latest_version"`
	SkippedVersion   *string  `json:"skipped_version"`
	Category         Category `json:"category"`
	ReleaseSummary   string   `json:"release_summary,omitempty"`
	ReleaseURL       string   `json:"release_url,omitempty"`
	EntityPicture    string   `json:"entity_picture,omitempty"`
}

// Options controls which updates are reported.
type Options struct {
	// IncludeSkipped keeps updates whose latest version was skipped by the user.
	IncludeSkipped bool
}

// DefaultOptions returns the default filter options.
func DefaultOptions() Options {
	return Options{IncludeSkipped: true}
}

// Buckets holds actionable updates split by category, each sorted by name.
type Buckets struct {
	Core       []UpdateRecord `json:"core"`
	ThirdParty []UpdateRecord `json:"third_party"`
}

// Total returns the number of updates across both buckets.
func (b Buckets) Total() int {
	return len(b.Core) + len(b.ThirdParty)
}

// FromSnapshot filters the update entities of a snapshot.
func FromSnapshot(snap *hass.Snapshot, opts Options) Buckets {
	return Filter(snap.StatesWithPrefix(EntityPrefix), opts)
}

// Filter keeps the actionable updates among states and partitions them.
// States that are not update entities are ignored.
func Filter(states []hass.EntityState, opts Options) Buckets {
	b := Buckets{Core: []UpdateRecord{}, ThirdParty: []UpdateRecord{}}

	for _, st := range states {
		rec, ok := Evaluate(st, opts)
		if !ok {
			continue
		}
		if rec.Category == CategoryCore {
			b.Core = append(b.Core, rec)
		} else {
			b.ThirdParty = append(b.ThirdParty, rec)
		}
	}

	sortByName(b.Core)
	sortByName(b.ThirdParty)
	return b
}

// Evaluate decides whether a single state is an actionable update.
//
// The entity must be an available update entity that is not installing and
// reports two different, non-empty versions. With IncludeSkipped false, an
// update whose skipped_version equals latest_version is suppressed.
func Evaluate(st hass.EntityState, opts Options) (UpdateRecord, bool) {
	if !strings.HasPrefix(st.EntityID, EntityPrefix) || st.Unavailable() {
		return UpdateRecord{}, false
	}
	if inProgress(st.Attributes["in_progress"]) {
		return UpdateRecord{}, false
	}

	installed, ok := st.Attr("installed_version")
	if !ok || installed == "" {
		return UpdateRecord{}, false
	}
	latest, ok := st.Attr("latest_version")
	if !ok || latest == "" || latest == installed {
		return UpdateRecord{}, false
	}

	var skipped *string
	if v, ok := st.Attr("skipped_version"); ok {
		skipped = &v
	}
	if !opts.IncludeSkipped && skipped != nil && *skipped == latest {
		return UpdateRecord{}, false
	}

	rec := UpdateRecord{
		EntityID:         st.EntityID,
		Name:             displayName(st),
		InstalledVersion: installed,
		LatestVersion:    latest,
		SkippedVersion:   skipped,
	}
	rec.ReleaseSummary, _ = st.Attr("release_summary")
	rec.ReleaseURL, _ = st.Attr("release_url")
	rec.EntityPicture, _ = st.Attr("entity_picture")
	rec.Category = categorize(rec.EntityID, rec.Name)

	return rec, true
}

// inProgress treats true and any numeric progress value as installing.
func inProgress(v any) bool {
	switch p := v.(type) {
	case bool:
		return p
	case float64, int, int64:
		return true
	default:
		return false
	}
}

func displayName(st hass.EntityState) string {
	if name, ok := st.Attr("friendly_name"); ok && name != "" {
		return name
	}
	if title, ok := st.Attr("title"); ok && title != "" {
		return title
	}
	return st.EntityID
}

func categorize(entityID, name string) Category {
	id := strings.ToLower(entityID)
	n := strings.ToLower(name)
	for _, tok := range coreTokens {
		if strings.Contains(id, tok) || strings.Contains(n, tok) {
			return CategoryCore
		}
	}
	return CategoryThirdParty
}

func sortByName(recs []UpdateRecord) {
	sort.SliceStable(recs, func(i, j int) bool {
		a, b := strings.ToLower(recs[i].Name), strings.ToLower(recs[j].Name)
		if a != b {
			return a < b
		}
		return recs[i].EntityID < recs[j].EntityID
	})
}
