package migration

import (
	"time"

	"medialib/internal/library"
)

// Finding codes.
const (
	CodeMissingCollection = "missing_collection"
	CodeMissingMetadata   = "missing_metadata"
	CodeOrphanedAsset     = "orphaned_asset"
	CodeDuplicateMapping  = "duplicate_mapping"
	CodeUnmigratedScript  = "unmigrated_script"
	CodeDanglingMapping   = "dangling_mapping"
)

// Finding is one verification result.
type Finding struct {
	Code      string       `json:"code"`
	Message   string       `json:"message"`
	Kind      library.Kind `json:"kind,omitempty"`
	AssetID   int64        `json:"assetId,omitempty"`
	MappingID int64        `json:"mappingId,omitempty"`
	ScriptID  int64        `json:"scriptId,omitempty"`
	SceneID   string       `json:"sceneId,omitempty"`
}

// Stats are the counters gathered during verification.
type Stats struct {
	TotalScripts       int                  `json:"totalScripts"`
	TotalAssets        int                  `json:"totalAssets"`
	AssetsByKind       map[library.Kind]int `json:"assetsByKind"`
	TotalMappings      int                  `json:"totalMappings"`
	AssetsWithMetadata int                  `json:"assetsWithMetadata"`
	OrphanedAssets     int                  `json:"orphanedAssets"`
	DuplicateMappings  int                  `json:"duplicateMappings"`
	DanglingMappings   int                  `json:"danglingMappings"`
	UnmigratedScripts  int                  `json:"unmigratedScripts"`
	LegacyPointers     int                  `json:"legacyPointers"`
}

// Report is the derived, unpersisted result of Verify. OK is true when there
// are no errors; warnings describe data quality only.
type Report struct {
	OK        bool      `json:"ok"`
	CheckedAt time.Time `json:"checkedAt"`
	Errors    []Finding `json:"errors"`
	Warnings  []Finding `json:"warnings"`
	Stats     Stats     `json:"stats"`
}

// WarningsByCode counts warnings per code.
func (r Report) WarningsByCode() map[string]int {
	counts := make(map[string]int)
	for _, w := range r.Warnings {
		counts[w.Code]++
	}
	return counts
}

func (r *Report) addError(f Finding) {
	r.Errors = append(r.Errors, f)
}

func (r *Report) addWarning(f Finding) {
	r.Warnings = append(r.Warnings, f)
}

func (r *Report) finish() {
	r.OK = len(r.Errors) == 0
	if r.Errors == nil {
		r.Errors = []Finding{}
	}
	if r.Warnings == nil {
		r.Warnings = []Finding{}
	}
}
