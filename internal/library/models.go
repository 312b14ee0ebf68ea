package library

import (
	"fmt"
	"strings"
	"time"
)

// Kind is the closed set of asset kinds. Each kind owns one asset table.
type Kind string

const (
	KindImage Kind = "image"
	KindVideo Kind = "video"
	KindAudio Kind = "audio"
)

// Kinds lists every asset kind in a stable order.
var Kinds = []Kind{KindImage, KindVideo, KindAudio}

// ParseKind maps user input onto a Kind.
func ParseKind(value string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(value)))
	if !k.Valid() {
		return "", invalid("asset kind", "%q is not one of image, video, audio", value)
	}
	return k, nil
}

// Valid reports whether k is one of the known kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindImage, KindVideo, KindAudio:
		return true
	}
	return false
}

// Collection returns the table that stores assets of this kind.
func (k Kind) Collection() string {
	switch k {
	case KindImage:
		return "images"
	case KindVideo:
		return "videos"
	case KindAudio:
		return "audios"
	}
	return ""
}

// HasLegacyPointer reports whether scenes may embed a pointer of this kind.
// Audio was never stored on scenes.
func (k Kind) HasLegacyPointer() bool {
	return k == KindImage || k == KindVideo
}

func assetTable(k Kind) (string, error) {
	table := k.Collection()
	if table == "" {
		return "", invalid("asset kind", "%q is not one of image, video, audio", string(k))
	}
	return table, nil
}

// UploadSource records where an asset came from.
type UploadSource string

const (
	SourceAIGenerated  UploadSource = "ai-generated"
	SourceManualUpload UploadSource = "manual-upload"
	SourceImported     UploadSource = "imported"
)

// ParseUploadSource maps user input onto an UploadSource. Empty input yields
// the empty (absent) source.
func ParseUploadSource(value string) (UploadSource, error) {
	s := UploadSource(strings.ToLower(strings.TrimSpace(value)))
	switch s {
	case "", SourceAIGenerated, SourceManualUpload, SourceImported:
		return s, nil
	}
	return "", invalid("upload source", "%q is not one of ai-generated, manual-upload, imported", value)
}

// Asset is one stored binary plus its upload metadata. Metadata fields are
// optional because assets created before metadata tracking lack them.
type Asset struct {
	ID               int64        `json:"id"`
	Kind             Kind         `json:"-"`
	Data             []byte       `json:"data"`
	UploadSource     UploadSource `json:"uploadSource,omitempty"`
	OriginalFilename string       `json:"originalFilename,omitempty"`
	MimeType         string       `json:"mimeType,omitempty"`
	UploadedAt       *time.Time   `json:"uploadedAt,omitempty"`
}

// HasMetadata reports whether upload source, upload time, and MIME type are all present.
func (a Asset) HasMetadata() bool {
	return a.Info().HasMetadata()
}

// Info returns the asset without its payload.
func (a Asset) Info() AssetInfo {
	return AssetInfo{
		ID:               a.ID,
		Kind:             a.Kind,
		Size:             int64(len(a.Data)),
		UploadSource:     a.UploadSource,
		OriginalFilename: a.OriginalFilename,
		MimeType:         a.MimeType,
		UploadedAt:       a.UploadedAt,
	}
}

// AssetInfo is an asset row without the payload, used by scans.
type AssetInfo struct {
	ID               int64
	Kind             Kind
	Size             int64
	UploadSource     UploadSource
	OriginalFilename string
	MimeType         string
	UploadedAt       *time.Time
}

// HasMetadata reports whether upload source, upload time, and MIME type are all present.
func (a AssetInfo) HasMetadata() bool {
	return a.UploadSource != "" && a.UploadedAt != nil && a.MimeType != ""
}

// Ref returns the (kind, id) pair mappings use to point at this asset.
func (a AssetInfo) Ref() AssetRef {
	return AssetRef{Kind: a.Kind, ID: a.ID}
}

// AssetRef identifies an asset across the three tables.
type AssetRef struct {
	Kind Kind
	ID   int64
}

func (r AssetRef) String() string {
	return fmt.Sprintf("%s#%d", r.Kind, r.ID)
}

// MetadataPatch carries backfill values. Only fields that are currently absent
// on the stored asset are written.
type MetadataPatch struct {
	UploadSource UploadSource
	MimeType     string
	UploadedAt   time.Time
}

// MappingKey is the composite key of the mapping table. An empty SceneID
// denotes a script-level asset and is stored as NULL.
type MappingKey struct {
	ScriptID int64
	SceneID  string
	Kind     Kind
}

// Normalize trims surrounding whitespace from the scene id. A scene id that
// is only whitespace becomes the script-level key.
func (k MappingKey) Normalize() MappingKey {
	k.SceneID = strings.TrimSpace(k.SceneID)
	return k
}

// Validate rejects keys that cannot identify a mapping.
func (k MappingKey) Validate() error {
	if k.ScriptID <= 0 {
		return invalid("script id", "must be positive, got %d", k.ScriptID)
	}
	if !k.Kind.Valid() {
		return invalid("asset kind", "%q is not one of image, video, audio", string(k.Kind))
	}
	return nil
}

func (k MappingKey) String() string {
	scene := k.SceneID
	if scene == "" {
		scene = "<script>"
	}
	return fmt.Sprintf("script=%d scene=%s kind=%s", k.ScriptID, scene, k.Kind)
}

// Mapping links a script scene and an asset kind to one stored asset.
type Mapping struct {
	ID        int64     `json:"id"`
	ScriptID  int64     `json:"scriptId"`
	SceneID   string    `json:"sceneId,omitempty"`
	AssetType Kind      `json:"assetType"`
	AssetID   int64     `json:"assetId"`
	LinkedAt  time.Time `json:"linkedAt"`
	Role      string    `json:"role,omitempty"`
}

// Key returns the composite key of the row.
func (m Mapping) Key() MappingKey {
	return MappingKey{ScriptID: m.ScriptID, SceneID: m.SceneID, Kind: m.AssetType}
}

// AssetRef returns the asset this row points at.
func (m Mapping) AssetRef() AssetRef {
	return AssetRef{Kind: m.AssetType, ID: m.AssetID}
}

// Script is a user-authored script. Only the fields this library reads are modeled.
type Script struct {
	ID        int64     `json:"id"`
	Title     string    `json:"title"`
	Acts      []Act     `json:"acts"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Act groups scenes.
type Act struct {
	Title  string  `json:"title,omitempty"`
	Scenes []Scene `json:"scenes"`
}

// Scene carries the deprecated embedded asset pointers.
type Scene struct {
	ID               string `json:"id,omitempty"`
	Title            string `json:"title,omitempty"`
	Description      string `json:"description,omitempty"`
	GeneratedImageID *int64 `json:"generatedImageId,omitempty"`
	GeneratedVideoID *int64 `json:"generatedVideoId,omitempty"`
}

// LegacyPointer returns the embedded asset id for kind, if any.
func (s Scene) LegacyPointer(kind Kind) (int64, bool) {
	var ptr *int64
	switch kind {
	case KindImage:
		ptr = s.GeneratedImageID
	case KindVideo:
		ptr = s.GeneratedVideoID
	}
	if ptr == nil || *ptr <= 0 {
		return 0, false
	}
	return *ptr, true
}

// SceneID returns the identifier derived from a scene's position.
func SceneID(act, scene int) string {
	return fmt.Sprintf("act%d-scene%d", act, scene)
}

// SceneRef is a scene with its resolved identifier.
type SceneRef struct {
	SceneID string
	Act     int
	Index   int
	Scene   Scene
}

// Scenes flattens the script and assigns each scene its identifier: the
// explicit ID when present, otherwise the positional act/scene identifier.
func (s Script) Scenes() []SceneRef {
	var refs []SceneRef
	for a, act := range s.Acts {
		for i, scene := range act.Scenes {
			id := strings.TrimSpace(scene.ID)
			if id == "" {
				id = SceneID(a, i)
			}
			refs = append(refs, SceneRef{SceneID: id, Act: a, Index: i, Scene: scene})
		}
	}
	return refs
}

// FindScene returns the scene with the given identifier.
func (s Script) FindScene(sceneID string) (SceneRef, bool) {
	for _, ref := range s.Scenes() {
		if ref.SceneID == sceneID {
			return ref, true
		}
	}
	return SceneRef{}, false
}

// Prompt is a stored generation prompt. The library only exports and restores prompts.
type Prompt struct {
	ID        int64     `json:"id"`
	ScriptID  *int64    `json:"scriptId,omitempty"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"createdAt"`
}

// Counts summarizes row counts per table.
type Counts struct {
	Scripts  int          `json:"scripts"`
	Prompts  int          `json:"prompts"`
	Mappings int          `json:"mappings"`
	Assets   map[Kind]int `json:"assets"`
}

// TotalAssets sums asset rows across kinds.
func (c Counts) TotalAssets() int {
	total := 0
	for _, n := range c.Assets {
		total += n
	}
	return total
}

// DatabaseHealth captures diagnostic information about the library database.
type DatabaseHealth struct {
	DBPath           string   `json:"db_path"`
	DatabaseExists   bool     `json:"database_exists"`
	DatabaseReadable bool     `json:"database_readable"`
	SchemaVersion    int      `json:"schema_version"`
	TablesPresent    []string `json:"tables_present"`
	MissingTables    []string `json:"missing_tables"`
	IntegrityCheck   bool     `json:"integrity_check"`
	Counts           Counts   `json:"counts"`
	Error            string   `json:"error,omitempty"`
}
