package testsupport

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"medialib/internal/config"
	"medialib/internal/library"
)

// MustOpenStore opens a library.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *library.Store {
	t.Helper()

	store, err := library.Open(cfg)
	if err != nil {
		t.Fatalf("library.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// NewScript stores a script whose acts hold the given scenes and returns it.
func NewScript(t testing.TB, store *library.Store, title string, acts ...[]library.Scene) *library.Script {
	t.Helper()

	converted := make([]library.Act, 0, len(acts))
	for _, scenes := range acts {
		converted = append(converted, library.Act{Scenes: scenes})
	}
	script, err := store.CreateScript(context.Background(), title, converted)
	if err != nil {
		t.Fatalf("store.CreateScript: %v", err)
	}
	return script
}

// NewAsset stores an asset of kind with complete metadata and returns its id.
func NewAsset(t testing.TB, store *library.Store, kind library.Kind, data []byte) int64 {
	t.Helper()

	now := time.Now().UTC()
	return insertAsset(t, store, library.Asset{
		Kind:         kind,
		Data:         data,
		UploadSource: library.SourceManualUpload,
		MimeType:     defaultMime(kind),
		UploadedAt:   &now,
	})
}

// NewBareAsset stores an asset without any metadata, the shape of rows
// written before metadata tracking existed.
func NewBareAsset(t testing.TB, store *library.Store, kind library.Kind, data []byte) int64 {
	t.Helper()

	return insertAsset(t, store, library.Asset{Kind: kind, Data: data})
}

// NewMappingRow inserts a raw mapping row, bypassing key uniqueness.
func NewMappingRow(t testing.TB, store *library.Store, scriptID int64, sceneID string, kind library.Kind, assetID int64) int64 {
	t.Helper()

	id, err := store.InsertMappingRow(context.Background(), library.Mapping{
		ScriptID:  scriptID,
		SceneID:   sceneID,
		AssetType: kind,
		AssetID:   assetID,
	})
	if err != nil {
		t.Fatalf("store.InsertMappingRow: %v", err)
	}
	return id
}

// ExecSQL runs statements against the store's database file on a separate
// connection, for shaping rows the store API never writes.
func ExecSQL(t testing.TB, store *library.Store, statements ...string) {
	t.Helper()

	db, err := sql.Open("sqlite", store.Path())
	if err != nil {
		t.Fatalf("open raw db: %v", err)
	}
	defer db.Close()
	for _, stmt := range statements {
		if _, err := db.Exec(stmt); err != nil {
			t.Fatalf("exec %q: %v", stmt, err)
		}
	}
}

// Ptr returns a pointer to v, for legacy scene pointers.
func Ptr(v int64) *int64 {
	return &v
}

func insertAsset(t testing.TB, store *library.Store, asset library.Asset) int64 {
	t.Helper()

	id, err := store.InsertAsset(context.Background(), asset)
	if err != nil {
		t.Fatalf("store.InsertAsset: %v", err)
	}
	return id
}

func defaultMime(kind library.Kind) string {
	switch kind {
	case library.KindVideo:
		return "video/mp4"
	case library.KindAudio:
		return "audio/mpeg"
	default:
		return "image/png"
	}
}
