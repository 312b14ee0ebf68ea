package mapping_test

import (
	"context"
	"sync"
	"testing"

	"medialib/internal/library"
	"medialib/internal/logging"
	"medialib/internal/mapping"
	"medialib/internal/testsupport"
)

func newMutator(t *testing.T) (*mapping.Mutator, *library.Store) {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	return mapping.New(store, logging.NewNop()), store
}

func rowsFor(t *testing.T, store *library.Store, key library.MappingKey) []library.Mapping {
	t.Helper()
	rows, err := store.MappingsForKey(context.Background(), key)
	if err != nil {
		t.Fatalf("MappingsForKey failed: %v", err)
	}
	return rows
}

func TestLinkTwiceLeavesOneRow(t *testing.T) {
	mutator, store := newMutator(t)
	ctx := context.Background()
	key := library.MappingKey{ScriptID: 5, SceneID: "act0-scene0", Kind: library.KindImage}

	first, err := mutator.LinkAsset(ctx, key, 1)
	if err != nil {
		t.Fatalf("LinkAsset failed: %v", err)
	}
	second, err := mutator.LinkAsset(ctx, key, 2)
	if err != nil {
		t.Fatalf("second LinkAsset failed: %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("expected the row to be repointed, got ids %d and %d", first.ID, second.ID)
	}

	rows := rowsFor(t, store, key)
	if len(rows) != 1 {
		t.Fatalf("expected one row, got %d", len(rows))
	}
	if rows[0].AssetID != 2 {
		t.Fatalf("expected asset 2, got %d", rows[0].AssetID)
	}
}

func TestLinkCollapsesExistingDuplicates(t *testing.T) {
	mutator, store := newMutator(t)
	ctx := context.Background()

	canonical := testsupport.NewMappingRow(t, store, 2, "act1-scene3", library.KindVideo, 10)
	testsupport.NewMappingRow(t, store, 2, "act1-scene3", library.KindVideo, 11)
	testsupport.NewMappingRow(t, store, 2, "act1-scene3", library.KindVideo, 12)

	key := library.MappingKey{ScriptID: 2, SceneID: "act1-scene3", Kind: library.KindVideo}
	row, err := mutator.LinkAsset(ctx, key, 20)
	if err != nil {
		t.Fatalf("LinkAsset failed: %v", err)
	}
	if row.ID != canonical {
		t.Fatalf("expected canonical row %d to be kept, got %d", canonical, row.ID)
	}
	rows := rowsFor(t, store, key)
	if len(rows) != 1 || rows[0].AssetID != 20 {
		t.Fatalf("expected one row pointing at 20, got %+v", rows)
	}
}

func TestLinkKeepsKindsAndScenesSeparate(t *testing.T) {
	mutator, store := newMutator(t)
	ctx := context.Background()

	keys := []library.MappingKey{
		{ScriptID: 1, SceneID: "act0-scene0", Kind: library.KindImage},
		{ScriptID: 1, SceneID: "act0-scene0", Kind: library.KindVideo},
		{ScriptID: 1, SceneID: "act0-scene1", Kind: library.KindImage},
		{ScriptID: 1, Kind: library.KindAudio},
	}
	for i, key := range keys {
		if _, err := mutator.LinkAsset(ctx, key, int64(i+1)); err != nil {
			t.Fatalf("LinkAsset %s failed: %v", key, err)
		}
	}
	count, err := store.CountMappings(ctx)
	if err != nil {
		t.Fatalf("CountMappings failed: %v", err)
	}
	if count != len(keys) {
		t.Fatalf("expected %d rows, got %d", len(keys), count)
	}
}

func TestUnlinkRemovesOnlyMatchingAsset(t *testing.T) {
	mutator, store := newMutator(t)
	ctx := context.Background()

	testsupport.NewMappingRow(t, store, 4, "act0-scene0", library.KindImage, 1)
	testsupport.NewMappingRow(t, store, 4, "act0-scene0", library.KindImage, 2)
	key := library.MappingKey{ScriptID: 4, SceneID: "act0-scene0", Kind: library.KindImage}

	removed, err := mutator.UnlinkAsset(ctx, key, 1)
	if err != nil {
		t.Fatalf("UnlinkAsset failed: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected 1 row removed, got %d", removed)
	}
	rows := rowsFor(t, store, key)
	if len(rows) != 1 || rows[0].AssetID != 2 {
		t.Fatalf("expected the asset 2 row to remain, got %+v", rows)
	}

	removed, err = mutator.UnlinkAsset(ctx, key, 99)
	if err != nil {
		t.Fatalf("UnlinkAsset missing failed: %v", err)
	}
	if removed != 0 {
		t.Fatalf("expected nothing removed, got %d", removed)
	}
}

func TestReplaceSwapsAssetInPlace(t *testing.T) {
	mutator, store := newMutator(t)
	ctx := context.Background()
	key := library.MappingKey{ScriptID: 5, SceneID: "act0-scene0", Kind: library.KindImage}

	testsupport.NewMappingRow(t, store, 5, "act0-scene0", library.KindImage, 7)
	holder := testsupport.NewMappingRow(t, store, 5, "act0-scene0", library.KindImage, 1)

	row, err := mutator.ReplaceAsset(ctx, key, 1, 2)
	if err != nil {
		t.Fatalf("ReplaceAsset failed: %v", err)
	}
	if row.ID != holder {
		t.Fatalf("expected the row holding the old asset (%d) to be repointed, got %d", holder, row.ID)
	}
	rows := rowsFor(t, store, key)
	if len(rows) != 1 || rows[0].ID != holder || rows[0].AssetID != 2 {
		t.Fatalf("expected a single repointed row, got %+v", rows)
	}
}

func TestReplaceWithMissingOldEqualsLink(t *testing.T) {
	replaceMutator, replaceStore := newMutator(t)
	linkMutator, linkStore := newMutator(t)
	ctx := context.Background()
	key := library.MappingKey{ScriptID: 3, SceneID: "act2-scene1", Kind: library.KindVideo}

	for _, store := range []*library.Store{replaceStore, linkStore} {
		testsupport.NewMappingRow(t, store, 3, "act2-scene1", library.KindVideo, 4)
		testsupport.NewMappingRow(t, store, 3, "act2-scene1", library.KindVideo, 5)
	}

	replaced, err := replaceMutator.ReplaceAsset(ctx, key, 99, 8)
	if err != nil {
		t.Fatalf("ReplaceAsset failed: %v", err)
	}
	linked, err := linkMutator.LinkAsset(ctx, key, 8)
	if err != nil {
		t.Fatalf("LinkAsset failed: %v", err)
	}

	a := rowsFor(t, replaceStore, key)
	b := rowsFor(t, linkStore, key)
	if len(a) != 1 || len(b) != 1 {
		t.Fatalf("expected one row each, got %d and %d", len(a), len(b))
	}
	if a[0].ID != b[0].ID || a[0].AssetID != b[0].AssetID || replaced.ID != linked.ID {
		t.Fatalf("replace and link diverged: %+v vs %+v", a[0], b[0])
	}

	// With no rows at all, replace inserts.
	empty := library.MappingKey{ScriptID: 3, SceneID: "act9-scene9", Kind: library.KindImage}
	if _, err := replaceMutator.ReplaceAsset(ctx, empty, 1, 2); err != nil {
		t.Fatalf("ReplaceAsset on empty key failed: %v", err)
	}
	rows := rowsFor(t, replaceStore, empty)
	if len(rows) != 1 || rows[0].AssetID != 2 {
		t.Fatalf("expected inserted row, got %+v", rows)
	}
}

func TestLinkIfAbsent(t *testing.T) {
	mutator, store := newMutator(t)
	ctx := context.Background()
	key := library.MappingKey{ScriptID: 6, SceneID: "act0-scene0", Kind: library.KindImage}

	created, err := mutator.LinkIfAbsent(ctx, key, 3, "scene-image")
	if err != nil {
		t.Fatalf("LinkIfAbsent failed: %v", err)
	}
	if !created {
		t.Fatal("expected a row to be created")
	}
	created, err = mutator.LinkIfAbsent(ctx, key, 4, "scene-image")
	if err != nil {
		t.Fatalf("second LinkIfAbsent failed: %v", err)
	}
	if created {
		t.Fatal("expected existing mapping to win")
	}
	rows := rowsFor(t, store, key)
	if len(rows) != 1 || rows[0].AssetID != 3 || rows[0].Role != "scene-image" {
		t.Fatalf("unexpected rows %+v", rows)
	}
}

func TestMutatorRejectsInvalidInput(t *testing.T) {
	mutator, _ := newMutator(t)
	ctx := context.Background()

	cases := []struct {
		name    string
		key     library.MappingKey
		assetID int64
	}{
		{"zero script", library.MappingKey{ScriptID: 0, SceneID: "s", Kind: library.KindImage}, 1},
		{"bad kind", library.MappingKey{ScriptID: 1, SceneID: "s", Kind: "gif"}, 1},
		{"zero asset", library.MappingKey{ScriptID: 1, SceneID: "s", Kind: library.KindImage}, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := mutator.LinkAsset(ctx, tc.key, tc.assetID)
			if err == nil {
				t.Fatal("expected error")
			}
			if !library.IsValidation(err) {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}
}

func TestConcurrentLinksLeaveOneRow(t *testing.T) {
	mutator, store := newMutator(t)
	ctx := context.Background()
	key := library.MappingKey{ScriptID: 9, SceneID: "act0-scene0", Kind: library.KindImage}

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 1; i <= 8; i++ {
		wg.Add(1)
		go func(assetID int64) {
			defer wg.Done()
			if _, err := mutator.LinkAsset(ctx, key, assetID); err != nil {
				errs <- err
			}
		}(int64(i))
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("concurrent LinkAsset failed: %v", err)
	}
	if rows := rowsFor(t, store, key); len(rows) != 1 {
		t.Fatalf("expected one row after concurrent links, got %d", len(rows))
	}
}
