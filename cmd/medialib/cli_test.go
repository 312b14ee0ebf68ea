package main

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"medialib/internal/library"
	"medialib/internal/migration"
	"medialib/internal/testsupport"
)

func TestConfigInitAndShow(t *testing.T) {
	env := setupCLITestEnv(t)

	target := filepath.Join(t.TempDir(), "medialib", "config.toml")
	out, _, err := runCLI(t, []string{"config", "init", "--path", target}, "")
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	requireContains(t, out, "Wrote sample configuration")
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("expected config file at %s: %v", target, err)
	}

	if _, _, err := runCLI(t, []string{"config", "init", "--path", target}, ""); err == nil {
		t.Fatalf("expected config init to refuse overwriting")
	}

	out, _, err = runCLI(t, []string{"config", "show"}, env.configPath)
	if err != nil {
		t.Fatalf("config show: %v", err)
	}
	requireContains(t, out, env.cfg.DatabasePath())
	requireContains(t, out, "scan_page_size = 2")
}

func TestVerifyEmptyLibrary(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"verify"}, env.configPath)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	requireContains(t, out, "Library verification")
	requireContains(t, out, "[OK] no errors")
}

func TestLoggerFailureIsReported(t *testing.T) {
	env := setupCLITestEnv(t)
	// A directory where the log file belongs makes the file handler fail to open.
	if err := os.MkdirAll(env.cfg.LogPath(), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	out, errOut, err := runCLI(t, []string{"verify"}, env.configPath)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	requireContains(t, out, "[OK] no errors")
	requireContains(t, errOut, "warning: logging disabled")
	if n := strings.Count(errOut, "logging disabled"); n != 1 {
		t.Fatalf("expected the logger failure once, got %d in %q", n, errOut)
	}
}

func TestVerifyJSONReportsLegacyData(t *testing.T) {
	env := setupCLITestEnv(t)
	bare := testsupport.NewBareAsset(t, env.store, library.KindImage, testsupport.PNGBytes)
	testsupport.NewScript(t, env.store, "Legacy", []library.Scene{{GeneratedImageID: testsupport.Ptr(bare)}})

	out, _, err := runCLI(t, []string{"verify", "--json"}, env.configPath)
	if err != nil {
		t.Fatalf("verify --json: %v", err)
	}
	var report migration.Report
	if err := json.Unmarshal([]byte(out), &report); err != nil {
		t.Fatalf("decode report: %v\n%s", err, out)
	}
	if !report.OK {
		t.Fatalf("expected warnings only, got errors %+v", report.Errors)
	}
	if report.Stats.UnmigratedScripts != 1 || report.Stats.LegacyPointers != 1 {
		t.Fatalf("unexpected stats %+v", report.Stats)
	}
	byCode := report.WarningsByCode()
	if byCode[migration.CodeMissingMetadata] != 1 || byCode[migration.CodeUnmigratedScript] != 1 {
		t.Fatalf("unexpected warnings %v", byCode)
	}
}

func TestRepairAllMigratesLegacyLibrary(t *testing.T) {
	env := setupCLITestEnv(t)
	ctx := context.Background()
	img := testsupport.NewBareAsset(t, env.store, library.KindImage, testsupport.PNGBytes)
	vid := testsupport.NewAsset(t, env.store, library.KindVideo, []byte("video"))
	script := testsupport.NewScript(t, env.store, "Legacy", []library.Scene{
		{GeneratedImageID: testsupport.Ptr(img), GeneratedVideoID: testsupport.Ptr(vid)},
	})
	testsupport.NewMappingRow(t, env.store, script.ID, "act0-scene0", library.KindVideo, vid)
	testsupport.NewMappingRow(t, env.store, script.ID, "act0-scene0", library.KindVideo, vid)

	backupPath := filepath.Join(env.baseDir, "before-repair.json")
	out, _, err := runCLI(t, []string{"repair", "all", "--backup", backupPath}, env.configPath)
	if err != nil {
		t.Fatalf("repair all: %v", err)
	}
	requireContains(t, out, "Backup written to "+backupPath)
	requireContains(t, out, "Filled missing metadata on 1 asset(s)")
	requireContains(t, out, "Created 1 mapping(s) from scene pointers")
	requireContains(t, out, "Removed 1 duplicate mapping(s)")

	if _, err := migration.ReadSnapshotFile(backupPath); err != nil {
		t.Fatalf("read backup: %v", err)
	}
	m, err := env.store.FindMapping(ctx, library.MappingKey{ScriptID: script.ID, SceneID: "act0-scene0", Kind: library.KindImage})
	if err != nil || m == nil || m.AssetID != img {
		t.Fatalf("expected rebuilt image mapping, got %+v (err %v)", m, err)
	}

	out, _, err = runCLI(t, []string{"repair", "all", "--no-backup", "--json"}, env.configPath)
	if err != nil {
		t.Fatalf("second repair all: %v", err)
	}
	var summary migration.Summary
	if err := json.Unmarshal([]byte(out), &summary); err != nil {
		t.Fatalf("decode summary: %v\n%s", err, out)
	}
	if summary.Backup != nil || summary.MetadataFixed != 0 || summary.MappingsRebuilt != 0 || summary.DuplicatesRemoved != 0 {
		t.Fatalf("expected idempotent second run, got %+v", summary)
	}
	if len(summary.Report.Warnings) != 0 {
		t.Fatalf("expected clean report, got %+v", summary.Report.Warnings)
	}
}

func TestRepairRefusesWhileLocked(t *testing.T) {
	env := setupCLITestEnv(t)

	lock, err := migration.AcquireLock(env.cfg.LockPath())
	if err != nil {
		t.Fatalf("AcquireLock: %v", err)
	}
	defer lock.Release()

	_, _, err = runCLI(t, []string{"repair", "metadata"}, env.configPath)
	if !errors.Is(err, migration.ErrLocked) {
		t.Fatalf("expected ErrLocked, got %v", err)
	}
}

func TestAssetAndSceneWorkflow(t *testing.T) {
	env := setupCLITestEnv(t)
	ctx := context.Background()

	imagePath := filepath.Join(env.baseDir, "first.png")
	testsupport.WriteFile(t, imagePath, testsupport.PNGBytes)
	out, _, err := runCLI(t, []string{"asset", "add", "--kind", "image", imagePath}, env.configPath)
	if err != nil {
		t.Fatalf("asset add: %v", err)
	}
	requireContains(t, out, "Added image#1")
	requireContains(t, out, "image/png")

	out, _, err = runCLI(t, []string{"asset", "add", "--kind", "image", "--source", "ai-generated", "--json", imagePath}, env.configPath)
	if err != nil {
		t.Fatalf("asset add --json: %v", err)
	}
	var added assetRow
	if err := json.Unmarshal([]byte(out), &added); err != nil {
		t.Fatalf("decode asset: %v", err)
	}
	if added.ID != 2 || added.UploadSource != library.SourceAIGenerated || added.OriginalFilename != "first.png" {
		t.Fatalf("unexpected asset %+v", added)
	}

	scriptPath := filepath.Join(env.baseDir, "script.json")
	testsupport.WriteFile(t, scriptPath, []byte(`{"title":"Pilot","acts":[{"scenes":[{"title":"Opening","generatedImageId":1}]}]}`))
	out, _, err = runCLI(t, []string{"script", "add", scriptPath}, env.configPath)
	if err != nil {
		t.Fatalf("script add: %v", err)
	}
	requireContains(t, out, `Added script 1 "Pilot" with 1 scene(s)`)

	out, _, err = runCLI(t, []string{"scene", "show", "1", "act0-scene0", "--json"}, env.configPath)
	if err != nil {
		t.Fatalf("scene show: %v", err)
	}
	view := decodeSceneView(t, out)
	if slot := view.Slots[0]; !slot.Present || slot.Source != "legacy" || slot.AssetID != 1 {
		t.Fatalf("expected legacy image slot, got %+v", slot)
	}

	if _, _, err := runCLI(t, []string{"scene", "link", "1", "act0-scene0", "image", "1"}, env.configPath); err != nil {
		t.Fatalf("scene link: %v", err)
	}
	out, _, err = runCLI(t, []string{"scene", "replace", "1", "act0-scene0", "image", "1", "2"}, env.configPath)
	if err != nil {
		t.Fatalf("scene replace: %v", err)
	}
	requireContains(t, out, "Replaced 1 with 2")

	saveDir := filepath.Join(env.baseDir, "saved")
	out, _, err = runCLI(t, []string{"scene", "show", "1", "act0-scene0", "--save", saveDir, "--json"}, env.configPath)
	if err != nil {
		t.Fatalf("scene show --save: %v", err)
	}
	view = decodeSceneView(t, out)
	image := view.Slots[0]
	if image.Source != "mapping" || image.AssetID != 2 || image.MappingID == 0 {
		t.Fatalf("expected mapping slot for image 2, got %+v", image)
	}
	saved, err := os.ReadFile(image.SavedTo)
	if err != nil {
		t.Fatalf("read saved payload: %v", err)
	}
	if string(saved) != string(testsupport.PNGBytes) {
		t.Fatalf("saved payload mismatch")
	}
	rows, err := env.store.MappingsForKey(ctx, library.MappingKey{ScriptID: 1, SceneID: "act0-scene0", Kind: library.KindImage})
	if err != nil || len(rows) != 1 {
		t.Fatalf("expected one mapping row, got %d (err %v)", len(rows), err)
	}

	out, _, err = runCLI(t, []string{"scene", "unlink", "1", "act0-scene0", "image", "2"}, env.configPath)
	if err != nil {
		t.Fatalf("scene unlink: %v", err)
	}
	requireContains(t, out, "Removed 1 mapping(s)")

	if _, _, err := runCLI(t, []string{"scene", "link", "1", "act0-scene0", "video", "9"}, env.configPath); err == nil {
		t.Fatalf("expected link to a missing asset to fail")
	}

	out, _, err = runCLI(t, []string{"asset", "rm", "--kind", "image", "2"}, env.configPath)
	if err != nil {
		t.Fatalf("asset rm: %v", err)
	}
	requireContains(t, out, "Removed image#2")
	if _, _, err := runCLI(t, []string{"asset", "rm", "--kind", "image", "2"}, env.configPath); err == nil {
		t.Fatalf("expected removing a missing asset to fail")
	}

	out, _, err = runCLI(t, []string{"asset", "list", "--kind", "image"}, env.configPath)
	if err != nil {
		t.Fatalf("asset list: %v", err)
	}
	requireContains(t, out, "first.png")
	requireContains(t, out, "manual-upload")

	out, _, err = runCLI(t, []string{"script", "list", "--json"}, env.configPath)
	if err != nil {
		t.Fatalf("script list: %v", err)
	}
	var scripts []scriptRow
	if err := json.Unmarshal([]byte(out), &scripts); err != nil {
		t.Fatalf("decode scripts: %v", err)
	}
	if len(scripts) != 1 || scripts[0].Scenes != 1 || scripts[0].LegacyPointers != 1 || scripts[0].Mappings != 0 {
		t.Fatalf("unexpected script rows %+v", scripts)
	}
}

func TestAssetListPagesAcrossKinds(t *testing.T) {
	env := setupCLITestEnv(t)
	for i := 0; i < 5; i++ {
		testsupport.NewAsset(t, env.store, library.KindAudio, []byte("audio-"+strconv.Itoa(i)))
	}
	testsupport.NewAsset(t, env.store, library.KindVideo, []byte("video"))

	out, _, err := runCLI(t, []string{"asset", "list", "--json"}, env.configPath)
	if err != nil {
		t.Fatalf("asset list: %v", err)
	}
	var rows []assetRow
	if err := json.Unmarshal([]byte(out), &rows); err != nil {
		t.Fatalf("decode rows: %v", err)
	}
	if len(rows) != 6 {
		t.Fatalf("expected 6 assets across pages, got %d", len(rows))
	}
	if rows[0].Kind != library.KindVideo || rows[1].Kind != library.KindAudio {
		t.Fatalf("expected kind order video then audio, got %s, %s", rows[0].Kind, rows[1].Kind)
	}
}

func TestExportImportRoundTrip(t *testing.T) {
	src := setupCLITestEnv(t)
	img := testsupport.NewAsset(t, src.store, library.KindImage, testsupport.PNGBytes)
	script := testsupport.NewScript(t, src.store, "Exported", []library.Scene{{}})
	testsupport.NewMappingRow(t, src.store, script.ID, "act0-scene0", library.KindImage, img)

	backupPath := filepath.Join(src.baseDir, "export.json")
	out, _, err := runCLI(t, []string{"export", "-o", backupPath}, src.configPath)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	requireContains(t, out, "Backup written to "+backupPath)

	dst := setupCLITestEnv(t)
	out, _, err = runCLI(t, []string{"import", backupPath, "--json"}, dst.configPath)
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	var counts library.Counts
	if err := json.Unmarshal([]byte(out), &counts); err != nil {
		t.Fatalf("decode counts: %v", err)
	}
	if counts.Scripts != 1 || counts.Mappings != 1 || counts.Assets[library.KindImage] != 1 {
		t.Fatalf("unexpected counts %+v", counts)
	}

	m, err := dst.store.FindMapping(context.Background(), library.MappingKey{ScriptID: script.ID, SceneID: "act0-scene0", Kind: library.KindImage})
	if err != nil || m == nil || m.AssetID != img {
		t.Fatalf("expected mapping restored with original ids, got %+v (err %v)", m, err)
	}

	_, _, err = runCLI(t, []string{"import", backupPath}, dst.configPath)
	if !errors.Is(err, migration.ErrNotEmpty) {
		t.Fatalf("expected ErrNotEmpty on second import, got %v", err)
	}
}

func TestExportToStdout(t *testing.T) {
	env := setupCLITestEnv(t)
	testsupport.NewAsset(t, env.store, library.KindAudio, []byte("narration"))

	out, _, err := runCLI(t, []string{"export", "-o", "-"}, env.configPath)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	var snap migration.Snapshot
	if err := json.Unmarshal([]byte(out), &snap); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	if snap.Version != migration.SnapshotVersion || len(snap.Data.Audios) != 1 {
		t.Fatalf("unexpected snapshot version %d with %d audios", snap.Version, len(snap.Data.Audios))
	}
}

func TestHealthReportsChecks(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"health"}, env.configPath)
	if err != nil {
		t.Fatalf("health: %v\n%s", err, out)
	}
	requireContains(t, out, "Library health")
	requireContains(t, out, "Library database:")
	requireContains(t, out, "schema v1")
}

func decodeSceneView(t *testing.T, out string) sceneView {
	t.Helper()
	var view sceneView
	if err := json.Unmarshal([]byte(out), &view); err != nil {
		t.Fatalf("decode scene view: %v\n%s", err, out)
	}
	if len(view.Slots) != len(library.Kinds) {
		t.Fatalf("expected %d slots, got %d", len(library.Kinds), len(view.Slots))
	}
	return view
}

func TestLogsListsRunsAndFilters(t *testing.T) {
	env := setupCLITestEnv(t)

	if _, _, err := runCLI(t, []string{"verify"}, env.configPath); err != nil {
		t.Fatalf("verify: %v", err)
	}
	if _, _, err := runCLI(t, []string{"repair", "duplicates"}, env.configPath); err != nil {
		t.Fatalf("repair duplicates: %v", err)
	}

	out, _, err := runCLI(t, []string{"logs", "--runs", "--json"}, env.configPath)
	if err != nil {
		t.Fatalf("logs --runs: %v", err)
	}
	var runs []struct {
		RunID     string `json:"runId"`
		Operation string `json:"operation"`
	}
	if err := json.Unmarshal([]byte(out), &runs); err != nil {
		t.Fatalf("decode runs: %v\n%s", err, out)
	}
	if len(runs) != 2 || runs[0].Operation != "verify" || runs[1].Operation != "repair-duplicates" {
		t.Fatalf("unexpected runs %+v", runs)
	}

	out, _, err = runCLI(t, []string{"logs", "--run", runs[0].RunID[:shortRunIDLength]}, env.configPath)
	if err != nil {
		t.Fatalf("logs --run: %v", err)
	}
	requireContains(t, out, "verification complete")
	if strings.Contains(out, "duplicate removal complete") {
		t.Fatalf("expected only the verify run, got %q", out)
	}
}

func TestScriptShowAndUpdate(t *testing.T) {
	env := setupCLITestEnv(t)
	img := testsupport.NewAsset(t, env.store, library.KindImage, testsupport.PNGBytes)
	audio := testsupport.NewAsset(t, env.store, library.KindAudio, []byte("theme"))
	script := testsupport.NewScript(t, env.store, "Pilot",
		[]library.Scene{{Title: "Opening", GeneratedImageID: testsupport.Ptr(img)}, {Title: "Chase"}},
	)
	testsupport.NewMappingRow(t, env.store, script.ID, "act0-scene1", library.KindImage, img)
	testsupport.NewMappingRow(t, env.store, script.ID, "", library.KindAudio, audio)

	id := strconv.FormatInt(script.ID, 10)
	out, _, err := runCLI(t, []string{"script", "show", id, "--json"}, env.configPath)
	if err != nil {
		t.Fatalf("script show: %v", err)
	}
	var rows []sceneRow
	if err := json.Unmarshal([]byte(out), &rows); err != nil {
		t.Fatalf("decode scenes: %v\n%s", err, out)
	}
	if len(rows) != 3 {
		t.Fatalf("expected two scenes plus the script-level row, got %+v", rows)
	}
	if rows[0].LegacyImage != img || len(rows[0].Mapped) != 0 {
		t.Fatalf("unexpected first scene %+v", rows[0])
	}
	if rows[1].Mapped["image"] != img {
		t.Fatalf("expected mapped image on second scene, got %+v", rows[1])
	}
	if rows[2].SceneID != "-" || rows[2].Mapped["audio"] != audio {
		t.Fatalf("expected script-level audio row, got %+v", rows[2])
	}

	updatePath := filepath.Join(env.baseDir, "update.json")
	testsupport.WriteFile(t, updatePath, []byte(`{"acts":[{"scenes":[{"title":"Opening"}]}]}`))
	out, _, err = runCLI(t, []string{"script", "update", id, updatePath}, env.configPath)
	if err != nil {
		t.Fatalf("script update: %v", err)
	}
	requireContains(t, out, "Updated script "+id)

	updated, err := env.store.GetScript(context.Background(), script.ID)
	if err != nil || updated == nil {
		t.Fatalf("GetScript: %v", err)
	}
	if refs := updated.Scenes(); len(refs) != 1 || refs[0].Scene.GeneratedImageID != nil {
		t.Fatalf("expected a single scene without legacy pointers, got %+v", refs)
	}

	if _, _, err := runCLI(t, []string{"script", "update", "999", updatePath}, env.configPath); err == nil {
		t.Fatalf("expected updating a missing script to fail")
	}
}
