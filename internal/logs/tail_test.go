package logs_test

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"medialib/internal/logs"
)

const sampleLog = `{"ts":"2026-03-01T10:00:00Z","level":"info","msg":"verification complete","operation":"verify","run_id":"aaaa-1111","ok":true}
not json
{"ts":"2026-03-01T10:05:00Z","level":"info","msg":"backup written","operation":"repair-all","run_id":"bbbb-2222","path":"/tmp/b.json"}
{"ts":"2026-03-01T10:05:01Z","level":"warn","msg":"rebuild skipped missing asset","operation":"repair-all","run_id":"bbbb-2222","asset_id":7}
{"ts":"2026-03-01T10:05:02Z","level":"info","msg":"duplicate removal complete","operation":"repair-all","run_id":"bbbb-2222","removed":3}
`

func writeLog(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "medialib.log")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write log: %v", err)
	}
	return path
}

func TestTailLastRecords(t *testing.T) {
	path := writeLog(t, sampleLog)

	result, err := logs.Tail(context.Background(), path, logs.TailOptions{Offset: -1, Limit: 2})
	if err != nil {
		t.Fatalf("tail returned error: %v", err)
	}
	if len(result.Records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(result.Records))
	}
	if result.Records[0].Message != "rebuild skipped missing asset" || result.Records[1].Message != "duplicate removal complete" {
		t.Fatalf("unexpected records: %+v", result.Records)
	}
	if result.Offset != int64(len(sampleLog)) {
		t.Fatalf("expected offset at end of file, got %d", result.Offset)
	}
}

func TestTailFiltersByRunAndLevel(t *testing.T) {
	path := writeLog(t, sampleLog)

	result, err := logs.Tail(context.Background(), path, logs.TailOptions{
		Offset: -1,
		Limit:  10,
		Filter: logs.Filter{RunID: "bbbb", MinLevel: slog.LevelWarn},
	})
	if err != nil {
		t.Fatalf("tail: %v", err)
	}
	if len(result.Records) != 1 {
		t.Fatalf("expected 1 record, got %+v", result.Records)
	}
	rec := result.Records[0]
	if rec.Level != slog.LevelWarn || rec.Operation != "repair-all" || rec.RunID != "bbbb-2222" {
		t.Fatalf("unexpected record %+v", rec)
	}
	if got := rec.Format(); !strings.Contains(got, "asset_id=7") || !strings.Contains(got, "[repair-all]") {
		t.Fatalf("unexpected format %q", got)
	}

	result, err = logs.Tail(context.Background(), path, logs.TailOptions{
		Offset: -1,
		Limit:  10,
		Filter: logs.Filter{Operation: "verify"},
	})
	if err != nil {
		t.Fatalf("tail: %v", err)
	}
	if len(result.Records) != 1 || result.Records[0].RunID != "aaaa-1111" {
		t.Fatalf("expected the verify record, got %+v", result.Records)
	}
}

func TestTailMissingFile(t *testing.T) {
	result, err := logs.Tail(context.Background(), filepath.Join(t.TempDir(), "absent.log"), logs.TailOptions{Offset: -1, Limit: 5})
	if err != nil {
		t.Fatalf("tail: %v", err)
	}
	if len(result.Records) != 0 || result.Offset != 0 {
		t.Fatalf("expected empty result, got %+v", result)
	}
}

func TestRunsSummarizesByRunID(t *testing.T) {
	path := writeLog(t, sampleLog)

	runs, err := logs.Runs(path)
	if err != nil {
		t.Fatalf("runs: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("expected 2 runs, got %+v", runs)
	}
	repair := runs[1]
	if repair.Operation != "repair-all" || repair.Records != 3 || repair.Warnings != 1 || repair.Errors != 0 {
		t.Fatalf("unexpected repair summary %+v", repair)
	}
	if repair.Finished.Sub(repair.Started) != 2*time.Second {
		t.Fatalf("unexpected run span %s", repair.Finished.Sub(repair.Started))
	}
}

func TestTailFollowWaits(t *testing.T) {
	path := writeLog(t, sampleLog)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	result, err := logs.Tail(ctx, path, logs.TailOptions{Offset: -1, Limit: 1})
	if err != nil {
		t.Fatalf("initial tail: %v", err)
	}

	done := make(chan struct{})
	go func(offset int64) {
		defer close(done)
		res, err := logs.Tail(ctx, path, logs.TailOptions{Offset: offset, Follow: true, Wait: 5 * time.Second})
		if err != nil {
			t.Errorf("follow tail error: %v", err)
			return
		}
		if len(res.Records) != 1 || res.Records[0].Message != "later" {
			t.Errorf("unexpected follow records: %+v", res.Records)
		}
	}(result.Offset)

	time.Sleep(200 * time.Millisecond)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatalf("open append: %v", err)
	}
	if _, err := f.WriteString(`{"ts":"2026-03-01T11:00:00Z","level":"info","msg":"later"}` + "\n"); err != nil {
		t.Fatalf("append log: %v", err)
	}
	_ = f.Close()

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("tail follow did not return")
	}
}
