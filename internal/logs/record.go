package logs

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"medialib/internal/logging"
)

// Record is one decoded line of the JSON log file.
type Record struct {
	Time      time.Time
	Level     slog.Level
	Message   string
	Operation string
	RunID     string
	Fields    map[string]any
}

// reserved keys are lifted into Record fields instead of Fields.
var reserved = map[string]struct{}{
	"ts":                   {},
	"level":                {},
	"msg":                  {},
	"source":               {},
	logging.FieldOperation: {},
	logging.FieldRunID:     {},
}

// ParseRecord decodes one JSON log line.
func ParseRecord(line string) (Record, error) {
	var raw map[string]any
	if err := json.Unmarshal([]byte(line), &raw); err != nil {
		return Record{}, fmt.Errorf("decode log record: %w", err)
	}
	rec := Record{Fields: make(map[string]any)}
	if ts, ok := raw["ts"].(string); ok {
		if parsed, err := time.Parse(time.RFC3339, ts); err == nil {
			rec.Time = parsed
		}
	}
	if level, ok := raw["level"].(string); ok {
		_ = rec.Level.UnmarshalText([]byte(level))
	}
	rec.Message, _ = raw["msg"].(string)
	rec.Operation, _ = raw[logging.FieldOperation].(string)
	rec.RunID, _ = raw[logging.FieldRunID].(string)
	for key, value := range raw {
		if _, skip := reserved[key]; skip {
			continue
		}
		rec.Fields[key] = value
	}
	return rec, nil
}

// Format renders the record on one line with fields in key order.
func (r Record) Format() string {
	var b strings.Builder
	if !r.Time.IsZero() {
		b.WriteString(r.Time.Local().Format("2006-01-02 15:04:05"))
		b.WriteByte(' ')
	}
	fmt.Fprintf(&b, "%-5s %s", r.Level.String(), r.Message)
	if r.Operation != "" {
		fmt.Fprintf(&b, " [%s]", r.Operation)
	}
	keys := make([]string, 0, len(r.Fields))
	for key := range r.Fields {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		fmt.Fprintf(&b, " %s=%v", key, r.Fields[key])
	}
	return b.String()
}

// Filter selects records. Empty RunID and Operation match everything and the
// zero MinLevel is info. RunID matches by prefix so the short form printed by
// `logs --runs` works.
type Filter struct {
	RunID     string
	Operation string
	MinLevel  slog.Level
}

// Match reports whether rec passes the filter.
func (f Filter) Match(rec Record) bool {
	if rec.Level < f.MinLevel {
		return false
	}
	if f.Operation != "" && !strings.EqualFold(f.Operation, rec.Operation) {
		return false
	}
	if f.RunID != "" && !strings.HasPrefix(rec.RunID, f.RunID) {
		return false
	}
	return true
}

// RunSummary aggregates the records of one run id.
type RunSummary struct {
	RunID     string    `json:"runId"`
	Operation string    `json:"operation"`
	Started   time.Time `json:"started"`
	Finished  time.Time `json:"finished"`
	Records   int       `json:"records"`
	Warnings  int       `json:"warnings"`
	Errors    int       `json:"errors"`
}

// summarize groups records by run id, ordered by start time.
func summarize(records []Record) []RunSummary {
	byRun := make(map[string]*RunSummary)
	var order []string
	for _, rec := range records {
		if rec.RunID == "" {
			continue
		}
		run, ok := byRun[rec.RunID]
		if !ok {
			run = &RunSummary{RunID: rec.RunID, Operation: rec.Operation, Started: rec.Time}
			byRun[rec.RunID] = run
			order = append(order, rec.RunID)
		}
		run.Records++
		if rec.Time.After(run.Finished) {
			run.Finished = rec.Time
		}
		if !rec.Time.IsZero() && (run.Started.IsZero() || rec.Time.Before(run.Started)) {
			run.Started = rec.Time
		}
		switch {
		case rec.Level >= slog.LevelError:
			run.Errors++
		case rec.Level >= slog.LevelWarn:
			run.Warnings++
		}
	}
	runs := make([]RunSummary, 0, len(order))
	for _, id := range order {
		runs = append(runs, *byRun[id])
	}
	sort.SliceStable(runs, func(i, j int) bool {
		return runs[i].Started.Before(runs[j].Started)
	})
	return runs
}
