package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"medialib/internal/library"
)

var titleCaser = cases.Title(language.English)

// kindLabel renders an asset kind for table headers and status labels.
func kindLabel(kind library.Kind) string {
	return titleCaser.String(string(kind))
}

func formatSize(size int64) string {
	if size < 0 {
		size = 0
	}
	return humanize.IBytes(uint64(size))
}

func formatOptionalTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return "-"
	}
	return humanize.Time(*t)
}

func orDash(value string) string {
	if strings.TrimSpace(value) == "" {
		return "-"
	}
	return value
}

func parseID(label, value string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid %s %q: expected a positive integer", label, value)
	}
	return id, nil
}

// sceneArg maps the CLI spelling of a script-level key onto the empty scene id.
func sceneArg(value string) string {
	value = strings.TrimSpace(value)
	if value == "-" || strings.EqualFold(value, "script") {
		return ""
	}
	return value
}
