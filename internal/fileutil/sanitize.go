package fileutil

import "strings"

var unsafeNameReplacer = strings.NewReplacer(
	"/", "-",
	"\\", "-",
	":", "-",
	"*", "-",
	"?", "",
	"\"", "",
	"<", "",
	">", "",
	"|", "",
	"\x00", "",
)

// SanitizeFileName makes name safe to use as a single path segment.
// Separators, colons, and asterisks become dashes; other unsafe characters
// are dropped. Names that end up empty or as a dot segment become "unnamed".
func SanitizeFileName(name string) string {
	name = strings.TrimSpace(unsafeNameReplacer.Replace(strings.TrimSpace(name)))
	if name == "" || name == "." || name == ".." {
		return "unnamed"
	}
	return name
}
