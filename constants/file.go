package constants

import "strings"

// AllowedExtensions holds the default allowed file extensions for resume ingestion.
var AllowedExtensions = map[string]struct{}{
	"pdf":  {},
	"doc":  {},
	"docx": {},
	"rtf":  {},
	"txt":  {},
}

// NormalizeExt lowercases and trims the dot from a file extension.
func NormalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))
}

// ExtensionSet builds a lookup set from user supplied extensions,
// returning AllowedExtensions when none are given.
func ExtensionSet(exts []string) map[string]struct{} {
	if len(exts) == 0 {
		return AllowedExtensions
	}
	set := make(map[string]struct{}, len(exts))
	for _, e := range exts {
		if e = NormalizeExt(e); e != "" {
			set[e] = struct{}{}
		}
	}
	return set
}
