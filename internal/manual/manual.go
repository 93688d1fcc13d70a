// Package manual recovers hand-written "Additional Information" text from a
// previously generated detail page, so that regeneration does not lose it.
package manual

import (
	"errors"
	"io/fs"
	"os"
	"regexp"
	"strings"
)

// Markers fencing the editable region of a detail page. Everything between
// them belongs to human editors; everything else is regenerated.
const (
	StartMarker = "<!-- ADDITIONAL INFORMATION START - Add custom information below this line -->"
	EndMarker   = "<!-- ADDITIONAL INFORMATION END -->"
)

// Heading introduces the editable region. Pages written before the markers
// existed put free text directly under it.
const Heading = "## Additional Information"

// legacyAnchor ends the legacy editable region.
const legacyAnchor = "[Back to Registry]"

var (
	markerRe = regexp.MustCompile(`(?s)<!-- ADDITIONAL INFORMATION START.*?-->(.*?)<!-- ADDITIONAL INFORMATION END`)
	legacyRe = regexp.MustCompile(`(?s)` + regexp.QuoteMeta(Heading) + `\s*(.*?)` + regexp.QuoteMeta(legacyAnchor))
)

// ExtractFile reads path and returns its manual content. A missing file has none.
func ExtractFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", nil
		}
		return "", err
	}
	return Extract(string(data)), nil
}

// Extract returns the manual content of a detail page, trimmed.
//
// Text between the markers wins. Failing that, legacy pages are read from
// Heading up to the back link, dropping "- " lines: those held hints generated
// from the registry.
func Extract(content string) string {
	if m := markerRe.FindStringSubmatch(content); m != nil {
		return strings.TrimSpace(m[1])
	}
	if m := legacyRe.FindStringSubmatch(content); m != nil {
		lines := strings.Split(strings.TrimSpace(m[1]), "\n")
		kept := lines[:0]
		for _, line := range lines {
			if strings.HasPrefix(strings.TrimSpace(line), "- ") {
				continue
			}
			kept = append(kept, line)
		}
		return strings.TrimSpace(strings.Join(kept, "\n"))
	}
	return ""
}

// Section renders the Additional Information block with content between the
// markers. Extract(Section(s)) == s for any already-trimmed s.
func Section(content string) string {
	var b strings.Builder
	b.WriteString("\n")
	b.WriteString(Heading)
	b.WriteString("\n\n")
	b.WriteString(StartMarker)
	b.WriteString("\n")
	b.WriteString(content)
	b.WriteString("\n")
	b.WriteString(EndMarker)
	b.WriteString("\n")
	return b.String()
}
