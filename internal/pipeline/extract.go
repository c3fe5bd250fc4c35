package pipeline

import (
	"fmt"
	"strings"
)

// Section markers emitted by the hole-analysis tool. Each introduces an
// ASCII-hex MIDI payload that runs until the next @-prefixed line.
const (
	holeSectionMarker = "@HOLE_MIDIFILE:"
	noteSectionMarker = "@MIDIFILE:"
)

// extractHexSection pulls one hex MIDI section out of an analysis report.
// The marker must open a line; the payload is everything up to the next
// @-prefixed line. The hex tool requires a trailing blank line on its input,
// so the returned section always ends with one.
func extractHexSection(report, marker string) (string, error) {
	var start int
	switch {
	case strings.HasPrefix(report, marker+"\n"):
		start = len(marker) + 1
	default:
		idx := strings.Index(report, "\n"+marker+"\n")
		if idx < 0 {
			return "", fmt.Errorf("analysis report has no %s section", marker)
		}
		start = idx + len(marker) + 2
	}

	section := report[start:]
	if end := strings.Index(section, "\n@"); end >= 0 {
		section = section[:end+1]
	}
	if strings.TrimSpace(section) == "" {
		return "", fmt.Errorf("%s section is empty", marker)
	}
	if !strings.HasSuffix(section, "\n\n") {
		section = strings.TrimRight(section, "\n") + "\n\n"
	}
	return section, nil
}
