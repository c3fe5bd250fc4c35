package testsupport

import (
	"os"
	"path/filepath"
	"testing"
)

// WriteFile writes content to path, creating parent directories as needed.
func WriteFile(t testing.TB, path, content string) {
	t.Helper()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

// AnalysisReport builds a plausible hole-analysis report embedding the given
// hex payloads in its MIDI sections. The trailing blank line after each
// section matters: downstream hex conversion requires it.
func AnalysisReport(rawHex, noteHex string) string {
	return "@@BEGIN: ANALYSIS\n" +
		"@LENGTH:\t100 rows\n" +
		"@@END: ANALYSIS\n" +
		"\n" +
		"@HOLE_MIDIFILE:\n" +
		rawHex + "\n" +
		"\n" +
		"@MIDIFILE:\n" +
		noteHex + "\n" +
		"\n" +
		"@@END: FILE\n"
}
