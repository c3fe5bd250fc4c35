package layout_test

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"rollscan/internal/layout"
)

func TestPathIsDeterministicAndScopedByDruid(t *testing.T) {
	l := layout.New("/data/rolls")
	for _, kind := range layout.Kinds() {
		a := l.Path("hk155fw7898", kind)
		b := l.Path("hk155fw7898", kind)
		if a != b {
			t.Fatalf("path for %s not deterministic: %q vs %q", kind, a, b)
		}
		if !strings.Contains(a, "hk155fw7898") {
			t.Fatalf("path for %s not scoped by druid: %q", kind, a)
		}
		other := l.Path("yt837kd6607", kind)
		if a == other {
			t.Fatalf("paths for different druids collide for %s: %q", kind, a)
		}
	}
}

func TestPathConventions(t *testing.T) {
	l := layout.New("/data/rolls")
	cases := []struct {
		kind layout.Kind
		want string
	}{
		{layout.KindManifest, "/data/rolls/manifests/ab123cd4567.json"},
		{layout.KindImage, "/data/rolls/images/ab123cd4567.tiff"},
		{layout.KindAnalysisText, "/data/rolls/txt/ab123cd4567.txt"},
		{layout.KindAnalysisLog, "/data/rolls/logs/ab123cd4567.err"},
		{layout.KindRawMIDI, "/data/rolls/midi/raw/ab123cd4567_raw.mid"},
		{layout.KindNoteMIDI, "/data/rolls/midi/note/ab123cd4567_note.mid"},
		{layout.KindExpressionMIDI, "/data/rolls/midi/exp/ab123cd4567_exp.mid"},
		{layout.KindRawHex, "/data/rolls/hex/raw/ab123cd4567_raw.txt"},
		{layout.KindNoteHex, "/data/rolls/hex/note/ab123cd4567_note.txt"},
	}
	for _, tc := range cases {
		if got := l.Path("ab123cd4567", tc.kind); got != filepath.FromSlash(tc.want) {
			t.Fatalf("path for %s: got %q want %q", tc.kind, got, tc.want)
		}
	}
}

func TestCompleteRequiresNonEmptyFile(t *testing.T) {
	l := layout.New(t.TempDir())
	druid := "ab123cd4567"

	if l.Complete(druid, layout.KindAnalysisText) {
		t.Fatal("missing file should not be complete")
	}

	path := l.Path(druid, layout.KindAnalysisText)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if l.Complete(druid, layout.KindAnalysisText) {
		t.Fatal("empty file should not be complete")
	}

	if err := os.WriteFile(path, []byte("@HOLE_MIDIFILE:\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if !l.Complete(druid, layout.KindAnalysisText) {
		t.Fatal("non-empty file should be complete")
	}
}

func TestWriteAtomicReplacesWholeFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "images", "ab123cd4567.tiff")

	if _, err := layout.WriteAtomic(path, strings.NewReader("first")); err != nil {
		t.Fatalf("WriteAtomic: %v", err)
	}
	n, err := layout.WriteAtomic(path, strings.NewReader("second version"))
	if err != nil {
		t.Fatalf("WriteAtomic: %v", err)
	}
	if n != int64(len("second version")) {
		t.Fatalf("unexpected byte count %d", n)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(data) != "second version" {
		t.Fatalf("unexpected content %q", data)
	}
}

type failingReader struct{ n int }

func (r *failingReader) Read(p []byte) (int, error) {
	if r.n > 0 {
		r.n--
		p[0] = 'x'
		return 1, nil
	}
	return 0, errors.New("transfer interrupted")
}

func TestWriteAtomicFailureLeavesNoFinalFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "images", "ab123cd4567.tiff")

	if _, err := layout.WriteAtomic(path, io.Reader(&failingReader{n: 3})); err == nil {
		t.Fatal("expected write failure")
	}
	if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected no file at final path, stat err = %v", err)
	}
	entries, err := os.ReadDir(filepath.Join(dir, "images"))
	if err != nil {
		t.Fatalf("readdir: %v", err)
	}
	for _, entry := range entries {
		if !strings.Contains(entry.Name(), ".tmp") {
			t.Fatalf("unexpected file %q left behind", entry.Name())
		}
	}
}

func TestEnsureDirsCreatesAllSubdirectories(t *testing.T) {
	root := filepath.Join(t.TempDir(), "rolls")
	l := layout.New(root)
	if err := l.EnsureDirs(); err != nil {
		t.Fatalf("EnsureDirs: %v", err)
	}
	for _, kind := range layout.Kinds() {
		dir := filepath.Dir(l.Path("x", kind))
		info, err := os.Stat(dir)
		if err != nil || !info.IsDir() {
			t.Fatalf("expected directory for %s at %q (err=%v)", kind, dir, err)
		}
	}
}
