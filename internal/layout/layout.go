// Package layout maps (roll identifier, artifact kind) pairs to canonical
// paths under the artifact root. Every component resolves paths through
// this package so the on-disk conventions are defined exactly once, and
// completion checks reduce to file existence.
package layout

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Kind identifies one artifact produced or consumed by the pipeline.
type Kind string

const (
	KindManifest       Kind = "manifest"
	KindImage          Kind = "image"
	KindAnalysisText   Kind = "analysis_text"
	KindAnalysisLog    Kind = "analysis_log"
	KindRawMIDI        Kind = "raw_midi"
	KindNoteMIDI       Kind = "note_midi"
	KindExpressionMIDI Kind = "expression_midi"
	KindRawHex         Kind = "raw_hex"
	KindNoteHex        Kind = "note_hex"
)

var allKinds = []Kind{
	KindManifest,
	KindImage,
	KindAnalysisText,
	KindAnalysisLog,
	KindRawMIDI,
	KindNoteMIDI,
	KindExpressionMIDI,
	KindRawHex,
	KindNoteHex,
}

// Kinds returns the ordered list of known artifact kinds.
func Kinds() []Kind {
	cp := make([]Kind, len(allKinds))
	copy(cp, allKinds)
	return cp
}

// Layout resolves artifact paths beneath a fixed root directory.
type Layout struct {
	root string
}

// New creates a Layout rooted at the given directory.
func New(root string) Layout {
	return Layout{root: filepath.Clean(root)}
}

// Root returns the artifact root directory.
func (l Layout) Root() string {
	return l.root
}

// Path returns the canonical path for a roll's artifact of the given kind.
// The mapping is pure: no I/O, same inputs always yield the same path.
func (l Layout) Path(druid string, kind Kind) string {
	switch kind {
	case KindManifest:
		return filepath.Join(l.root, "manifests", druid+".json")
	case KindImage:
		return filepath.Join(l.root, "images", druid+".tiff")
	case KindAnalysisText:
		return filepath.Join(l.root, "txt", druid+".txt")
	case KindAnalysisLog:
		return filepath.Join(l.root, "logs", druid+".err")
	case KindRawMIDI:
		return filepath.Join(l.root, "midi", "raw", druid+"_raw.mid")
	case KindNoteMIDI:
		return filepath.Join(l.root, "midi", "note", druid+"_note.mid")
	case KindExpressionMIDI:
		return filepath.Join(l.root, "midi", "exp", druid+"_exp.mid")
	case KindRawHex:
		return filepath.Join(l.root, "hex", "raw", druid+"_raw.txt")
	case KindNoteHex:
		return filepath.Join(l.root, "hex", "note", druid+"_note.txt")
	default:
		return filepath.Join(l.root, "unknown", druid+"_"+string(kind))
	}
}

// Complete reports whether a roll's artifact exists and is non-empty.
// The filesystem is the durable completion record: there is no separate
// processed-state cache to drift out of sync.
func (l Layout) Complete(druid string, kind Kind) bool {
	info, err := os.Stat(l.Path(druid, kind))
	if err != nil {
		return false
	}
	return info.Mode().IsRegular() && info.Size() > 0
}

// EnsureDirs creates every artifact subdirectory under the root.
func (l Layout) EnsureDirs() error {
	for _, kind := range allKinds {
		dir := filepath.Dir(l.Path("_", kind))
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create artifact directory %q: %w", dir, err)
		}
	}
	return nil
}

// WriteAtomic streams from r to a temporary file next to path and renames it
// into place, so a crash mid-write never leaves a partial file at the final
// path. Readers observe either the prior complete artifact or the new one.
func WriteAtomic(path string, r io.Reader) (int64, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, fmt.Errorf("create directory %q: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp*")
	if err != nil {
		return 0, fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	written, err := io.Copy(tmp, r)
	if err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return 0, fmt.Errorf("write %q: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return 0, fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return 0, fmt.Errorf("replace %q: %w", path, err)
	}
	return written, nil
}

// WriteFileAtomic writes data to path with the same temp-then-rename
// guarantee as WriteAtomic.
func WriteFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory %q: %w", dir, err)
	}
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("replace %q: %w", path, err)
	}
	return nil
}
