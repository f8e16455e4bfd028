// Package atomicstore provides crash-safe JSON document persistence: every
// write goes to a temp file beside the target and is renamed into place, so a
// reader never observes a partially-written document. A missing or corrupt
// file is reported as "no document" rather than an error — callers create a
// fresh default instead of failing the turn.
package atomicstore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// ReadJSON reads and decodes the JSON document at path into v. It returns
// (false, nil) if the file does not exist or its contents cannot be parsed —
// both are treated as "no document yet", never as a fatal error.
func ReadJSON(path string, v interface{}) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("atomicstore: read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		// Corrupt file: treat as absent rather than propagating the error —
		// the caller will fall back to a fresh default and overwrite it on
		// the next write.
		return false, nil
	}
	return true, nil
}

// WriteJSON marshals v as pretty-printed JSON and writes it atomically to
// path: it writes to "<path>.tmp.<pid>" in the same directory, then renames
// over path. Ancestor directories are created as needed.
func WriteJSON(path string, v interface{}) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("atomicstore: mkdir %s: %w", dir, err)
	}

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("atomicstore: marshal %s: %w", path, err)
	}
	data = append(data, '\n')

	tmp := fmt.Sprintf("%s.tmp.%d", path, os.Getpid())
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("atomicstore: write temp %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("atomicstore: rename %s -> %s: %w", tmp, path, err)
	}
	return nil
}

// Exists reports whether path names an existing, readable file.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// Delete removes the document at path. A missing file is not an error —
// deletion is idempotent, matching the "absent == no document" contract
// ReadJSON already observes.
func Delete(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("atomicstore: remove %s: %w", path, err)
	}
	return nil
}

// WriteLines atomically writes a slice of pre-encoded JSON lines (one entry
// per line, no trailing document-level newline logic beyond one per line) —
// used by the session truncator, which owns a JSONL file rather than a single
// JSON document.
func WriteLines(path string, lines [][]byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("atomicstore: mkdir %s: %w", dir, err)
	}

	var buf []byte
	for _, line := range lines {
		buf = append(buf, line...)
		buf = append(buf, '\n')
	}

	tmp := fmt.Sprintf("%s.tmp.%d", path, os.Getpid())
	if err := os.WriteFile(tmp, buf, 0o644); err != nil {
		return fmt.Errorf("atomicstore: write temp %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("atomicstore: rename %s -> %s: %w", tmp, path, err)
	}
	return nil
}
