package store

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/cortexplane/control-plane/internal/cortexerr"
)

// WriteJSON validates v marshals cleanly, then writes it via a temp file in
// the same directory followed by an atomic rename — the "safe write"
// pattern spec §4.9/§9 mandates in place of jq-and-mv shelling.
func WriteJSON(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return cortexerr.Transient("store: mkdir "+filepath.Dir(path), err)
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return cortexerr.InvalidInput("store: marshal "+path, err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return cortexerr.Transient("store: create temp for "+path, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return cortexerr.Transient("store: write temp for "+path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return cortexerr.Transient("store: close temp for "+path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return cortexerr.Transient("store: rename into "+path, err)
	}
	return nil
}

// ReadJSON loads and decodes path into v. A missing file is NotFound.
func ReadJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cortexerr.NotFound("store: "+path, err)
		}
		return cortexerr.Transient("store: read "+path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return cortexerr.FatalInvariant("store: corrupt json at "+path, err)
	}
	return nil
}

// AppendJSONL appends one newline-terminated JSON object to path. Each
// append is a single O_APPEND write, safe for multiple producers per spec §5.
func AppendJSONL(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return cortexerr.Transient("store: mkdir "+filepath.Dir(path), err)
	}
	data, err := json.Marshal(v)
	if err != nil {
		return cortexerr.InvalidInput("store: marshal "+path, err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return cortexerr.Transient("store: open "+path, err)
	}
	defer f.Close()
	if _, err := f.Write(append(data, '\n')); err != nil {
		return cortexerr.Transient("store: append "+path, err)
	}
	return nil
}

// ReadJSONL streams every line of path through fn. A missing file yields no
// lines and no error (an append-only log that has never been written to is
// indistinguishable from an empty one).
func ReadJSONL(path string, fn func(line []byte) error) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return cortexerr.Transient("store: open "+path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		cp := make([]byte, len(line))
		copy(cp, line)
		if err := fn(cp); err != nil {
			return fmt.Errorf("store: %s line %d: %w", path, lineNo, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return cortexerr.Transient("store: scan "+path, err)
	}
	return nil
}
