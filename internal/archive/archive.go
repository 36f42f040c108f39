// Package archive is the flat-file persistence collaborator: an audit
// store for goal outcomes and design artifacts, addressed by hierarchical
// slash-separated paths under a root directory. Callers treat every write
// as best-effort; a broken archive must never fail a workflow.
package archive

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/vmihailenco/msgpack/v5"
	"github.com/zeebo/blake3"
)

type Store struct {
	root string
}

func NewStore(root string) (*Store, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		return nil, fmt.Errorf("archive: root directory is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("archive: %w", err)
	}
	return &Store{root: root}, nil
}

func (s *Store) Root() string { return s.root }

// PutJSON writes v as indented JSON at the given hierarchical path and a
// blake3 fingerprint sidecar next to it.
func (s *Store) PutJSON(relPath string, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("archive: encode %s: %w", relPath, err)
	}
	return s.put(relPath, b)
}

// PutSnapshot writes v msgpack-encoded; the compact form used for run
// snapshots that only the tooling reads back.
func (s *Store) PutSnapshot(relPath string, v any) error {
	b, err := msgpack.Marshal(v)
	if err != nil {
		return fmt.Errorf("archive: encode %s: %w", relPath, err)
	}
	return s.put(relPath, b)
}

func (s *Store) put(relPath string, payload []byte) error {
	abs, err := s.resolve(relPath)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return fmt.Errorf("archive: %w", err)
	}
	if err := os.WriteFile(abs, payload, 0o644); err != nil {
		return fmt.Errorf("archive: write %s: %w", relPath, err)
	}
	sum := blake3.Sum256(payload)
	if err := os.WriteFile(abs+".b3", []byte(hex.EncodeToString(sum[:])+"\n"), 0o644); err != nil {
		return fmt.Errorf("archive: write fingerprint for %s: %w", relPath, err)
	}
	return nil
}

// ErrCorrupt marks payloads whose fingerprint sidecar no longer matches.
var ErrCorrupt = errors.New("archive: fingerprint mismatch")

// GetJSON reads a JSON artifact back into v, verifying its fingerprint
// when the sidecar exists.
func (s *Store) GetJSON(relPath string, v any) error {
	b, err := s.get(relPath)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(b, v); err != nil {
		return fmt.Errorf("archive: decode %s: %w", relPath, err)
	}
	return nil
}

// GetSnapshot reads a msgpack artifact back into v.
func (s *Store) GetSnapshot(relPath string, v any) error {
	b, err := s.get(relPath)
	if err != nil {
		return err
	}
	if err := msgpack.Unmarshal(b, v); err != nil {
		return fmt.Errorf("archive: decode %s: %w", relPath, err)
	}
	return nil
}

func (s *Store) get(relPath string) ([]byte, error) {
	abs, err := s.resolve(relPath)
	if err != nil {
		return nil, err
	}
	b, err := os.ReadFile(abs)
	if err != nil {
		return nil, fmt.Errorf("archive: %w", err)
	}
	want, err := os.ReadFile(abs + ".b3")
	if errors.Is(err, os.ErrNotExist) {
		return b, nil
	}
	if err != nil {
		return nil, fmt.Errorf("archive: %w", err)
	}
	sum := blake3.Sum256(b)
	if strings.TrimSpace(string(want)) != hex.EncodeToString(sum[:]) {
		return nil, fmt.Errorf("%w: %s", ErrCorrupt, relPath)
	}
	return b, nil
}

// List returns the relative paths of stored artifacts matching a
// doublestar pattern (e.g. "goals/**/result.json"), sorted. Fingerprint
// sidecars are not listed.
func (s *Store) List(pattern string) ([]string, error) {
	if !doublestar.ValidatePattern(pattern) {
		return nil, fmt.Errorf("archive: invalid pattern %q", pattern)
	}
	var out []string
	err := filepath.WalkDir(s.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || strings.HasSuffix(p, ".b3") {
			return nil
		}
		rel, err := filepath.Rel(s.root, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		ok, err := doublestar.Match(pattern, rel)
		if err != nil {
			return err
		}
		if ok {
			out = append(out, rel)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("archive: %w", err)
	}
	sort.Strings(out)
	return out, nil
}

func (s *Store) resolve(relPath string) (string, error) {
	relPath = strings.TrimSpace(relPath)
	if relPath == "" {
		return "", fmt.Errorf("archive: path is required")
	}
	clean := filepath.Clean(filepath.FromSlash(relPath))
	if filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("archive: path %q escapes the store root", relPath)
	}
	return filepath.Join(s.root, clean), nil
}
