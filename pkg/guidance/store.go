package guidance

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/asashepard/contexttune/pkg/atomicfile"
)

// Store persists Guidance versions under a per-repo "versions/" directory
// and tracks the final adopted guidance (spec §6.1 layout:
// guidance/<repo-slug>/versions/v<N>.json, .../best_guidance.json).
type Store struct {
	// Dir is the per-repo guidance directory, e.g.
	// <experiment-root>/guidance/<repo-slug>.
	Dir string
}

// NewStore returns a Store rooted at dir.
func NewStore(dir string) *Store {
	return &Store{Dir: dir}
}

// VersionsDir returns the directory holding one JSON file per version.
func (s *Store) VersionsDir() string {
	return filepath.Join(s.Dir, "versions")
}

// VersionPath returns the path of version v's JSON file.
func (s *Store) VersionPath(v int) string {
	return filepath.Join(s.VersionsDir(), fmt.Sprintf("v%d.json", v))
}

// BestPath returns the path of the final best_guidance.json artifact.
func (s *Store) BestPath() string {
	return filepath.Join(s.Dir, "best_guidance.json")
}

// Save writes g to its version path via atomic write-temp-rename. Earlier
// versions are never overwritten in the course of normal operation — each
// version is saved exactly once, under its own version number.
func (s *Store) Save(g Guidance) error {
	return atomicfile.WriteJSON(s.VersionPath(g.Version), g)
}

// SaveBest writes g to best_guidance.json, overwriting any previous best.
func (s *Store) SaveBest(g Guidance) error {
	return atomicfile.WriteJSON(s.BestPath(), g)
}

// Load reads the Guidance at version v.
func (s *Store) Load(v int) (Guidance, error) {
	return LoadFile(s.VersionPath(v))
}

// LoadBest reads best_guidance.json.
func (s *Store) LoadBest() (Guidance, error) {
	return LoadFile(s.BestPath())
}

// Exists reports whether version v has been saved.
func (s *Store) Exists(v int) bool {
	_, err := os.Stat(s.VersionPath(v))
	return err == nil
}

// LoadFile reads a Guidance from an arbitrary path.
func LoadFile(path string) (Guidance, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Guidance{}, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return Guidance{}, fmt.Errorf("read %s: %w", path, err)
	}
	var g Guidance
	if err := json.Unmarshal(data, &g); err != nil {
		return Guidance{}, fmt.Errorf("parse %s: %w", path, err)
	}
	return g, nil
}
