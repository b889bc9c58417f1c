package profiler

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"github.com/lumina-bi/lumina-engine/pkg/models"
)

// DiskCache persists profiling results as plain JSON files, one per
// database name, under the per-user application directory. Entries never
// expire on their own; invalidation is explicit.
type DiskCache struct {
	dir string
}

// NewDiskCache creates a cache rooted at dir; an empty dir resolves to
// <user-config-dir>/lumina-engine/profiles.
func NewDiskCache(dir string) (*DiskCache, error) {
	if dir == "" {
		base, err := os.UserConfigDir()
		if err != nil {
			return nil, fmt.Errorf("resolve user config dir: %w", err)
		}
		dir = filepath.Join(base, "lumina-engine", "profiles")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	return &DiskCache{dir: dir}, nil
}

var unsafeFileChars = regexp.MustCompile(`[^a-zA-Z0-9._-]`)

func (c *DiskCache) pathFor(database string) string {
	name := unsafeFileChars.ReplaceAllString(database, "_")
	return filepath.Join(c.dir, name+".json")
}

// Save writes the profile map for a database, replacing any previous file.
// Non-JSON-native values (timestamps and the like) marshal as strings.
func (c *DiskCache) Save(database string, profiles map[string]*models.TableProfile) error {
	data, err := json.MarshalIndent(profiles, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal profiles: %w", err)
	}
	if err := os.WriteFile(c.pathFor(database), data, 0o644); err != nil {
		return fmt.Errorf("write profile cache: %w", err)
	}
	return nil
}

// Load reads the cached profile map for a database. A missing file returns
// an empty map, not an error.
func (c *DiskCache) Load(database string) (map[string]*models.TableProfile, error) {
	data, err := os.ReadFile(c.pathFor(database))
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]*models.TableProfile{}, nil
		}
		return nil, fmt.Errorf("read profile cache: %w", err)
	}
	profiles := make(map[string]*models.TableProfile)
	if err := json.Unmarshal(data, &profiles); err != nil {
		return nil, fmt.Errorf("parse profile cache: %w", err)
	}
	// Files written by an older rule set may carry tags the current enum no
	// longer knows; downgrade those to text instead of propagating them.
	for _, p := range profiles {
		for i := range p.Columns {
			if !models.IsValidSemanticType(p.Columns[i].SemanticType) {
				p.Columns[i].SemanticType = models.SemanticText
			}
		}
	}
	return profiles, nil
}

// Invalidate removes the cached file for a database, if present.
func (c *DiskCache) Invalidate(database string) error {
	err := os.Remove(c.pathFor(database))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove profile cache: %w", err)
	}
	return nil
}
