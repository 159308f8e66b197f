package knowledge

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// SeedPattern is one entry of a YAML seed file.
type SeedPattern struct {
	ID      string   `yaml:"id"`
	Label   string   `yaml:"label"`
	Content string   `yaml:"content"`
	Tags    []string `yaml:"tags"`
}

type seedFile struct {
	Patterns []SeedPattern `yaml:"patterns"`
}

// LoadSeedFile parses a YAML seed file of starter patterns.
func LoadSeedFile(path string) ([]SeedPattern, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file %s: %w", path, err)
	}
	return ParseSeed(data)
}

// ParseSeed parses seed YAML and validates each entry.
func ParseSeed(data []byte) ([]SeedPattern, error) {
	var f seedFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("invalid seed YAML: %w", err)
	}
	for i, p := range f.Patterns {
		if p.ID == "" {
			return nil, fmt.Errorf("seed pattern %d: missing id", i)
		}
		if p.Content == "" {
			return nil, fmt.Errorf("seed pattern %q: missing content", p.ID)
		}
	}
	return f.Patterns, nil
}

// SeedIfEmpty loads the seed file into the index, but only when the index
// has no patterns yet. Operator-ingested patterns are never clobbered by a
// restart.
func (idx *Index) SeedIfEmpty(ctx context.Context, seedPath string) (int, error) {
	if seedPath == "" {
		return 0, nil
	}

	count, err := idx.Count(ctx)
	if err != nil {
		return 0, err
	}
	if count > 0 {
		idx.logger.Debug("index already has %d patterns, skipping seed", count)
		return 0, nil
	}

	seeds, err := LoadSeedFile(seedPath)
	if err != nil {
		return 0, err
	}
	for _, seed := range seeds {
		if _, err := idx.Ingest(ctx, seed.ID, seed.Label, seed.Content, seed.Tags); err != nil {
			return 0, fmt.Errorf("failed to seed pattern %s: %w", seed.ID, err)
		}
	}

	idx.logger.Info("seeded %d patterns from %s", len(seeds), seedPath)
	return len(seeds), nil
}
