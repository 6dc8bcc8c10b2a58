// Package config loads the memstore's tunables from YAML, in the same
// struct-plus-yaml-tag shape the teacher repo's wider configuration
// loader uses elsewhere in the pack (github.com/.../AndrewTheMaster.../pkg/config),
// adopted here because the teacher itself ships no config loader of its own.
package config

import (
	"fmt"
	"os"

	"github.com/goccy/go-yaml"
)

// MemStoreConfig holds every configuration option spec.md §6 names.
type MemStoreConfig struct {
	// UseArena enables the per-memstore slab allocator. Default true.
	UseArena bool `yaml:"use_arena"`
	// ArenaChunkBytes is the fixed slab size each Arena chunk allocates.
	ArenaChunkBytes uint32 `yaml:"arena_chunk_bytes"`
	// ArenaPoolMaxChunks is the ArenaPool's high-water mark.
	ArenaPoolMaxChunks int `yaml:"arena_pool_max_chunks"`
	// ReseekLinearLimit bounds MemStoreScanner.Reseek's linear-advance budget
	// before it falls back to a logarithmic Seek.
	ReseekLinearLimit int `yaml:"memstore_reseek_linear_limit"`
}

// FamilyDescriptor carries the one per-column-family knob the spec names
// outside of MemStoreConfig: the row-prefix bloom length.
type FamilyDescriptor struct {
	// RowPrefixBloomLength is the number of leading row bytes the
	// OrderedCellSet's Bloom filter indexes; -1 disables it.
	RowPrefixBloomLength int `yaml:"row_prefix_bloom_length"`
}

// Default returns the baseline configuration used when no file is supplied.
func Default() MemStoreConfig {
	return MemStoreConfig{
		UseArena:           true,
		ArenaChunkBytes:    2 << 20, // 2 MiB
		ArenaPoolMaxChunks: 64,
		ReseekLinearLimit:  64,
	}
}

// DefaultFamilyDescriptor returns a descriptor with the bloom filter disabled.
func DefaultFamilyDescriptor() FamilyDescriptor {
	return FamilyDescriptor{RowPrefixBloomLength: -1}
}

// Load reads a MemStoreConfig from a YAML file at path, starting from
// Default() so a partial file only overrides what it specifies.
func Load(path string) (MemStoreConfig, error) {
	cfg := Default()
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read memstore config: %w", err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse memstore config: %w", err)
	}
	return cfg, nil
}
