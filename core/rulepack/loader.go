package rulepack

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// LoadPack parses a single YAML pack from raw bytes. The given name is used
// when the document does not carry its own.
func LoadPack(name string, data []byte) (*Pack, error) {
	var p Pack
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parsing rule pack %s: %w", name, err)
	}
	if p.Name == "" {
		p.Name = name
	}
	for i, r := range p.Rules {
		if err := r.Validate(); err != nil {
			return nil, fmt.Errorf("rule %d in pack %s: %w", i, name, err)
		}
	}
	return &p, nil
}

// LoadPackFromFile reads a YAML pack file. The pack name defaults to the
// file stem.
func LoadPackFromFile(path string) (*Pack, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading rule pack %s: %w", path, err)
	}
	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return LoadPack(stem, data)
}

// LoadPacksFromDir reads all .yaml and .yml files in the given directory into
// a name-keyed map. Files are processed in lexicographic order for
// determinism. A missing directory is not an error; it yields an empty map. A
// file that fails to parse or validate is logged and skipped so one bad pack
// cannot take down the rest.
func LoadPacksFromDir(dir string) (map[string]*Pack, error) {
	packs := make(map[string]*Pack)

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return packs, nil
		}
		return nil, fmt.Errorf("reading rule pack directory %s: %w", dir, err)
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext != ".yaml" && ext != ".yml" {
			continue
		}
		p, err := LoadPackFromFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			slog.Warn("skipping invalid rule pack file", "file", entry.Name(), "error", err)
			continue
		}
		packs[p.Name] = p
	}
	return packs, nil
}
