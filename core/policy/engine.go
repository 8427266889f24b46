package policy

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/guardrail-hq/guardrail/core/rulepack"
	"github.com/guardrail-hq/guardrail/core/violations"
)

// Engine resolves policies from the config directory and applies rule packs.
// Resolution order is repository policy, then organization policy, then the
// built-in default. Loaded policies and packs are cached; the fsnotify
// watcher invalidates the caches when files change on disk.
type Engine struct {
	configDir string
	scanner   *rulepack.Engine

	mu       sync.RWMutex
	policies map[string]Config
	packs    map[string]*rulepack.Pack
}

// NewEngine creates an Engine rooted at configDir. Rule packs under
// <configDir>/rule_packs are loaded eagerly; a missing directory is fine.
func NewEngine(configDir string) (*Engine, error) {
	packs, err := rulepack.LoadPacksFromDir(filepath.Join(configDir, "rule_packs"))
	if err != nil {
		return nil, err
	}
	return &Engine{
		configDir: configDir,
		scanner:   rulepack.NewEngine(),
		policies:  make(map[string]Config),
		packs:     packs,
	}, nil
}

// repoPolicyPath returns the on-disk location of a repository policy.
// Repository names contain a slash, so policies nest one directory deep.
func (e *Engine) repoPolicyPath(repository string) string {
	return filepath.Join(e.configDir, "policies", filepath.FromSlash(repository)+".yaml")
}

func (e *Engine) orgPolicyPath(org string) string {
	return filepath.Join(e.configDir, "policies", "organizations", org+".yaml")
}

// GetPolicy resolves the effective policy for a repository: the repository's
// own policy if stored, else its organization's, else the default. Load
// failures are logged and treated as not-found so a corrupt file cannot take
// scanning down.
func (e *Engine) GetPolicy(repository string) Config {
	if cfg, ok := e.lookup(repository); ok {
		return cfg
	}
	if cfg, err := e.loadFile(e.repoPolicyPath(repository)); err == nil {
		e.store(repository, cfg)
		return cfg
	} else if !os.IsNotExist(err) {
		slog.Warn("failed to load repository policy", "repository", repository, "error", err)
	}

	if org, _, found := strings.Cut(repository, "/"); found && org != "" {
		orgKey := "org:" + org
		if cfg, ok := e.lookup(orgKey); ok {
			return cfg
		}
		if cfg, err := e.loadFile(e.orgPolicyPath(org)); err == nil {
			e.store(orgKey, cfg)
			return cfg
		} else if !os.IsNotExist(err) {
			slog.Warn("failed to load organization policy", "organization", org, "error", err)
		}
	}

	return Default()
}

// GetStoredPolicy returns the repository's own stored policy without falling
// back to the organization or default tiers.
func (e *Engine) GetStoredPolicy(repository string) (Config, error) {
	if cfg, ok := e.lookup(repository); ok {
		return cfg, nil
	}
	cfg, err := e.loadFile(e.repoPolicyPath(repository))
	if err != nil {
		if os.IsNotExist(err) {
			return Config{}, ErrPolicyNotFound
		}
		return Config{}, err
	}
	e.store(repository, cfg)
	return cfg, nil
}

// GetStoredOrgPolicy returns the organization's stored policy without tier
// fallback.
func (e *Engine) GetStoredOrgPolicy(org string) (Config, error) {
	key := "org:" + org
	if cfg, ok := e.lookup(key); ok {
		return cfg, nil
	}
	cfg, err := e.loadFile(e.orgPolicyPath(org))
	if err != nil {
		if os.IsNotExist(err) {
			return Config{}, ErrPolicyNotFound
		}
		return Config{}, err
	}
	e.store(key, cfg)
	return cfg, nil
}

// SetPolicy persists a repository policy and updates the cache.
func (e *Engine) SetPolicy(repository string, cfg Config) error {
	if err := e.writeFile(e.repoPolicyPath(repository), cfg); err != nil {
		return err
	}
	e.store(repository, cfg)
	return nil
}

// SetOrgPolicy persists an organization-wide policy and updates the cache.
func (e *Engine) SetOrgPolicy(org string, cfg Config) error {
	if err := e.writeFile(e.orgPolicyPath(org), cfg); err != nil {
		return err
	}
	e.store("org:"+org, cfg)
	return nil
}

func (e *Engine) lookup(key string) (Config, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	cfg, ok := e.policies[key]
	return cfg, ok
}

func (e *Engine) store(key string, cfg Config) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.policies[key] = cfg
}

func (e *Engine) loadFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parsing policy %s: %w", path, err)
	}
	return cfg, nil
}

func (e *Engine) writeFile(path string, cfg Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encoding policy: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating policy directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing policy %s: %w", path, err)
	}
	return nil
}

// invalidate clears the policy and pack caches. Called by the watcher.
func (e *Engine) invalidate() {
	packs, err := rulepack.LoadPacksFromDir(filepath.Join(e.configDir, "rule_packs"))
	if err != nil {
		slog.Warn("failed to reload rule packs", "error", err)
		packs = nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.policies = make(map[string]Config)
	if packs != nil {
		e.packs = packs
	}
}

// ApplyRulePacks scans file content with each named pack and appends the
// results to the set. Application is idempotent on the (rule_id, line_number)
// key: candidates already represented in the set are skipped. Unknown pack
// names are logged and skipped.
func (e *Engine) ApplyRulePacks(names []string, filePath, content string, isCopilot bool, set *violations.Set) {
	for _, name := range names {
		e.mu.RLock()
		pack, ok := e.packs[name]
		e.mu.RUnlock()
		if !ok {
			slog.Warn("unknown rule pack referenced by policy", "pack", name)
			continue
		}

		for _, v := range e.scanner.Scan(pack, filePath, content) {
			if set.Contains(v.RuleID, v.LineNumber) {
				continue
			}
			v.IsCopilotGenerated = isCopilot
			set.Add(v)
		}
	}
}

// ListRulePacks returns metadata for every loaded pack, sorted by name.
func (e *Engine) ListRulePacks() []rulepack.Info {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]rulepack.Info, 0, len(e.packs))
	for _, p := range e.packs {
		out = append(out, p.Info())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// UploadRulePack validates, persists, and registers a pack from raw YAML.
func (e *Engine) UploadRulePack(name string, data []byte) (*rulepack.Pack, error) {
	pack, err := rulepack.LoadPack(name, data)
	if err != nil {
		return nil, err
	}

	dir := filepath.Join(e.configDir, "rule_packs")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating rule pack directory: %w", err)
	}
	path := filepath.Join(dir, pack.Name+".yaml")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return nil, fmt.Errorf("writing rule pack %s: %w", path, err)
	}

	e.mu.Lock()
	e.packs[pack.Name] = pack
	e.mu.Unlock()
	return pack, nil
}
