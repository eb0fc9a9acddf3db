package registry

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"iter"
	"os"
	"sync"

	"github.com/ethereum-optimism/infra/op-testengine/types"
	"github.com/ethereum/go-ethereum/log"
	"gopkg.in/yaml.v3"
)

// Registry owns the discovered test graph and the optional manifest of run
// profiles.
type Registry struct {
	config   Config
	graph    *Graph
	manifest *types.Manifest
	mu       sync.RWMutex
}

// Config contains registry configuration
type Config struct {
	Log          log.Logger
	ManifestFile string
	// Source defaults to Discover().
	Source iter.Seq[Record]
}

// NewRegistry discovers tests and loads the manifest, if one is configured.
func NewRegistry(cfg Config) (*Registry, error) {
	if cfg.Log == nil {
		cfg.Log = log.New()
		cfg.Log.Error("No logger provided, using default")
	}
	if cfg.Source == nil {
		cfg.Source = Discover()
	}

	r := &Registry{
		config:   cfg,
		manifest: &types.Manifest{},
	}

	if cfg.ManifestFile != "" {
		if err := r.loadManifest(cfg.ManifestFile); err != nil {
			return nil, fmt.Errorf("failed to load manifest: %w", err)
		}
	}

	r.graph = NewGraph(cfg.Source, cfg.Log)
	cfg.Log.Debug("Registry loaded", "nodes", r.graph.Len(), "profiles", len(r.manifest.Profiles))

	return r, nil
}

func (r *Registry) loadManifest(path string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	manifest, err := LoadManifest(path)
	if err != nil {
		return err
	}
	if err := validateProfileInheritance(manifest); err != nil {
		return fmt.Errorf("failed to resolve profile inheritance: %w", err)
	}
	r.manifest = manifest
	return nil
}

// Graph returns the discovered test graph.
func (r *Registry) Graph() *Graph {
	return r.graph
}

// Manifest returns the loaded manifest, which is empty when none was configured.
func (r *Registry) Manifest() *types.Manifest {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.manifest
}

// Profile returns a profile with inheritance resolved.
func (r *Registry) Profile(id string) (types.Profile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.manifest.Profile(id)
	if !ok {
		return types.Profile{}, fmt.Errorf("profile %q not found in manifest", id)
	}
	return p, nil
}

// GetConfig returns the registry configuration
func (r *Registry) GetConfig() Config {
	return r.config
}

// LoadManifest reads a manifest YAML file.
func LoadManifest(path string) (*types.Manifest, error) {
	log.Debug("Reading manifest file", "path", path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading manifest file: %w", err)
	}
	return ParseManifest(data)
}

// ParseManifest decodes manifest YAML. Unknown fields are rejected.
func ParseManifest(data []byte) (*types.Manifest, error) {
	var m types.Manifest
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&m); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parsing manifest file: %w", err)
	}
	seen := make(map[string]bool)
	for _, p := range m.Profiles {
		if p.ID == "" {
			return nil, fmt.Errorf("manifest profile without id")
		}
		if seen[p.ID] {
			return nil, fmt.Errorf("duplicate manifest profile %q", p.ID)
		}
		seen[p.ID] = true
	}
	return &m, nil
}

// validateProfileInheritance resolves inheritance for every profile in place.
func validateProfileInheritance(m *types.Manifest) error {
	profileMap := make(map[string]types.Profile)
	for _, p := range m.Profiles {
		profileMap[p.ID] = p
	}

	for _, p := range m.Profiles {
		if err := checkCircularInheritance(p.ID, p.Inherits, profileMap, make(map[string]bool)); err != nil {
			return fmt.Errorf("circular inheritance detected: %w", err)
		}
	}

	for i := range m.Profiles {
		if err := m.Profiles[i].ResolveInherited(profileMap); err != nil {
			return fmt.Errorf("invalid profile inheritance: %w", err)
		}
	}
	return nil
}

func checkCircularInheritance(currentID string, inherits []string, profileMap map[string]types.Profile, visited map[string]bool) error {
	if visited[currentID] {
		return fmt.Errorf("circular inheritance detected at profile %s", currentID)
	}

	visited[currentID] = true
	defer delete(visited, currentID)

	for _, inheritedID := range inherits {
		inherited, exists := profileMap[inheritedID]
		if !exists {
			return fmt.Errorf("profile %s inherits from non-existent profile %s", currentID, inheritedID)
		}
		if err := checkCircularInheritance(inheritedID, inherited.Inherits, profileMap, visited); err != nil {
			return err
		}
	}
	return nil
}
