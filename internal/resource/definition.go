// Package resource implements the generic CRUD shell: YAML resource
// definitions bind a dashboard listing to the rebate service's generic
// endpoints, and the Provider resolves tables, forms, and mutations from the
// configuration those endpoints return.
package resource

import (
	"crypto/sha256"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync/atomic"

	"gopkg.in/yaml.v3"

	"github.com/softrade/brokerdesk/model"
)

// Definition binds one dashboard resource to the rebate service. Everything
// about the listing itself (columns, filters, form fields) comes from the
// service at request time; the definition only names the resource and what
// the UI may do with it.
type Definition struct {
	Key          string                   `yaml:"key"`
	Title        string                   `yaml:"title"`
	Backend      BackendBinding           `yaml:"backend"`
	Capabilities CapabilityBinding        `yaml:"capabilities"`
	Toggleable   bool                     `yaml:"toggleable"`
	Actions      []model.ActionDescriptor `yaml:"actions"`

	Checksum   string `yaml:"-"`
	SourceFile string `yaml:"-"`
}

// BackendBinding names the resource segment used in the generic rebate API
// paths (/api/{resource}, /api/{resource}/{id}).
type BackendBinding struct {
	Resource string `yaml:"resource"`
}

// CapabilityBinding maps operations to required capabilities. An empty
// capability leaves the operation open to any authenticated subject.
type CapabilityBinding struct {
	View   string `yaml:"view"`
	Edit   string `yaml:"edit"`
	Delete string `yaml:"delete"`
	Toggle string `yaml:"toggle"`
}

// Validate checks the structural invariants of one definition.
func (d Definition) Validate() error {
	var errs []string

	if d.Key == "" {
		errs = append(errs, "key is required")
	}
	if d.Title == "" {
		errs = append(errs, "title is required")
	}
	if d.Backend.Resource == "" {
		errs = append(errs, "backend.resource is required")
	}

	seen := make(map[string]bool, len(d.Actions))
	for _, a := range d.Actions {
		if a.ID == "" {
			errs = append(errs, "action id is required")
			continue
		}
		if seen[a.ID] {
			errs = append(errs, fmt.Sprintf("duplicate action id %q", a.ID))
		}
		seen[a.ID] = true
	}

	if len(errs) > 0 {
		return fmt.Errorf("resource %q: %s", d.Key, strings.Join(errs, "; "))
	}
	return nil
}

// Loader scans directories for YAML resource definitions and computes
// SHA-256 checksums.
type Loader struct{}

// NewLoader creates a definition Loader.
func NewLoader() *Loader {
	return &Loader{}
}

// LoadAll recursively scans directories for *.yaml and *.yml files and
// parses each into a Definition.
func (l *Loader) LoadAll(directories []string) ([]Definition, error) {
	var defs []Definition

	for _, dir := range directories {
		err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				return nil
			}
			ext := strings.ToLower(filepath.Ext(path))
			if ext != ".yaml" && ext != ".yml" {
				return nil
			}

			def, err := l.LoadFile(path)
			if err != nil {
				return fmt.Errorf("loading %s: %w", path, err)
			}
			defs = append(defs, def)
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("scanning directory %s: %w", dir, err)
		}
	}

	return defs, nil
}

// LoadFile loads and parses a single YAML definition file. It computes the
// SHA-256 checksum and records the source file path.
func (l *Loader) LoadFile(path string) (Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Definition{}, fmt.Errorf("reading %s: %w", path, err)
	}

	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return Definition{}, fmt.Errorf("parsing %s: %w", path, err)
	}
	if err := def.Validate(); err != nil {
		return Definition{}, err
	}

	def.Checksum = fmt.Sprintf("%x", sha256.Sum256(data))
	def.SourceFile = path

	return def, nil
}

// snapshot is an immutable set of definitions indexed by key.
type snapshot struct {
	byKey    map[string]Definition
	keys     []string
	checksum string
}

// Registry is a read-optimized, thread-safe store of resource definitions.
// It uses atomic pointer swap for lock-free concurrent reads.
type Registry struct {
	snap atomic.Pointer[snapshot]
}

// NewRegistry creates a Registry from the given definitions. Duplicate keys
// are an error.
func NewRegistry(defs []Definition) (*Registry, error) {
	r := &Registry{}
	if err := r.Replace(defs); err != nil {
		return nil, err
	}
	return r, nil
}

// Replace atomically swaps the registry contents with a new snapshot built
// from the given definitions.
func (r *Registry) Replace(defs []Definition) error {
	s := &snapshot{
		byKey: make(map[string]Definition, len(defs)),
	}

	var checksumParts []string
	for _, def := range defs {
		if _, dup := s.byKey[def.Key]; dup {
			return fmt.Errorf("duplicate resource key %q (from %s)", def.Key, def.SourceFile)
		}
		s.byKey[def.Key] = def
		s.keys = append(s.keys, def.Key)
		checksumParts = append(checksumParts, def.Checksum)
	}
	sort.Strings(s.keys)

	sort.Strings(checksumParts)
	combined := strings.Join(checksumParts, ":")
	s.checksum = fmt.Sprintf("%x", sha256.Sum256([]byte(combined)))

	r.snap.Store(s)
	return nil
}

func (r *Registry) current() *snapshot {
	return r.snap.Load()
}

// Get returns the definition with the given key.
func (r *Registry) Get(key string) (Definition, bool) {
	d, ok := r.current().byKey[key]
	return d, ok
}

// All returns all definitions ordered by key.
func (r *Registry) All() []Definition {
	s := r.current()
	defs := make([]Definition, 0, len(s.keys))
	for _, k := range s.keys {
		defs = append(defs, s.byKey[k])
	}
	return defs
}

// Len returns the number of loaded definitions.
func (r *Registry) Len() int {
	return len(r.current().keys)
}

// Checksum returns the combined checksum of all loaded definitions.
func (r *Registry) Checksum() string {
	return r.current().checksum
}
