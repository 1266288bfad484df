package link

import (
	"sort"
	"strings"
	"sync"

	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/gqlerror"
)

// Registry is a catalogue of spec definitions keyed by identity.
// A registry is immutable once handed out by DefaultRegistry and safe for concurrent use.
type Registry struct {
	specs map[Identity][]*SpecDefinition
}

func NewRegistry(specs ...*SpecDefinition) *Registry {
	r := &Registry{specs: make(map[Identity][]*SpecDefinition)}
	for _, spec := range specs {
		r.Register(spec)
	}
	return r
}

var (
	defaultRegistryOnce sync.Once
	defaultRegistry     *Registry
)

// DefaultRegistry returns the process wide registry of every spec this module knows.
func DefaultRegistry() *Registry {
	defaultRegistryOnce.Do(func() {
		r := NewRegistry()
		r.Register(linkSpec(Version{Major: 0, Minor: 2}))
		r.Register(linkSpec(Version{Major: 1, Minor: 0}))
		r.Register(coreSpec(Version{Major: 0, Minor: 1}))
		r.Register(coreSpec(Version{Major: 0, Minor: 2}))
		for minor := uint32(0); minor <= 5; minor++ {
			r.Register(federationSpec(Version{Major: 2, Minor: minor}))
		}
		for minor := uint32(1); minor <= 3; minor++ {
			r.Register(joinSpec(Version{Major: 0, Minor: minor}))
			r.Register(tagSpec(Version{Major: 0, Minor: minor}))
		}
		for minor := uint32(1); minor <= 2; minor++ {
			r.Register(inaccessibleSpec(Version{Major: 0, Minor: minor}))
		}
		defaultRegistry = r
	})
	return defaultRegistry
}

// Register adds spec, replacing a previous definition of the same version.
func (r *Registry) Register(spec *SpecDefinition) {
	identity := spec.Identity()
	list := r.specs[identity]
	for i, existing := range list {
		if existing.Version() == spec.Version() {
			list[i] = spec
			return
		}
	}
	list = append(list, spec)
	sort.SliceStable(list, func(i, j int) bool {
		return list[i].Version().Compare(list[j].Version()) < 0
	})
	r.specs[identity] = list
}

// Known reports whether any version of identity is registered.
func (r *Registry) Known(identity Identity) bool {
	return len(r.specs[identity]) != 0
}

// Find returns the known versions of identity in ascending order.
func (r *Registry) Find(identity Identity) []Version {
	list := r.specs[identity]
	versions := make([]Version, 0, len(list))
	for _, spec := range list {
		versions = append(versions, spec.Version())
	}
	return versions
}

// Get returns the definition registered for exactly version.
func (r *Registry) Get(identity Identity, version Version) *SpecDefinition {
	for _, spec := range r.specs[identity] {
		if spec.Version() == version {
			return spec
		}
	}
	return nil
}

// LatestSatisfying returns the highest known version with the same major
// as requested and a minor at least requested's.
func (r *Registry) LatestSatisfying(identity Identity, requested Version) *SpecDefinition {
	list := r.specs[identity]
	for i := len(list) - 1; i >= 0; i-- {
		if requested.SatisfiedBy(list[i].Version()) {
			return list[i]
		}
	}
	return nil
}

// Latest returns the highest known version of identity.
func (r *Registry) Latest(identity Identity) *SpecDefinition {
	list := r.specs[identity]
	if len(list) == 0 {
		return nil
	}
	return list[len(list)-1]
}

// ElementName returns the directive or type name as declared by spec, without any alias.
func (r *Registry) ElementName(spec *SpecDefinition, canonical string) (string, bool) {
	return spec.ElementName(canonical)
}

// Lookup picks the definition serving identity at version: an exact match
// wins over a later compatible one. The error is an UNKNOWN_SPEC when no
// version of identity is registered and an UNSUPPORTED_VERSION when none of
// the registered ones serves version. pos locates the error.
func (r *Registry) Lookup(pos *ast.Position, identity Identity, version Version) (*SpecDefinition, *gqlerror.Error) {
	if !r.Known(identity) {
		return nil, newError(pos, CodeUnknownSpec, "Unknown spec %s: no version of it is known.", identity.String())
	}
	if spec := r.Get(identity, version); spec != nil {
		return spec, nil
	}
	if spec := r.LatestSatisfying(identity, version); spec != nil {
		return spec, nil
	}

	versions := r.Find(identity)
	names := make([]string, 0, len(versions))
	for _, v := range versions {
		names = append(names, v.String())
	}
	return nil, newError(
		pos, CodeUnsupportedVersion,
		"Invalid version %s for the %s spec. Supported versions: %s.",
		version.String(), identity.Name, strings.Join(names, ", "),
	)
}
