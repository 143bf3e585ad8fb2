package catalog

import (
	"errors"
	"fmt"
	"sort"
)

// ProviderID is the closed set of supported backend providers. Adding a
// member here must be mirrored in AllProviders and forces every switch over
// ProviderID (see pkg/dispatch) to be revisited.
type ProviderID string

const (
	ProviderAnthropic ProviderID = "anthropic"
	ProviderOpenAI    ProviderID = "openai"
	ProviderGoogle    ProviderID = "google"
)

var AllProviders = []ProviderID{
	ProviderAnthropic,
	ProviderOpenAI,
	ProviderGoogle,
}

func ParseProviderID(val string) (ProviderID, error) {
	for _, id := range AllProviders {
		if string(id) == val {
			return id, nil
		}
	}

	return "", fmt.Errorf("unknown provider %q", val)
}

// Profile describes what a model supports and its output limit.
type Profile struct {
	ID       string
	Provider ProviderID

	SupportsTools  bool
	SupportsVision bool

	MaxOutputTokens int
}

var (
	ErrModelNotFound = errors.New("model not found")
)

// Registry is a read-only model lookup. Implementations must be safe for
// concurrent reads; the core never mutates a registry at request time.
type Registry interface {
	Lookup(model string) (Profile, bool)
	List() []Profile
}

type staticRegistry struct {
	profiles map[string]Profile
}

// NewRegistry builds an immutable registry from the given profiles.
// Profiles missing an id or carrying an unknown provider are rejected so
// no unvalidated capability data enters the core.
func NewRegistry(profiles []Profile) (Registry, error) {
	m := make(map[string]Profile, len(profiles))

	for _, p := range profiles {
		if p.ID == "" {
			return nil, errors.New("profile without model id")
		}

		if _, err := ParseProviderID(string(p.Provider)); err != nil {
			return nil, fmt.Errorf("model %s: %w", p.ID, err)
		}

		if _, ok := m[p.ID]; ok {
			return nil, fmt.Errorf("duplicate model %s", p.ID)
		}

		m[p.ID] = p
	}

	return &staticRegistry{profiles: m}, nil
}

func (r *staticRegistry) Lookup(model string) (Profile, bool) {
	p, ok := r.profiles[model]
	return p, ok
}

func (r *staticRegistry) List() []Profile {
	result := make([]Profile, 0, len(r.profiles))

	for _, p := range r.profiles {
		result = append(result, p)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].ID < result[j].ID
	})

	return result
}
