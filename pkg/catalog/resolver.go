package catalog

import (
	"fmt"
	"slices"
)

type WarningKind string

const (
	WarningOutputTokens WarningKind = "output-token-exceeded"
	WarningTools        WarningKind = "tools-unsupported"
	WarningImages       WarningKind = "image-unsupported"
	WarningThinking     WarningKind = "thinking-unsupported"
)

// Warning records a request/capability mismatch. Warnings are advisory:
// the request proceeds, possibly with clamped values.
type Warning struct {
	Kind  WarningKind
	Model string

	Requested int
	Limit     int
}

func (w Warning) String() string {
	if w.Kind == WarningOutputTokens {
		return fmt.Sprintf("%s: model %s allows %d output tokens, %d requested", w.Kind, w.Model, w.Limit, w.Requested)
	}

	return fmt.Sprintf("%s: model %s", w.Kind, w.Model)
}

// Check is the subset of a request the resolver validates against a profile.
type Check struct {
	MaxTokens int

	HasTools  bool
	HasImages bool
}

type Resolver struct {
	registry Registry
}

func NewResolver(registry Registry) *Resolver {
	return &Resolver{
		registry: registry,
	}
}

func (r *Resolver) Resolve(model string) (Profile, error) {
	profile, ok := r.registry.Lookup(model)

	if !ok {
		return Profile{}, fmt.Errorf("%w: %s", ErrModelNotFound, model)
	}

	return profile, nil
}

// ListCapable returns the models offered to the calling client: only those
// supporting both tools and image input, optionally filtered by provider.
func (r *Resolver) ListCapable(providers ...ProviderID) []Profile {
	var result []Profile

	for _, p := range r.registry.List() {
		if !p.SupportsTools || !p.SupportsVision {
			continue
		}

		if len(providers) > 0 && !slices.Contains(providers, p.Provider) {
			continue
		}

		result = append(result, p)
	}

	return result
}

// Validate compares a request against a profile and returns advisory
// warnings. Callers clamp max tokens via EffectiveMaxTokens.
func (r *Resolver) Validate(profile Profile, check Check) []Warning {
	var warnings []Warning

	if profile.MaxOutputTokens > 0 && check.MaxTokens > profile.MaxOutputTokens {
		warnings = append(warnings, Warning{
			Kind:  WarningOutputTokens,
			Model: profile.ID,

			Requested: check.MaxTokens,
			Limit:     profile.MaxOutputTokens,
		})
	}

	if check.HasTools && !profile.SupportsTools {
		warnings = append(warnings, Warning{
			Kind:  WarningTools,
			Model: profile.ID,
		})
	}

	if check.HasImages && !profile.SupportsVision {
		warnings = append(warnings, Warning{
			Kind:  WarningImages,
			Model: profile.ID,
		})
	}

	return warnings
}

// EffectiveMaxTokens clamps a requested output budget to the profile limit.
func EffectiveMaxTokens(profile Profile, requested int) int {
	if requested <= 0 || (profile.MaxOutputTokens > 0 && requested > profile.MaxOutputTokens) {
		return profile.MaxOutputTokens
	}

	return requested
}
