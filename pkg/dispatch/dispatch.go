// Package dispatch maps request-level options onto provider-specific ask
// options. Every function here is pure and total over catalog.AllProviders.
package dispatch

import (
	"fmt"

	"github.com/modelbridge/modelbridge/pkg/catalog"
	"github.com/modelbridge/modelbridge/pkg/provider"
)

// DefaultThinkingBudget is used when a request enables thinking without an
// explicit token budget.
const DefaultThinkingBudget = 4096

// Thinking is the provider-specific representation of a "thinking requested"
// directive. At most one field is set.
type Thinking struct {
	Config *provider.ThinkingConfig
	Effort provider.ReasoningEffort
}

// ResolveThinking decides how a thinking directive is expressed for the
// given provider. The switch is exhaustive over the closed provider set;
// extending catalog.AllProviders without revisiting this function trips the
// panic (and the exhaustiveness test) immediately.
func ResolveThinking(id catalog.ProviderID, model string, requested bool, budget int) (Thinking, *catalog.Warning) {
	if !requested {
		return Thinking{}, nil
	}

	if budget <= 0 {
		budget = DefaultThinkingBudget
	}

	switch id {
	case catalog.ProviderAnthropic:
		return Thinking{
			Config: &provider.ThinkingConfig{
				BudgetTokens: budget,
			},
		}, nil

	case catalog.ProviderOpenAI:
		return Thinking{
			Effort: provider.ReasoningEffortMedium,
		}, nil

	case catalog.ProviderGoogle:
		return Thinking{}, &catalog.Warning{
			Kind:  catalog.WarningThinking,
			Model: model,
		}
	}

	panic(fmt.Sprintf("dispatch: unhandled provider %q", id))
}

// Apply sets the resolved thinking option on complete options.
func (t Thinking) Apply(options *provider.CompleteOptions) {
	if t.Config != nil {
		options.Thinking = t.Config
	}

	if t.Effort != "" {
		options.Effort = t.Effort
	}
}
