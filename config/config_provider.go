package config

import (
	"errors"
	"fmt"

	"github.com/modelbridge/modelbridge/pkg/catalog"
	"github.com/modelbridge/modelbridge/pkg/limiter"
	"github.com/modelbridge/modelbridge/pkg/otel"
	"github.com/modelbridge/modelbridge/pkg/provider"
	"github.com/modelbridge/modelbridge/pkg/provider/anthropic"
	"github.com/modelbridge/modelbridge/pkg/provider/google"
	"github.com/modelbridge/modelbridge/pkg/provider/openai"
)

type providerConfig struct {
	Type string `yaml:"type"`

	URL   string `yaml:"url"`
	Token string `yaml:"token"`

	Limit *int `yaml:"limit"`

	Models map[string]modelConfig `yaml:"models"`
}

type modelConfig struct {
	Tools  bool `yaml:"tools"`
	Vision bool `yaml:"vision"`

	MaxTokens int `yaml:"maxTokens"`
}

func (cfg *Config) registerProviders(file *configFile) error {
	for _, p := range file.Providers {
		id, err := catalog.ParseProviderID(p.Type)

		if err != nil {
			return err
		}

		if len(p.Models) == 0 {
			return fmt.Errorf("provider %s: no models configured", p.Type)
		}

		for model, m := range p.Models {
			completer, err := createCompleter(id, p, model)

			if err != nil {
				return err
			}

			if limit := createLimiter(p.Limit); limit != nil {
				completer = limiter.NewCompleter(limit, completer)
			}

			if otel.EnableTelemetry {
				completer = otel.NewCompleter(p.Type, model, completer)
			}

			profile := catalog.Profile{
				ID:       model,
				Provider: id,

				SupportsTools:  m.Tools,
				SupportsVision: m.Vision,

				MaxOutputTokens: m.MaxTokens,
			}

			if err := cfg.RegisterCompleter(profile, completer); err != nil {
				return err
			}
		}
	}

	return nil
}

func createCompleter(id catalog.ProviderID, p providerConfig, model string) (provider.Completer, error) {
	switch id {
	case catalog.ProviderAnthropic:
		return anthropic.NewCompleter(p.URL, model, anthropic.WithToken(p.Token))

	case catalog.ProviderOpenAI:
		return openai.NewCompleter(p.URL, model, openai.WithToken(p.Token))

	case catalog.ProviderGoogle:
		return google.NewCompleter(model, google.WithToken(p.Token))

	default:
		return nil, errors.New("unsupported provider type " + string(id))
	}
}
