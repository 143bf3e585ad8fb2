package config

import (
	"bytes"
	"fmt"
	"os"

	"github.com/modelbridge/modelbridge/pkg/catalog"
	"github.com/modelbridge/modelbridge/pkg/provider"

	"golang.org/x/time/rate"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Address string

	profiles []catalog.Profile
	registry catalog.Registry

	completer map[string]provider.Completer
}

// New returns an empty configuration. Completers are added with
// RegisterCompleter; Parse does this from a YAML file.
func New() *Config {
	registry, _ := catalog.NewRegistry(nil)

	return &Config{
		Address: ":8080",

		registry:  registry,
		completer: make(map[string]provider.Completer),
	}
}

func Parse(path string) (*Config, error) {
	file, err := parseFile(path)

	if err != nil {
		return nil, err
	}

	c := New()

	if file.Address != "" {
		c.Address = file.Address
	}

	if err := c.registerProviders(file); err != nil {
		return nil, err
	}

	return c, nil
}

// RegisterCompleter adds a model with its capability profile and the
// completer serving it.
func (cfg *Config) RegisterCompleter(profile catalog.Profile, completer provider.Completer) error {
	if _, ok := cfg.completer[profile.ID]; ok {
		return fmt.Errorf("duplicate model %s", profile.ID)
	}

	registry, err := catalog.NewRegistry(append(cfg.profiles, profile))

	if err != nil {
		return err
	}

	cfg.profiles = append(cfg.profiles, profile)
	cfg.registry = registry
	cfg.completer[profile.ID] = completer

	return nil
}

func (cfg *Config) Registry() catalog.Registry {
	return cfg.registry
}

func (cfg *Config) Completer(model string) (provider.Completer, error) {
	if c, ok := cfg.completer[model]; ok {
		return c, nil
	}

	return nil, fmt.Errorf("%w: %s", catalog.ErrModelNotFound, model)
}

type configFile struct {
	Address string `yaml:"address"`

	Providers []providerConfig `yaml:"providers"`
}

func parseFile(path string) (*configFile, error) {
	data, err := os.ReadFile(path)

	if err != nil {
		return nil, err
	}

	data = []byte(os.ExpandEnv(string(data)))

	var config configFile

	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)

	if err := decoder.Decode(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

func createLimiter(limit *int) *rate.Limiter {
	if limit == nil {
		return nil
	}

	return rate.NewLimiter(rate.Limit(*limit), *limit)
}
