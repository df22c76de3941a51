package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	yamlv3 "gopkg.in/yaml.v3"

	"github.com/leapstack-labs/rqg/pkg/core"
)

// ConfigFileName is the name of the policy file.
const ConfigFileName = "rqg.yml"

// ConfigFileNameAlt is the alternate name of the policy file.
const ConfigFileNameAlt = "rqg.yaml"

// EnvPrefix prefixes environment overrides. Nested keys are separated by "__",
// e.g. RQG_POLICY_GATING__SOFT_BLOCK__MAX_INFRA_FAILURES.
const EnvPrefix = "RQG_POLICY_"

// Load reads the policy at path, layered as defaults < file < environment.
//
// A missing file is not an error. A file that cannot be parsed, decoded or
// validated yields the default policy together with a config error, which
// callers should report as a warning.
func Load(path string) (*PolicyConfig, error) {
	cfg, err := load(path)
	if err != nil {
		return Default(), core.NewError(core.ErrConfig, "load policy", err)
	}
	return cfg, nil
}

// LoadFromDir loads rqg.yml or rqg.yaml from dir, falling back to defaults.
func LoadFromDir(dir string) (*PolicyConfig, error) {
	return Load(FindPolicyFile(dir))
}

func load(path string) (*PolicyConfig, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaultValues(), "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("error reading policy file %s: %w", path, err)
			}
		} else if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("error reading policy file %s: %w", path, err)
		}
	}

	// RQG_POLICY_HISTORY__LOOKBACK_DAYS -> history.lookback_days
	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		key := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
		return strings.ReplaceAll(key, "__", ".")
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	var cfg PolicyConfig
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{
		Tag: "koanf",
		DecoderConfig: &mapstructure.DecoderConfig{
			DecodeHook: mapstructure.ComposeDecodeHookFunc(
				mapstructure.StringToSliceHookFunc(","),
				mapstructure.StringToTimeDurationHookFunc(),
			),
			Result:           &cfg,
			TagName:          "koanf",
			WeaklyTypedInput: true,
		},
	}); err != nil {
		return nil, fmt.Errorf("unable to decode policy: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FindPolicyFile returns the policy file in dir, or "" when there is none.
func FindPolicyFile(dir string) string {
	for _, name := range []string{ConfigFileName, ConfigFileNameAlt} {
		candidate := filepath.Join(dir, name)
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	return ""
}

// Marshal renders a policy as YAML.
func Marshal(cfg *PolicyConfig) ([]byte, error) {
	var buf bytes.Buffer
	enc := yamlv3.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return nil, fmt.Errorf("failed to encode policy: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("failed to encode policy: %w", err)
	}
	return buf.Bytes(), nil
}

// WriteFile writes cfg to path as YAML.
func WriteFile(path string, cfg *PolicyConfig) error {
	data, err := Marshal(cfg)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
