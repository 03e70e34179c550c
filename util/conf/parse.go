package conf

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/knadh/koanf/parsers/dotenv"
	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/lambda-feedback/procpool/util/cliflags"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// DefaultConfig is a flat map of default values, keyed by dotted path.
type DefaultConfig = map[string]any

type ParseOptions struct {
	// Cli is the cli.Context from urfave/cli
	Cli *cli.Context

	// CliMap is a map of cli flag names to config keys
	CliMap map[string]string

	// Defaults is a map of default values
	Defaults DefaultConfig

	// EnvPrefix is the prefix for env vars
	EnvPrefix string

	// FileName is the name of the configuration file to load. The
	// format is picked by extension: .json, .toml, .yaml/.yml or .env
	FileName string

	// Log is the logger to use
	Log *zap.Logger
}

// Parse loads the configuration from defaults, file, env and cli flags,
// each layer overriding the previous one.
func Parse[C any](opt ParseOptions) (C, error) {
	var log *zap.Logger
	if opt.Log != nil {
		log = opt.Log
	} else {
		log = zap.NewNop()
	}

	k := koanf.New(".")

	var config C

	if opt.Defaults != nil {
		if err := k.Load(confmap.Provider(opt.Defaults, "."), nil); err != nil {
			return config, fmt.Errorf("failed to load defaults: %w", err)
		}
	}

	if opt.FileName != "" {
		if err := loadFile(k, opt.FileName, opt.EnvPrefix); err != nil {
			log.Error("error parsing file",
				zap.Error(err),
				zap.String("file", opt.FileName),
			)
			return config, err
		}
	}

	transformPrefixedEnv := func(s string) string {
		return transformEnv(s, opt.EnvPrefix)
	}

	if err := k.Load(env.Provider(opt.EnvPrefix, ".", transformPrefixedEnv), nil); err != nil {
		log.Error("error parsing env vars", zap.Error(err))
		return config, err
	}

	if opt.Cli != nil {
		transformFlag := func(s string) string {
			if opt.CliMap != nil {
				if name, ok := opt.CliMap[s]; ok {
					return name
				}
			}

			// replace - with _
			return strings.ReplaceAll(strings.ToLower(s), "-", "_")
		}

		if err := k.Load(cliflags.Provider(opt.Cli, ".", transformFlag), nil); err != nil {
			log.Error("error parsing cli flags", zap.Error(err))
			return config, err
		}
	}

	if err := k.UnmarshalWithConf("", &config, koanf.UnmarshalConf{Tag: "conf"}); err != nil {
		log.Error("error unmarshalling config", zap.Error(err))
		return config, err
	}

	return config, nil
}

func loadFile(k *koanf.Koanf, name, prefix string) error {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".json":
		return k.Load(file.Provider(name), json.Parser())
	case ".toml":
		return loadDecoded(k, name, func(raw []byte, m *map[string]any) error {
			return toml.Unmarshal(raw, m)
		})
	case ".yaml", ".yml":
		return loadDecoded(k, name, func(raw []byte, m *map[string]any) error {
			return yaml.Unmarshal(raw, m)
		})
	case ".env":
		return loadDotenv(k, name, prefix)
	default:
		return fmt.Errorf("unsupported config file format: %s", name)
	}
}

func loadDecoded(k *koanf.Koanf, name string, decode func([]byte, *map[string]any) error) error {
	raw, err := os.ReadFile(name)
	if err != nil {
		return err
	}

	m := make(map[string]any)
	if err := decode(raw, &m); err != nil {
		return err
	}

	// nested maps, no unflattening needed
	return k.Load(confmap.Provider(m, ""), nil)
}

// loadDotenv reads KEY=value pairs. Keys use the same naming as env
// vars, with or without prefix.
func loadDotenv(k *koanf.Koanf, name, prefix string) error {
	raw, err := os.ReadFile(name)
	if err != nil {
		return err
	}

	values, err := dotenv.Parser().Unmarshal(raw)
	if err != nil {
		return err
	}

	m := make(map[string]any, len(values))
	for key, value := range values {
		m[transformEnv(key, prefix)] = value
	}

	return k.Load(confmap.Provider(m, "."), nil)
}

// transformEnv maps PREFIX_SOME__NESTED_KEY to some.nested_key.
func transformEnv(s, prefix string) string {
	if prefix != "" && strings.HasPrefix(s, prefix) {
		s = strings.TrimPrefix(s, prefix)
	}
	// allow specifying nested env vars w/ __
	return strings.ReplaceAll(strings.ToLower(s), "__", ".")
}
