package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/toml/v2"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/ritzau/neural-portfolio/pkg/logging"
	"github.com/spf13/pflag"
)

const (
	// DefaultFile is read from the working directory when present
	DefaultFile = "neural-portfolio.toml"
	envPrefix   = "NEURAL_PORTFOLIO_"
)

// Config holds all configuration for the application
type Config struct {
	Data       string `koanf:"data" validate:"required"`
	Port       int    `koanf:"port" validate:"min=1,max=65535"`
	Watch      bool   `koanf:"watch"`
	FPS        int    `koanf:"fps" validate:"min=1,max=240"`
	Filter     string `koanf:"filter"`
	Verbosity  string `koanf:"verbosity"`
	VerboseCnt int    `koanf:"verbose"`
	Quiet      bool   `koanf:"quiet"`

	Log    LogConfig    `koanf:"log"`
	Layout LayoutConfig `koanf:"layout"`
	Camera CameraConfig `koanf:"camera"`
}

// LogConfig selects the log format
type LogConfig struct {
	JSON bool `koanf:"json"`
}

// LayoutConfig tunes the force layout
type LayoutConfig struct {
	Seed       uint64 `koanf:"seed"`
	Iterations int    `koanf:"iterations" validate:"min=1,max=100000"`
}

// CameraConfig describes the viewport used to turn pointer positions into rays
type CameraConfig struct {
	FOV    float64 `koanf:"fov" validate:"gt=0,lt=180"`
	Aspect float64 `koanf:"aspect" validate:"gt=0"`
}

// flagKeys maps flag names to nested config keys
var flagKeys = map[string]string{
	"json-logs":  "log.json",
	"seed":       "layout.seed",
	"iterations": "layout.iterations",
	"fov":        "camera.fov",
	"aspect":     "camera.aspect",
}

var validate = validator.New()

// Load loads configuration from defaults, config file, environment variables, and flags.
// Priority: Flags > Env > Config File > Defaults
func Load(f *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	// 1. Defaults
	defaults := map[string]interface{}{
		"data":      "portfolio.json",
		"port":      8080,
		"watch":     false,
		"fps":       60,
		"filter":    "",
		"verbosity": "",
		"verbose":   0,
		"quiet":     false,
		"log": map[string]interface{}{
			"json": false,
		},
		"layout": map[string]interface{}{
			"seed":       uint64(0),
			"iterations": 300,
		},
		"camera": map[string]interface{}{
			"fov":    75.0,
			"aspect": 16.0 / 9.0,
		},
	}
	if err := k.Load(makeMapProvider(defaults), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// 2. Config File (optional), --config or neural-portfolio.toml
	path, explicit := DefaultFile, false
	if f != nil {
		if fl := f.Lookup("config"); fl != nil && fl.Changed {
			path, explicit = fl.Value.String(), true
		}
	}
	if err := k.Load(file.Provider(path), toml.Parser()); err != nil {
		if explicit {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
		logging.Trace("no config file loaded", "path", path, "error", err)
	}

	// 3. Environment Variables
	// Prefix: NEURAL_PORTFOLIO_ (e.g., NEURAL_PORTFOLIO_LAYOUT_SEED=7)
	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(
			strings.TrimPrefix(s, envPrefix)), "_", ".")
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	// 4. Flags
	if f != nil {
		provider := posflag.ProviderWithFlag(f, ".", k, func(fl *pflag.Flag) (string, interface{}) {
			if fl.Name == "config" {
				return "", nil
			}
			key := fl.Name
			if mapped, ok := flagKeys[key]; ok {
				key = mapped
			}
			return key, posflag.FlagVal(f, fl)
		})
		if err := k.Load(provider, nil); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	// Unmarshal into struct
	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks field ranges
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("invalid config: %w", err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s failed %s=%s (got %v)", fe.Namespace(), fe.Tag(), fe.Param(), fe.Value()))
	}
	return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
}

// Level returns the log level. An explicit verbosity name wins over -v and -q.
func (c *Config) Level() slog.Level {
	if c.Verbosity != "" {
		if strings.EqualFold(c.Verbosity, "trace") {
			return logging.LevelTrace
		}
		var level slog.Level
		if err := level.UnmarshalText([]byte(c.Verbosity)); err == nil {
			return level
		}
		logging.Warn("unknown verbosity, using flags", "verbosity", c.Verbosity)
	}
	return logging.LevelFromVerbosity(c.VerboseCnt, c.Quiet)
}

// Helper to use map as a provider
type mapProvider struct {
	m map[string]interface{}
}

func makeMapProvider(m map[string]interface{}) *mapProvider {
	return &mapProvider{m: m}
}

func (p *mapProvider) Read() (map[string]interface{}, error) {
	return p.m, nil
}

func (p *mapProvider) ReadBytes() ([]byte, error) {
	return nil, fmt.Errorf("not implemented")
}
