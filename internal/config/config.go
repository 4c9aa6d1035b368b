// Package config loads manuscript2book settings from defaults, an optional
// YAML file and M2B_-prefixed environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Config holds manuscript2book configuration.
type Config struct {
	Gemini       GeminiCfg       `mapstructure:"gemini" yaml:"gemini"`
	Planner      PlannerCfg      `mapstructure:"planner" yaml:"planner"`
	Illustration IllustrationCfg `mapstructure:"illustration" yaml:"illustration"`
	Cover        CoverCfg        `mapstructure:"cover" yaml:"cover"`
	Book         BookCfg         `mapstructure:"book" yaml:"book"`
	Server       ServerCfg       `mapstructure:"server" yaml:"server"`
	Log          LogCfg          `mapstructure:"log" yaml:"log"`
}

// GeminiCfg configures the generative capability.
type GeminiCfg struct {
	APIKey            string `mapstructure:"api_key" yaml:"api_key"` // supports ${ENV_VAR}
	TextModel         string `mapstructure:"text_model" yaml:"text_model" validate:"required"`
	ImageModel        string `mapstructure:"image_model" yaml:"image_model" validate:"required"`
	RequestsPerMinute int    `mapstructure:"requests_per_minute" yaml:"requests_per_minute" validate:"min=1"`
}

type PlannerCfg struct {
	MaxSourceChars int `mapstructure:"max_source_chars" yaml:"max_source_chars" validate:"min=1000"`
}

type IllustrationCfg struct {
	MaxChars int `mapstructure:"max_chars" yaml:"max_chars" validate:"min=100"`
}

type CoverCfg struct {
	AspectRatio string `mapstructure:"aspect_ratio" yaml:"aspect_ratio" validate:"oneof=1:1 3:4 4:3 9:16 16:9"`
}

// BookCfg controls the estimated page numbers shown in the table of contents.
type BookCfg struct {
	FirstPage       int `mapstructure:"first_page" yaml:"first_page" validate:"min=1"`
	PagesPerChapter int `mapstructure:"pages_per_chapter" yaml:"pages_per_chapter" validate:"min=1"`
}

type ServerCfg struct {
	Addr        string   `mapstructure:"addr" yaml:"addr" validate:"required"`
	CORSOrigins []string `mapstructure:"cors_origins" yaml:"cors_origins"`
	MaxUploadMB int      `mapstructure:"max_upload_mb" yaml:"max_upload_mb" validate:"min=1"`
}

type LogCfg struct {
	Level  string `mapstructure:"level" yaml:"level" validate:"oneof=debug info warn warning error"`
	Format string `mapstructure:"format" yaml:"format" validate:"oneof=text json"`
}

// DefaultConfig returns configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Gemini: GeminiCfg{
			APIKey:            "${GEMINI_API_KEY}",
			TextModel:         "gemini-2.5-flash",
			ImageModel:        "imagen-4.0-generate-001",
			RequestsPerMinute: 30,
		},
		Planner:      PlannerCfg{MaxSourceChars: 1_000_000},
		Illustration: IllustrationCfg{MaxChars: 1000},
		Cover:        CoverCfg{AspectRatio: "3:4"},
		Book:         BookCfg{FirstPage: 3, PagesPerChapter: 12},
		Server: ServerCfg{
			Addr:        ":8080",
			CORSOrigins: []string{"*"},
			MaxUploadMB: 50,
		},
		Log: LogCfg{Level: "info", Format: "text"},
	}
}

// Load reads configuration. An empty cfgFile searches ./manuscript2book.yaml
// and $HOME/.config/manuscript2book/config.yaml; a missing file is not an error.
func Load(cfgFile string) (*Config, error) {
	v := viper.New()
	setDefaults(v, DefaultConfig())

	v.SetEnvPrefix("M2B")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("manuscript2book")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(home + "/.config/manuscript2book")
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.Gemini.APIKey = ResolveEnvVars(cfg.Gemini.APIKey)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("gemini.api_key", d.Gemini.APIKey)
	v.SetDefault("gemini.text_model", d.Gemini.TextModel)
	v.SetDefault("gemini.image_model", d.Gemini.ImageModel)
	v.SetDefault("gemini.requests_per_minute", d.Gemini.RequestsPerMinute)
	v.SetDefault("planner.max_source_chars", d.Planner.MaxSourceChars)
	v.SetDefault("illustration.max_chars", d.Illustration.MaxChars)
	v.SetDefault("cover.aspect_ratio", d.Cover.AspectRatio)
	v.SetDefault("book.first_page", d.Book.FirstPage)
	v.SetDefault("book.pages_per_chapter", d.Book.PagesPerChapter)
	v.SetDefault("server.addr", d.Server.Addr)
	v.SetDefault("server.cors_origins", d.Server.CORSOrigins)
	v.SetDefault("server.max_upload_mb", d.Server.MaxUploadMB)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("mapstructure"), ",")
		if name == "" {
			return fld.Name
		}
		return name
	})
	return v
}

// Validate checks field constraints and reports every offending key.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}
	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		key := strings.ToLower(strings.TrimPrefix(fe.Namespace(), "Config."))
		msgs = append(msgs, fmt.Sprintf("%s: failed %q (got %v)", key, fe.Tag(), fe.Value()))
	}
	return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
}

var envRef = regexp.MustCompile(`\$\{([^}]+)\}`)

// ResolveEnvVars expands ${ENV_VAR} references in a string.
func ResolveEnvVars(value string) string {
	if value == "" {
		return value
	}
	return envRef.ReplaceAllStringFunc(value, func(match string) string {
		return os.Getenv(match[2 : len(match)-1])
	})
}
