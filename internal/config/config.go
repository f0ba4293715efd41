// Package config reads runtime settings from EPUBINLINE_* environment
// variables. Command-line flags override them.
package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/caarlos0/env/v11"
)

const Prefix = "EPUBINLINE_"

type Config struct {
	Logger   Logger   `envPrefix:"LOGGER_"`
	Pipeline Pipeline `envPrefix:"PIPELINE_"`
}

type Logger struct {
	Level slog.Level `env:"LEVEL" envDefault:"info"`
}

type Pipeline struct {
	ImageBatchSize   int           `env:"IMAGE_BATCH" envDefault:"8"`
	ChapterBatchSize int           `env:"CHAPTER_BATCH" envDefault:"4"`
	MaxImageWidth    int           `env:"MAX_IMAGE_WIDTH" envDefault:"0"`
	MaxEntrySize     int64         `env:"MAX_ENTRY_SIZE" envDefault:"268435456"`
	ResolveUnlisted  bool          `env:"RESOLVE_UNLISTED" envDefault:"false"`
	Timeout          time.Duration `env:"TIMEOUT" envDefault:"0s"`
}

func Parse() (*Config, error) {
	conf, err := env.ParseAsWithOptions[Config](env.Options{
		Prefix: Prefix,
	})
	if err != nil {
		return nil, fmt.Errorf("parsing environment: %w", err)
	}

	return &conf, nil
}
