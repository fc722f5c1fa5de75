package prollytree

import (
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v2"

	"github.com/zhangfengcdt/prollytree/internal/chunker"
)

// Config configures a database instance. The zero value gives an
// in-memory store with default chunking.
type Config struct {
	// Path is the data directory. Empty means in-memory.
	Path string `yaml:"path"`
	// MinimumFreeGB is a free-space threshold for on-disk operation.
	MinimumFreeGB uint `yaml:"minimum_free_gb"`
	// Compression enables transparent compression of stored nodes.
	Compression bool `yaml:"compression"`
	// Author is recorded in commits made through this instance.
	Author string `yaml:"author"`
	// Chunker tunes the content-defined chunking. Zero fields keep their
	// defaults.
	Chunker ChunkerConfig `yaml:"chunker"`
	// Logger is an optional structured logger. If nil, a stderr logger is
	// used.
	Logger *slog.Logger `yaml:"-"`
}

// ChunkerConfig mirrors the chunker tuning knobs for configuration files.
// Every tree of a repository must use the same settings or equal content
// will stop producing equal root hashes.
type ChunkerConfig struct {
	Base         uint64 `yaml:"base"`
	Modulus      uint64 `yaml:"modulus"`
	Pattern      uint64 `yaml:"pattern"`
	MinChunkSize int    `yaml:"min_chunk_size"`
	MaxChunkSize int    `yaml:"max_chunk_size"`
}

// LoadConfig reads a YAML config file.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("prollytree: reading config: %w", err)
	}
	var cfg Config
	if err := yaml.UnmarshalStrict(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("prollytree: parsing config %s: %w", path, err)
	}
	return cfg, nil
}

func (c Config) chunkerConfig() chunker.Config {
	def := chunker.DefaultConfig()
	cc := c.Chunker
	if cc.Base != 0 {
		def.Base = cc.Base
	}
	if cc.Modulus != 0 {
		def.Modulus = cc.Modulus
	}
	if cc.Pattern != 0 {
		def.Pattern = cc.Pattern
	}
	if cc.MinChunkSize != 0 {
		def.MinChunkSize = cc.MinChunkSize
	}
	if cc.MaxChunkSize != 0 {
		def.MaxChunkSize = cc.MaxChunkSize
	}
	return def
}
