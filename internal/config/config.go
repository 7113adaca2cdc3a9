// Package config holds the model hyperparameters decoded from the weight
// file header and the runtime options read from an optional YAML file.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Model is the immutable hyperparameter set of one loaded checkpoint.
// VocabSize is already normalized to its absolute value; the sign flag
// lives in SharedClassifier.
type Model struct {
	Dim              int
	HiddenDim        int
	Layers           int
	Heads            int
	KVHeads          int
	VocabSize        int
	SeqLen           int
	SharedClassifier bool
}

func (c *Model) Validate() error {
	if c.Dim <= 0 {
		return fmt.Errorf("invalid dim: %d (must be positive)", c.Dim)
	}
	if c.HiddenDim <= 0 {
		return fmt.Errorf("invalid hidden_dim: %d (must be positive)", c.HiddenDim)
	}
	if c.Layers <= 0 {
		return fmt.Errorf("invalid layers: %d (must be positive)", c.Layers)
	}
	if c.Heads <= 0 {
		return fmt.Errorf("invalid heads: %d (must be positive)", c.Heads)
	}
	if c.KVHeads <= 0 {
		return fmt.Errorf("invalid kv_heads: %d (must be positive)", c.KVHeads)
	}
	if c.KVHeads > c.Heads {
		return fmt.Errorf("invalid kv_heads: %d (must be <= heads: %d)", c.KVHeads, c.Heads)
	}
	if c.Dim%c.Heads != 0 {
		return fmt.Errorf("dim %d not divisible by heads %d", c.Dim, c.Heads)
	}
	if c.VocabSize <= 0 {
		return fmt.Errorf("invalid vocab_size: %d (must be positive)", c.VocabSize)
	}
	if c.SeqLen <= 0 {
		return fmt.Errorf("invalid seq_len: %d (must be positive)", c.SeqLen)
	}
	return nil
}

// Options are the runtime knobs read from a YAML config file; zero values
// fall back to Default().
type Options struct {
	LogLevel   string `yaml:"log_level"`
	LogFormat  string `yaml:"log_format"`
	Device     string `yaml:"device"`
	ListenAddr string `yaml:"listen_addr"`
	FlightAddr string `yaml:"flight_addr"`
}

func Default() Options {
	return Options{
		LogLevel:   "info",
		LogFormat:  "console",
		Device:     "host",
		ListenAddr: "127.0.0.1:8080",
	}
}

// LoadOptions reads a YAML options file and overlays it on the defaults.
func LoadOptions(path string) (Options, error) {
	opts := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return opts, fmt.Errorf("read options file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &opts); err != nil {
		return opts, fmt.Errorf("parse options file %s: %w", path, err)
	}
	if opts.LogLevel == "" {
		opts.LogLevel = "info"
	}
	if opts.LogFormat == "" {
		opts.LogFormat = "console"
	}
	if opts.Device == "" {
		opts.Device = "host"
	}
	return opts, nil
}
