package main

import (
	"github.com/urfave/cli/v3"

	"github.com/skarn-ml/skarn/internal/config"
	"github.com/skarn-ml/skarn/internal/device"
	"github.com/skarn-ml/skarn/internal/logger"
	"github.com/skarn-ml/skarn/internal/model"
)

var (
	modelPath  string
	tokenPath  string
	deviceName string
	configPath string
	logLevel   string
	logFormat  string
)

func commonModelFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "model",
			Aliases:     []string{"m"},
			Usage:       "path to llama2 checkpoint file",
			Destination: &modelPath,
			Required:    true,
		},
		&cli.StringFlag{
			Name:        "tokenizer",
			Aliases:     []string{"t"},
			Usage:       "path to tokenizer vocabulary file",
			Destination: &tokenPath,
			Required:    true,
		},
		&cli.StringFlag{
			Name:        "device",
			Usage:       "execution device (host or accelerator)",
			Destination: &deviceName,
		},
		&cli.StringFlag{
			Name:        "config",
			Aliases:     []string{"c"},
			Usage:       "path to YAML options file",
			Destination: &configPath,
		},
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "log level (debug, info, warn, error)",
			Destination: &logLevel,
		},
		&cli.StringFlag{
			Name:        "log-format",
			Usage:       "log format (console or json)",
			Destination: &logFormat,
		},
	}
}

// loadOptions merges the optional config file with command line overrides.
// Flags win over the file, the file wins over defaults.
func loadOptions() (config.Options, error) {
	opts := config.Default()
	if configPath != "" {
		loaded, err := config.LoadOptions(configPath)
		if err != nil {
			return opts, err
		}
		opts = loaded
	}
	if deviceName != "" {
		opts.Device = deviceName
	}
	if logLevel != "" {
		opts.LogLevel = logLevel
	}
	if logFormat != "" {
		opts.LogFormat = logFormat
	}
	return opts, nil
}

// initRuntime applies logging options and brings up a runtime on the
// configured device.
func initRuntime(opts config.Options) (*model.Runtime, error) {
	logger.Setup(opts.LogLevel, opts.LogFormat)

	kind, err := device.ParseKind(opts.Device)
	if err != nil {
		return nil, err
	}

	rt := model.New(tokenPath, modelPath)
	if err := rt.Init(kind); err != nil {
		return nil, err
	}
	return rt, nil
}
