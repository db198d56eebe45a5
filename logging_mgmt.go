package main

import (
	"context"
	"encoding/json"
	"fmt"
	"github.com/shimmeringbee/httpkit/config"
	"github.com/shimmeringbee/logwrap"
	"github.com/shimmeringbee/logwrap/impl/filter"
	"github.com/shimmeringbee/logwrap/impl/golog"
	"github.com/shimmeringbee/logwrap/impl/tee"
	"gopkg.in/natefinch/lumberjack.v2"
	"io"
	"log"
	"os"
	"path/filepath"
)

func loadLoggingConfigurations(dir string) ([]config.LoggingConfig, error) {
	var cfgs []config.LoggingConfig

	err := readConfigurationFiles(dir, "logging", func(name string, data []byte) error {
		cfg := config.LoggingConfig{Name: name}

		if err := json.Unmarshal(data, &cfg); err != nil {
			return err
		}

		cfgs = append(cfgs, cfg)
		return nil
	})

	return cfgs, err
}

func configureLogging(cfgDir string, logDir string, l logwrap.Logger) (logwrap.Logger, error) {
	logCfgs, err := loadLoggingConfigurations(cfgDir)
	if err != nil {
		return l, err
	}

	var impls []logwrap.Impl

	for _, cfg := range logCfgs {
		var logWriter io.Writer
		var baseCfg config.BaseLogging

		switch lCfg := cfg.Config.(type) {
		case *config.StdoutLogging:
			logWriter = os.Stderr
			baseCfg = lCfg.BaseLogging
		case *config.FileLogging:
			baseCfg = lCfg.BaseLogging

			logWriter = &lumberjack.Logger{
				Filename:   filepath.Join(logDir, lCfg.Filename),
				MaxSize:    lCfg.Size,
				MaxBackups: lCfg.Count,
				MaxAge:     lCfg.MaxAge,
				Compress:   lCfg.Compress,
			}
		default:
			return l, fmt.Errorf("unknown logging type for '%s': %s", cfg.Name, cfg.Type)
		}

		impl, err := constructFilter(baseCfg, golog.Wrap(log.New(logWriter, "", log.LstdFlags)))
		if err != nil {
			return l, fmt.Errorf("failed to construct filter for logging '%s': %w", cfg.Name, err)
		}

		impls = append(impls, impl)

		l.LogInfo(context.Background(), "Constructed logging.", logwrap.Datum("name", cfg.Name), logwrap.Datum("type", cfg.Type))
	}

	if len(impls) == 0 {
		l.LogWarn(context.Background(), "No logging configurations loaded, continuing with stderr only.")
		return l, nil
	}

	l.LogDebug(context.Background(), "Handing over to new logging configuration.")

	return logwrap.New(tee.Tee(impls...)), nil
}

func parseLevel(level string) (logwrap.LogLevel, error) {
	switch level {
	case "panic":
		return logwrap.Panic, nil
	case "fatal":
		return logwrap.Fatal, nil
	case "error":
		return logwrap.Error, nil
	case "warn":
		return logwrap.Warn, nil
	case "", "info":
		return logwrap.Info, nil
	case "debug":
		return logwrap.Debug, nil
	case "trace":
		return logwrap.Trace, nil
	default:
		return logwrap.Info, fmt.Errorf("unknown log level '%s'", level)
	}
}

// constructFilter drops messages above the configured level, and those whose source is (or with
// NegateSubsystems, is not) in Subsystems.
func constructFilter(cfg config.BaseLogging, base logwrap.Impl) (logwrap.Impl, error) {
	level, err := parseLevel(cfg.Level)
	if err != nil {
		return base, err
	}

	return filter.Filter(base, func(message logwrap.Message) bool {
		if message.Level > level {
			return false
		}

		if len(cfg.Subsystems) == 0 {
			return true
		}

		return cfg.NegateSubsystems != containsString(cfg.Subsystems, message.Source)
	}), nil
}
