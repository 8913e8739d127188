package main

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"
	"sync"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"clipstitch/internal/config"
	"clipstitch/internal/logging"
	"clipstitch/internal/pipeline"
	"clipstitch/internal/services"
)

const defaultEnvFile = ".env"

type commandContext struct {
	configFlag *string
	envFlag    *string
	tools      pipeline.Tools

	envOnce sync.Once
	envErr  error

	configOnce sync.Once
	config     *config.Config
	configPath string
	configErr  error
}

func newCommandContext(configFlag, envFlag *string) *commandContext {
	return &commandContext{
		configFlag: configFlag,
		envFlag:    envFlag,
	}
}

// loadEnv applies the env file without overriding variables already set. A
// missing default .env is ignored; a missing explicit --env-file is an error.
func (c *commandContext) loadEnv() error {
	c.envOnce.Do(func() {
		path := defaultEnvFile
		explicit := false
		if c.envFlag != nil && strings.TrimSpace(*c.envFlag) != "" {
			path = strings.TrimSpace(*c.envFlag)
			explicit = true
		}
		if err := godotenv.Load(path); err != nil {
			if !explicit && errors.Is(err, fs.ErrNotExist) {
				return
			}
			c.envErr = fmt.Errorf("load env file %s: %w", path, err)
		}
	})
	return c.envErr
}

func (c *commandContext) configFlagValue() string {
	if c.configFlag == nil {
		return ""
	}
	return strings.TrimSpace(*c.configFlag)
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		cfg, path, _, err := config.Load(c.configFlagValue())
		if err != nil {
			c.configErr = services.Wrap(services.ErrConfiguration, "config", "load", "", err)
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
		c.configPath = path
	})
	return c.config, c.configErr
}

// logger builds the interactive stderr logger for a command.
func (c *commandContext) logger(component string) (*slog.Logger, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	if component != "" {
		logger = logger.With(logging.String("component", component))
	}
	return logger, nil
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
