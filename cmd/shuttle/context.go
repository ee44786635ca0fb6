package main

import (
	"fmt"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"shuttle/internal/config"
	"shuttle/internal/control"
	"shuttle/internal/version"
)

type commandContext struct {
	addrFlag   *string
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(addrFlag, configFlag *string) *commandContext {
	return &commandContext{
		addrFlag:   addrFlag,
		configFlag: configFlag,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) daemonAddr() (string, error) {
	if c.addrFlag != nil && strings.TrimSpace(*c.addrFlag) != "" {
		return strings.TrimSpace(*c.addrFlag), nil
	}
	cfg, err := c.ensureConfig()
	if err != nil {
		return "", err
	}
	return cfg.API.Bind, nil
}

// withClient opens an authenticated session against the daemon and runs fn.
func (c *commandContext) withClient(cmd *cobra.Command, fn func(*control.Client) error) error {
	addr, err := c.daemonAddr()
	if err != nil {
		return err
	}
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}

	client := control.New(addr, cfg.API.Secret)
	if err := client.Connect(cmd.Context(), version.Name+"-cli"); err != nil {
		if err == control.ErrUnauthorized {
			return fmt.Errorf("daemon at %s rejected the configured secret", addr)
		}
		return fmt.Errorf("connect to daemon at %s: %w (is shuttled running?)", addr, err)
	}
	return fn(client)
}
