package config

import (
	"fmt"
	"net"
	"strings"
)

func (c *Config) normalize() error {
	var err error
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return err
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return err
	}
	if strings.TrimSpace(c.Collection.Dir) != "" {
		if c.Collection.Dir, err = expandPath(c.Collection.Dir); err != nil {
			return err
		}
	}

	c.API.Bind = strings.TrimSpace(c.API.Bind)
	c.API.Secret = strings.TrimSpace(c.API.Secret)
	c.Collection.Name = strings.TrimSpace(c.Collection.Name)
	c.Collection.SingleAssetName = strings.TrimSpace(c.Collection.SingleAssetName)
	c.Collection.Chain = strings.ToUpper(strings.TrimSpace(c.Collection.Chain))
	c.Uploader.Endpoint = strings.TrimSpace(c.Uploader.Endpoint)
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))

	if c.Collection.ManifestFile == "" {
		c.Collection.ManifestFile = DefaultManifestFile
	}
	if c.Collection.Chain == "" {
		c.Collection.Chain = DefaultChain
	}
	if c.Workers.Initial <= 0 {
		c.Workers.Initial = 1
	}
	return nil
}

// Validate checks configuration invariants that would otherwise surface as
// confusing runtime behavior.
func (c *Config) Validate() error {
	if c.Workers.Max <= 0 {
		return fmt.Errorf("workers.max must be positive, got %d", c.Workers.Max)
	}
	if c.Workers.Initial > c.Workers.Max {
		return fmt.Errorf("workers.initial %d exceeds workers.max %d", c.Workers.Initial, c.Workers.Max)
	}
	if c.Workers.SetupAttempts <= 0 {
		return fmt.Errorf("workers.setup_attempts must be positive, got %d", c.Workers.SetupAttempts)
	}
	if c.Distributor.QueueSoftCap <= 0 {
		return fmt.Errorf("distributor.queue_soft_cap must be positive, got %d", c.Distributor.QueueSoftCap)
	}
	if c.Broadcast.MaxInflight <= 0 {
		return fmt.Errorf("broadcast.max_inflight must be positive, got %d", c.Broadcast.MaxInflight)
	}
	if c.Token.TTLSeconds <= 0 {
		return fmt.Errorf("token.ttl_seconds must be positive, got %d", c.Token.TTLSeconds)
	}
	if c.API.Bind != "" {
		if _, _, err := net.SplitHostPort(c.API.Bind); err != nil {
			return fmt.Errorf("api.bind %q: %w", c.API.Bind, err)
		}
	}
	if !c.Uploader.Emulate && c.Uploader.Endpoint == "" {
		return fmt.Errorf("uploader.endpoint required when emulation is disabled")
	}
	switch c.Logging.Format {
	case "", "console", "json":
	default:
		return fmt.Errorf("logging.format %q: must be console or json", c.Logging.Format)
	}
	return nil
}
