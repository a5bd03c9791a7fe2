package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateSync(); err != nil {
		return err
	}
	if err := c.validateConnectivity(); err != nil {
		return err
	}
	if err := c.validateLocale(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePaths() error {
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		return errors.New("paths.data_dir must be set")
	}
	if strings.TrimSpace(c.Paths.ArtifactDir) == "" {
		return errors.New("paths.artifact_dir must be set")
	}
	return nil
}

func (c *Config) validateSync() error {
	if endpoint := strings.TrimSpace(c.Sync.UploadEndpoint); endpoint != "" {
		parsed, err := url.Parse(endpoint)
		if err != nil || parsed.Scheme == "" || parsed.Host == "" {
			return fmt.Errorf("sync.upload_endpoint %q is not an absolute URL", endpoint)
		}
	}
	if c.Sync.MaxAutoRetries > 10 {
		return errors.New("sync.max_auto_retries must be 10 or fewer; unattended retry storms drain constrained uplinks")
	}
	return nil
}

func (c *Config) validateConnectivity() error {
	if probe := strings.TrimSpace(c.Connectivity.ProbeURL); probe != "" {
		parsed, err := url.Parse(probe)
		if err != nil || parsed.Scheme == "" || parsed.Host == "" {
			return fmt.Errorf("connectivity.probe_url %q is not an absolute URL", probe)
		}
	}
	return nil
}

func (c *Config) validateLocale() error {
	for _, tag := range c.Locale.Supported {
		if c.Locale.Default == tag {
			return nil
		}
	}
	return fmt.Errorf("locale.default %q is not in locale.supported", c.Locale.Default)
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json, got %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn, or error, got %q", c.Logging.Level)
	}
	return nil
}
