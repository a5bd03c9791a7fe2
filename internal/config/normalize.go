package config

import (
	"fmt"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeSync()
	c.normalizeConnectivity()
	c.normalizeLocale()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.ArtifactDir) == "" {
		c.Paths.ArtifactDir = defaultArtifactDir
	}
	if c.Paths.ArtifactDir, err = expandPath(c.Paths.ArtifactDir); err != nil {
		return fmt.Errorf("paths.artifact_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeSync() {
	if c.Sync.RequestTimeout <= 0 {
		c.Sync.RequestTimeout = defaultRequestTimeout
	}
	if c.Sync.Concurrency <= 0 {
		c.Sync.Concurrency = defaultSyncConcurrency
	}
	if c.Sync.StaggerMillis < 0 {
		c.Sync.StaggerMillis = defaultStaggerMillis
	}
	if c.Sync.MaxAutoRetries < 0 {
		c.Sync.MaxAutoRetries = defaultMaxAutoRetries
	}
	if c.Sync.PurgeAfterHrs <= 0 {
		c.Sync.PurgeAfterHrs = defaultPurgeAfterHours
	}
}

func (c *Config) normalizeConnectivity() {
	if c.Connectivity.ProbeInterval <= 0 {
		c.Connectivity.ProbeInterval = defaultProbeInterval
	}
	if c.Connectivity.ForegroundDrainAfter <= 0 {
		c.Connectivity.ForegroundDrainAfter = defaultForegroundDrainAfter
	}
}

func (c *Config) normalizeLocale() {
	c.Locale.Default = strings.ToLower(strings.TrimSpace(c.Locale.Default))
	if c.Locale.Default == "" {
		c.Locale.Default = defaultLocale
	}
	cleaned := make([]string, 0, len(c.Locale.Supported))
	seen := make(map[string]struct{}, len(c.Locale.Supported))
	for _, tag := range c.Locale.Supported {
		tag = strings.ToLower(strings.TrimSpace(tag))
		if tag == "" {
			continue
		}
		if _, ok := seen[tag]; ok {
			continue
		}
		seen[tag] = struct{}{}
		cleaned = append(cleaned, tag)
	}
	if len(cleaned) == 0 {
		cleaned = append([]string(nil), defaultSupportedLocales...)
	}
	c.Locale.Supported = cleaned
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
