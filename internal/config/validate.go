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
	if err := c.validateTools(); err != nil {
		return err
	}
	if err := c.validateDownload(); err != nil {
		return err
	}
	if err := c.validateProcess(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePaths() error {
	if strings.TrimSpace(c.Paths.RootDir) == "" {
		return errors.New("paths.root_dir must be set")
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		return errors.New("paths.log_dir must be set")
	}
	return nil
}

func (c *Config) validateTools() error {
	if strings.TrimSpace(c.Tools.Holes) == "" {
		return errors.New("tools.holes must be set")
	}
	if strings.TrimSpace(c.Tools.Hex) == "" {
		return errors.New("tools.hex must be set")
	}
	if strings.TrimSpace(c.Tools.Expression) == "" {
		return errors.New("tools.expression must be set")
	}
	if c.Tools.TimeoutSeconds <= 0 {
		return errors.New("tools.timeout_seconds must be positive")
	}
	return nil
}

func (c *Config) validateDownload() error {
	parsed, err := url.Parse(c.Download.PurlBase)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("download.purl_base must be an absolute URL, got %q", c.Download.PurlBase)
	}
	if err := ensurePositiveMap(map[string]int{
		"download.attempts":        c.Download.Attempts,
		"download.backoff_seconds": c.Download.BackoffSeconds,
		"download.timeout_seconds": c.Download.TimeoutSeconds,
	}); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateProcess() error {
	if c.Process.Workers <= 0 {
		return errors.New("process.workers must be positive")
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
