package config

import (
	"fmt"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeTools()
	c.normalizeDownload()
	c.normalizeProcess()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.RootDir) == "" {
		c.Paths.RootDir = defaultRootDir
	}
	if c.Paths.RootDir, err = expandPath(c.Paths.RootDir); err != nil {
		return fmt.Errorf("paths.root_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeTools() {
	c.Tools.Holes = strings.TrimSpace(c.Tools.Holes)
	if c.Tools.Holes == "" {
		c.Tools.Holes = defaultHolesTool
	}
	c.Tools.Hex = strings.TrimSpace(c.Tools.Hex)
	if c.Tools.Hex == "" {
		c.Tools.Hex = defaultHexTool
	}
	c.Tools.Expression = strings.TrimSpace(c.Tools.Expression)
	if c.Tools.Expression == "" {
		c.Tools.Expression = defaultExpressionTool
	}
	if c.Tools.TimeoutSeconds <= 0 {
		c.Tools.TimeoutSeconds = defaultToolTimeoutSeconds
	}
}

func (c *Config) normalizeDownload() {
	c.Download.PurlBase = strings.TrimRight(strings.TrimSpace(c.Download.PurlBase), "/")
	if c.Download.PurlBase == "" {
		c.Download.PurlBase = defaultPurlBase
	}
	if c.Download.Attempts <= 0 {
		c.Download.Attempts = defaultDownloadAttempts
	}
	if c.Download.BackoffSeconds <= 0 {
		c.Download.BackoffSeconds = defaultDownloadBackoffSeconds
	}
	if c.Download.TimeoutSeconds <= 0 {
		c.Download.TimeoutSeconds = defaultDownloadTimeoutSeconds
	}
}

func (c *Config) normalizeProcess() {
	if c.Process.Workers <= 0 {
		c.Process.Workers = defaultWorkers
	}
	c.Process.SkipDruids = normalizeDruidList(c.Process.SkipDruids)
	c.Process.IgnoreRewindHoleDruids = normalizeDruidList(c.Process.IgnoreRewindHoleDruids)
	if len(c.Process.AlignmentShifts) > 0 {
		shifts := make(map[string]int, len(c.Process.AlignmentShifts))
		for druid, shift := range c.Process.AlignmentShifts {
			druid = strings.ToLower(strings.TrimSpace(druid))
			if druid == "" {
				continue
			}
			shifts[druid] = shift
		}
		c.Process.AlignmentShifts = shifts
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}

func normalizeDruidList(values []string) []string {
	out := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	for _, value := range values {
		normalized := strings.ToLower(strings.TrimSpace(value))
		if normalized == "" {
			continue
		}
		if _, exists := seen[normalized]; exists {
			continue
		}
		seen[normalized] = struct{}{}
		out = append(out, normalized)
	}
	return out
}
