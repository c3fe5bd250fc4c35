package config

const (
	defaultRootDir                = "~/.local/share/rollscan"
	defaultLogDir                 = "~/.local/share/rollscan/logs"
	defaultHolesTool              = "tiff2holes"
	defaultHexTool                = "binasc"
	defaultExpressionTool         = "midi2exp"
	defaultToolTimeoutSeconds     = 1800
	defaultPurlBase               = "https://purl.stanford.edu"
	defaultDownloadAttempts       = 3
	defaultDownloadBackoffSeconds = 2
	defaultDownloadTimeoutSeconds = 300
	defaultWorkers                = 2
	defaultLogFormat              = "console"
	defaultLogLevel               = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			RootDir: defaultRootDir,
			LogDir:  defaultLogDir,
		},
		Tools: Tools{
			Holes:          defaultHolesTool,
			Hex:            defaultHexTool,
			Expression:     defaultExpressionTool,
			TimeoutSeconds: defaultToolTimeoutSeconds,
		},
		Download: Download{
			PurlBase:       defaultPurlBase,
			Attempts:       defaultDownloadAttempts,
			BackoffSeconds: defaultDownloadBackoffSeconds,
			TimeoutSeconds: defaultDownloadTimeoutSeconds,
		},
		Process: Process{
			Workers: defaultWorkers,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
