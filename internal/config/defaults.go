package config

const (
	defaultDictionaryDir      = "~/.local/share/dictverify/dictionaries"
	defaultStateDir           = "~/.local/share/dictverify"
	defaultLogDir             = "~/.local/share/dictverify/logs"
	defaultLogFormat          = "console"
	defaultLogLevel           = "info"
	defaultSaveRetries        = 2
	defaultChunkSizeKiB       = 256
	defaultItemTimeoutSeconds = 0
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DictionaryDir: defaultDictionaryDir,
			StateDir:      defaultStateDir,
			LogDir:        defaultLogDir,
		},
		Verify: Verify{
			ItemTimeoutSeconds: defaultItemTimeoutSeconds,
			SaveRetries:        defaultSaveRetries,
			LowPriority:        true,
			ChunkSizeKiB:       defaultChunkSizeKiB,
		},
		History: History{
			Enabled: true,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
