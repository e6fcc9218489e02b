// Author: momentics <momentics@gmail.com>

package logger

// Config selects encoder, level and sinks.
// With an empty LogDir output goes to stderr only.
type Config struct {
	LogDir   string
	BaseName string
	Format   string // "json" or "console"
	Level    Level

	Compress   bool
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int

	EnableStdout    bool
	EnableWarnFile  bool
	EnableErrorFile bool
}

// DefaultConfig logs info and above to stderr in console format.
func DefaultConfig() Config {
	return Config{
		BaseName:   "reactor-echo",
		Format:     "console",
		Level:      InfoLevel,
		MaxSizeMB:  100,
		MaxBackups: 5,
		MaxAgeDays: 7,
	}
}

// Clone returns a copy of the configuration.
func (c Config) Clone() Config {
	return c
}
