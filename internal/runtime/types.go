package runtime

// Config defines runtime configuration
type Config struct {
	MaxCallStackSize int    // Maximum script call depth, 0 keeps the goja default
	Prelude          string // Script evaluated once while loading
	EnableConsole    bool   // Forward console.log/warn/error/info to the logger
}

// DefaultConfig returns the configuration used by the worker
func DefaultConfig() Config {
	return Config{
		MaxCallStackSize: 1024,
		EnableConsole:    true,
	}
}
