package internal

// Option is a functional option for configuring the application.
type Option func(*application)

type application struct {
	config  *Config
	dryRun  bool
	force   bool
	version string
}

// WithConfig sets the application configuration.
func WithConfig(cfg *Config) Option {
	return func(a *application) {
		a.config = cfg
	}
}

// WithDryRun partitions the input without writing any output.
func WithDryRun(dryRun bool) Option {
	return func(a *application) {
		a.dryRun = dryRun
	}
}

// WithForce exports even when the input checksum is unchanged.
func WithForce(force bool) Option {
	return func(a *application) {
		a.force = force
	}
}

// WithVersion sets the version reported by the MCP server.
func WithVersion(v string) Option {
	return func(a *application) {
		a.version = v
	}
}
