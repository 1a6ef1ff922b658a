package domain

// Config represents the application configuration
type Config struct {
	Host           string       `toml:"host" mapstructure:"host"`
	Port           int          `toml:"port" mapstructure:"port"`
	DatabaseURL    string       `toml:"databaseUrl" mapstructure:"databaseUrl"`
	DataDir        string       `toml:"dataDir" mapstructure:"dataDir"`
	APISecret      string       `toml:"apiSecret" mapstructure:"apiSecret"`
	APISecretHash  string       `toml:"apiSecretHash" mapstructure:"apiSecretHash"`
	Timezone       string       `toml:"timezone" mapstructure:"timezone"`
	DefaultDays    int          `toml:"defaultDays" mapstructure:"defaultDays"`
	LogLevel       string       `toml:"logLevel" mapstructure:"logLevel"`
	LogPath        string       `toml:"logPath" mapstructure:"logPath"`
	MetricsEnabled bool         `toml:"metricsEnabled" mapstructure:"metricsEnabled"`
	HTTPTimeouts   HTTPTimeouts `toml:"httpTimeouts" mapstructure:"httpTimeouts"`
}

// HTTPTimeouts represents HTTP server timeout configuration
type HTTPTimeouts struct {
	ReadTimeout  int `toml:"readTimeout" mapstructure:"readTimeout"`   // seconds
	WriteTimeout int `toml:"writeTimeout" mapstructure:"writeTimeout"` // seconds
	IdleTimeout  int `toml:"idleTimeout" mapstructure:"idleTimeout"`   // seconds
}

// HasSecret reports whether any admin credential is configured.
func (c *Config) HasSecret() bool {
	return c.APISecret != "" || c.APISecretHash != ""
}
