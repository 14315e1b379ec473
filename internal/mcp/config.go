package mcp

import (
	"github.com/spf13/viper"
)

// Config holds all configuration for the MCP adapter.
type Config struct {
	Proxy ProxyConfig `mapstructure:"proxy"`
}

// ProxyConfig holds settings for reaching the posternd HTTP API.
type ProxyConfig struct {
	URL    string `mapstructure:"url"`
	APIKey string `mapstructure:"apiKey"`
}

// LoadConfig reads the MCP adapter configuration from file, env vars, and defaults.
func LoadConfig(cfgFile string) (Config, error) {
	v := viper.New()

	v.SetDefault("proxy.url", "http://127.0.0.1:8787")

	v.SetConfigType("toml")

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("postern-mcp")
		v.AddConfigPath("/etc/postern")
		v.AddConfigPath("$HOME/.config/postern")
		v.AddConfigPath(".")
	}

	v.BindEnv("proxy.url", "POSTERN_URL")
	v.BindEnv("proxy.apiKey", "POSTERN_API_KEY")

	_ = v.ReadInConfig() // config file is optional

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}
