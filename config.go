package gather

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Config carries the endpoints and channel timing for one deployment.
// values come from defaults, then the yaml file, then the environment,
// later sources overriding earlier ones.
type Config struct {
	ApiUrl     string `yaml:"api_url" env:"GATHER_API_URL"`
	ConnectUrl string `yaml:"connect_url" env:"GATHER_CONNECT_URL"`

	ReconnectTimeout time.Duration `yaml:"reconnect_timeout" env:"GATHER_RECONNECT_TIMEOUT"`
	SubscribeTimeout time.Duration `yaml:"subscribe_timeout" env:"GATHER_SUBSCRIBE_TIMEOUT"`
}

func DefaultConfig() *Config {
	settings := DefaultChannelManagerSettings()
	return &Config{
		ApiUrl:           "https://api.gatherly.app",
		ConnectUrl:       "wss://connect.gatherly.app",
		ReconnectTimeout: settings.ReconnectTimeout,
		SubscribeTimeout: settings.SubscribeTimeout,
	}
}

func LoadConfig(path string) (*Config, error) {
	config := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := env.Parse(config); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	return config, nil
}

func (self *Config) ChannelManagerSettings() *ChannelManagerSettings {
	return &ChannelManagerSettings{
		ReconnectTimeout: self.ReconnectTimeout,
		SubscribeTimeout: self.SubscribeTimeout,
	}
}
