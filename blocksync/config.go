package blocksync

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// the file form of the client settings
//
// engine_url: ws://127.0.0.1:31007/engine
// jwt: ...
// transport:
//   handshake_timeout: 2s
//   reconnect_timeout: 5s
// dispatcher:
//   slow_middle_time: 3s
type ClientConfig struct {
	EngineUrl  string           `yaml:"engine_url"`
	Jwt        string           `yaml:"jwt"`
	AppVersion string           `yaml:"app_version"`
	Transport  TransportConfig  `yaml:"transport"`
	Dispatcher DispatcherConfig `yaml:"dispatcher"`
}

type TransportConfig struct {
	HandshakeTimeout time.Duration `yaml:"handshake_timeout"`
	ReconnectTimeout time.Duration `yaml:"reconnect_timeout"`
	PingTimeout      time.Duration `yaml:"ping_timeout"`
	WriteTimeout     time.Duration `yaml:"write_timeout"`
	ReadTimeout      time.Duration `yaml:"read_timeout"`
}

type DispatcherConfig struct {
	SlowMiddleTime time.Duration `yaml:"slow_middle_time"`
	SlowRenderTime time.Duration `yaml:"slow_render_time"`
	// commands the engine supports beyond the built in set
	ExtraCommands []string `yaml:"extra_commands"`
}

func LoadClientConfig(path string) (*ClientConfig, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseClientConfig(b)
}

func ParseClientConfig(b []byte) (*ClientConfig, error) {
	config := &ClientConfig{}
	if err := yaml.Unmarshal(b, config); err != nil {
		return nil, err
	}
	return config, nil
}

// zero values keep the defaults
func (self *ClientConfig) WsTransportSettings() *WsTransportSettings {
	settings := DefaultWsTransportSettings()
	if 0 < self.Transport.HandshakeTimeout {
		settings.HandshakeTimeout = self.Transport.HandshakeTimeout
	}
	if 0 < self.Transport.ReconnectTimeout {
		settings.ReconnectTimeout = self.Transport.ReconnectTimeout
	}
	if 0 < self.Transport.PingTimeout {
		settings.PingTimeout = self.Transport.PingTimeout
	}
	if 0 < self.Transport.WriteTimeout {
		settings.WriteTimeout = self.Transport.WriteTimeout
	}
	if 0 < self.Transport.ReadTimeout {
		settings.ReadTimeout = self.Transport.ReadTimeout
	}
	return settings
}

func (self *ClientConfig) DispatcherSettings() *DispatcherSettings {
	settings := DefaultDispatcherSettings()
	if 0 < self.Dispatcher.SlowMiddleTime {
		settings.SlowMiddleTime = self.Dispatcher.SlowMiddleTime
	}
	if 0 < self.Dispatcher.SlowRenderTime {
		settings.SlowRenderTime = self.Dispatcher.SlowRenderTime
	}
	settings.ExtraCommands = append(settings.ExtraCommands, self.Dispatcher.ExtraCommands...)
	return settings
}

func (self *ClientConfig) ClientAuth() *ClientAuth {
	return &ClientAuth{
		Jwt:        self.Jwt,
		AppVersion: self.AppVersion,
	}
}
