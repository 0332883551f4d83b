package relay

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/bizmon/eventrelay/internal/channel"
	"gopkg.in/yaml.v3"
)

// FileConfig is the optional YAML relay configuration.
type FileConfig struct {
	// Channels lists wire or symbolic channel names to subscribe to. Empty
	// means every registered channel.
	Channels       []string `yaml:"channels,omitempty"`
	AllowedOrigins []string `yaml:"allowed_origins,omitempty"`
}

// LoadConfig reads and validates a relay YAML config file. A missing file
// yields an empty config.
func LoadConfig(path string) (*FileConfig, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return &FileConfig{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("relay config: %w", err)
	}
	var cfg FileConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("relay config: %w", err)
	}
	if _, err := cfg.ResolveChannels(); err != nil {
		return nil, err
	}
	for i, o := range cfg.AllowedOrigins {
		if o == "" {
			return nil, fmt.Errorf("relay config: allowed_origins[%d] is empty", i)
		}
	}
	return &cfg, nil
}

// ResolveChannels maps the configured names onto the registry.
func (c *FileConfig) ResolveChannels() ([]channel.Channel, error) {
	if len(c.Channels) == 0 {
		return channel.All(), nil
	}
	seen := make(map[channel.Channel]bool, len(c.Channels))
	out := make([]channel.Channel, 0, len(c.Channels))
	for i, name := range c.Channels {
		ch, ok := channel.Lookup(name)
		if !ok {
			return nil, fmt.Errorf("relay config: channels[%d] (%s) is not a known channel", i, name)
		}
		if seen[ch] {
			continue
		}
		seen[ch] = true
		out = append(out, ch)
	}
	return out, nil
}
