package config

import (
	"fmt"
	"sort"
	"time"
)

// Config represents a chorus.yaml configuration file.
// All values are optional and act as defaults for chorus chat flags.
// CLI flags always override config values.
type Config struct {
	// Actors lists the producers to register at session start.
	Actors []string `yaml:"actors"`
	// AckTimeout bounds the wait for a stream start acknowledgement.
	AckTimeout Duration `yaml:"ack_timeout"`

	Transport TransportConfig `yaml:"transport"`
	Store     StoreConfig     `yaml:"store"`
	Adapter   AdapterConfig   `yaml:"adapter"`
}

// TransportConfig selects and configures the duplex transport.
type TransportConfig struct {
	// Kind is "websocket" or "pipe". Defaults to "websocket".
	Kind string `yaml:"kind"`
	// URL is the websocket endpoint; unused for pipe.
	URL string `yaml:"url"`
}

// StoreConfig holds transcript retention defaults from the config file.
type StoreConfig struct {
	SweepInterval Duration `yaml:"sweep_interval"`
	Retention     Duration `yaml:"retention"`
}

// AdapterConfig holds adapter defaults from the config file.
type AdapterConfig struct {
	Type    string            `yaml:"type"`
	URL     string            `yaml:"url"`
	Channel string            `yaml:"channel,omitempty"`
	Headers map[string]string `yaml:"headers,omitempty"`
	Timeout Duration          `yaml:"timeout,omitempty"`
	Retries *int              `yaml:"retries,omitempty"`
}

// Duration wraps time.Duration for YAML string parsing (e.g. "10s", "5m").
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses a duration string like "10s" or "5m30s".
func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	if s == "" {
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}

// ActorSet returns the configured actors deduplicated and sorted.
// Sorting by name ensures deterministic registration order.
func (c *Config) ActorSet() []string {
	if len(c.Actors) == 0 {
		return nil
	}

	seen := make(map[string]struct{}, len(c.Actors))
	out := make([]string, 0, len(c.Actors))
	for _, actor := range c.Actors {
		if actor == "" {
			continue
		}
		if _, dup := seen[actor]; dup {
			continue
		}
		seen[actor] = struct{}{}
		out = append(out, actor)
	}
	sort.Strings(out)
	if len(out) == 0 {
		return nil
	}
	return out
}

// Validate checks cross-field constraints the YAML schema cannot express.
func (c *Config) Validate() error {
	switch c.Transport.Kind {
	case "", "websocket", "pipe":
	default:
		return fmt.Errorf("unknown transport kind %q", c.Transport.Kind)
	}
	if c.Transport.Kind == "websocket" || c.Transport.Kind == "" {
		if c.Transport.URL == "" && c.Transport.Kind == "websocket" {
			return fmt.Errorf("transport.url is required for websocket")
		}
	}
	switch c.Adapter.Type {
	case "", "webhook", "redis":
	default:
		return fmt.Errorf("unknown adapter type %q", c.Adapter.Type)
	}
	if c.Adapter.Type != "" && c.Adapter.URL == "" {
		return fmt.Errorf("adapter.url is required when adapter.type is set")
	}
	return nil
}
