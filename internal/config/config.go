// Package config loads cogd configuration.
package config

import (
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/roach88/cogd/internal/logging"
)

// Config is the process configuration.
type Config struct {
	Store    StoreConfig    `koanf:"store"`
	Modules  ModulesConfig  `koanf:"modules"`
	Admin    AdminConfig    `koanf:"admin"`
	Gateway  GatewayConfig  `koanf:"gateway"`
	Dispatch DispatchConfig `koanf:"dispatch"`
	Logging  logging.Config `koanf:"logging"`
}

// StoreConfig configures the SQLite database.
type StoreConfig struct {
	Path        string   `koanf:"path"`
	BusyTimeout Duration `koanf:"busy_timeout"`
	// MaxOpenConns above one lets readers run beside the writer.
	MaxOpenConns int `koanf:"max_open_conns"`
}

// ModulesConfig configures discovery and hot reload.
type ModulesConfig struct {
	Root     string   `koanf:"root"`
	Watch    bool     `koanf:"watch"`
	Debounce Duration `koanf:"debounce"`
}

// AdminConfig configures the admin HTTP API.
type AdminConfig struct {
	Enabled         bool     `koanf:"enabled"`
	Host            string   `koanf:"host"`
	Port            int      `koanf:"port"`
	ShutdownTimeout Duration `koanf:"shutdown_timeout"`
}

// Addr returns host:port.
func (a AdminConfig) Addr() string {
	return net.JoinHostPort(a.Host, strconv.Itoa(a.Port))
}

// GatewayConfig configures the NATS bridge to the chat platform.
type GatewayConfig struct {
	Enabled bool   `koanf:"enabled"`
	NATSURL string `koanf:"nats_url"`
	// Subject carries inbound events; lifecycle notices go to
	// Subject + ".lifecycle".
	Subject string `koanf:"subject"`
	// ReplySubject prefixes outbound messages: ReplySubject.<channel_id>.
	ReplySubject string `koanf:"reply_subject"`
	Name         string `koanf:"name"`
}

// DispatchConfig tunes the event dispatcher.
type DispatchConfig struct {
	// QueueWarn logs a warning when this many events are waiting.
	QueueWarn int `koanf:"queue_warn"`
}

// Default returns the configuration used when nothing overrides it.
func Default() *Config {
	return &Config{
		Store: StoreConfig{
			Path:         "cogd.db",
			BusyTimeout:  Duration(5 * time.Second),
			MaxOpenConns: 1,
		},
		Modules: ModulesConfig{
			Root:     "modules",
			Watch:    false,
			Debounce: Duration(250 * time.Millisecond),
		},
		Admin: AdminConfig{
			Enabled:         true,
			Host:            "127.0.0.1",
			Port:            8089,
			ShutdownTimeout: Duration(10 * time.Second),
		},
		Gateway: GatewayConfig{
			Enabled:      false,
			NATSURL:      "nats://127.0.0.1:4222",
			Subject:      "cogd.events",
			ReplySubject: "cogd.replies",
			Name:         "cogd",
		},
		Dispatch: DispatchConfig{QueueWarn: 1000},
		Logging:  *logging.NewDefaultConfig(),
	}
}

// Validate checks the configuration is usable.
func (c *Config) Validate() error {
	if c.Store.Path == "" {
		return fmt.Errorf("store.path is required")
	}
	if c.Store.MaxOpenConns < 1 {
		return fmt.Errorf("store.max_open_conns must be at least 1, got %d", c.Store.MaxOpenConns)
	}
	if c.Modules.Root == "" {
		return fmt.Errorf("modules.root is required")
	}
	if c.Admin.Enabled && (c.Admin.Port < 0 || c.Admin.Port > 65535) {
		return fmt.Errorf("admin.port %d out of range", c.Admin.Port)
	}
	if c.Gateway.Enabled {
		if c.Gateway.NATSURL == "" {
			return fmt.Errorf("gateway.nats_url is required when the gateway is enabled")
		}
		if c.Gateway.Subject == "" || c.Gateway.ReplySubject == "" {
			return fmt.Errorf("gateway.subject and gateway.reply_subject are required when the gateway is enabled")
		}
	}
	if c.Dispatch.QueueWarn < 0 {
		return fmt.Errorf("dispatch.queue_warn cannot be negative")
	}
	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging: %w", err)
	}
	return nil
}
