package transport

import (
	"crypto/tls"
	"fmt"
	"net"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/framelink-protocol/framelink-go/pkg/frame"
	"github.com/framelink-protocol/framelink-go/pkg/log"
)

// DefaultConnectTimeout bounds the connect phase when the caller's
// context carries no deadline and the config sets none.
const DefaultConnectTimeout = 30 * time.Second

// AuthFunc decides whether to accept a connection from the given
// remote address. Returning false drops the socket silently.
type AuthFunc func(remote net.Addr) bool

// Config configures both sides of the connection layer. The zero value
// is usable; Listen and Connect fill in defaults.
type Config struct {
	// MaxMessageSize is the maximum frame payload size in bytes.
	// Zero means the environment-sourced default (100 MiB fallback).
	// Negative values fail construction.
	MaxMessageSize int

	// ConnectTimeout bounds the connect phase (default: 30s).
	ConnectTimeout time.Duration

	// MaxConnections caps concurrently served connections (0 = unlimited).
	MaxConnections int

	// DropIncomingConnections makes the server close sockets accepted
	// while at the MaxConnections cap instead of waiting for a slot.
	DropIncomingConnections bool

	// Auth gates accepted connections by client address (nil = accept all).
	Auth AuthFunc

	// OnHandlerError receives failures from connection handlers,
	// including recovered panics. Nil means ignore.
	OnHandlerError func(remote net.Addr, err error)

	// Logger for protocol event logging (optional).
	Logger log.Logger

	// TLSConfig, when set, wraps every connection in TLS.
	TLSConfig *tls.Config
}

// DefaultConfig returns a Config with the message size limit sourced
// from the environment (FRAMELINK_MAX_MESSAGE_SIZE, 100 MiB fallback).
// Call once at startup and thread the result explicitly.
func DefaultConfig() Config {
	return Config{
		MaxMessageSize: frame.MaxMessageSizeFromEnv(),
		ConnectTimeout: DefaultConnectTimeout,
	}
}

// fileConfig is the YAML shape of a config file. Durations are strings
// parsed by time.ParseDuration.
type fileConfig struct {
	MaxMessageSize          *int   `yaml:"max_message_size"`
	ConnectTimeout          string `yaml:"connect_timeout"`
	MaxConnections          int    `yaml:"max_connections"`
	DropIncomingConnections bool   `yaml:"drop_incoming_connections"`
}

// LoadConfig reads a YAML config file and returns a Config on top of
// DefaultConfig. Values set in the file win over the environment
// default; omitted values keep the defaults.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return Config{}, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	cfg := DefaultConfig()
	if fc.MaxMessageSize != nil {
		cfg.MaxMessageSize = *fc.MaxMessageSize
	}
	if fc.ConnectTimeout != "" {
		d, err := time.ParseDuration(fc.ConnectTimeout)
		if err != nil {
			return Config{}, fmt.Errorf("invalid connect_timeout: %w", err)
		}
		cfg.ConnectTimeout = d
	}
	cfg.MaxConnections = fc.MaxConnections
	cfg.DropIncomingConnections = fc.DropIncomingConnections

	if _, err := frame.NewLimit(cfg.MaxMessageSize); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// limit builds the frame size limit for this config, applying the
// environment-sourced default when the size is zero.
func (c Config) limit() (frame.Limit, error) {
	max := c.MaxMessageSize
	if max == 0 {
		max = frame.MaxMessageSizeFromEnv()
	}
	return frame.NewLimit(max)
}

func (c Config) connectTimeout() time.Duration {
	if c.ConnectTimeout > 0 {
		return c.ConnectTimeout
	}
	return DefaultConnectTimeout
}
