package config

import (
	"time"

	"github.com/spf13/viper"
)

// TCPConfig holds every option the TCP communicator recognizes.
type TCPConfig struct {
	// BindAddress is the textual listen address ("tcp-2086",
	// "tcp-0.0.0.0:2086", "tcp-[::1]:2086"). Empty disables listening;
	// the communicator is then connect-only.
	BindAddress string `yaml:"bind_address"`

	// MaxQueueLength is the number of messages that may be delivered
	// upward without acknowledgment before reading from a connection
	// pauses.
	MaxQueueLength int `yaml:"max_queue_length"`

	// RekeyInterval is the wall-clock lifetime of one outbound key epoch.
	RekeyInterval time.Duration `yaml:"rekey_interval"`

	// RekeyMaxBytes is the ceiling on bytes enciphered under one outbound
	// key. The effective budget is randomized within [ceiling/2, ceiling)
	// per epoch so peers do not rekey in lockstep.
	RekeyMaxBytes uint64 `yaml:"rekey_max_bytes"`

	// IdleTimeout closes a connection with no successful reads or writes.
	IdleTimeout time.Duration `yaml:"idle_timeout"`

	// HandshakeTimeout bounds how long an accepted socket may take to
	// deliver the full initial key exchange.
	HandshakeTimeout time.Duration `yaml:"handshake_timeout"`

	// AcceptRate caps accepted connections per second (0 = unlimited).
	AcceptRate int `yaml:"accept_rate"`
}

// DefaultTCPConfig returns the built-in defaults.
func DefaultTCPConfig() *TCPConfig {
	return &TCPConfig{
		BindAddress:      "",
		MaxQueueLength:   8,
		RekeyInterval:    time.Hour,
		RekeyMaxBytes:    400 * 1024 * 1024,
		IdleTimeout:      5 * time.Minute,
		HandshakeTimeout: 30 * time.Second,
		AcceptRate:       64,
	}
}

// NewTCPConfigFromViper assembles the TCP configuration from current viper
// settings. This is the preferred accessor; packages should not read viper
// keys directly.
func NewTCPConfigFromViper() *TCPConfig {
	return &TCPConfig{
		BindAddress:      viper.GetString("tcp.bind_address"),
		MaxQueueLength:   viper.GetInt("tcp.max_queue_length"),
		RekeyInterval:    viper.GetDuration("tcp.rekey_interval"),
		RekeyMaxBytes:    viper.GetUint64("tcp.rekey_max_bytes"),
		IdleTimeout:      viper.GetDuration("tcp.idle_timeout"),
		HandshakeTimeout: viper.GetDuration("tcp.handshake_timeout"),
		AcceptRate:       viper.GetInt("tcp.accept_rate"),
	}
}
