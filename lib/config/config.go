// Package config loads the communicator configuration through viper, with a
// YAML config file materialized on first run and environment/flag overrides
// layered on top.
package config

import (
	"os"
	"path/filepath"

	"github.com/spf13/viper"

	"github.com/GNUnet-Mirror/GNUnet-sub001/lib/util/logger"
)

var (
	// CfgFile is an explicit config file path, usually set from the CLI.
	CfgFile string

	log = logger.GetLogger()
)

// BaseDirName is the per-user state directory.
const BaseDirName = ".gnunet-communicator"

// InitConfig wires viper: config file location, defaults, and creation of a
// default config file when none exists.
func InitConfig() {
	if CfgFile != "" {
		viper.SetConfigFile(CfgFile)
	} else {
		viper.AddConfigPath(BuildBaseDirPath())
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	setDefaults()
	handleConfigFile()
}

func setDefaults() {
	d := DefaultTCPConfig()
	viper.SetDefault("tcp.bind_address", d.BindAddress)
	viper.SetDefault("tcp.max_queue_length", d.MaxQueueLength)
	viper.SetDefault("tcp.rekey_interval", d.RekeyInterval)
	viper.SetDefault("tcp.rekey_max_bytes", d.RekeyMaxBytes)
	viper.SetDefault("tcp.idle_timeout", d.IdleTimeout)
	viper.SetDefault("tcp.handshake_timeout", d.HandshakeTimeout)
	viper.SetDefault("tcp.accept_rate", d.AcceptRate)
	viper.SetDefault("key_dir", BuildBaseDirPath())
	viper.SetDefault("ntp_servers", []string{})
	viper.SetDefault("metrics_address", "")
}

func handleConfigFile() {
	if err := viper.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); notFound && CfgFile == "" {
			createDefaultConfigFile()
			return
		}
		log.WithError(err).Error("Failed to read config file")
	}
}

// BuildBaseDirPath returns $HOME/.gnunet-communicator.
func BuildBaseDirPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		log.WithError(err).Warn("Could not determine home directory, using cwd")
		return BaseDirName
	}
	return filepath.Join(home, BaseDirName)
}

// KeyDir returns the directory holding the long-term identity key.
func KeyDir() string {
	return viper.GetString("key_dir")
}

// NTPServers returns the optional NTP servers used to correct the clock
// before handshake timestamps are produced.
func NTPServers() []string {
	return viper.GetStringSlice("ntp_servers")
}

// MetricsAddress returns the optional listen address of the metrics endpoint.
func MetricsAddress() string {
	return viper.GetString("metrics_address")
}
