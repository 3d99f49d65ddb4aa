package config

import (
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// defaultConfigFile is what gets written to disk on first run so operators
// have something to edit.
type defaultConfigFile struct {
	TCP            *TCPConfig `yaml:"tcp"`
	KeyDir         string     `yaml:"key_dir"`
	NTPServers     []string   `yaml:"ntp_servers"`
	MetricsAddress string     `yaml:"metrics_address"`
}

func createDefaultConfigFile() {
	dir := BuildBaseDirPath()
	if err := os.MkdirAll(dir, 0o700); err != nil {
		log.WithError(err).Error("Failed to create config directory")
		return
	}
	path := filepath.Join(dir, "config.yaml")

	out, err := yaml.Marshal(&defaultConfigFile{
		TCP:            DefaultTCPConfig(),
		KeyDir:         dir,
		NTPServers:     []string{},
		MetricsAddress: "",
	})
	if err != nil {
		log.WithError(err).Error("Failed to marshal default config")
		return
	}
	if err := os.WriteFile(path, out, 0o600); err != nil {
		log.WithError(err).Error("Failed to write default config file")
		return
	}
	log.WithField("path", path).Debug("Created default config file")
}
