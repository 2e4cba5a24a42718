package config

import (
	"fmt"
	"io"
	"os"
	"os/user"
	"path/filepath"

	"gopkg.in/yaml.v2"

	"github.com/uexec/uexec/pkg/logflags"
)

const (
	configDir       string = "uexec"
	configDirHidden string = ".uexec"
	configFile      string = "config.yml"
)

// Config defines all configuration options available to be set through the config file.
type Config struct {
	// ImageReader selects how image files are read: "read" copies the file
	// into memory, "mmap" maps it read-only.
	ImageReader string `yaml:"image-reader"`

	// MapSegments maps the loadable segments of the image before control is
	// transferred. Disable it for images that are already in place.
	MapSegments *bool `yaml:"map-segments,omitempty"`

	// Supervise runs the loaded program under the fault supervisor.
	Supervise *bool `yaml:"supervise,omitempty"`

	// DisasmCount is the number of instructions printed at the entry point.
	DisasmCount int `yaml:"disasm-count"`

	// Color enables colored diagnostics on terminals.
	Color *bool `yaml:"color,omitempty"`
}

func boolOr(b *bool, def bool) bool {
	if b == nil {
		return def
	}
	return *b
}

// MapSegmentsOrDefault returns MapSegments, true when unset.
func (c *Config) MapSegmentsOrDefault() bool { return boolOr(c.MapSegments, true) }

// SuperviseOrDefault returns Supervise, true when unset.
func (c *Config) SuperviseOrDefault() bool { return boolOr(c.Supervise, true) }

// ColorOrDefault returns Color, true when unset.
func (c *Config) ColorOrDefault() bool { return boolOr(c.Color, true) }

// LoadConfig attempts to populate a Config object from the config.yml file.
// A commented default file is created if none exists. Problems are logged
// and result in the default configuration.
func LoadConfig() *Config {
	logger := logflags.ConfigLogger()
	err := createConfigPath()
	if err != nil {
		logger.Warnf("Could not create config directory: %v.", err)
		return &Config{}
	}
	fullConfigFile, err := GetConfigFilePath(configFile)
	if err != nil {
		logger.Warnf("Unable to get config file path: %v.", err)
		return &Config{}
	}

	f, err := os.Open(fullConfigFile)
	if err != nil {
		f, err = createDefaultConfig(fullConfigFile)
		if err != nil {
			logger.Warnf("Error creating default config file: %v", err)
			return &Config{}
		}
		logger.Debugf("created %s", fullConfigFile)
	}
	defer func() {
		err := f.Close()
		if err != nil {
			logger.Warnf("Closing config file failed: %v.", err)
		}
	}()

	data, err := io.ReadAll(f)
	if err != nil {
		logger.Warnf("Unable to read config data: %v.", err)
		return &Config{}
	}

	var c Config
	err = yaml.Unmarshal(data, &c)
	if err != nil {
		logger.Warnf("Unable to decode config file: %v.", err)
		return &Config{}
	}
	logger.Debugf("loaded %s", fullConfigFile)

	return &c
}

func createDefaultConfig(path string) (*os.File, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("unable to create config file: %v", err)
	}
	err = writeDefaultConfig(f)
	if err != nil {
		return nil, fmt.Errorf("unable to write default configuration: %v", err)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	return f, nil
}

func writeDefaultConfig(f *os.File) error {
	_, err := f.WriteString(
		`# Configuration file for uexec.

# This is the default configuration file. Available options are provided, but disabled.
# Delete the leading hash mark to enable an item.

# How image files are read: "read" copies the file into memory, "mmap" maps it.
# image-reader: read

# Map the loadable segments of the image at their virtual addresses before
# starting it. Set to false for images that are already in place.
# map-segments: true

# Run the loaded program under a supervisor that reports the address of
# segmentation faults and other hardware faults.
# supervise: true

# Number of instructions at the entry point printed by "uexec info".
# disasm-count: 8

# Highlight executable and writable segments when printing to a terminal.
# color: true
`)
	return err
}

// createConfigPath creates the directory structure at which all config files are saved.
func createConfigPath() error {
	path, err := GetConfigFilePath("")
	if err != nil {
		return err
	}
	return os.MkdirAll(path, 0700)
}

// GetConfigFilePath gets the full path to the given config file name.
func GetConfigFilePath(file string) (string, error) {
	if configPath := os.Getenv("XDG_CONFIG_HOME"); configPath != "" {
		return filepath.Join(configPath, configDir, file), nil
	}

	userHomeDir := "."
	usr, err := user.Current()
	if err == nil {
		userHomeDir = usr.HomeDir
	}
	return filepath.Join(userHomeDir, configDirHidden, file), nil
}
