package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/hjson"
	"github.com/knadh/koanf/providers/cliflagv2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/urfave/cli/v2"
)

const configFile = "btprofiled.conf"

// Config describes the configuration for the daemon.
type Config struct {
	path string

	Values Values
}

// NewConfig returns a new configuration.
func NewConfig() *Config {
	return &Config{}
}

// Load loads the configuration from the configuration file and the command-line flags.
func (c *Config) Load(k *koanf.Koanf, cliCtx *cli.Context) error {
	if err := c.createConfigDir(); err != nil {
		return err
	}

	cfgfile, err := c.FilePath(configFile)
	if err != nil {
		return err
	}

	if err := k.Load(file.Provider(cfgfile), hjson.Parser()); err != nil {
		return err
	}

	if err := k.Load(cliflagv2.Provider(cliCtx, "."), nil); err != nil {
		return err
	}

	return k.UnmarshalWithConf("", &c.Values, koanf.UnmarshalConf{Tag: "koanf"})
}

// ValidateValues validates the configuration values.
func (c *Config) ValidateValues() error {
	return c.Values.validateValues()
}

// createConfigDir checks for and/or creates a configuration directory.
func (c *Config) createConfigDir() error {
	homedir, err := os.UserHomeDir()
	if err != nil {
		return err
	}

	type configDir struct {
		path, fullpath               string
		exist, hidden, prefixHomeDir bool
	}

	configPaths := []*configDir{
		{path: os.Getenv("XDG_CONFIG_HOME")},
		{path: ".config", prefixHomeDir: true},
		{path: ".", hidden: true, prefixHomeDir: true},
	}

	for _, dir := range configPaths {
		name := "btprofiled"

		if dir.path == "" {
			continue
		}

		if dir.hidden {
			name = "." + name
		}

		if dir.prefixHomeDir {
			dir.path = filepath.Join(homedir, dir.path)
		}

		if _, err := os.Stat(filepath.Clean(dir.path)); err == nil {
			dir.exist = true
		}

		dir.fullpath = filepath.Join(dir.path, name)
		if _, err := os.Stat(filepath.Clean(dir.fullpath)); err == nil {
			c.path = dir.fullpath
			break
		}
	}

	if c.path == "" {
		var pathErrors []string

		for _, dir := range configPaths {
			if err := os.Mkdir(dir.fullpath, os.ModePerm); err == nil {
				c.path = dir.fullpath
				break
			}

			pathErrors = append(pathErrors, dir.fullpath)
		}

		if len(pathErrors) == len(configPaths) {
			return fmt.Errorf("the configuration directories could not be created at %s%s", "\n", strings.Join(pathErrors, "\n"))
		}
	}

	return nil
}

// FilePath returns the absolute path for the given configuration file.
func (c *Config) FilePath(configFile string) (string, error) {
	confPath := filepath.Join(c.path, configFile)

	if _, err := os.Stat(confPath); err != nil {
		fd, err := os.Create(confPath)
		fd.Close()
		if err != nil {
			return "", fmt.Errorf("Cannot create "+configFile+" file at %s", confPath)
		}
	}

	return confPath, nil
}

// GenerateAndSave writes the currently loaded configuration values back
// to the configuration file.
func (c *Config) GenerateAndSave(currentCfg *koanf.Koanf) error {
	data, err := hjson.Parser().Marshal(currentCfg.All())
	if err != nil {
		return err
	}

	conf, err := c.FilePath(configFile)
	if err != nil {
		return err
	}

	f, err := os.OpenFile(conf, os.O_WRONLY|os.O_TRUNC, os.ModePerm)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err = f.Write(data); err != nil {
		return err
	}

	return f.Sync()
}
