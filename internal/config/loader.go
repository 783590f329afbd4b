package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the site file name looked up in the working and
// home directories.
const DefaultConfigFile = ".harvester.yaml"

// xdgSiteFile is the site file name inside XDGConfigDir.
const xdgSiteFile = "site.yaml"

// ErrConfigNotFound is returned when the configuration file does not exist.
var ErrConfigNotFound = errors.New("configuration file not found")

// LoadConfigFile reads a site file. A missing file is ErrConfigNotFound.
func LoadConfigFile(path string) (*File, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path comes from the user or FindConfigFile
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrConfigNotFound
	}
	if err != nil {
		return nil, err
	}

	return parseFile(data)
}

func parseFile(data []byte) (*File, error) {
	cf := &File{}
	if err := yaml.Unmarshal(data, cf); err != nil {
		return nil, fmt.Errorf("invalid YAML: %w", err)
	}
	return cf, nil
}

// WriteSiteFile writes content to path after checking that it parses and
// that its site, merged over DefaultSite, validates. Missing parent
// directories are created. Without force an existing file is left alone
// and ErrSiteFileExists is returned.
func WriteSiteFile(path string, content []byte, force bool) (*File, error) {
	cf, err := parseFile(content)
	if err != nil {
		return nil, err
	}
	if err := DefaultSite().Merge(cf.Site).Validate(); err != nil {
		return nil, err
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	flag := os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	if !force {
		flag |= os.O_EXCL
	}
	f, err := os.OpenFile(path, flag, 0600) //nolint:gosec // path comes from the user
	if errors.Is(err, fs.ErrExist) {
		return nil, ErrSiteFileExists
	}
	if err != nil {
		return nil, err
	}
	if _, err := f.Write(content); err != nil {
		_ = f.Close()
		return nil, err
	}
	return cf, f.Close()
}

// ApplyFile merges the site definition of cf into c.
func (c *Config) ApplyFile(cf *File) {
	if cf == nil {
		return
	}
	c.Site = c.Site.Merge(cf.Site)
}

// FindConfigFile returns the site file to load, or "" if there is none.
// An explicit configPath is used only if it exists. Otherwise the first of
// ./.harvester.yaml, $XDG_CONFIG_HOME/harvester/site.yaml and
// ~/.harvester.yaml that exists wins.
func FindConfigFile(configPath string) string {
	if configPath != "" {
		if fileExists(configPath) {
			return configPath
		}
		return ""
	}
	for _, candidate := range searchPaths() {
		if fileExists(candidate) {
			return candidate
		}
	}
	return ""
}

func searchPaths() []string {
	var paths []string
	if cwd, err := os.Getwd(); err == nil {
		paths = append(paths, filepath.Join(cwd, DefaultConfigFile))
	}
	paths = append(paths, filepath.Join(XDGConfigDir(), xdgSiteFile))
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, DefaultConfigFile))
	}
	return paths
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
