// Package config holds the typed settings for the gorent client and
// tracker binaries, loaded from YAML. Grounded in uber-kraken's
// configuration package (configuration/config.go, tracker/config.go):
// one struct per binary, a flat set of yaml-tagged fields, loaded with
// a single LoadClient or LoadTracker call. The CLI surface that
// discovers a config path is out of scope; each loader only needs a
// path handed to it.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"
)

// Client is the configuration for the gorent download client
// (spec.md §6: "A configuration file exposes at least: port, logs_dir,
// downloads_dir, torrents_dir").
type Client struct {
	Port         uint16 `yaml:"port"`
	LogsDir      string `yaml:"logs_dir"`
	DownloadsDir string `yaml:"downloads_dir"`
	TorrentsDir  string `yaml:"torrents_dir"`

	// Seed keeps the listener open to serve completed torrents to other
	// peers after download finishes (spec.md §4.7).
	Seed bool `yaml:"seed"`
}

// Tracker is the configuration for the trackerd announce service.
type Tracker struct {
	ListenAddr string `yaml:"listen_addr"`
	LogsDir    string `yaml:"logs_dir"`

	// NumWant is the default peer-list size when a request omits
	// numwant; threaded into tracker.NewServer. The re-announce interval
	// is not configurable here: spec.md §4.8 fixes it at 900.
	NumWant int `yaml:"numwant"`
}

func defaultClient() Client {
	return Client{
		Port:         6881,
		LogsDir:      "logs",
		DownloadsDir: "downloads",
		TorrentsDir:  "torrents",
	}
}

func defaultTracker() Tracker {
	return Tracker{
		ListenAddr: ":6969",
		LogsDir:    "logs",
		NumWant:    50,
	}
}

// LoadClient reads and parses a Client config from path. Fields absent
// from the YAML document keep their defaults.
func LoadClient(path string) (*Client, error) {
	c := defaultClient()
	if err := loadYAML(path, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

// LoadTracker reads and parses a Tracker config from path. Fields
// absent from the YAML document keep their defaults.
func LoadTracker(path string) (*Tracker, error) {
	t := defaultTracker()
	if err := loadYAML(path, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

func loadYAML(path string, out interface{}) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	return nil
}
