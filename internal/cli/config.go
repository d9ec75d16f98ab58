package cli

import (
	"bytes"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/roach88/mixsync/internal/propagate"
)

// FileConfig is the YAML config accepted by --config. Every key mirrors a
// flag of the same name; a flag given on the command line wins.
type FileConfig struct {
	DB          string `yaml:"db"`
	URL         string `yaml:"url"`
	Schema      string `yaml:"schema"`
	Sync        *bool  `yaml:"sync"`
	MetricsAddr string `yaml:"metrics_addr"`
	DumpSize    int    `yaml:"dump_size"`
}

// PeerConfig is the resolved connection and store settings shared by peer
// and apply.
type PeerConfig struct {
	Config      string
	DB          string
	URL         string
	Schema      string
	Sync        bool
	MetricsAddr string
	DumpSize    int
}

func addPeerFlags(cmd *cobra.Command, c *PeerConfig) {
	cmd.Flags().StringVar(&c.Config, "config", "", "YAML config file")
	cmd.Flags().StringVar(&c.DB, "db", "", "path to SQLite database")
	cmd.Flags().StringVar(&c.URL, "url", "", "relay websocket URL (ws://host:port/sync)")
	cmd.Flags().StringVar(&c.Schema, "schema", "", "CUE schema validating entity fields")
	cmd.Flags().BoolVar(&c.Sync, "sync", true, "send and apply changes (false disables the gate)")
	cmd.Flags().StringVar(&c.MetricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	cmd.Flags().IntVar(&c.DumpSize, "dump-size", propagate.DefaultDumpSize, "bytes of a discarded payload's head and tail to log")
}

// LoadConfig reads a YAML config file. Unknown keys are an error.
func LoadConfig(path string) (*FileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg FileConfig
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return &cfg, nil
}

// resolve fills c from its config file for every flag not set explicitly.
func (c *PeerConfig) resolve(cmd *cobra.Command) error {
	if c.Config == "" {
		return nil
	}
	file, err := LoadConfig(c.Config)
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	fill := func(name string, dst *string, v string) {
		if !flags.Changed(name) && v != "" {
			*dst = v
		}
	}
	fill("db", &c.DB, file.DB)
	fill("url", &c.URL, file.URL)
	fill("schema", &c.Schema, file.Schema)
	fill("metrics-addr", &c.MetricsAddr, file.MetricsAddr)
	if !flags.Changed("sync") && file.Sync != nil {
		c.Sync = *file.Sync
	}
	if !flags.Changed("dump-size") && file.DumpSize > 0 {
		c.DumpSize = file.DumpSize
	}
	return nil
}
