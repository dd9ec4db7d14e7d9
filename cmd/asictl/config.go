package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.yaml.in/yaml/v4"

	"github.com/liuyenting/olive-motion-asi/logger"
	"github.com/liuyenting/olive-motion-asi/serialport"
)

// options holds the connection settings shared by every subcommand, resolved
// from defaults, then the config file, then explicit flags.
type options struct {
	Port    string        `yaml:"port"`
	Baud    int           `yaml:"baud"`
	Variant string        `yaml:"variant"`
	Debug   bool          `yaml:"debug"`
	Timeout time.Duration `yaml:"-"`
}

func defaultOptions() options {
	return options{
		Baud:    serialport.DefaultBaudRate,
		Variant: "ms2000",
	}
}

// resolve overlays the config file onto the defaults, keeping any value the
// user set explicitly on the command line.
func (o *options) resolve(cmd *cobra.Command, path string) error {
	if path != "" {
		fileOpts := defaultOptions()

		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &fileOpts); err != nil {
			return fmt.Errorf("parse config %s: %w", path, err)
		}

		flags := cmd.Root().PersistentFlags()
		if !flags.Changed("port") {
			o.Port = fileOpts.Port
		}
		if !flags.Changed("baud") {
			o.Baud = fileOpts.Baud
		}
		if !flags.Changed("variant") {
			o.Variant = fileOpts.Variant
		}
		if !flags.Changed("debug") {
			o.Debug = fileOpts.Debug
		}
	}

	if _, err := dialectFor(o.Variant); err != nil {
		return err
	}

	if o.Debug {
		logger.SetLevel(logger.DebugLevel)
	}

	return nil
}
