// Copyright 2020 Erin Shepherd
// SPDX-License-Identifier: ISC

// Package commands implements the xdr2json command line.
package commands

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"go.e43.eu/xdr2json/internal/config"
	"go.e43.eu/xdr2json/internal/logger"
	"go.e43.eu/xdr2json/schema"
)

var (
	// Version information injected at build time
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// state shared by the subcommands of one invocation
type globals struct {
	cfgFile     string
	logLevel    string
	logFormat   string
	schemaFiles []string

	cfg *config.Config
}

// NewRootCommand builds the command tree
func NewRootCommand() *cobra.Command {
	g := &globals{}

	root := &cobra.Command{
		Use:   "xdr2json",
		Short: "Convert XDR encoded values to JSON",
		Long: `xdr2json decodes binary XDR (RFC 4506) values and prints their canonical
JSON projection. The layout of each value is described by a YAML schema
catalog, named with --schema or the schema.files configuration key.

Configuration is read from --config (default
$XDG_CONFIG_HOME/xdr2json/config.yaml) and XDR2JSON_* environment variables,
e.g. XDR2JSON_DECODE_MAX_DEPTH=100.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return g.setup(cmd)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&g.cfgFile, "config", "", "config file (default: $XDG_CONFIG_HOME/xdr2json/config.yaml)")
	flags.StringVar(&g.logLevel, "log-level", "", "log level (debug, info, warn, error)")
	flags.StringVar(&g.logFormat, "log-format", "", "log format (text, json)")
	flags.StringSliceVarP(&g.schemaFiles, "schema", "s", nil, "YAML schema catalog (repeatable)")

	root.AddCommand(newDecodeCommand(g))
	root.AddCommand(newTypesCommand(g))
	root.AddCommand(newValidateCommand(g))
	root.AddCommand(newVersionCommand())
	root.CompletionOptions.DisableDefaultCmd = true
	return root
}

// Execute runs the command line with os.Args
func Execute() error {
	return NewRootCommand().Execute()
}

func (g *globals) setup(cmd *cobra.Command) error {
	cfg, err := config.Load(g.cfgFile)
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	if flags.Changed("log-level") {
		cfg.Logging.Level = g.logLevel
	}
	if flags.Changed("log-format") {
		cfg.Logging.Format = g.logFormat
	}
	if flags.Changed("schema") {
		cfg.Schema.Files = g.schemaFiles
	}
	config.ApplyDefaults(cfg)
	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}

	log, err := logger.New(cfg.LoggerConfig())
	if err != nil {
		return err
	}
	logger.SetLogger(log)

	g.cfg = cfg
	return nil
}

// registry loads the configured schema catalogs
func (g *globals) registry() (*schema.Registry, error) {
	if len(g.cfg.Schema.Files) == 0 {
		return nil, fmt.Errorf("no schema catalog given (use --schema or schema.files)")
	}
	return schema.LoadYAMLFiles(g.cfg.Schema.Files...)
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		// Needs no configuration
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		Run: func(cmd *cobra.Command, args []string) {
			printVersion(cmd.OutOrStdout())
		},
	}
}

func printVersion(w io.Writer) {
	fmt.Fprintf(w, "xdr2json %s (commit: %s, built: %s)\n", Version, Commit, Date)
}

// Exit prints err and exits with status 1
func Exit(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
