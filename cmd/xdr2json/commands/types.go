// Copyright 2020 Erin Shepherd
// SPDX-License-Identifier: ISC

package commands

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"go.e43.eu/xdr2json/internal/logger"
)

func newTypesCommand(g *globals) *cobra.Command {
	var verbose bool

	cmd := &cobra.Command{
		Use:   "types",
		Short: "List the types defined by the schema catalogs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := g.registry()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, name := range reg.Names() {
				if !verbose {
					fmt.Fprintln(out, name)
					continue
				}
				def, _ := reg.Resolve(name)
				fmt.Fprintf(out, "%s = %s\n", name, def)
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "print each definition")
	return cmd
}

func newValidateCommand(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check that the schema catalogs are complete and well formed",
		Long: `Load the schema catalogs and check every definition: references must name
defined types, recursion must pass through an optional or a variable length
array, and union cases must be legal for their switch type.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := g.registry()
			if err != nil {
				return err
			}
			logger.Logger().Debug("schema catalogs valid",
				zap.Strings("files", g.cfg.Schema.Files),
				zap.Int("types", reg.Len()))
			fmt.Fprintf(cmd.OutOrStdout(), "ok: %d types\n", reg.Len())
			return nil
		},
	}
}
