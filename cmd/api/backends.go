package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ritza-co/bryntum-backend-guides/internal/config"
	"github.com/ritza-co/bryntum-backend-guides/internal/schema"
)

var backendsCmd = &cobra.Command{
	Use:   "backends",
	Short: "List the backends and their collections",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		out := cmd.OutOrStdout()
		for _, name := range schema.Names() {
			backend, err := schema.Lookup(name)
			if err != nil {
				return err
			}
			var collections []string
			for _, c := range backend.Collections {
				collections = append(collections, c.Name)
			}
			mode := "load/sync"
			if backend.CRUD {
				mode = "crud"
			}
			fmt.Fprintf(out, "%-13s %-9s %s\n", name, mode, strings.Join(collections, ", "))
		}
		return nil
	},
}

var envCmd = &cobra.Command{
	Use:   "env",
	Short: "Describe the environment variables",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, _ []string) {
		fmt.Fprintln(cmd.OutOrStdout(), config.Usage())
	},
}

func init() {
	rootCmd.AddCommand(backendsCmd)
	rootCmd.AddCommand(envCmd)
}
