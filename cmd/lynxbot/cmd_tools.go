package main

import (
	"encoding/json"
	"io"
	"strings"

	"lynxbot/internal/inference"
	"lynxbot/internal/platform"

	"github.com/spf13/cobra"
)

// toolsCmd prints the capability descriptors handed to the model
var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "Print the registered capabilities as JSON",
	Long: `Wires the engine without connecting to a model and prints every
capability the current configuration registers, with its argument schema.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		console := platform.NewConsole(platform.ConsoleConfig{In: strings.NewReader(""), Out: io.Discard})
		e, err := newEngine(cmd.Context(), cfg, console, inference.NewEcho())
		if err != nil {
			return err
		}
		defer e.close()

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(e.registry.Definitions())
	},
}
