// cmd_show.go - Show Command
// Hauptfunktionen: ShowHandler, newShowCmd
package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nehal119/merlion-testing/api"
	"github.com/nehal119/merlion-testing/format"
)

// ShowHandler - Zeigt Details eines gespeicherten Modells
func ShowHandler(cmd *cobra.Command, args []string) error {
	client, err := api.ClientFromEnvironment()
	if err != nil {
		return err
	}

	resp, err := client.Show(cmd.Context(), &api.ShowRequest{Model: args[0]})
	if err != nil {
		return err
	}

	fmt.Println("  Model")
	fmt.Printf("    %-16s %s\n", "architecture", resp.Architecture)
	fmt.Printf("    %-16s %s\n", "parameters", format.HumanNumber(uint64(resp.Parameters)))
	fmt.Printf("    %-16s %d\n", "tensors", resp.Tensors)
	fmt.Printf("    %-16s %t\n", "trained", resp.Trained)
	fmt.Printf("    %-16s %s\n", "created", format.HumanTime(resp.CreatedAt, "unknown"))
	fmt.Println()

	if len(resp.Variables) > 0 {
		fmt.Println("  Variables")
		for _, v := range resp.Variables {
			fmt.Printf("    %s\n", v)
		}
		fmt.Println()
	}

	if len(resp.Config) > 0 {
		var buf bytes.Buffer
		if err := json.Indent(&buf, resp.Config, "    ", "  "); err == nil {
			fmt.Println("  Config")
			fmt.Printf("    %s\n", buf.String())
			fmt.Println()
		}
	}

	return nil
}

// newShowCmd - Erstellt den show Command
func newShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "show MODEL",
		Short:   "Show details of a stored model",
		Args:    cobra.ExactArgs(1),
		PreRunE: checkServerHeartbeat,
		RunE:    ShowHandler,
	}
}
