// cmd_model_ops.go - Model-Operationen
// Hauptfunktionen: DeleteHandler, ImportHandler
package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nehal119/merlion-testing/api"
	"github.com/nehal119/merlion-testing/convert"
	"github.com/nehal119/merlion-testing/envconfig"
	"github.com/nehal119/merlion-testing/types/model"
)

// DeleteHandler - Loescht Modelle vom Server
func DeleteHandler(cmd *cobra.Command, args []string) error {
	client, err := api.ClientFromEnvironment()
	if err != nil {
		return err
	}

	for _, arg := range args {
		if err := client.Delete(cmd.Context(), arg); err != nil {
			return err
		}
		fmt.Printf("deleted '%s'\n", arg)
	}
	return nil
}

// ImportHandler - Konvertiert einen PyTorch-Checkpoint in die Ablage
func ImportHandler(cmd *cobra.Command, args []string) error {
	name, err := cmd.Flags().GetString("name")
	if err != nil {
		return err
	}
	configPath, err := cmd.Flags().GetString("config")
	if err != nil {
		return err
	}

	if name == "" {
		base := filepath.Base(args[0])
		name = strings.TrimSuffix(base, filepath.Ext(base))
	}
	parsed, err := model.ParseName(name)
	if err != nil {
		return err
	}

	var configJSON json.RawMessage
	if configPath != "" {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return err
		}
		configJSON = data
	}

	modelsDir := envconfig.Models()
	if err := os.MkdirAll(modelsDir, 0o755); err != nil {
		return err
	}

	outPath := filepath.Join(modelsDir, parsed.Filename())
	if err := convert.Convert(args[0], outPath, configJSON); err != nil {
		return err
	}

	fmt.Printf("imported '%s' from %s\n", parsed.Model, args[0])
	return nil
}

// newDeleteCmd - Erstellt den rm Command
func newDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "rm MODEL [MODEL...]",
		Aliases: []string{"delete"},
		Short:   "Delete stored models",
		Args:    cobra.MinimumNArgs(1),
		PreRunE: checkServerHeartbeat,
		RunE:    DeleteHandler,
	}
}

// newImportCmd - Erstellt den import Command
func newImportCmd() *cobra.Command {
	importCmd := &cobra.Command{
		Use:   "import CHECKPOINT",
		Short: "Import a PyTorch checkpoint into the models directory",
		Args:  cobra.ExactArgs(1),
		RunE:  ImportHandler,
	}

	importCmd.Flags().String("name", "", "Model name (default: checkpoint file name)")
	importCmd.Flags().String("config", "", "JSON file overriding the inferred configuration")

	return importCmd
}
