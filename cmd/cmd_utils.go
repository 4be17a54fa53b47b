// cmd_utils.go - Gemeinsame Hilfsfunktionen der Commands
// Hauptfunktionen: checkServerHeartbeat, loadConfig
package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nehal119/merlion-testing/api"
	"github.com/nehal119/merlion-testing/ts"
)

// checkServerHeartbeat - Prueft vor einem Command ob der Server laeuft
func checkServerHeartbeat(cmd *cobra.Command, _ []string) error {
	client, err := api.ClientFromEnvironment()
	if err != nil {
		return err
	}
	if err := client.Heartbeat(cmd.Context()); err != nil {
		if strings.Contains(err.Error(), " refused") || strings.Contains(err.Error(), "could not connect") {
			return fmt.Errorf("could not connect to a running merlion instance, start one with %q", "merlion serve")
		}
		return err
	}
	return nil
}

// loadConfig liest die Modellkonfiguration aus einer Datei und setzt
// optional die Zielspalte. target wird gegen die Spaltennamen der
// Serie aufgeloest.
func loadConfig(path, target string, series *ts.TimeSeries) (json.RawMessage, error) {
	cfg := map[string]any{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("config %s: %w", path, err)
		}
	}

	if target != "" {
		idx := -1
		for j, name := range series.Names() {
			if name == target {
				idx = j
				break
			}
		}
		if idx < 0 {
			return nil, fmt.Errorf("target column %q not in data columns %v", target, series.Names())
		}
		cfg["target_seq_index"] = idx
	}

	if len(cfg) == 0 {
		return nil, nil
	}
	return json.Marshal(cfg)
}
