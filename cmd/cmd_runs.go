// cmd_runs.go - Runs Command
// Hauptfunktionen: RunsHandler, newRunsCmd
// Liest die Laufdatenbank direkt, ein laufender Server ist nicht
// noetig.
package cmd

import (
	"fmt"
	"os"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/nehal119/merlion-testing/envconfig"
	"github.com/nehal119/merlion-testing/format"
	"github.com/nehal119/merlion-testing/store"
)

// RunsHandler - Listet Trainingslaeufe oder den Verlauf eines Laufs
func RunsHandler(cmd *cobra.Command, args []string) error {
	limit, err := cmd.Flags().GetInt("limit")
	if err != nil {
		return err
	}
	runID, err := cmd.Flags().GetString("id")
	if err != nil {
		return err
	}

	db, err := store.Open(envconfig.Database())
	if err != nil {
		return err
	}
	defer db.Close()

	if runID != "" {
		return printRunMetrics(db, runID)
	}

	var modelFilter string
	if len(args) > 0 {
		modelFilter = args[0]
	}

	runs, err := db.ListRuns(modelFilter, limit)
	if err != nil {
		return err
	}

	var data [][]string
	for _, r := range runs {
		validLoss := "-"
		if r.ValidLoss != nil {
			validLoss = fmt.Sprintf("%.6f", *r.ValidLoss)
		}
		data = append(data, []string{
			r.ID,
			r.Model,
			format.HumanTime(r.StartedAt, "Never"),
			format.HumanDuration(r.Duration),
			fmt.Sprintf("%d", r.Epochs),
			fmt.Sprintf("%.6f", r.TrainLoss),
			validLoss,
		})
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"ID", "MODEL", "STARTED", "DURATION", "EPOCHS", "TRAIN LOSS", "VALID LOSS"})
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetNoWhiteSpace(true)
	table.SetTablePadding("    ")
	table.AppendBulk(data)
	table.Render()

	return nil
}

func printRunMetrics(db *store.Store, runID string) error {
	metrics, err := db.RunMetrics(runID)
	if err != nil {
		return err
	}

	var data [][]string
	for _, m := range metrics {
		validLoss := "-"
		if m.ValidLoss != nil {
			validLoss = fmt.Sprintf("%.6f", *m.ValidLoss)
		}
		data = append(data, []string{
			fmt.Sprintf("%d", m.Epoch),
			fmt.Sprintf("%.6f", m.TrainLoss),
			validLoss,
		})
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"EPOCH", "TRAIN LOSS", "VALID LOSS"})
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetNoWhiteSpace(true)
	table.SetTablePadding("    ")
	table.AppendBulk(data)
	table.Render()

	return nil
}

// newRunsCmd - Erstellt den runs Command
func newRunsCmd() *cobra.Command {
	runsCmd := &cobra.Command{
		Use:   "runs [MODEL]",
		Short: "List training runs from the run database",
		Args:  cobra.MaximumNArgs(1),
		RunE:  RunsHandler,
	}

	runsCmd.Flags().Int("limit", 20, "Maximum number of runs to list")
	runsCmd.Flags().String("id", "", "Show the per-epoch loss history of one run")

	return runsCmd
}
