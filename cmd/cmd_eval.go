// cmd_eval.go - Eval Command
// Hauptfunktionen: EvalHandler, newEvalCmd
// Prognostiziert ueber den Zeitraum einer Holdout-Datei und misst die
// Abweichung mit den gewaehlten Metriken.
package cmd

import (
	"fmt"
	"os"
	"slices"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/nehal119/merlion-testing/api"
	"github.com/nehal119/merlion-testing/evaluate"
	"github.com/nehal119/merlion-testing/ts"
)

// EvalHandler - Bewertet ein Modell gegen Holdout-Daten
func EvalHandler(cmd *cobra.Command, args []string) error {
	client, err := api.ClientFromEnvironment()
	if err != nil {
		return err
	}

	dataPath, err := cmd.Flags().GetString("data")
	if err != nil {
		return err
	}
	metrics, err := cmd.Flags().GetStringSlice("metric")
	if err != nil {
		return err
	}
	horizon, err := cmd.Flags().GetInt("horizon")
	if err != nil {
		return err
	}

	actual, err := ts.ReadCSVFile(dataPath)
	if err != nil {
		return err
	}
	if horizon <= 0 || horizon > actual.Len() {
		horizon = actual.Len()
	}

	if slices.Contains(metrics, "all") {
		metrics = evaluate.Names()
	}

	resp, err := client.Forecast(cmd.Context(), &api.ForecastRequest{
		Model:   args[0],
		Horizon: horizon,
	})
	if err != nil {
		return err
	}

	forecast, err := resp.Forecast.TimeSeries()
	if err != nil {
		return err
	}

	var data [][]string
	for _, name := range metrics {
		fn, err := evaluate.ByName(name)
		if err != nil {
			return err
		}
		value, err := fn(forecast, actual)
		if err != nil {
			return err
		}
		data = append(data, []string{name, fmt.Sprintf("%.6f", value)})
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"METRIC", "VALUE"})
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

// newEvalCmd - Erstellt den eval Command
func newEvalCmd() *cobra.Command {
	evalCmd := &cobra.Command{
		Use:     "eval MODEL",
		Short:   "Evaluate forecast accuracy against held-out data",
		Args:    cobra.ExactArgs(1),
		PreRunE: checkServerHeartbeat,
		RunE:    EvalHandler,
	}

	evalCmd.Flags().String("data", "", "CSV file with the held-out series (required)")
	evalCmd.Flags().StringSlice("metric", []string{"rmse", "smape"}, "Metrics to compute (or \"all\")")
	evalCmd.Flags().Int("horizon", 0, "Steps to forecast (default: length of the held-out series)")
	evalCmd.MarkFlagRequired("data")

	return evalCmd
}
