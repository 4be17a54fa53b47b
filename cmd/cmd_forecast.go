// cmd_forecast.go - Forecast Command
// Hauptfunktionen: ForecastHandler, newForecastCmd
package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/nehal119/merlion-testing/api"
	"github.com/nehal119/merlion-testing/ts"
)

// ForecastHandler - Prognostiziert mit einem gespeicherten Modell
func ForecastHandler(cmd *cobra.Command, args []string) error {
	client, err := api.ClientFromEnvironment()
	if err != nil {
		return err
	}

	horizon, err := cmd.Flags().GetInt("horizon")
	if err != nil {
		return err
	}
	level, err := cmd.Flags().GetFloat64("level")
	if err != nil {
		return err
	}
	keepAliveFlag, err := cmd.Flags().GetString("keepalive")
	if err != nil {
		return err
	}
	output, err := cmd.Flags().GetString("output")
	if err != nil {
		return err
	}

	req := &api.ForecastRequest{
		Model:   args[0],
		Horizon: horizon,
		Level:   level,
	}
	if keepAliveFlag != "" {
		d, err := time.ParseDuration(keepAliveFlag)
		if err != nil {
			return err
		}
		req.KeepAlive = &api.Duration{Duration: d}
	}

	resp, err := client.Forecast(cmd.Context(), req)
	if err != nil {
		return err
	}

	merged, err := mergedForecast(resp)
	if err != nil {
		return err
	}

	if output != "" {
		if err := ts.WriteCSVFile(output, merged); err != nil {
			return err
		}
		fmt.Printf("wrote %d rows to %s\n", merged.Len(), output)
		return nil
	}

	// In einer Pipe kommt CSV statt der Tabelle heraus
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		return ts.WriteCSV(os.Stdout, merged)
	}

	var data [][]string
	times := merged.Times()
	for i, row := range merged.Matrix() {
		record := []string{times[i].Format("2006-01-02 15:04:05")}
		for _, v := range row {
			record = append(record, fmt.Sprintf("%.4f", v))
		}
		data = append(data, record)
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader(append([]string{"TIMESTAMP"}, merged.Names()...))
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

// mergedForecast legt Prognose, Standardfehler und Baender nebeneinander.
func mergedForecast(resp *api.ForecastResponse) (*ts.TimeSeries, error) {
	names := append([]string{}, resp.Forecast.Names...)
	rows := make([][]float64, len(resp.Forecast.Values))
	for i, row := range resp.Forecast.Values {
		rows[i] = append([]float64{}, row...)
	}

	appendSeries := func(s *api.Series, suffix string) {
		if s == nil {
			return
		}
		for _, name := range s.Names {
			names = append(names, name+suffix)
		}
		for i := range rows {
			rows[i] = append(rows[i], s.Values[i]...)
		}
	}

	// Stderr-Spalten tragen ihr Suffix bereits
	appendSeries(resp.Stderr, "")
	appendSeries(resp.Lower, "_lower")
	appendSeries(resp.Upper, "_upper")

	return ts.FromMatrix(names, resp.Forecast.Times, rows)
}

// newForecastCmd - Erstellt den forecast Command
func newForecastCmd() *cobra.Command {
	forecastCmd := &cobra.Command{
		Use:     "forecast MODEL",
		Short:   "Forecast future values with a trained model",
		Args:    cobra.ExactArgs(1),
		PreRunE: checkServerHeartbeat,
		RunE:    ForecastHandler,
	}

	forecastCmd.Flags().Int("horizon", 1, "Number of steps to forecast")
	forecastCmd.Flags().Float64("level", 0, "Confidence level for forecast bands (e.g. 0.95)")
	forecastCmd.Flags().String("keepalive", "", "Duration to keep the model loaded (e.g. 5m)")
	forecastCmd.Flags().StringP("output", "o", "", "Write the forecast to a CSV file instead of stdout")

	return forecastCmd
}
