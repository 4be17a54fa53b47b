// cmd_train.go - Train Command
// Hauptfunktionen: TrainHandler, newTrainCmd
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nehal119/merlion-testing/api"
	"github.com/nehal119/merlion-testing/format"
	"github.com/nehal119/merlion-testing/ts"
)

// TrainHandler - Trainiert ein Modell auf einer CSV-Datei
func TrainHandler(cmd *cobra.Command, args []string) error {
	client, err := api.ClientFromEnvironment()
	if err != nil {
		return err
	}

	dataPath, err := cmd.Flags().GetString("data")
	if err != nil {
		return err
	}
	configPath, err := cmd.Flags().GetString("config")
	if err != nil {
		return err
	}
	target, err := cmd.Flags().GetString("target")
	if err != nil {
		return err
	}

	series, err := ts.ReadCSVFile(dataPath)
	if err != nil {
		return err
	}

	config, err := loadConfig(configPath, target, series)
	if err != nil {
		return err
	}

	fmt.Printf("training %q on %d rows of %d variables\n", args[0], series.Len(), series.Dim())

	resp, err := client.Train(cmd.Context(), &api.TrainRequest{
		Model:  args[0],
		Config: config,
		Series: api.FromTimeSeries(series),
	})
	if err != nil {
		return err
	}

	fmt.Printf("run %s finished in %s\n", resp.RunID, format.HumanDuration(resp.TotalDuration))
	for i, loss := range resp.TrainLoss {
		line := fmt.Sprintf("epoch %d/%d  train loss %.6f", i+1, resp.Epochs, loss)
		if i < len(resp.ValidLoss) {
			line += fmt.Sprintf("  valid loss %.6f", resp.ValidLoss[i])
		}
		if i+1 == resp.BestEpoch {
			line += "  *"
		}
		fmt.Println(line)
	}

	return nil
}

// newTrainCmd - Erstellt den train Command
func newTrainCmd() *cobra.Command {
	trainCmd := &cobra.Command{
		Use:     "train MODEL",
		Short:   "Train a forecaster on a CSV time series",
		Args:    cobra.ExactArgs(1),
		PreRunE: checkServerHeartbeat,
		RunE:    TrainHandler,
	}

	trainCmd.Flags().String("data", "", "CSV file with the training series (required)")
	trainCmd.Flags().String("config", "", "JSON file with the model configuration")
	trainCmd.Flags().String("target", "", "Name of the column to forecast (default: all columns)")
	trainCmd.MarkFlagRequired("data")

	return trainCmd
}
