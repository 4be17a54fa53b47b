// cmd.go - Haupt-CLI Setup und Root Command
// Hauptfunktionen: NewCLI, appendEnvDocs
package cmd

import (
	"fmt"
	"log"

	"github.com/spf13/cobra"

	"github.com/nehal119/merlion-testing/envconfig"
)

// appendEnvDocs - Fuegt Umgebungsvariablen-Dokumentation zum Command hinzu
func appendEnvDocs(cmd *cobra.Command, envs []envconfig.EnvVar) {
	if len(envs) == 0 {
		return
	}

	envUsage := `
Environment Variables:
`
	for _, e := range envs {
		envUsage += fmt.Sprintf("      %-24s   %s\n", e.Name, e.Description)
	}

	cmd.SetUsageTemplate(cmd.UsageTemplate() + envUsage)
}

// NewCLI - Erstellt das Haupt-CLI mit allen Commands
func NewCLI() *cobra.Command {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	cobra.EnableCommandSorting = false

	rootCmd := &cobra.Command{
		Use:           "merlion",
		Short:         "Time series forecasting service",
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		Run: func(cmd *cobra.Command, args []string) {
			if version, _ := cmd.Flags().GetBool("version"); version {
				versionHandler(cmd, args)
				return
			}

			cmd.Print(cmd.UsageString())
		},
	}

	rootCmd.Flags().BoolP("version", "v", false, "Show version information")

	// Commands erstellen
	serveCmd := newServeCmd()
	trainCmd := newTrainCmd()
	forecastCmd := newForecastCmd()
	evalCmd := newEvalCmd()
	listCmd := newListCmd()
	showCmd := newShowCmd()
	deleteCmd := newDeleteCmd()
	importCmd := newImportCmd()
	runsCmd := newRunsCmd()

	// Environment-Dokumentation hinzufuegen
	envVars := envconfig.AsMap()
	envs := []envconfig.EnvVar{envVars["MERLION_HOST"]}

	for _, cmd := range []*cobra.Command{
		trainCmd,
		forecastCmd,
		evalCmd,
		listCmd,
		showCmd,
		deleteCmd,
		importCmd,
		runsCmd,
		serveCmd,
	} {
		switch cmd {
		case serveCmd:
			appendEnvDocs(cmd, []envconfig.EnvVar{
				envVars["MERLION_DEBUG"],
				envVars["MERLION_HOST"],
				envVars["MERLION_KEEP_ALIVE"],
				envVars["MERLION_MODELS"],
				envVars["MERLION_DB"],
				envVars["MERLION_ORIGINS"],
				envVars["MERLION_NUM_THREADS"],
				envVars["MERLION_SEED"],
			})
		case importCmd:
			appendEnvDocs(cmd, []envconfig.EnvVar{envVars["MERLION_MODELS"]})
		case runsCmd:
			appendEnvDocs(cmd, []envconfig.EnvVar{envVars["MERLION_DB"]})
		default:
			appendEnvDocs(cmd, envs)
		}
	}

	rootCmd.AddCommand(
		serveCmd,
		trainCmd,
		forecastCmd,
		evalCmd,
		listCmd,
		showCmd,
		deleteCmd,
		importCmd,
		runsCmd,
	)

	return rootCmd
}
