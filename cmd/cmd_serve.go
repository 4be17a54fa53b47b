// cmd_serve.go - Server-Start und Versionsanzeige
// Hauptfunktionen: RunServer, versionHandler, newServeCmd
package cmd

import (
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/spf13/cobra"
	"golang.org/x/mod/semver"

	"github.com/nehal119/merlion-testing/api"
	"github.com/nehal119/merlion-testing/envconfig"
	"github.com/nehal119/merlion-testing/server"
	"github.com/nehal119/merlion-testing/version"
)

// RunServer - Startet den Prognose-Server
func RunServer(_ *cobra.Command, _ []string) error {
	ln, err := net.Listen("tcp", envconfig.Host().Host)
	if err != nil {
		return err
	}

	err = server.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}

	return err
}

// versionHandler - Zeigt Client- und Serverversion an
func versionHandler(cmd *cobra.Command, _ []string) {
	client, err := api.ClientFromEnvironment()
	if err != nil {
		return
	}

	serverVersion, err := client.Version(cmd.Context())
	if err != nil {
		fmt.Println("Warning: could not connect to a running merlion instance")
	}

	if serverVersion != "" {
		fmt.Printf("merlion version is %s\n", serverVersion)
	}

	// golang.org/x/mod/semver verlangt ein "v"-Praefix
	if semver.Compare("v"+serverVersion, "v"+version.Version) != 0 {
		fmt.Printf("Warning: client version is %s\n", version.Version)
	}
}

// newServeCmd - Erstellt den serve Command
func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "serve",
		Aliases: []string{"start"},
		Short:   "Start the forecasting server",
		Args:    cobra.ExactArgs(0),
		RunE:    RunServer,
	}
}
