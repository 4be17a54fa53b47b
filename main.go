package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/nehal119/merlion-testing/cmd"
)

func main() {
	cobra.CheckErr(cmd.NewCLI().ExecuteContext(context.Background()))
}
