// jobpool-cli — инструмент командной строки для управления jobpool
// через admin API.
//
// Использование:
//
//	jobpool-cli [--api-url URL] [--json] <command> <subcommand> [flags]
//
// Команды:
//
//	job   Постановка задач в очередь и ожидание результата
//	pool  Статус и управление пулом
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/shaiso/jobpool/internal/cli"
)

var version = "dev"

func main() {
	var apiURL string
	var jsonOutput bool

	rootCmd := &cobra.Command{
		Use:           "jobpool-cli",
		Short:         "jobpool CLI — job queue administration tool",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&apiURL, "api-url", "http://localhost:8090", "admin API server URL")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")

	clientFn := func() *cli.Client { return cli.NewClient(apiURL) }
	outputFn := func() *cli.Output { return cli.NewOutput(jsonOutput) }

	rootCmd.AddCommand(
		cli.NewJobCmd(clientFn, outputFn),
		cli.NewPoolCmd(clientFn, outputFn),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
