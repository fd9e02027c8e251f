// Package commands implements ballotcli, a command line client for the
// ballot API.
package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.vocdoni.io/zkballot/api/client"
	"go.vocdoni.io/zkballot/log"
)

var (
	apiURL   string
	debug    bool
	home     string
	password string
)

// when running ballotcli in a test harness which has its own logger setup,
// SetupLogPackage should be false so that ballotcli won't override the test
// harness's logger settings
var SetupLogPackage bool
var Stdout io.Writer
var Stderr io.Writer
var Stdin io.Reader

func init() {
	Stdout = os.Stdout
	Stderr = os.Stderr
	Stdin = os.Stdin
	SetupLogPackage = true
	RootCmd.CompletionOptions.DisableDefaultCmd = true
	defaultHome := ""
	if h, err := os.UserHomeDir(); err == nil {
		defaultHome = h + "/.ballotcli"
	}
	RootCmd.PersistentFlags().StringVarP(&apiURL, "url", "u", "http://127.0.0.1:9090", "ballot API URL")
	RootCmd.PersistentFlags().StringVar(&home, "home", defaultHome, "root directory where the key files are stored")
	RootCmd.PersistentFlags().StringVar(&password, "password", "", "supply the password as an argument instead of prompting")
	RootCmd.PersistentFlags().BoolVarP(&debug, "debug", "d", false, "prints additional information")

	RootCmd.AddCommand(keysCmd, secretCmd, inputsCmd, registerCmd, voteCmd,
		candidatesCmd, statusCmd, txCmd, adminCmd)
	keysCmd.AddCommand(keysNewCmd, keysImportCmd, keysListCmd)
	adminCmd.AddCommand(addCandidateCmd, setPeriodCmd)
}

// Execute runs the root command.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		fmt.Fprintln(Stderr, err)
		os.Exit(1)
	}
}

var RootCmd = &cobra.Command{
	Use:          "ballotcli",
	Short:        "ballotcli registers voters, casts votes and manages a ballot node",
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if SetupLogPackage {
			if debug {
				log.Init("debug", "stderr")
			} else {
				log.Init("error", "stderr")
			}
		}
	},
}

func newClient() (*client.HTTPclient, error) {
	return client.New(apiURL)
}

func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(Stdout, string(data))
	return nil
}
