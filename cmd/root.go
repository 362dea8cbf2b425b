package cmd

import (
	"fmt"
	"os"

	"github.com/ValentinKolb/binrpc/cmd/call"
	"github.com/ValentinKolb/binrpc/cmd/serve"
	"github.com/spf13/cobra"
)

const (
	Version = "0.3.0"
)

var (

	// RootCmd represents the base command when called without any subcommands
	RootCmd = &cobra.Command{
		Use:   "binrpc",
		Short: "binary rpc server and client",
		Long: fmt.Sprintf(`binrpc (v%s)

A small binary RPC stack written in Go: a tagged value tree, a compact
dictionary codec and a thread-bounded server with idle connection migration.`, Version),
	}
	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of binrpc",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("binrpc v%s\n", Version)
		},
	}
)

func init() {
	// Add Commands
	RootCmd.AddCommand(serve.ServeCmd)
	RootCmd.AddCommand(call.CallCmd)
	RootCmd.AddCommand(versionCmd)
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the RootCmd.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
