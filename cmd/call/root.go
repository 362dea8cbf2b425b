package call

import (
	"context"
	"fmt"

	"github.com/ValentinKolb/binrpc/cmd/util"
	"github.com/ValentinKolb/binrpc/lib/tree"
	"github.com/ValentinKolb/binrpc/rpc/client"
	"github.com/ValentinKolb/binrpc/rpc/common"
	"github.com/spf13/cobra"
)

var (
	rpcClient *client.RPCClient

	// CallCmd calls a single remote method
	CallCmd = &cobra.Command{
		Use:   "call [method] [args...]",
		Short: "Call a remote method and print the reply",
		Long: `Call a remote method and print the reply tree. Arguments are sent as
integers, floats or booleans when they parse as such, "null" is the null
value and everything else is a string. Prefix an argument with "s:" to
force a string.`,
		Args:              cobra.MinimumNArgs(1),
		PersistentPreRunE: setupClient,
		PersistentPostRun: closeClient,
		RunE: func(cmd *cobra.Command, args []string) error {
			params := make([]*tree.Node, len(args)-1)
			for i, a := range args[1:] {
				params[i] = util.ParseArg(a)
			}

			reply, err := rpcClient.CallNode(context.Background(), args[0], params...)
			if err != nil {
				return err
			}
			fmt.Println(reply.String())
			return nil
		},
	}
)

func init() {
	// Initialize viper
	cobra.OnInitialize(util.InitConfig)

	util.SetupRPCClientFlags(CallCmd)
	CallCmd.PersistentFlags().String("log-level", "warn", util.WrapString("LogLevel is the level at which logs will be output (debug, info, warn, error)"))

	CallCmd.AddCommand(benchCmd)
}

// setupClient initializes the RPC client
func setupClient(cmd *cobra.Command, _ []string) error {
	if err := util.BindCommandFlags(cmd); err != nil {
		return err
	}
	if err := common.InitLoggers(cmd.Flag("log-level").Value.String()); err != nil {
		return err
	}

	connector, err := util.GetClientConnector()
	if err != nil {
		return err
	}
	rpcClient = client.NewRPCClient(*util.GetClientConfig(), connector)
	return nil
}

func closeClient(_ *cobra.Command, _ []string) {
	if rpcClient != nil {
		_ = rpcClient.Close()
	}
}
