package serve

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	cmdUtil "github.com/ValentinKolb/binrpc/cmd/util"
	"github.com/ValentinKolb/binrpc/rpc/common"
	"github.com/ValentinKolb/binrpc/rpc/server"
	"github.com/ValentinKolb/binrpc/rpc/service"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	serveCmdConfig = common.DefaultServerConfig()
	ServeCmd       = &cobra.Command{
		Use:     "serve",
		Short:   "Start a binrpc demo server",
		Long:    `Start a binrpc server that exposes the demo procedures (echo, add, sum, sleep, fail, stats). The configuration can be set via command line flags or environment variables. The format of the environment variables is BINRPC_<flag> (e.g. BINRPC_MAX_THREADS=32)`,
		PreRunE: processConfig,
		RunE:    run,
	}
)

func init() {
	// initialize viper
	cobra.OnInitialize(cmdUtil.InitConfig)

	cmdUtil.SetupTransportFlags(ServeCmd)

	// add flags
	key := "backlog"
	ServeCmd.PersistentFlags().Int(key, common.DefaultBacklog, cmdUtil.WrapString("Maximum number of accepted connections waiting for a worker, further connections are closed"))

	key = "min-threads"
	ServeCmd.PersistentFlags().Int(key, common.DefaultMinThreads, cmdUtil.WrapString("Number of permanent worker threads"))

	key = "max-threads"
	ServeCmd.PersistentFlags().Int(key, common.DefaultMaxThreads, cmdUtil.WrapString("Maximum number of worker threads"))

	key = "idle-timeout"
	ServeCmd.PersistentFlags().Duration(key, common.DefaultIdleTimeout, cmdUtil.WrapString("Time without traffic after which a connection releases its worker"))

	key = "write-timeout"
	ServeCmd.PersistentFlags().Duration(key, common.DefaultWriteTimeout, cmdUtil.WrapString("Deadline for writing replies, also the grace period on shutdown"))

	key = "accept-rate"
	ServeCmd.PersistentFlags().Float64(key, 0, cmdUtil.WrapString("Maximum number of accepted connections per second (0: unlimited)"))

	key = "accept-burst"
	ServeCmd.PersistentFlags().Int(key, 1, cmdUtil.WrapString("Burst size of the accept limiter"))

	key = "max-depth"
	ServeCmd.PersistentFlags().Int(key, common.DefaultMaxDepth, cmdUtil.WrapString("Maximum nesting depth of parameter trees"))

	key = "max-string-length"
	ServeCmd.PersistentFlags().Int(key, common.DefaultMaxStringLength, cmdUtil.WrapString("Maximum length of strings and byte arrays on the wire"))

	key = "metrics-endpoint"
	ServeCmd.PersistentFlags().String(key, "", cmdUtil.WrapString("Address of the http endpoint exposing /metrics and /debug/pprof (empty: disabled)"))

	key = "discovery-ttl"
	ServeCmd.PersistentFlags().Int64(key, common.DefaultDiscoveryTTL, cmdUtil.WrapString("Lease TTL in seconds of the etcd registration"))

	key = "log-level"
	ServeCmd.PersistentFlags().String(key, "info", cmdUtil.WrapString("LogLevel is the level at which logs will be output (debug, info, warn, error)"))
}

// processConfig reads the configuration from the command line flags and environment variables and converts them to the server configuration
func processConfig(cmd *cobra.Command, _ []string) error {
	// bind the flags to viper
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	serveCmdConfig.Endpoint = viper.GetString("endpoint")
	serveCmdConfig.Transport = viper.GetString("transport")
	serveCmdConfig.Backlog = viper.GetInt("backlog")
	serveCmdConfig.MinThreads = viper.GetInt("min-threads")
	serveCmdConfig.MaxThreads = viper.GetInt("max-threads")
	serveCmdConfig.IdleTimeout = viper.GetDuration("idle-timeout")
	serveCmdConfig.WriteTimeout = viper.GetDuration("write-timeout")
	serveCmdConfig.AcceptRate = viper.GetFloat64("accept-rate")
	serveCmdConfig.AcceptBurst = viper.GetInt("accept-burst")
	serveCmdConfig.MaxDepth = viper.GetInt("max-depth")
	serveCmdConfig.MaxStringLength = viper.GetInt("max-string-length")
	serveCmdConfig.MetricsEndpoint = viper.GetString("metrics-endpoint")
	serveCmdConfig.EtcdEndpoints = cmdUtil.EtcdEndpoints()
	serveCmdConfig.ServiceName = viper.GetString("service-name")
	serveCmdConfig.DiscoveryTTL = viper.GetInt64("discovery-ttl")
	serveCmdConfig.LogLevel = viper.GetString("log-level")

	if serveCmdConfig.MaxThreads < serveCmdConfig.MinThreads {
		return fmt.Errorf("max-threads (%d) must not be lower than min-threads (%d)", serveCmdConfig.MaxThreads, serveCmdConfig.MinThreads)
	}
	return common.InitLoggers(serveCmdConfig.LogLevel)
}

// run starts the server and blocks until SIGINT or SIGTERM
func run(_ *cobra.Command, _ []string) error {
	connector, err := cmdUtil.GetServerConnector()
	if err != nil {
		return err
	}

	registry := service.NewRegistry()
	s := server.NewRPCServer(serveCmdConfig, registry, connector)
	if err := registerDemoProcedures(registry, s); err != nil {
		return err
	}

	s.OnEvent(func(ev server.Event) {
		if ev.Kind == server.EventRunmode {
			server.Logger.Infof("%s", ev)
		}
	})

	if err := s.Listen(serveCmdConfig.Endpoint, serveCmdConfig.Backlog); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return s.Serve(ctx)
}
