package util

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ValentinKolb/binrpc/lib/tree"
	"github.com/ValentinKolb/binrpc/rpc/common"
	"github.com/ValentinKolb/binrpc/rpc/transport"
	"github.com/ValentinKolb/binrpc/rpc/transport/tcp"
	"github.com/ValentinKolb/binrpc/rpc/transport/unix"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	// Wrap is the number of characters to Wrap the help text at
	Wrap int = 50
)

// WrapString wraps a string at Wrap characters
func WrapString(text string) string {
	var wrappedLines []string
	var currentLine strings.Builder
	lineWidth := 0

	for _, word := range strings.Fields(text) {
		wordWidth := len(word)

		// Check if we need to wrap
		if lineWidth > 0 && lineWidth+1+wordWidth > Wrap {
			wrappedLines = append(wrappedLines, currentLine.String())
			currentLine.Reset()
			lineWidth = 0
		}

		if lineWidth > 0 {
			currentLine.WriteString(" ")
			lineWidth++
		}

		currentLine.WriteString(word)
		lineWidth += wordWidth
	}

	if currentLine.Len() > 0 {
		wrappedLines = append(wrappedLines, currentLine.String())
	}

	return strings.Join(wrappedLines, "\n")
}

// InitConfig loads .env files and binds BINRPC_* environment variables
func InitConfig() {
	// load env files
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	// initialize viper
	viper.SetEnvPrefix("binrpc")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv() // read in environment variables that match
}

// BindCommandFlags binds a command's flags to viper
func BindCommandFlags(cmd *cobra.Command) error {
	return viper.BindPFlags(cmd.Flags())
}

// --------------------------------------------------------------------------
// Transport flags
// --------------------------------------------------------------------------

// SetupTransportFlags adds the transport flags shared by client and server
func SetupTransportFlags(cmd *cobra.Command) {
	key := "transport"
	cmd.PersistentFlags().String(key, "tcp", WrapString("Transport to use (tcp, unix)"))

	key = "endpoint"
	cmd.PersistentFlags().String(key, "127.0.0.1:8080", WrapString("Address of the server (host:port for tcp, a socket path for unix)"))

	key = "transport-write-buffer"
	cmd.PersistentFlags().Int(key, 512, WrapString("The size of the socket write buffer (in KB, only for tcp)"))

	key = "transport-read-buffer"
	cmd.PersistentFlags().Int(key, 512, WrapString("The size of the socket read buffer (in KB, only for tcp)"))

	key = "transport-tcp-nodelay"
	cmd.PersistentFlags().Bool(key, true, WrapString("Whether to enable TCP_NODELAY"))

	key = "transport-tcp-keepalive"
	cmd.PersistentFlags().Int(key, 30, WrapString("The keepalive interval (in seconds, 0 disables keepalive)"))

	key = "transport-tcp-linger"
	cmd.PersistentFlags().Int(key, -1, WrapString("The linger time (in seconds, -1 uses the system default)"))

	key = "etcd-endpoints"
	cmd.PersistentFlags().String(key, "", WrapString("Comma-separated etcd endpoints for service discovery (empty: disabled)"))

	key = "service-name"
	cmd.PersistentFlags().String(key, common.DefaultServiceName, WrapString("Name under which servers are registered in etcd"))
}

// SetupRPCClientFlags adds the client flags to a command
func SetupRPCClientFlags(cmd *cobra.Command) {
	SetupTransportFlags(cmd)

	key := "timeout"
	cmd.PersistentFlags().Duration(key, common.DefaultCallTimeout, WrapString("The timeout of a single call"))
}

// tcpOptions reads the tcp socket options from viper
func tcpOptions() tcp.Options {
	return tcp.Options{
		NoDelay:         viper.GetBool("transport-tcp-nodelay"),
		KeepAlive:       time.Duration(viper.GetInt("transport-tcp-keepalive")) * time.Second,
		ReadBufferSize:  viper.GetInt("transport-read-buffer") * 1024,
		WriteBufferSize: viper.GetInt("transport-write-buffer") * 1024,
		Linger:          viper.GetInt("transport-tcp-linger"),
	}
}

// EtcdEndpoints returns the configured etcd endpoints
func EtcdEndpoints() []string {
	var out []string
	for _, e := range strings.Split(viper.GetString("etcd-endpoints"), ",") {
		if e = strings.TrimSpace(e); e != "" {
			out = append(out, e)
		}
	}
	return out
}

// GetClientConfig reads client configuration from viper
func GetClientConfig() *common.ClientConfig {
	conf := common.DefaultClientConfig()
	conf.Endpoint = viper.GetString("endpoint")
	conf.Transport = viper.GetString("transport")
	conf.Timeout = viper.GetDuration("timeout")
	conf.EtcdEndpoints = EtcdEndpoints()
	conf.ServiceName = viper.GetString("service-name")
	conf.Normalize()
	return &conf
}

// GetClientConnector creates the client connector based on configuration
func GetClientConnector() (transport.IClientConnector, error) {
	switch viper.GetString("transport") {
	case "tcp":
		return tcp.NewClientConnector(tcpOptions()), nil
	case "unix":
		return unix.NewClientConnector(), nil
	default:
		return nil, fmt.Errorf("invalid transport %s", viper.GetString("transport"))
	}
}

// GetServerConnector creates the server connector based on configuration
func GetServerConnector() (transport.IServerConnector, error) {
	switch viper.GetString("transport") {
	case "tcp":
		return tcp.NewServerConnector(tcpOptions()), nil
	case "unix":
		return unix.NewServerConnector(), nil
	default:
		return nil, fmt.Errorf("invalid transport %s", viper.GetString("transport"))
	}
}

// --------------------------------------------------------------------------
// Arguments
// --------------------------------------------------------------------------

// ParseArg turns a command line argument into a scalar node. Integers,
// floats and booleans are recognized, "null" is the null node and anything
// else is a string. A leading "s:" forces a string.
func ParseArg(arg string) *tree.Node {
	if s, ok := strings.CutPrefix(arg, "s:"); ok {
		return tree.NewString(s)
	}
	if arg == "null" {
		return tree.New()
	}
	if i, err := strconv.ParseInt(arg, 10, 64); err == nil {
		return tree.NewInt(i)
	}
	if f, err := strconv.ParseFloat(arg, 64); err == nil {
		return tree.NewFloat(f)
	}
	if b, err := strconv.ParseBool(arg); err == nil {
		return tree.NewBool(b)
	}
	return tree.NewString(arg)
}
