package call

import (
	"context"
	"fmt"
	"log"
	"math"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/ValentinKolb/binrpc/cmd/util"
	"github.com/ValentinKolb/binrpc/lib/tree"
	"github.com/ValentinKolb/binrpc/rpc/client"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	benchCmd = &cobra.Command{
		Use:   "bench [method] [args...]",
		Short: "Benchmark a remote method with parallel clients",
		Long: `Call a remote method repeatedly from several clients in parallel and
print throughput and latency. Every client owns its own connection.`,
		Args:    cobra.MinimumNArgs(1),
		PreRunE: processBenchConfig,
		RunE:    runBench,
	}
	benchThreads = 10
)

func init() {
	key := "threads"
	benchCmd.Flags().Int(key, 10, util.WrapString("Number of parallel clients"))
}

func processBenchConfig(cmd *cobra.Command, _ []string) error {
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}
	benchThreads = max(viper.GetInt("threads"), 1)
	return nil
}

func runBench(_ *cobra.Command, args []string) error {
	method := args[0]
	params := make([]*tree.Node, len(args)-1)
	for i, a := range args[1:] {
		params[i] = util.ParseArg(a)
	}

	config := util.GetClientConfig()
	fmt.Println("Benchmarking", method)
	fmt.Println(config.String())
	fmt.Printf("Threads: %d\n\n", benchThreads)

	// one client per goroutine, handed out round robin
	clients := make(chan *client.RPCClient, benchThreads)
	var all []*client.RPCClient
	for i := 0; i < benchThreads; i++ {
		connector, err := util.GetClientConnector()
		if err != nil {
			return err
		}
		c := client.NewRPCClient(*config, connector)
		all = append(all, c)
		clients <- c
	}
	defer func() {
		for _, c := range all {
			_ = c.Close()
		}
	}()

	// warm up the connections, a failure here aborts the benchmark
	if _, err := all[0].CallNode(context.Background(), method, params...); err != nil {
		return fmt.Errorf("warm up call failed: %w", err)
	}

	var (
		errMu    sync.Mutex
		errCount int
	)
	result := testing.Benchmark(func(b *testing.B) {
		b.SetParallelism(int(math.Ceil(float64(benchThreads) / float64(runtime.GOMAXPROCS(0)))))
		b.ResetTimer()
		b.RunParallel(func(pb *testing.PB) {
			c := <-clients
			defer func() { clients <- c }()
			for pb.Next() {
				if _, err := c.CallNode(context.Background(), method, params...); err != nil {
					errMu.Lock()
					if errCount == 0 {
						log.Printf("(%s) - call failed: %v\n", method, err)
					}
					errCount++
					errMu.Unlock()
				}
			}
		})
	})

	printResult(method, result, errCount)
	return nil
}

func printResult(name string, r testing.BenchmarkResult, errCount int) {
	if r.N == 0 {
		fmt.Printf("%-10s: no iterations\n", name)
		return
	}
	perOp := time.Duration(r.NsPerOp())
	opsPerSec := float64(r.N) / r.T.Seconds()
	fmt.Printf("%-10s: %d calls in %s, %s/op, %.0f ops/sec, %d errors\n",
		name, r.N, r.T.Round(time.Millisecond), perOp, opsPerSec, errCount)
}
