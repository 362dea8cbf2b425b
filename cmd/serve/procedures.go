package serve

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ValentinKolb/binrpc/lib/tree"
	"github.com/ValentinKolb/binrpc/rpc/common"
	"github.com/ValentinKolb/binrpc/rpc/server"
	"github.com/ValentinKolb/binrpc/rpc/service"
)

// registerDemoProcedures adds the procedures served by the serve command
func registerDemoProcedures(r *service.Registry, s *server.RPCServer) error {
	return errors.Join(
		// echo returns its parameters, a single parameter as is
		service.RegisterGeneric(r, "echo", func(_ context.Context, _ string, args []*tree.Node) (*tree.Node, error) {
			if len(args) == 1 {
				return args[0], nil
			}
			arr := tree.NewArray()
			for _, a := range args {
				if _, err := arr.AddElement(a); err != nil {
					return nil, err
				}
			}
			return arr, nil
		}, service.Inline()),

		service.Register2(r, "add", func(_ context.Context, a, b int64) (int64, error) {
			return a + b, nil
		}, service.Inline()),

		service.RegisterGeneric(r, "sum", func(_ context.Context, method string, args []*tree.Node) (*tree.Node, error) {
			var total float64
			for i, a := range args {
				f, err := a.AsFloat()
				if err != nil {
					return nil, common.NewRemoteError(common.FaultConversion, fmt.Sprintf("%s: parameter %d: %v", method, i+1, err))
				}
				total += f
			}
			return tree.NewFloat(total), nil
		}),

		service.Register1(r, "sleep", func(ctx context.Context, ms int64) (string, error) {
			select {
			case <-time.After(time.Duration(ms) * time.Millisecond):
				return "slept " + (time.Duration(ms) * time.Millisecond).String(), nil
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}),

		service.Register1(r, "fail", func(_ context.Context, msg string) (bool, error) {
			return false, common.Errorf("%s", msg)
		}),

		service.Register0(r, "stats", func(context.Context) (map[string]any, error) {
			st := s.Stats()
			return map[string]any{
				"runmode":            st.Runmode.String(),
				"connections":        int64(st.Connections),
				"idle_connections":   int64(st.IdleConnections),
				"busy_workers":       st.BusyWorkers,
				"total_workers":      st.TotalWorkers,
				"queued_jobs":        st.QueuedJobs,
				"calls":              st.Calls,
				"faults":             st.Faults,
				"protocol_errors":    st.ProtocolErrors,
				"median_request_len": int64(st.MedianRequestLen),
				"median_reply_len":   int64(st.MedianReplyLen),
			}, nil
		}),
	)
}
