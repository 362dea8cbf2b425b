package server

import (
	"sync"
	"time"

	"github.com/ValentinKolb/binrpc/lib/compose"
	"github.com/ValentinKolb/binrpc/lib/util"
	"github.com/ValentinKolb/binrpc/rpc/common"
	"github.com/ValentinKolb/binrpc/rpc/serializer"
	"github.com/ValentinKolb/binrpc/rpc/transport"
)

// reply is the outcome of one call
type reply struct {
	result compose.IDecomposer
	err    error
}

var framePool = sync.Pool{
	New: func() any {
		b := make([]byte, 0, 4096)
		return &b
	},
}

// replyQueue releases the replies of a connection in request order.
//
// Calls finish in any order. A finished reply is parked under the sequence
// number of its request until all earlier replies were written. Replies are
// encoded only when they are released, so the reply dictionary sees the
// names in the same order as the client's parser.
type replyQueue struct {
	c *connection

	mu      sync.Mutex
	next    uint64
	pending *util.MapHeap[reply]
	ser     *serializer.Serializer
	failed  bool
}

func newReplyQueue(c *connection, opts serializer.Options) *replyQueue {
	return &replyQueue{
		c:       c,
		pending: util.NewMapHeap[reply](),
		ser:     serializer.NewSerializer(opts),
	}
}

// complete stores the reply for seq and writes every reply that is ready
func (q *replyQueue) complete(seq uint64, r reply) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.failed {
		return
	}
	q.pending.Push(seq, r)

	var frames [][]byte
	for {
		key, ready, ok := q.pending.Peek()
		if !ok || key != q.next {
			break
		}
		q.pending.Pop()
		q.next++
		frames = append(frames, q.encode(ready))
	}
	if len(frames) == 0 {
		return
	}

	q.c.setState(StateWritingReply)
	err := q.write(frames)
	for _, f := range frames {
		f = f[:0]
		framePool.Put(&f)
	}
	if err != nil {
		q.fail()
		go q.c.close(err)
	}
}

// fail discards all pending replies, later replies are dropped
func (q *replyQueue) fail() {
	q.failed = true
	for q.pending.Len() > 0 {
		q.pending.Pop()
	}
}

// discard is called when the connection closes
func (q *replyQueue) discard() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.fail()
}

// encode turns a reply into a frame. Failures while decomposing or encoding
// the result are sent as faults.
func (q *replyQueue) encode(r reply) []byte {
	buf := *framePool.Get().(*[]byte)
	m := q.c.s.metrics

	err := r.err
	if err == nil {
		n, derr := r.result.Decompose()
		if derr == nil {
			frame, eerr := q.ser.AppendReply(buf, n)
			if eerr == nil {
				m.replySizes.AddSample(len(frame))
				return frame
			}
			derr = eerr
		}
		err = common.NewRemoteError(common.FaultInternal, "encoding reply: "+derr.Error())
	}

	re := common.ToRemoteError(err)
	m.faults.Inc()
	Logger.Debugf("sending fault to %s: %v", q.c.remote, re)
	frame := q.ser.AppendFault(buf, int32(re.Code), re.Message)
	m.replySizes.AddSample(len(frame))
	return frame
}

func (q *replyQueue) write(frames [][]byte) error {
	conn := q.c.conn
	if timeout := q.c.s.config.WriteTimeout; timeout > 0 {
		if err := conn.SetWriteDeadline(time.Now().Add(timeout)); err != nil {
			return err
		}
	}
	_, err := transport.WriteFrames(conn, frames...)
	return err
}

