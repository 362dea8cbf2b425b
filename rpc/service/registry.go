package service

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/ValentinKolb/binrpc/lib/compose"
	"github.com/ValentinKolb/binrpc/rpc/common"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
)

var Logger = logger.GetLogger("rpc")

// ErrSealed is returned by Register once the registry is in use by a server.
var ErrSealed = errors.New("registry is sealed")

// --------------------------------------------------------------------------
// Interface Definition
// --------------------------------------------------------------------------

// IProcedure is the state of one call of a remote procedure. A fresh
// IProcedure is created for every call, so implementations may keep the
// decoded arguments in their fields.
type IProcedure interface {
	// BeginCall returns the sink for the parameters of the call.
	BeginCall(method string) (compose.IComposers, error)
	// EndCall runs the procedure and returns the decomposer of its result.
	// It is only called after all parameters were fixed up successfully.
	EndCall(ctx context.Context) (compose.IDecomposer, error)
}

// Factory creates the per-call state of a procedure.
type Factory func() IProcedure

// Entry is a registered procedure.
type Entry struct {
	Name    string
	Factory Factory
	// Inline procedures are cheap and run on the goroutine that parsed the
	// request instead of being handed to the worker pool.
	Inline bool
}

// New creates the per-call state.
func (e *Entry) New() IProcedure {
	return e.Factory()
}

// Option configures a registered procedure.
type Option func(*Entry)

// Inline marks a procedure as cheap enough to run without a worker.
func Inline() Option {
	return func(e *Entry) { e.Inline = true }
}

// --------------------------------------------------------------------------
// Registry
// --------------------------------------------------------------------------

// Registry maps method names to procedure factories. Registration is
// fail-fast: a name can only be registered once. Servers seal the registry
// before they start listening, after that it is read only.
type Registry struct {
	mu     sync.Mutex
	procs  *xsync.MapOf[string, *Entry]
	sealed atomic.Bool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{procs: xsync.NewMapOf[string, *Entry]()}
}

// Register adds a procedure under name.
func (r *Registry) Register(name string, f Factory, opts ...Option) error {
	if name == "" || f == nil {
		return fmt.Errorf("register %q: name and factory are required", name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sealed.Load() {
		return fmt.Errorf("register %q: %w", name, ErrSealed)
	}
	e := &Entry{Name: name, Factory: f}
	for _, opt := range opts {
		opt(e)
	}
	if _, loaded := r.procs.LoadOrStore(name, e); loaded {
		return fmt.Errorf("register %q: %w", name, common.ErrDuplicateProcedure)
	}
	Logger.Debugf("registered procedure %s (inline=%t)", name, e.Inline)
	return nil
}

// Seal prevents further registrations.
func (r *Registry) Seal() {
	r.mu.Lock()
	r.sealed.Store(true)
	r.mu.Unlock()
}

// Sealed reports whether Seal was called.
func (r *Registry) Sealed() bool {
	return r.sealed.Load()
}

// Lookup returns the entry registered under name or ErrMethodNotFound.
func (r *Registry) Lookup(name string) (*Entry, error) {
	e, ok := r.procs.Load(name)
	if !ok {
		return nil, fmt.Errorf("no such method: %q: %w", name, common.ErrMethodNotFound)
	}
	return e, nil
}

// Procedure returns fresh per-call state for name.
func (r *Registry) Procedure(name string) (IProcedure, error) {
	e, err := r.Lookup(name)
	if err != nil {
		return nil, err
	}
	return e.New(), nil
}

// Names returns all registered method names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, r.procs.Size())
	r.procs.Range(func(name string, _ *Entry) bool {
		names = append(names, name)
		return true
	})
	slices.Sort(names)
	return names
}

// --------------------------------------------------------------------------
// Invocation
// --------------------------------------------------------------------------

// Invoke runs EndCall and turns a panic into a FaultInternal error.
func Invoke(ctx context.Context, p IProcedure) (d compose.IDecomposer, err error) {
	defer func() {
		if r := recover(); r != nil {
			Logger.Errorf("procedure panicked: %v\n%s", r, debug.Stack())
			d, err = nil, common.NewRemoteError(common.FaultInternal, fmt.Sprintf("procedure panicked: %v", r))
		}
	}()
	return p.EndCall(ctx)
}
