package service

import (
	"context"
	"fmt"

	"github.com/ValentinKolb/binrpc/lib/compose"
	"github.com/ValentinKolb/binrpc/lib/tree"
)

// --------------------------------------------------------------------------
// Typed procedures
// --------------------------------------------------------------------------

/*
 The RegisterN helpers wrap a plain Go function into a Factory. Converters for
 the argument and result types are looked up once at registration time, so a
 missing converter is reported by Register and never during a call.
*/

type proc0[R any] struct {
	fn func(context.Context) (R, error)
	cr compose.Converter[R]
}

func (p *proc0[R]) BeginCall(string) (compose.IComposers, error) {
	return compose.NewComposers(), nil
}

func (p *proc0[R]) EndCall(ctx context.Context) (compose.IDecomposer, error) {
	r, err := p.fn(ctx)
	if err != nil {
		return nil, err
	}
	return compose.Decomposer(p.cr, r), nil
}

// Register0 registers a procedure without arguments.
func Register0[R any](r *Registry, name string, fn func(context.Context) (R, error), opts ...Option) error {
	cr, err := compose.MustLookup[R]()
	if err != nil {
		return fmt.Errorf("register %q: result: %w", name, err)
	}
	return r.Register(name, func() IProcedure {
		return &proc0[R]{fn: fn, cr: cr}
	}, opts...)
}

type proc1[A, R any] struct {
	fn func(context.Context, A) (R, error)
	ca compose.Converter[A]
	cr compose.Converter[R]
	a  A
}

func (p *proc1[A, R]) BeginCall(string) (compose.IComposers, error) {
	return compose.NewComposers(compose.Composer(p.ca, &p.a)), nil
}

func (p *proc1[A, R]) EndCall(ctx context.Context) (compose.IDecomposer, error) {
	r, err := p.fn(ctx, p.a)
	if err != nil {
		return nil, err
	}
	return compose.Decomposer(p.cr, r), nil
}

// Register1 registers a procedure with one argument.
func Register1[A, R any](r *Registry, name string, fn func(context.Context, A) (R, error), opts ...Option) error {
	ca, err := compose.MustLookup[A]()
	if err != nil {
		return fmt.Errorf("register %q: argument 1: %w", name, err)
	}
	cr, err := compose.MustLookup[R]()
	if err != nil {
		return fmt.Errorf("register %q: result: %w", name, err)
	}
	return r.Register(name, func() IProcedure {
		return &proc1[A, R]{fn: fn, ca: ca, cr: cr}
	}, opts...)
}

type proc2[A, B, R any] struct {
	fn func(context.Context, A, B) (R, error)
	ca compose.Converter[A]
	cb compose.Converter[B]
	cr compose.Converter[R]
	a  A
	b  B
}

func (p *proc2[A, B, R]) BeginCall(string) (compose.IComposers, error) {
	return compose.NewComposers(
		compose.Composer(p.ca, &p.a),
		compose.Composer(p.cb, &p.b),
	), nil
}

func (p *proc2[A, B, R]) EndCall(ctx context.Context) (compose.IDecomposer, error) {
	r, err := p.fn(ctx, p.a, p.b)
	if err != nil {
		return nil, err
	}
	return compose.Decomposer(p.cr, r), nil
}

// Register2 registers a procedure with two arguments.
func Register2[A, B, R any](r *Registry, name string, fn func(context.Context, A, B) (R, error), opts ...Option) error {
	ca, err := compose.MustLookup[A]()
	if err != nil {
		return fmt.Errorf("register %q: argument 1: %w", name, err)
	}
	cb, err := compose.MustLookup[B]()
	if err != nil {
		return fmt.Errorf("register %q: argument 2: %w", name, err)
	}
	cr, err := compose.MustLookup[R]()
	if err != nil {
		return fmt.Errorf("register %q: result: %w", name, err)
	}
	return r.Register(name, func() IProcedure {
		return &proc2[A, B, R]{fn: fn, ca: ca, cb: cb, cr: cr}
	}, opts...)
}

type proc3[A, B, C, R any] struct {
	fn func(context.Context, A, B, C) (R, error)
	ca compose.Converter[A]
	cb compose.Converter[B]
	cc compose.Converter[C]
	cr compose.Converter[R]
	a  A
	b  B
	c  C
}

func (p *proc3[A, B, C, R]) BeginCall(string) (compose.IComposers, error) {
	return compose.NewComposers(
		compose.Composer(p.ca, &p.a),
		compose.Composer(p.cb, &p.b),
		compose.Composer(p.cc, &p.c),
	), nil
}

func (p *proc3[A, B, C, R]) EndCall(ctx context.Context) (compose.IDecomposer, error) {
	r, err := p.fn(ctx, p.a, p.b, p.c)
	if err != nil {
		return nil, err
	}
	return compose.Decomposer(p.cr, r), nil
}

// Register3 registers a procedure with three arguments.
func Register3[A, B, C, R any](r *Registry, name string, fn func(context.Context, A, B, C) (R, error), opts ...Option) error {
	ca, err := compose.MustLookup[A]()
	if err != nil {
		return fmt.Errorf("register %q: argument 1: %w", name, err)
	}
	cb, err := compose.MustLookup[B]()
	if err != nil {
		return fmt.Errorf("register %q: argument 2: %w", name, err)
	}
	cc, err := compose.MustLookup[C]()
	if err != nil {
		return fmt.Errorf("register %q: argument 3: %w", name, err)
	}
	cr, err := compose.MustLookup[R]()
	if err != nil {
		return fmt.Errorf("register %q: result: %w", name, err)
	}
	return r.Register(name, func() IProcedure {
		return &proc3[A, B, C, R]{fn: fn, ca: ca, cb: cb, cc: cc, cr: cr}
	}, opts...)
}

// --------------------------------------------------------------------------
// Generic procedures
// --------------------------------------------------------------------------

// GenericFunc receives the raw parameter trees of a call.
type GenericFunc func(ctx context.Context, method string, args []*tree.Node) (*tree.Node, error)

type genericProc struct {
	fn     GenericFunc
	method string
	args   *compose.VarComposers
}

func (p *genericProc) BeginCall(method string) (compose.IComposers, error) {
	p.method = method
	p.args = compose.NewVarComposers()
	return p.args, nil
}

func (p *genericProc) EndCall(ctx context.Context) (compose.IDecomposer, error) {
	n, err := p.fn(ctx, p.method, p.args.Nodes)
	if err != nil {
		return nil, err
	}
	return compose.NodeDecomposer{Node: n}, nil
}

// RegisterGeneric registers a procedure that accepts any number of untyped
// parameters, e.g. a proxy that forwards calls.
func RegisterGeneric(r *Registry, name string, fn GenericFunc, opts ...Option) error {
	return r.Register(name, func() IProcedure {
		return &genericProc{fn: fn}
	}, opts...)
}
