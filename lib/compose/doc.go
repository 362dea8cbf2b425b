// Package compose bridges application values and lib/tree. A decomposer turns
// a bound value into a tree before it is written to the wire, a composer fills
// a bound value from a decoded tree. Neither side knows anything about the
// codec in use.
//
// The package focuses on:
//   - Binding values to the IDecomposer / IComposer interfaces
//   - Per-type Converters for the built-in Go types and containers
//   - A process wide type registry used for dynamic (polymorphic) values
//
// Key Components:
//
//   - Converter[T]: a pair of functions plus a type name. Decomposer and
//     Composer bind a value (or a pointer to one) to a Converter.
//
//   - IComposers: the parameter sink of one call. NewComposers accepts an exact
//     number of parameters, NewVarComposers accepts any number and keeps the
//     raw trees for procedures that take their arguments untyped.
//
//   - Register / Lookup / LookupName: the registry. Lookup resolves a Converter
//     by Go type, LookupName by the type name carried on a node, which is how
//     Any reconstructs registered types.
//
// Thread Safety:
//
//	Registry functions are safe for concurrent use. Bound composers and
//	decomposers belong to a single call and must not be shared.
package compose
