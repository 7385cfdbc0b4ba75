// Package internal implements the mortar core: the application registry, the
// context stacks, the dispatch pipeline, routing, response coercion, and
// error handler resolution.
//
// The root mortar package re-exports everything applications need; import
// this package directly only from within the module.
package internal
