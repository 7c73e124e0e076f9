// Package logx is a thin structured-logging layer over zerolog.
//
// It exists so that components can take a Logger value without caring about
// sink configuration. The Service owns the sinks (console and/or file) and
// can swap them at runtime via Apply(), e.g. on a config hot reload; loggers
// created from the Service stay "live" across those swaps.
//
// The zero Logger value is a safe no-op.
package logx
