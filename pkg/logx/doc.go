// Package logx is posterbot's structured logging on top of zerolog.
//
// Components take a Logger value and derive from it with With(Comp("name")).
// Loggers built from a Service follow Service.Apply, so level and sink changes
// from a config reload reach every component without re-wiring.
package logx
