// Package logx configures tickbus's structured logging.
//
// It wraps zerolog behind a small value-type Logger so that:
//   - console output stays readable (short timestamp + short caller)
//   - file output is JSON, one event per line
//   - the active sinks and level can be swapped at runtime (config hot reload)
package logx
