// Package logx is postbot's structured logger, a thin layer over zerolog.
//
// A Service fans records out to a readable console, an append-only JSON file
// and, when a Sender is supplied, a rate-limited Telegram alert sink for
// warnings and errors. Loggers obtained from a Service survive Apply, so the
// outputs can be swapped on config reload.
package logx
