// Package logx provides the process-wide structured logging service.
//
// It wraps zerolog behind a small Logger value type so call sites never
// import zerolog directly, and multiplexes output to console, file and a
// rate-limited Telegram chat. Sinks and levels can be swapped at runtime
// via Apply(), which the config hot-reload path uses.
package logx
