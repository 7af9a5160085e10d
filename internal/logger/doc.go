// Package logger wraps zap to offer:
//   - a global sugared logger writing to stderr (stdout stays free for command output),
//   - console or JSON encoding selected at startup,
//   - context helpers (ToContext/FromContext/WithName/WithKV),
//   - level parsing and runtime level switching,
//   - leveled helpers (Infof, ErrorKV, etc.).
//
// Components never hold a logger field: they take a context and log through
// whatever logger the caller attached to it.
package logger
