// Package logging builds the process logger and carries request scope
// through contexts.
//
// New returns a plain *slog.Logger configured from LoggingConfig, with
// a handler that appends the context's request scope (request id, run
// id, subject) to every record. Middleware stores the scope once:
//
//	ctx := logging.WithRequestID(r.Context(), requestID)
//
// and every InfoContext call below that point carries it, no matter
// how deep.
package logging
