// Package logging wraps zap with context-aware methods.
//
// Every method takes a context and prepends correlation fields found there:
// the OpenTelemetry trace and span IDs, the module ID of the module whose
// code is running, and the ID of the event being dispatched.
//
//	log := logging.FromContext(ctx)
//	log.Info(ctx, "module loaded", zap.String("entry", "wiki"))
package logging
