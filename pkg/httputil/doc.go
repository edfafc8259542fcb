// Package httputil provides the JSON response helpers, request decoding and
// the HTTP middleware shared by the gateway's handlers.
//
// Handlers decode with DecodeAndValidate, which applies validator/v10 struct
// tags, and report failures with WriteAppError so every error body has the
// single shape {"error": "..."}:
//
//	var req inviteRequest
//	if err := httputil.DecodeAndValidate(r, &req); err != nil {
//		httputil.WriteAppError(w, r, err)
//		return
//	}
//
// Middleware composes with Chain:
//
//	httputil.Chain(
//		httputil.RequestIDMiddleware,
//		httputil.LoggingMiddleware(logger),
//		httputil.RecoveryMiddleware,
//		httputil.CORSMiddleware(nil),
//		httputil.MaxBytesMiddleware(maxBody),
//	)
package httputil
