// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package middleware provides HTTP middleware and helper functions.

# Request Instrumentation

	mux.HandleFunc("GET /polls/{slug}", middleware.WithLogging(handler))

WithLogging assigns a request ID (kept from X-Request-ID when the caller sends
one, otherwise a new UUID), starts a trace span named after the route
pattern, records request count and latency in metrics.Default and logs the
completed request with its status and duration_ms. Handlers read the ID with
RequestID(r.Context()).

# CORS Middleware

	server := http.Server{
		Handler: middleware.CORS(mux),
	}

Reflects the caller's origin and allows the X-Admin-Key and X-Voter-Token
headers.

# JSON Helpers

	middleware.JSONResponse(w, http.StatusOK, data)
	middleware.ErrorResponse(w, http.StatusBadRequest, "message")

	var req models.SubmitBallotRequest
	if err := middleware.ParseJSONBody(r, &req); err != nil {
		middleware.ErrorResponse(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

# Client IP Extraction

GetClientIP prefers X-Forwarded-For, then X-Real-IP, then RemoteAddr. The
result is only stored hashed (auth.HashIP).
*/
package middleware
