// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package observability sets up OpenTelemetry tracing.

Init installs an OTLP/HTTP exporter when OTEL_EXPORTER_OTLP_ENDPOINT is
configured; otherwise spans go to the global no-op tracer and cost nothing:

	tp, err := observability.Init(ctx, observability.Config{Endpoint: cfg.OTLPEndpoint})
	defer tp.Shutdown(ctx)

Poll closing and HTTP requests start spans through Tracer.
*/
package observability
