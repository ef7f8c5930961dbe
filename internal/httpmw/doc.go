// Package httpmw provides HTTP middleware for the public-facing server.
//
// httpserver.NewHandler composes them outermost first: security headers,
// request ID, client IP, rate limiting, OTEL tracing, route context, trace
// response headers, metrics, logger injection, access log, route
// annotation, panic recovery, body limit and finally the chi router.
//
// Query strings and user agents are left out of logs.
package httpmw
