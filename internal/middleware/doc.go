// Package middleware provides the HTTP middleware of the cache server.
//
// It includes:
//   - Request logging in W3C Extended Log Format, with successful media
//     streams left out unless LOG_STATIC_FILES is set
//   - Prometheus request metrics labelled by gorilla/mux route template
//   - gzip compression of text-like responses
package middleware
