// Package middleware provides the HTTP middleware chain: request IDs,
// structured request logging with metrics, session establishment from
// inbound credentials, and login rate limiting (in-memory or Redis-backed).
package middleware
