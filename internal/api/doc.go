// Package api implements the HTTP REST API and WebSocket server for hamonitor.
//
// This package provides:
//   - Read endpoints for the latest poll: offline devices and entities,
//     pending updates, balance readings and poll history
//   - Write endpoints that call Home Assistant services: installing and
//     skipping updates, editing to-do lists
//   - A WebSocket hub pushing every completed poll to subscribed dashboards
//   - JWT authentication with ticket-based WebSocket auth
//   - Middleware stack (request ID, logging, recovery, CORS, body limit)
//
// # Lifecycle
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
//
// # Security
//
// Every route except /api/v1/health and /metrics requires an HS256 bearer
// token signed with security.jwt.secret. Tokens are minted offline with
// `hamonitor -mint-token`. Browsers open the WebSocket with a single-use
// ticket from POST /api/v1/auth/ws-ticket so the token never appears in a URL.
//
// # Graceful Degradation
//
// Optional dependencies (to-do, update actions, history, metrics) may be nil;
// their routes then answer 404. Before the first poll completes the read
// endpoints answer 503.
package api
