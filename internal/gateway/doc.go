// Package gateway serves the mentor HTTP JSON API.
//
// # Overview
//
// The gateway wires the persistence store, the agent backend, the turn
// orchestrator and the idempotency replay cache behind a single
// net/http server. All API routes require a JWT bearer token; the token
// subject is the owner of every conversation the request touches.
//
// # HTTP API
//
//   - POST /chat - Run one turn (optional Idempotency-Key header)
//   - GET /conversations - List the caller's conversations
//   - GET /conversations/{id} - One conversation with a page of messages
//   - PATCH /conversations/{id} - Rename a conversation
//   - DELETE /conversations/{id} - Delete a conversation and its messages
//   - DELETE /conversations - Bulk delete, all or nothing
//   - PUT /assessments/{domain} - Record a self-assessment
//   - GET /assessments/{domain} - Latest self-assessment
//   - GET /health - Liveness check
//   - GET /health/ready - Readiness check (pings the store)
//
// # Errors
//
// Every error body has the shape
//
//	{"success": false, "error": "...", "details": [{"field": "...", "message": "..."}]}
//
// Reusing an Idempotency-Key with a different message, conversationId or
// agentId is a validation failure on the Idempotency-Key field.
//
// Validation failures return 400, missing or foreign conversations 404
// and everything else 500. Internal error text is only exposed in the
// "debug" field when server.dev_mode is set.
//
// # Lifecycle
//
//	gw, err := gateway.New(cfg, logger)
//	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
//	defer cancel()
//	err = gw.Run(ctx)
//
// Run returns after a graceful shutdown that closes the store.
package gateway
