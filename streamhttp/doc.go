// Package streamhttp implements the streaming HTTP transport: clients
// POST JSON-RPC messages to the MCP endpoint, open a long-lived GET SSE
// stream for server pushes, and DELETE to end the session. Bearer token
// authentication guards all three verbs, and the handler serves the OAuth
// protected-resource and authorization-server well-known documents.
package streamhttp
