// Package mcp defines the protocol vocabulary shared by the engine and the
// transports: method names, capability advertisements, content blocks, and
// the request/result payload shapes for every operation the dispatcher
// supports. The types mirror the MCP wire format; JSON-RPC framing lives in
// internal/jsonrpc.
package mcp
