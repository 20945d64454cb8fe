// Package stdio implements a single-connection MCP transport over
// stdin/stdout. It suits embedding a server as a subprocess and local
// development, where piping newline-delimited JSON beats running an
// HTTP listener.
//
// Characteristics
//
//	Connection model : 1 process <-> 1 client
//	Auth             : OS user (implicit principal, no bearer token)
//	Sessions         : exactly one, living until EOF
//	Framing          : newline-delimited JSON-RPC
//
// Example:
//
//	eng := engine.New(mcp.ImplementationInfo{Name: "my-server", Version: "0.1.0"},
//	    engine.WithTools(tools))
//	h := stdio.NewHandler(eng)
//	if err := h.Serve(context.Background()); err != nil { log.Fatal(err) }
//
// For multi-session deployments with bearer authentication and SSE
// fan-out, use the streamhttp transport instead.
package stdio
