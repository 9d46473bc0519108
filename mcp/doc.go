// Package mcp implements the protocol side of the OmniFocus bridge: a
// line-delimited JSON-RPC engine serving a single client, the session state
// machine that gates tool access behind initialize, and a static tool catalog.
//
// Example:
//
//	package main
//
//	import (
//		"context"
//		"os"
//
//		"github.com/shaharia-lab/omnifocus-gtd/mcp"
//	)
//
//	func main() {
//		echo := mcp.Tool{
//			Name:        "echo",
//			Description: "Echo the given text.",
//			InputSchema: mcp.ObjectSchema(map[string]mcp.Property{
//				"text": {Type: "string", Description: "Text to echo"},
//			}, "text").MustJSON(),
//			Handler: func(ctx context.Context, params mcp.CallToolParams) (mcp.CallToolResult, error) {
//				return mcp.TextResult(string(params.Arguments)), nil
//			},
//		}
//
//		tools, err := mcp.NewToolManager(nil, echo)
//		if err != nil {
//			panic(err)
//		}
//
//		baseServer, err := mcp.NewBaseServer(mcp.UseTools(tools))
//		if err != nil {
//			panic(err)
//		}
//
//		server := mcp.NewStdIOServer(baseServer, os.Stdin, os.Stdout)
//		if err := server.Run(context.Background()); err != nil {
//			panic(err)
//		}
//	}
//
// Requests carry the envelope version in a "protocolVersion" field (or the
// standard "jsonrpc" field, answered in kind). Requests without an id are
// notifications and are never answered. Lines that are not valid JSON, or that
// carry an envelope version other than "2.0", are dropped without a reply.
// A shutdown sent without an id stops the server without a reply.
//
// StdIOClient is a minimal client used to drive the server end to end in
// tests. It is not meant as a general MCP client.
package mcp
