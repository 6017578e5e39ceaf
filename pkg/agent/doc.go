// Package agent defines the executor contract and the router that
// dispatches executor steps by name.
//
// Executors shipped here:
//   - chat: answers through an llm.Provider with persona, profile and
//     recent memory composed into the prompt
//   - mcp, a2a: forward the instruction over a ProtocolClient
package agent
