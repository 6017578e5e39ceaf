// Package tools registers schema-described tools and invokes them with a
// total result contract.
//
// Invariants:
// - Tool names are unique, case-insensitive and trimmed.
// - Input schemas are compiled once, at registration.
// - Invoker.Invoke never panics and never returns a Go error; every failure
//   is a Result with a structured Error.
//
// Usage:
//
//	reg := tools.NewRegistry()
//	_ = tools.RegisterBuiltins(reg, tools.BuiltinOptions{})
//	inv := tools.NewInvoker(reg)
//	res := inv.Invoke(ctx, tools.Invocation{ToolName: "string.upper", Arguments: []byte(`{"text":"hi"}`)})
//	_ = res
package tools
