// Package memory stores conversation turns and user profile facts.
//
// Invariants:
// - Recent returns newest turns first.
// - Each conversation keeps at most MaxTurns turns; the oldest is evicted first.
// - Profile patches merge into existing profiles key by key.
//
// Usage:
//
//	store, _ := memory.NewSQLiteStore(memory.SQLiteConfig{DBPath: "/data/memory.db"})
//	defer store.Close()
//	_ = store.Append(ctx, "conv-1", memory.TurnRecord{UserInput: "hi"})
//	turns, _ := store.Recent(ctx, "conv-1", 4)
//	_ = turns
package memory
