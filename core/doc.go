// Package core provides the foundational domain types used by the weather
// assistant. It defines:
//
//   - Turns (immutable conversation units tagged user / assistant / tool_call / tool_result)
//   - Parts (closed variant of turn payloads: text, function call, function response)
//   - Conversation (append-only history sent to the model on every call)
//   - IterationLimiter (bound on model calls per exchange)
//   - ToolContext (scoped surface handed to tool implementations)
//   - The error taxonomy shared by registry, executor and orchestration loop
//
// Orchestration, providers and concrete tools live in other packages; core
// only exposes small value types and interfaces.
package core
