// Package model defines the provider-agnostic abstractions for talking to a
// chat model inside WeatherMesh.
//
// Core goals:
//   - Expose every backend as a stream of Fragments (text or tool call deltas)
//   - Normalize tool declarations (ToolDefinition) across vendors
//   - Keep request shapes minimal and transport independent
//   - Facilitate deterministic scripting for tests (MockModel)
//
// Providers (Azure OpenAI, OpenAI, Anthropic) implement the Model interface
// from this package so the orchestration loop remains decoupled from vendor SDKs.
package model
