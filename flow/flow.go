// Package flow implements the tool-calling orchestration of WeatherMesh.
//
// A Loop sends the conversation to a model.Model, hands the streamed reply to
// a StreamAggregator, and either records the final answer or runs the
// requested tools through a FunctionExecutor and asks the model again. Request
// construction is split into RequestProcessors (instructions, history, tools,
// generation options) that run in order before every model call.
package flow
