// Package agent is the C4 Agent Runtime: a thin, side-effect-free contract
// over the underlying LLM that turns a bounded conversation window into a
// Turn for the orchestrator to apply.
package agent

import "context"

// Message is one turn of conversation history handed to the provider,
// independent of how the store represents it.
type Message struct {
	Role    string // "user", "assistant", or "system"
	Content string
}

// ToolSpec describes one callable tool and its JSON Schema parameters, as
// presented to the LLM.
type ToolSpec struct {
	Name        string
	Description string
	Schema      []byte // JSON Schema, e.g. {"type":"object","properties":{...}}
}

// ToolCall is one invocation the LLM requested.
type ToolCall struct {
	ID        string
	Name      string
	Arguments []byte // raw JSON arguments
}

// CompletionRequest is everything a provider needs to produce one
// assistant turn.
type CompletionRequest struct {
	Model     string
	System    string
	Messages  []Message
	Tools     []ToolSpec
	MaxTokens int
}

// CompletionResult is a provider's non-streaming response: text plus any
// tool calls the model wants executed.
type CompletionResult struct {
	Text      string
	ToolCalls []ToolCall
}

// Provider is the interface every LLM backend implements. The runtime
// never talks to a concrete SDK directly.
type Provider interface {
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResult, error)
}
