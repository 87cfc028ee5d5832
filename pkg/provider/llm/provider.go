// Package llm defines the Provider interface for Large Language Model backends.
//
// An LLM provider wraps a remote or local model API (OpenAI, Anthropic, Gemini,
// a local Ollama instance, ...) and exposes a uniform interface so the agent's
// decision step and the RAG service can request completions with tool calling
// without coupling to any specific SDK.
//
// Implementors must be safe for concurrent use.
package llm

import (
	"context"

	"github.com/MrWong99/travelgenie/pkg/types"
)

// Usage holds token accounting information returned by the LLM backend.
// All counts are in the model's native token unit and may differ between providers
// for the same textual content.
type Usage struct {
	// PromptTokens is the number of tokens consumed by the input messages and system
	// prompt.
	PromptTokens int

	// CompletionTokens is the number of tokens generated in the response.
	CompletionTokens int

	// TotalTokens is PromptTokens + CompletionTokens. Some providers return it
	// directly rather than computing it from the parts.
	TotalTokens int
}

// CompletionRequest carries everything the LLM needs to produce a response.
// At minimum Messages must be non-empty.
type CompletionRequest struct {
	// Messages is the ordered conversation history.
	Messages []types.Message

	// Tools is the set of function/tool definitions offered to the model. The model
	// may choose to call one or more of them in its response. Callers should check
	// Capabilities().SupportsToolCalling before relying on it.
	Tools []types.ToolDefinition

	// Temperature controls output randomness in the range [0.0, 2.0]. A value of
	// 0.0 leaves the provider default in place.
	Temperature float64

	// MaxTokens caps the number of completion tokens the model may generate.
	// Zero means use the provider default.
	MaxTokens int

	// SystemPrompt is an optional high-priority instruction placed before the
	// conversation history. Providers without a dedicated system field prepend it
	// as a "system"-role message. Providers must not prepend it when Messages
	// already starts with an identical system message.
	SystemPrompt string
}

// CompletionResponse is returned by Complete.
type CompletionResponse struct {
	// Content is the full text of the assistant's reply. Empty when the model
	// responds exclusively with tool calls.
	Content string

	// ToolCalls lists all tool invocations requested by the model. The caller is
	// responsible for executing them and appending the results to the conversation.
	ToolCalls []types.ToolCall

	// Usage contains token accounting for this request/response pair.
	Usage Usage
}

// Provider is the abstraction over any LLM backend.
//
// Each method should propagate context cancellation promptly: when ctx is
// cancelled the method must return as quickly as possible.
type Provider interface {
	// Complete sends req to the model and waits for the full response.
	//
	// Returns an error if the request fails or if ctx is cancelled before
	// the completion arrives.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)

	// CountTokens estimates the number of tokens that the given message list would
	// consume in the model's context window. The result need not be exact but
	// should not undercount.
	CountTokens(messages []types.Message) (int, error)

	// Capabilities returns static metadata describing what this provider's underlying
	// model supports. The result is constant for the lifetime of the Provider.
	Capabilities() types.ModelCapabilities
}

// WithSystemPrompt returns msgs with a system message carrying prompt prepended.
// It is a no-op when prompt is empty or when msgs already starts with a system
// message whose content equals prompt, so applying it twice never duplicates the
// system instruction.
func WithSystemPrompt(prompt string, msgs []types.Message) []types.Message {
	if prompt == "" {
		return msgs
	}
	if len(msgs) > 0 && msgs[0].Role == types.RoleSystem && msgs[0].Content == prompt {
		return msgs
	}
	out := make([]types.Message, 0, len(msgs)+1)
	out = append(out, types.Message{Role: types.RoleSystem, Content: prompt})
	return append(out, msgs...)
}
