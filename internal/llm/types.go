// Package llm provides the chat model backend client.
package llm

// Message represents a chat message for the model.
type Message struct {
	Role       string     `json:"role"` // system, user, assistant, tool
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"` // for tool responses
}

// ToolCall represents a tool invocation requested by the model.
type ToolCall struct {
	ID       string `json:"id,omitempty"`
	Type     string `json:"type,omitempty"`
	Function struct {
		Name string `json:"name"`
		// Arguments is a JSON object encoded as a string, per the
		// chat completions wire format.
		Arguments string `json:"arguments"`
	} `json:"function"`
}

// Usage is the token accounting block the backend reports per call.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ChatResponse is the unified response from the model backend: either
// a final content string or a single requested tool call, plus usage.
type ChatResponse struct {
	Model        string
	Message      Message
	FinishReason string
	Usage        Usage
}

// ToolCall returns the requested tool call, or nil when the response
// is final content. The dispatcher resolves at most one tool call per
// round trip, so only the first entry is ever consulted.
func (r *ChatResponse) ToolCall() *ToolCall {
	if len(r.Message.ToolCalls) == 0 {
		return nil
	}
	return &r.Message.ToolCalls[0]
}
