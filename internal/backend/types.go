package backend

import "time"

// Turn roles inside a Conversation.
const (
	TurnUser      = "user"
	TurnAssistant = "assistant"
)

// Turn is one entry of a provider's conversation memory.
type Turn struct {
	Role      string // "user" or "assistant"
	Content   string
	Timestamp time.Time
}

// Conversation is the ordered memory of one provider within a run.
type Conversation []Turn

// Append returns a copy of c with a new turn at the end. The receiver is never modified.
func (c Conversation) Append(role, content string) Conversation {
	out := make(Conversation, len(c), len(c)+1)
	copy(out, c)
	return append(out, Turn{Role: role, Content: content, Timestamp: time.Now()})
}

// Message represents a request sent to the backend.
type Message struct {
	System  string       // System prompt for this call
	Content string       // The instruction to answer
	History Conversation // Prior turns, oldest first
}

// Reply builds the Response for content, extending the message history with
// the user instruction and the assistant answer.
func (m Message) Reply(content string, usage Usage) Response {
	return Response{
		Content: content,
		History: m.History.Append(TurnUser, m.Content).Append(TurnAssistant, content),
		Usage:   usage,
	}
}

// Usage reports token accounting when the provider exposes it.
type Usage struct {
	InputTokens  int64
	OutputTokens int64
}

// Response represents a response from the backend.
type Response struct {
	Content string
	History Conversation // Message.History plus this exchange
	Usage   Usage
}

// Config defines the configuration for a backend.
type Config struct {
	Type      string   // "anthropic", "claude", "codex", or "goose"
	Command   string   // Executable override for CLI backends
	Args      []string // Extra arguments appended to CLI invocations
	WorkDir   string
	Model     string
	Provider  string // For Goose local LLMs (e.g., "ollama", "lmstudio", "llama.cpp")
	APIKey    string
	BaseURL   string
	MaxTokens int64
}
