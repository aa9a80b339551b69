package domain

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatMessage is the provider-agnostic chat message shape used by the core
// and LLM integrations. Thread context turns use the same shape with the
// user or assistant role.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}
