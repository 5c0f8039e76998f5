package providers

import "strings"

// Conversation roles
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one turn of a conversation
type Message struct {
	Role    string
	Content string
}

// Conversation returns the turns to send to a chat backend: the system
// prompt, the history in order, then Prompt as the newest user turn. Empty
// pieces are left out.
func (r *Request) Conversation() []Message {
	turns := make([]Message, 0, len(r.Messages)+2)
	if r.SystemPrompt != "" {
		turns = append(turns, Message{Role: RoleSystem, Content: r.SystemPrompt})
	}
	turns = append(turns, r.Messages...)
	if strings.TrimSpace(r.Prompt) != "" {
		turns = append(turns, Message{Role: RoleUser, Content: r.Prompt})
	}
	return turns
}

// Question returns what the caller is asking: Prompt when set, otherwise the
// newest non-blank user turn of the history.
func (r *Request) Question() string {
	if strings.TrimSpace(r.Prompt) != "" {
		return r.Prompt
	}
	for i := len(r.Messages) - 1; i >= 0; i-- {
		msg := r.Messages[i]
		if msg.Role == RoleUser && strings.TrimSpace(msg.Content) != "" {
			return msg.Content
		}
	}
	return ""
}
