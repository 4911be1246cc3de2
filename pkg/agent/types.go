package agent

// HistoryMessage is one prior turn message sent as conversation context.
type HistoryMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request is the body of a chat request to the agent backend.
type Request struct {
	Query               string           `json:"query"`
	ConversationHistory []HistoryMessage `json:"conversationHistory"`
	Model               string           `json:"model"`
	Stream              bool             `json:"stream"`
}
