package telegram

// Update is one entry from getUpdates.
type Update struct {
	UpdateID int64            `json:"update_id"`
	Message  *IncomingMessage `json:"message"`
}

// IncomingMessage is an inbound chat message. Fields beyond what the
// bridge consumes are left unmapped.
type IncomingMessage struct {
	MessageID int64  `json:"message_id"`
	From      *User  `json:"from"`
	Chat      Chat   `json:"chat"`
	Date      int64  `json:"date"`
	Text      string `json:"text"`
}

// User identifies a message sender.
type User struct {
	ID        int64  `json:"id"`
	Username  string `json:"username"`
	FirstName string `json:"first_name"`
}

// Chat identifies a conversation.
type Chat struct {
	ID   int64  `json:"id"`
	Type string `json:"type"`
}

// ParseMode selects how outbound text is formatted.
type ParseMode int

const (
	// ModeMarkdown renders the text from markdown to the Bot API's
	// HTML subset before sending.
	ModeMarkdown ParseMode = iota

	// ModePlain sends the text verbatim with no formatting entities.
	ModePlain
)
