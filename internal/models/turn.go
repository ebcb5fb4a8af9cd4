package models

// Speaker identifies who produced a Turn.
type Speaker string

const (
	// SpeakerHuman marks a turn typed by the user.
	SpeakerHuman Speaker = "HUMAN"
	// SpeakerAI marks a turn returned by the relay.
	SpeakerAI Speaker = "AI"
)

// Turn is one message of the client-side history, in display order.
type Turn struct {
	Speaker Speaker
	Text    string
}

// Thread is the pair of identifiers the conversational API needs to attach a new message to its prior
// context. The zero value means "start a new conversation".
type Thread struct {
	ConversationID  string
	ParentMessageID string
}

// IsZero reports whether no reply has been threaded yet.
func (t Thread) IsZero() bool {
	return t.ConversationID == "" && t.ParentMessageID == ""
}
