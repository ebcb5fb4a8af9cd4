package models

import "time"

// RelayRequest is the body accepted by the relay endpoint.
type RelayRequest struct {
	Text     string `json:"text"`
	ParentID string `json:"parentId"`
	ConvoID  string `json:"convoId,omitempty"`
	Voice    string `json:"voice,omitempty"`
}

// RelayResponse is the body returned by the relay endpoint. ParentID and ConvoID are the identifiers the
// client has to send with its next request to continue the thread.
type RelayResponse struct {
	Text     string        `json:"text"`
	ParentID string        `json:"parentId"`
	ConvoID  string        `json:"convoId"`
	HTML     string        `json:"html,omitempty"`
	Voice    *VoicePayload `json:"voice,omitempty"`
}

// Thread returns the thread state carried by the response.
func (r RelayResponse) Thread() Thread {
	return Thread{ConversationID: r.ConvoID, ParentMessageID: r.ParentID}
}

// VoicePayload is synthesized speech for a reply. Data is base64 encoded on the wire.
type VoicePayload struct {
	Format     string `json:"format"`
	SampleRate int    `json:"sampleRate,omitempty"`
	Data       []byte `json:"data"`
}

// SendOptions carries the thread identifiers and the time budget of a single call to the conversational API.
type SendOptions struct {
	ConversationID  string
	ParentMessageID string
	Timeout         time.Duration
}

// Reply is the answer of the conversational API. ID is the id of the assistant message, which becomes the
// parent of the next user message.
type Reply struct {
	ID              string
	ConversationID  string
	ParentMessageID string
	Text            string
}
