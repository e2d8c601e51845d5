package chat

import (
	"slices"
	"time"
)

// Conversation groups messages between a fixed set of participants.
type Conversation struct {
	ID           string    `json:"id"`
	Name         string    `json:"name,omitempty"`
	Participants []string  `json:"participants"`
	TeamID       string    `json:"teamId,omitempty"`
	CreatedBy    string    `json:"createdBy"`
	CreatedAt    time.Time `json:"createdAt"`
}

// HasParticipant reports whether the user belongs to the conversation.
func (c *Conversation) HasParticipant(userID string) bool {
	return slices.Contains(c.Participants, userID)
}

// Message is one chat message. Deleted messages keep their row but drop
// their text.
type Message struct {
	ID             string     `json:"id"`
	ConversationID string     `json:"conversationId"`
	SenderID       string     `json:"senderId"`
	Text           string     `json:"text"`
	Reactions      []Reaction `json:"reactions,omitempty"`
	IsDeleted      bool       `json:"isDeleted"`
	EditedAt       *time.Time `json:"editedAt,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
}

// Reaction is an emoji response on a message.
type Reaction struct {
	UserID string `json:"userId"`
	Emoji  string `json:"emoji"`
}
