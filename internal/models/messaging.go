package models

import (
	"time"

	"github.com/artinerary/messaging-backend/pkg/utils"
	"gorm.io/gorm"
)

// MaxMessageLength bounds the body of a private message, in characters
const MaxMessageLength = 2000

// Conversation is the unique container for messages between a pair of users.
// The pair is stored canonically with User1ID < User2ID so the composite
// unique index holds regardless of which side initiated contact.
type Conversation struct {
	ID      string `gorm:"primaryKey;type:text" json:"id"`
	User1ID string `gorm:"type:text;not null;uniqueIndex:uniq_conversation_users,priority:1" json:"user1Id"`
	User2ID string `gorm:"type:text;not null;uniqueIndex:uniq_conversation_users,priority:2" json:"user2Id"`

	CreatedAt time.Time `json:"createdAt"`
	// UpdatedAt doubles as the last-activity timestamp; bumped on every message
	UpdatedAt time.Time `json:"updatedAt"`

	User1 User `gorm:"foreignKey:User1ID" json:"-"`
	User2 User `gorm:"foreignKey:User2ID" json:"-"`

	Messages []PrivateMessage `gorm:"foreignKey:ConversationID" json:"-"`
}

func (c *Conversation) BeforeCreate(tx *gorm.DB) (err error) {
	if c.ID == "" {
		c.ID = utils.GenerateID()
	}
	return
}

// OtherUserID returns the participant that is not userID
func (c *Conversation) OtherUserID(userID string) string {
	if c.User1ID == userID {
		return c.User2ID
	}
	return c.User1ID
}

// HasParticipant reports whether userID is one of the two participants
func (c *Conversation) HasParticipant(userID string) bool {
	return c.User1ID == userID || c.User2ID == userID
}

// PrivateMessage is a single message within a conversation. The integer
// primary key is the polling cursor: ids increase in insertion order, which
// also breaks wall-clock ties when ordering history.
type PrivateMessage struct {
	ID             uint   `gorm:"primaryKey" json:"id"`
	ConversationID string `gorm:"type:text;not null;index" json:"conversationId"`
	SenderID       string `gorm:"type:text;not null;index" json:"senderId"`
	Content        string `gorm:"type:text;not null" json:"content"`

	IsRead    bool      `gorm:"default:false;index" json:"isRead"`
	CreatedAt time.Time `gorm:"index" json:"createdAt"`

	Conversation Conversation `gorm:"foreignKey:ConversationID" json:"-"`
	Sender       User         `gorm:"foreignKey:SenderID" json:"sender,omitempty"`
}

// ConversationHidden records a per-viewer horizon on a conversation. Messages
// created at or before HiddenAt are suppressed from that viewer only; the
// other participant is never affected. Re-hiding overwrites HiddenAt.
type ConversationHidden struct {
	ID             string    `gorm:"primaryKey;type:text" json:"id"`
	ConversationID string    `gorm:"type:text;not null;uniqueIndex:uniq_conversation_hidden,priority:1" json:"conversationId"`
	UserID         string    `gorm:"type:text;not null;uniqueIndex:uniq_conversation_hidden,priority:2" json:"userId"`
	HiddenAt       time.Time `json:"hiddenAt"`

	Conversation Conversation `gorm:"foreignKey:ConversationID" json:"-"`
	User         User         `gorm:"foreignKey:UserID" json:"-"`
}

func (h *ConversationHidden) BeforeCreate(tx *gorm.DB) (err error) {
	if h.ID == "" {
		h.ID = utils.GenerateID()
	}
	return
}

// UserOnlineStatus tracks a user's presence, independent of any conversation
type UserOnlineStatus struct {
	UserID   string    `gorm:"primaryKey;type:text" json:"userId"`
	IsOnline bool      `gorm:"default:false" json:"isOnline"`
	LastSeen time.Time `json:"lastSeen"`

	User User `gorm:"foreignKey:UserID" json:"-"`
}
