package messages

import (
	"context"
	"time"

	"github.com/dmitrijs2005/chatkeeper/internal/server/models"
)

// NewMessage carries the caller-supplied fields of a message about to be
// persisted. Id and timestamp are assigned by the store.
type NewMessage struct {
	SenderID    string
	RecipientID string
	Text        string
	FileURL     string
}

type Repository interface {
	// Create persists a message and returns the store-assigned id and
	// timestamp.
	Create(ctx context.Context, msg *NewMessage) (id string, ts time.Time, err error)

	// Conversation returns all messages involving userID (peerID empty) or
	// the bidirectional conversation between userID and peerID, optionally
	// narrowed to messages whose text contains textFilter case-insensitively.
	// Results carry expanded sender/recipient profiles and are ordered by
	// timestamp ascending.
	Conversation(ctx context.Context, userID, peerID, textFilter string) ([]*models.Message, error)
}
