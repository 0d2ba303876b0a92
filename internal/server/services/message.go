package services

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/dmitrijs2005/chatkeeper/internal/common"
	"github.com/dmitrijs2005/chatkeeper/internal/server/config"
	"github.com/dmitrijs2005/chatkeeper/internal/server/models"
	"github.com/dmitrijs2005/chatkeeper/internal/server/repositories/messages"
	"github.com/dmitrijs2005/chatkeeper/internal/server/repositories/repomanager"
	"github.com/google/uuid"
)

// MessageService persists messages and answers conversation queries.
type MessageService struct {
	db               *sql.DB
	repomanager      repomanager.RepositoryManager
	storeCallTimeout time.Duration
}

func NewMessageService(db *sql.DB, m repomanager.RepositoryManager, cfg *config.Config) *MessageService {
	return &MessageService{
		db:               db,
		repomanager:      m,
		storeCallTimeout: cfg.StoreCallTimeout,
	}
}

// Save persists a message between sender and recipient. Both participants
// are checked independently against the user directory; an unknown id yields
// common.ErrorNotFound. The returned message echoes the caller-supplied
// sender/recipient shapes rather than re-fetching them, while the stored row
// keeps bare id references.
func (s *MessageService) Save(ctx context.Context, sender, recipient models.PublicUser, text, fileURL string) (*models.Message, error) {
	ctx, cancel := context.WithTimeout(ctx, s.storeCallTimeout)
	defer cancel()

	// an id that is not a uuid cannot resolve to a stored user
	if _, err := uuid.Parse(sender.ID); err != nil {
		return nil, common.ErrorNotFound
	}
	if _, err := uuid.Parse(recipient.ID); err != nil {
		return nil, common.ErrorNotFound
	}

	userRepo := s.repomanager.Users(s.db)

	if _, err := userRepo.GetByID(ctx, sender.ID); err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrorNotFound
		}
		return nil, common.ErrorInternal
	}
	if _, err := userRepo.GetByID(ctx, recipient.ID); err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrorNotFound
		}
		return nil, common.ErrorInternal
	}

	msgRepo := s.repomanager.Messages(s.db)
	id, ts, err := msgRepo.Create(ctx, &messages.NewMessage{
		SenderID:    sender.ID,
		RecipientID: recipient.ID,
		Text:        text,
		FileURL:     fileURL,
	})
	if err != nil {
		return nil, common.ErrorInternal
	}

	return &models.Message{
		ID:        id,
		Sender:    sender,
		Recipient: recipient,
		Text:      text,
		FileURL:   fileURL,
		Timestamp: ts,
	}, nil
}

// Query returns messages involving senderID (all conversations when
// recipientID is empty, or only the bidirectional conversation with
// recipientID), optionally narrowed to texts containing textFilter
// case-insensitively, ordered by timestamp ascending.
func (s *MessageService) Query(ctx context.Context, senderID, recipientID, textFilter string) ([]*models.Message, error) {
	ctx, cancel := context.WithTimeout(ctx, s.storeCallTimeout)
	defer cancel()

	if _, err := uuid.Parse(senderID); err != nil {
		return nil, common.ErrorValidation
	}
	if recipientID != "" {
		if _, err := uuid.Parse(recipientID); err != nil {
			return nil, common.ErrorValidation
		}
	}

	repo := s.repomanager.Messages(s.db)
	list, err := repo.Conversation(ctx, senderID, recipientID, textFilter)
	if err != nil {
		return nil, common.ErrorInternal
	}
	if list == nil {
		list = []*models.Message{}
	}
	return list, nil
}
