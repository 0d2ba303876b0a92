package users

import (
	"context"

	"github.com/dmitrijs2005/chatkeeper/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, user *models.User) (*models.User, error)
	GetByUsername(ctx context.Context, username string) (*models.User, error)
	GetByUsernameAndToken(ctx context.Context, username, token string) (*models.User, error)
	GetByID(ctx context.Context, id string) (*models.User, error)
	UpdateToken(ctx context.Context, id, token string) error
	List(ctx context.Context) ([]*models.User, error)
}
