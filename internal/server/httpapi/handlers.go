// Package httpapi exposes the HTTP surface of the chat backend: session
// endpoints, the user directory, message persistence and search, attachment
// presigning, and the websocket upgrade.
package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/dmitrijs2005/chatkeeper/internal/common"
	"github.com/dmitrijs2005/chatkeeper/internal/logging"
	"github.com/dmitrijs2005/chatkeeper/internal/server/auth"
	"github.com/dmitrijs2005/chatkeeper/internal/server/models"
	"github.com/dmitrijs2005/chatkeeper/internal/server/services"
	"github.com/dmitrijs2005/chatkeeper/internal/server/ws"
)

// Handler wires the service layer to gin routes.
type Handler struct {
	sessions    *services.SessionService
	messages    *services.MessageService
	attachments *services.AttachmentService
	hub         *ws.Hub
	jwtSecret   []byte
	logger      logging.Logger
}

func NewHandler(
	sessions *services.SessionService,
	messages *services.MessageService,
	attachments *services.AttachmentService,
	hub *ws.Hub,
	jwtSecret []byte,
	logger logging.Logger,
) *Handler {
	return &Handler{
		sessions:    sessions,
		messages:    messages,
		attachments: attachments,
		hub:         hub,
		jwtSecret:   jwtSecret,
		logger:      logger.With("module", "httpapi"),
	}
}

// RegisterRoutes registers all routes.
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	api := r.Group("/api")
	{
		authGroup := api.Group("/auth")
		{
			authGroup.POST("/login", h.Login)
			authGroup.POST("/logout", h.Logout)
		}

		users := api.Group("/users")
		{
			users.GET("", h.RequireAuth(), h.ListUsers)
			users.GET("/connected", h.ConnectedUsers)
		}

		messages := api.Group("/messages")
		messages.Use(h.RequireAuth())
		{
			messages.POST("", h.SaveMessage)
			messages.GET("", h.QueryMessages)
		}

		files := api.Group("/files")
		files.Use(h.RequireAuth())
		{
			files.POST("/upload-url", h.UploadURL)
		}
	}

	r.GET("/ws", func(c *gin.Context) {
		h.hub.HandleUpgrade(c.Writer, c.Request)
	})
}

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Token    string `json:"token"`
}

// Login resolves the session subject and registers presence. A token that
// fails verification yields 401; everything else that goes wrong is a 500.
func (h *Handler) Login(c *gin.Context) {
	ctx := c.Request.Context()

	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn(ctx, "invalid login request", "error", err)
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
		return
	}

	user, err := h.sessions.Login(ctx, req.Username, req.Token)
	if err != nil {
		if auth.IsVerificationFailure(err) {
			c.JSON(http.StatusUnauthorized, gin.H{"message": "Invalid token"})
			return
		}
		h.logger.Error(ctx, "login failed", "username", req.Username, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"message": "failed to log in"})
		return
	}

	h.hub.PublishUsers()
	c.JSON(http.StatusOK, user)
}

type logoutRequest struct {
	User models.PublicUser `json:"user"`
}

// Logout drops presence for the given user. It always succeeds.
func (h *Handler) Logout(c *gin.Context) {
	var req logoutRequest
	if err := c.ShouldBindJSON(&req); err == nil && req.User.ID != "" {
		h.sessions.Logout(req.User.ID)
		h.hub.PublishUsers()
	}
	c.JSON(http.StatusOK, gin.H{"message": "logged out"})
}

// ListUsers returns the stored user directory.
func (h *Handler) ListUsers(c *gin.Context) {
	ctx := c.Request.Context()

	users, err := h.sessions.Users(ctx)
	if err != nil {
		h.logger.Error(ctx, "listing users failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"message": "failed to list users"})
		return
	}
	c.JSON(http.StatusOK, users)
}

// ConnectedUsers returns the presence registry snapshot.
func (h *Handler) ConnectedUsers(c *gin.Context) {
	c.JSON(http.StatusOK, h.sessions.ConnectedUsers())
}

type saveMessageRequest struct {
	Sender    models.PublicUser `json:"sender" binding:"required"`
	Recipient models.PublicUser `json:"recipient" binding:"required"`
	Text      string            `json:"text"`
	FileURL   string            `json:"fileUrl"`
}

// SaveMessage persists a message. A message must carry text or an
// attachment; one with neither is rejected.
func (h *Handler) SaveMessage(c *gin.Context) {
	ctx := c.Request.Context()

	var req saveMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn(ctx, "invalid message request", "error", err)
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
		return
	}
	if req.Text == "" && req.FileURL == "" {
		c.JSON(http.StatusBadRequest, gin.H{"message": "message must have text or a file"})
		return
	}

	msg, err := h.messages.Save(ctx, req.Sender, req.Recipient, req.Text, req.FileURL)
	if err != nil {
		switch {
		case errors.Is(err, common.ErrorNotFound):
			c.JSON(http.StatusNotFound, gin.H{"message": "user not found"})
		default:
			h.logger.Error(ctx, "saving message failed", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"message": "failed to save message"})
		}
		return
	}

	c.JSON(http.StatusCreated, msg)
}

// QueryMessages returns messages involving the sender, optionally narrowed
// to the conversation with recipient and to texts containing query. The
// sender and recipient query params carry JSON-encoded user objects.
func (h *Handler) QueryMessages(c *gin.Context) {
	ctx := c.Request.Context()

	sender, ok := userParam(c, "sender")
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"message": "malformed sender"})
		return
	}
	if sender.ID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"message": "sender is required"})
		return
	}

	recipient, ok := userParam(c, "recipient")
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"message": "malformed recipient"})
		return
	}

	list, err := h.messages.Query(ctx, sender.ID, recipient.ID, c.Query("query"))
	if err != nil {
		// a non-decodable id is a generic query error, like the store
		// being unreachable
		if !errors.Is(err, common.ErrorValidation) {
			h.logger.Error(ctx, "querying messages failed", "error", err)
		}
		c.JSON(http.StatusInternalServerError, gin.H{"message": "failed to query messages"})
		return
	}

	c.JSON(http.StatusOK, list)
}

// userParam decodes a JSON-encoded user object from the named query param.
// An absent param yields a zero user and ok.
func userParam(c *gin.Context, name string) (models.PublicUser, bool) {
	raw := c.Query(name)
	if raw == "" {
		return models.PublicUser{}, true
	}
	var u models.PublicUser
	if err := json.Unmarshal([]byte(raw), &u); err != nil {
		return models.PublicUser{}, false
	}
	return u, true
}

// UploadURL hands out a presigned PUT URL for a fresh attachment key plus
// the matching GET URL to embed in the message's fileUrl.
func (h *Handler) UploadURL(c *gin.Context) {
	ctx := c.Request.Context()

	key, uploadURL, err := h.attachments.GetPresignedPutUrl(ctx)
	if err != nil {
		h.logger.Error(ctx, "presigning upload failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"message": "failed to presign upload"})
		return
	}

	fileURL, err := h.attachments.GetPresignedGetUrl(ctx, key)
	if err != nil {
		h.logger.Error(ctx, "presigning download failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"message": "failed to presign download"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"key":       key,
		"uploadUrl": uploadURL,
		"fileUrl":   fileURL,
	})
}
