package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/chatspace/chatspace/internal/friends"
	"github.com/chatspace/chatspace/internal/models"
	"github.com/chatspace/chatspace/internal/push"
	"github.com/chatspace/chatspace/internal/store"
	"github.com/chatspace/chatspace/internal/ws"
)

type MessageHandler struct {
	store    store.Store
	gate     *friends.Service
	hub      *ws.Hub
	notifier *push.Notifier
}

func NewMessageHandler(st store.Store, gate *friends.Service, hub *ws.Hub, notifier *push.Notifier) *MessageHandler {
	return &MessageHandler{store: st, gate: gate, hub: hub, notifier: notifier}
}

// GetMessages returns the conversation between the caller and receiverId,
// oldest first, capped at the most recent page.
func (h *MessageHandler) GetMessages(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	receiverID := c.Query("receiverId")
	if receiverID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Receiver ID is required"})
		return
	}

	messages, err := h.store.MessagesBetween(userID, receiverID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Server error"})
		return
	}
	if messages == nil {
		messages = []*models.Message{}
	}
	c.JSON(http.StatusOK, messages)
}

type SendMessageRequest struct {
	Content    string `json:"content"`
	Type       string `json:"type"`
	ReceiverID string `json:"receiverId"`
	FileURL    string `json:"fileUrl"`
	FileName   string `json:"fileName"`
	FileSize   int64  `json:"fileSize"`
}

// SendMessage persists a message with a denormalized sender snapshot,
// then publishes it as a single global broadcast. Clients filter the
// broadcast for relevance; the receiver being offline only means the
// event is lost until they re-fetch over REST.
func (h *MessageHandler) SendMessage(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "invalid request"})
		return
	}
	if req.ReceiverID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Receiver ID is required"})
		return
	}
	if strings.TrimSpace(req.Content) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Message content is required"})
		return
	}
	if req.Type == "" {
		req.Type = models.MessageText
	}

	sender, err := h.store.UserByID(userID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"message": "User not found"})
		return
	}

	open, err := h.gate.ConversationOpen(userID, req.ReceiverID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Server error"})
		return
	}
	if !open {
		c.JSON(http.StatusForbidden, gin.H{"message": "You must be friends to message this user"})
		return
	}

	message := &models.Message{
		ID:         uuid.NewString(),
		Content:    req.Content,
		Type:       req.Type,
		SenderID:   sender.ID,
		ReceiverID: req.ReceiverID,
		Sender: models.Sender{
			ID:       sender.ID,
			Username: sender.Username,
			Avatar:   sender.Avatar,
		},
		Timestamp: time.Now(),
		FileURL:   req.FileURL,
		FileName:  req.FileName,
		FileSize:  req.FileSize,
	}

	if err := h.store.SaveMessage(message); err != nil {
		switch {
		case errors.Is(err, store.ErrUserNotFound):
			c.JSON(http.StatusNotFound, gin.H{"message": "User not found"})
		case errors.Is(err, store.ErrInvalidMessage):
			c.JSON(http.StatusBadRequest, gin.H{"message": "Message content is required"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"message": "Server error"})
		}
		return
	}

	h.hub.Publish(ws.EventMessageReceive, message)

	if h.notifier != nil && !h.hub.IsUserOnline(message.ReceiverID) {
		go h.notifier.NotifyMessage(message)
	}

	c.JSON(http.StatusOK, message)
}
