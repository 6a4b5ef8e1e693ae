package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/chatspace/chatspace/internal/models"
	"github.com/chatspace/chatspace/internal/push"
	"github.com/chatspace/chatspace/internal/store"
)

type PushHandler struct {
	store    store.Store
	notifier *push.Notifier
}

func NewPushHandler(st store.Store, notifier *push.Notifier) *PushHandler {
	return &PushHandler{store: st, notifier: notifier}
}

// PublicKey hands the VAPID public key to clients that want to
// subscribe. 404 when push is not configured.
func (h *PushHandler) PublicKey(c *gin.Context) {
	if h.notifier == nil {
		c.JSON(http.StatusNotFound, gin.H{"message": "Push notifications are not configured"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"publicKey": h.notifier.PublicKey()})
}

type SubscribeRequest struct {
	Endpoint string `json:"endpoint" binding:"required"`
	Keys     struct {
		P256dh string `json:"p256dh" binding:"required"`
		Auth   string `json:"auth" binding:"required"`
	} `json:"keys" binding:"required"`
}

// Subscribe stores a browser's Web Push subscription for the caller.
func (h *PushHandler) Subscribe(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	var req SubscribeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "endpoint and keys are required"})
		return
	}

	sub := &models.PushSubscription{
		ID:        uuid.NewString(),
		UserID:    userID,
		Endpoint:  req.Endpoint,
		KeyP256dh: req.Keys.P256dh,
		KeyAuth:   req.Keys.Auth,
		CreatedAt: time.Now(),
	}
	if err := h.store.SavePushSubscription(sub); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Server error"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"message": "Subscribed"})
}

// Unsubscribe drops all of the caller's push subscriptions.
func (h *PushHandler) Unsubscribe(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	if err := h.store.DeletePushSubscriptions(userID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Server error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Unsubscribed"})
}
