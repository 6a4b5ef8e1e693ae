package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/chatspace/chatspace/internal/friends"
	"github.com/chatspace/chatspace/internal/models"
	"github.com/chatspace/chatspace/internal/store"
	"github.com/chatspace/chatspace/internal/ws"
)

type FriendHandler struct {
	store store.Store
	gate  *friends.Service
	hub   *ws.Hub
}

func NewFriendHandler(st store.Store, gate *friends.Service, hub *ws.Hub) *FriendHandler {
	return &FriendHandler{store: st, gate: gate, hub: hub}
}

// requestView decorates a friend request with the counterparty snapshot
// clients render without an extra lookup.
type requestView struct {
	*models.FriendRequest
	Sender   *models.Sender `json:"sender,omitempty"`
	Receiver *models.Sender `json:"receiver,omitempty"`
}

func (h *FriendHandler) snapshot(userID string) *models.Sender {
	user, err := h.store.UserByID(userID)
	if err != nil {
		return nil
	}
	return &models.Sender{ID: user.ID, Username: user.Username, Avatar: user.Avatar}
}

type SendFriendRequestRequest struct {
	ReceiverID string `json:"receiverId" binding:"required"`
}

// SendRequest creates a pending friend request and broadcasts the
// lifecycle event; both parties' clients filter it by their own id.
func (h *FriendHandler) SendRequest(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	var req SendFriendRequestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Receiver ID is required"})
		return
	}

	request, err := h.gate.SendRequest(userID, req.ReceiverID)
	if err != nil {
		switch {
		case errors.Is(err, friends.ErrSelfRequest):
			c.JSON(http.StatusBadRequest, gin.H{"message": "Cannot send friend request to yourself"})
		case errors.Is(err, friends.ErrAlreadyPending):
			c.JSON(http.StatusBadRequest, gin.H{"message": "Friend request already sent"})
		case errors.Is(err, friends.ErrAlreadyFriends):
			c.JSON(http.StatusBadRequest, gin.H{"message": "Already friends"})
		case errors.Is(err, store.ErrUserNotFound):
			c.JSON(http.StatusNotFound, gin.H{"message": "User not found"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"message": "Server error"})
		}
		return
	}

	view := requestView{FriendRequest: request, Sender: h.snapshot(userID)}
	h.hub.Publish(ws.EventFriendRequestReceived, view)
	h.hub.Publish(ws.EventFriendRequestSent, view)

	c.JSON(http.StatusOK, gin.H{"message": "Friend request sent successfully", "request": request})
}

// ReceivedRequests lists pending requests addressed to the caller.
func (h *FriendHandler) ReceivedRequests(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	requests, err := h.store.IncomingPendingRequests(userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Server error"})
		return
	}

	views := make([]requestView, 0, len(requests))
	for _, r := range requests {
		views = append(views, requestView{FriendRequest: r, Sender: h.snapshot(r.SenderID)})
	}
	c.JSON(http.StatusOK, gin.H{"requests": views})
}

// SentRequests lists the caller's own pending requests.
func (h *FriendHandler) SentRequests(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	requests, err := h.store.OutgoingPendingRequests(userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Server error"})
		return
	}

	views := make([]requestView, 0, len(requests))
	for _, r := range requests {
		views = append(views, requestView{FriendRequest: r, Receiver: h.snapshot(r.ReceiverID)})
	}
	c.JSON(http.StatusOK, gin.H{"requests": views})
}

type RespondRequest struct {
	Action string `json:"action" binding:"required"`
}

// Respond accepts or declines a pending request addressed to the caller.
func (h *FriendHandler) Respond(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	var req RespondRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid action"})
		return
	}

	request, err := h.gate.Respond(c.Param("id"), userID, req.Action)
	if err != nil {
		switch {
		case errors.Is(err, friends.ErrInvalidAction):
			c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid action"})
		case errors.Is(err, store.ErrRequestNotFound):
			c.JSON(http.StatusNotFound, gin.H{"message": "Friend request not found"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"message": "Server error"})
		}
		return
	}

	view := requestView{FriendRequest: request, Receiver: h.snapshot(userID)}
	if request.Status == models.RequestAccepted {
		h.hub.Publish(ws.EventFriendRequestAccepted, view)
	} else {
		h.hub.Publish(ws.EventFriendRequestDeclined, view)
	}

	c.JSON(http.StatusOK, gin.H{"message": "Friend request " + req.Action + "ed successfully", "request": request})
}

// Cancel deletes the caller's own still-pending request.
func (h *FriendHandler) Cancel(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	request, err := h.gate.Cancel(c.Param("id"), userID)
	if err != nil {
		if errors.Is(err, store.ErrRequestNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"message": "Friend request not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Server error"})
		return
	}

	h.hub.Publish(ws.EventFriendRequestCancelled, requestView{FriendRequest: request, Sender: h.snapshot(userID)})

	c.JSON(http.StatusOK, gin.H{"message": "Friend request cancelled successfully"})
}

// AreFriends reports whether the caller and :userId have an accepted
// request.
func (h *FriendHandler) AreFriends(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	areFriends, err := h.gate.AreFriends(userID, c.Param("userId"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Server error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"areFriends": areFriends})
}
