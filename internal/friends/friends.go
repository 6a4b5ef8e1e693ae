// Package friends implements the friendship state machine that gates
// conversations. Per unordered user pair the state moves
// none -> pending -> accepted|declined, with cancellation by the sender
// returning a pending request to none.
package friends

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/chatspace/chatspace/internal/models"
	"github.com/chatspace/chatspace/internal/store"
)

var (
	ErrSelfRequest    = errors.New("cannot send friend request to yourself")
	ErrAlreadyPending = errors.New("friend request already sent")
	ErrAlreadyFriends = errors.New("already friends")
	ErrInvalidAction  = errors.New("invalid action")
)

// Respond actions.
const (
	ActionAccept  = "accept"
	ActionDecline = "decline"
)

type Service struct {
	store store.Store
}

func NewService(st store.Store) *Service {
	return &Service{store: st}
}

// SendRequest creates a pending request from one user to another. A
// pending or accepted request between the pair, in either direction,
// blocks a new one; a declined request does not.
func (s *Service) SendRequest(from, to string) (*models.FriendRequest, error) {
	if from == to {
		return nil, ErrSelfRequest
	}
	if _, err := s.store.UserByID(to); err != nil {
		return nil, err
	}

	existing, err := s.store.FriendRequestBetween(from, to)
	if err != nil && !errors.Is(err, store.ErrRequestNotFound) {
		return nil, err
	}
	if existing != nil {
		switch existing.Status {
		case models.RequestPending:
			return nil, ErrAlreadyPending
		case models.RequestAccepted:
			return nil, ErrAlreadyFriends
		}
	}

	now := time.Now()
	request := &models.FriendRequest{
		ID:         uuid.NewString(),
		SenderID:   from,
		ReceiverID: to,
		Status:     models.RequestPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.store.SaveFriendRequest(request); err != nil {
		return nil, fmt.Errorf("failed to save friend request: %w", err)
	}
	return request, nil
}

// Respond accepts or declines a pending request. Only the receiver of
// the request may respond; anyone else sees not-found, matching the
// lookup-by-receiver the REST surface exposes.
func (s *Service) Respond(requestID, by, action string) (*models.FriendRequest, error) {
	if action != ActionAccept && action != ActionDecline {
		return nil, ErrInvalidAction
	}

	request, err := s.store.FriendRequestByID(requestID)
	if err != nil {
		return nil, err
	}
	if request.ReceiverID != by || request.Status != models.RequestPending {
		return nil, store.ErrRequestNotFound
	}

	if action == ActionAccept {
		request.Status = models.RequestAccepted
	} else {
		request.Status = models.RequestDeclined
	}
	request.UpdatedAt = time.Now()

	if err := s.store.SaveFriendRequest(request); err != nil {
		return nil, fmt.Errorf("failed to save friend request: %w", err)
	}
	return request, nil
}

// Cancel deletes a still-pending request. Only the original sender may
// cancel; the pair returns to the none state.
func (s *Service) Cancel(requestID, by string) (*models.FriendRequest, error) {
	request, err := s.store.FriendRequestByID(requestID)
	if err != nil {
		return nil, err
	}
	if request.SenderID != by || request.Status != models.RequestPending {
		return nil, store.ErrRequestNotFound
	}

	if err := s.store.DeleteFriendRequest(requestID); err != nil {
		return nil, err
	}
	return request, nil
}

// AreFriends reports whether the pair has an accepted request.
func (s *Service) AreFriends(a, b string) (bool, error) {
	request, err := s.store.FriendRequestBetween(a, b)
	if errors.Is(err, store.ErrRequestNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return request.Status == models.RequestAccepted, nil
}

// ConversationOpen reports whether messaging and rich content are
// permitted between the pair: the users are friends, or at least one
// message already exists between them. The message-exists arm
// grandfathers conversations that predate friend gating and survives
// deletion of the accepted request record.
func (s *Service) ConversationOpen(a, b string) (bool, error) {
	friends, err := s.AreFriends(a, b)
	if err != nil {
		return false, err
	}
	if friends {
		return true, nil
	}

	messages, err := s.store.MessagesBetween(a, b)
	if err != nil {
		return false, err
	}
	return len(messages) > 0, nil
}
