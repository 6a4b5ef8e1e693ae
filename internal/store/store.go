// Package store owns all persisted entities. A single Store interface is
// implemented by a durable SQLite backend and a process-local in-memory
// backend; the active backend is picked once at startup and callers never
// branch on which one they got.
package store

import (
	"errors"

	"github.com/chatspace/chatspace/internal/models"
)

// Retention and page-size limits. These are deliberately independent:
// MaxConversationPage bounds what a single history query returns on any
// backend, MemoryRetention bounds what the in-memory backend keeps at all.
const (
	MaxConversationPage = 100
	MemoryRetention     = 1000
)

var (
	ErrUserNotFound    = errors.New("user not found")
	ErrDuplicateEmail  = errors.New("email already registered")
	ErrRequestNotFound = errors.New("friend request not found")
	ErrFileNotFound    = errors.New("file not found")
	ErrInvalidMessage  = errors.New("message requires sender, receiver and content")
)

type Store interface {
	// Users.
	UserByID(id string) (*models.User, error)
	UserByEmail(email string) (*models.User, error)
	// SaveUser inserts or updates by ID. Inserting a second user with an
	// existing email fails with ErrDuplicateEmail.
	SaveUser(u *models.User) error
	Users() ([]*models.User, error)

	// Messages. SaveMessage enforces that sender and receiver resolve to
	// existing users and that content is present. MessagesBetween returns
	// the most recent MaxConversationPage messages of the unordered pair,
	// ordered by timestamp ascending, identically for (a,b) and (b,a).
	SaveMessage(m *models.Message) error
	MessagesBetween(a, b string) ([]*models.Message, error)

	// Friend requests. FriendRequestBetween resolves the request binding
	// the unordered pair: an active (pending or accepted) request wins
	// over a stale declined one.
	SaveFriendRequest(r *models.FriendRequest) error
	FriendRequestByID(id string) (*models.FriendRequest, error)
	FriendRequestBetween(a, b string) (*models.FriendRequest, error)
	DeleteFriendRequest(id string) error
	IncomingPendingRequests(userID string) ([]*models.FriendRequest, error)
	OutgoingPendingRequests(userID string) ([]*models.FriendRequest, error)

	// File metadata.
	SaveFileMetadata(f *models.FileMetadata) error
	FileMetadataByID(id string) (*models.FileMetadata, error)
	FilesByUploader(userID string) ([]*models.FileMetadata, error)

	// Web Push subscriptions. DeletePushSubscription removes one stale
	// endpoint; DeletePushSubscriptions drops everything for a user.
	SavePushSubscription(s *models.PushSubscription) error
	PushSubscriptionsByUser(userID string) ([]*models.PushSubscription, error)
	DeletePushSubscription(id string) error
	DeletePushSubscriptions(userID string) error

	// Name identifies the active backend for logs and health reporting.
	Name() string
	Close() error
}

func validateMessage(m *models.Message) error {
	if m.SenderID == "" || m.ReceiverID == "" || m.Content == "" {
		return ErrInvalidMessage
	}
	return nil
}

// pairMatches reports whether the message belongs to the unordered
// conversation {a,b}.
func pairMatches(m *models.Message, a, b string) bool {
	return (m.SenderID == a && m.ReceiverID == b) ||
		(m.SenderID == b && m.ReceiverID == a)
}
