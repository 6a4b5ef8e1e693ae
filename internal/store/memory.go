package store

import (
	"sort"
	"sync"

	"github.com/chatspace/chatspace/internal/models"
)

// MemoryStore is the fallback backend used when the durable store cannot
// be opened. Everything lives in process-local maps behind one RWMutex.
// Messages are capped at MemoryRetention, oldest evicted first, to bound
// memory over a long process lifetime.
type MemoryStore struct {
	mu            sync.RWMutex
	users         map[string]*models.User
	messages      []*models.Message
	requests      map[string]*models.FriendRequest
	files         map[string]*models.FileMetadata
	subscriptions map[string]*models.PushSubscription
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:         make(map[string]*models.User),
		requests:      make(map[string]*models.FriendRequest),
		files:         make(map[string]*models.FileMetadata),
		subscriptions: make(map[string]*models.PushSubscription),
	}
}

func (s *MemoryStore) Name() string { return "memory" }

func (s *MemoryStore) Close() error { return nil }

func (s *MemoryStore) UserByID(id string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *MemoryStore) UserByEmail(email string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, u := range s.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, ErrUserNotFound
}

func (s *MemoryStore) SaveUser(u *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.users {
		if existing.Email == u.Email && existing.ID != u.ID {
			return ErrDuplicateEmail
		}
	}
	cp := *u
	s.users[u.ID] = &cp
	return nil
}

func (s *MemoryStore) Users() ([]*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]*models.User, 0, len(s.users))
	for _, u := range s.users {
		cp := *u
		users = append(users, &cp)
	}
	sort.Slice(users, func(i, j int) bool {
		return users[i].Username < users[j].Username
	})
	return users, nil
}

func (s *MemoryStore) SaveMessage(m *models.Message) error {
	if err := validateMessage(m); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[m.SenderID]; !ok {
		return ErrUserNotFound
	}
	if _, ok := s.users[m.ReceiverID]; !ok {
		return ErrUserNotFound
	}

	cp := *m
	s.messages = append(s.messages, &cp)
	if len(s.messages) > MemoryRetention {
		s.messages = s.messages[len(s.messages)-MemoryRetention:]
	}
	return nil
}

func (s *MemoryStore) MessagesBetween(a, b string) ([]*models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []*models.Message
	for _, m := range s.messages {
		if pairMatches(m, a, b) {
			cp := *m
			matched = append(matched, &cp)
		}
	}
	if len(matched) > MaxConversationPage {
		matched = matched[len(matched)-MaxConversationPage:]
	}
	return matched, nil
}

// MessageCount reports total retained messages. Used by eviction tests
// and the status command.
func (s *MemoryStore) MessageCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.messages)
}

func (s *MemoryStore) SaveFriendRequest(r *models.FriendRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *r
	s.requests[r.ID] = &cp
	return nil
}

func (s *MemoryStore) FriendRequestByID(id string) (*models.FriendRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.requests[id]
	if !ok {
		return nil, ErrRequestNotFound
	}
	cp := *r
	return &cp, nil
}

func (s *MemoryStore) FriendRequestBetween(a, b string) (*models.FriendRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var latest *models.FriendRequest
	for _, r := range s.requests {
		if !requestPairMatches(r, a, b) {
			continue
		}
		if r.Active() {
			cp := *r
			return &cp, nil
		}
		if latest == nil || r.UpdatedAt.After(latest.UpdatedAt) {
			latest = r
		}
	}
	if latest == nil {
		return nil, ErrRequestNotFound
	}
	cp := *latest
	return &cp, nil
}

func (s *MemoryStore) DeleteFriendRequest(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.requests[id]; !ok {
		return ErrRequestNotFound
	}
	delete(s.requests, id)
	return nil
}

func (s *MemoryStore) IncomingPendingRequests(userID string) ([]*models.FriendRequest, error) {
	return s.pendingRequests(func(r *models.FriendRequest) bool {
		return r.ReceiverID == userID
	})
}

func (s *MemoryStore) OutgoingPendingRequests(userID string) ([]*models.FriendRequest, error) {
	return s.pendingRequests(func(r *models.FriendRequest) bool {
		return r.SenderID == userID
	})
}

func (s *MemoryStore) pendingRequests(match func(*models.FriendRequest) bool) ([]*models.FriendRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var requests []*models.FriendRequest
	for _, r := range s.requests {
		if r.Status == models.RequestPending && match(r) {
			cp := *r
			requests = append(requests, &cp)
		}
	}
	sort.Slice(requests, func(i, j int) bool {
		return requests[i].CreatedAt.Before(requests[j].CreatedAt)
	})
	return requests, nil
}

func (s *MemoryStore) SaveFileMetadata(f *models.FileMetadata) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *f
	s.files[f.ID] = &cp
	return nil
}

func (s *MemoryStore) FileMetadataByID(id string) (*models.FileMetadata, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	f, ok := s.files[id]
	if !ok {
		return nil, ErrFileNotFound
	}
	cp := *f
	return &cp, nil
}

func (s *MemoryStore) FilesByUploader(userID string) ([]*models.FileMetadata, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var files []*models.FileMetadata
	for _, f := range s.files {
		if f.UploadedBy == userID {
			cp := *f
			files = append(files, &cp)
		}
	}
	sort.Slice(files, func(i, j int) bool {
		return files[i].UploadedAt.After(files[j].UploadedAt)
	})
	return files, nil
}

func (s *MemoryStore) SavePushSubscription(sub *models.PushSubscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *sub
	s.subscriptions[sub.ID] = &cp
	return nil
}

func (s *MemoryStore) PushSubscriptionsByUser(userID string) ([]*models.PushSubscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var subs []*models.PushSubscription
	for _, sub := range s.subscriptions {
		if sub.UserID == userID {
			cp := *sub
			subs = append(subs, &cp)
		}
	}
	sort.Slice(subs, func(i, j int) bool {
		return subs[i].CreatedAt.Before(subs[j].CreatedAt)
	})
	return subs, nil
}

func (s *MemoryStore) DeletePushSubscription(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.subscriptions, id)
	return nil
}

func (s *MemoryStore) DeletePushSubscriptions(userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, sub := range s.subscriptions {
		if sub.UserID == userID {
			delete(s.subscriptions, id)
		}
	}
	return nil
}

func requestPairMatches(r *models.FriendRequest, a, b string) bool {
	return (r.SenderID == a && r.ReceiverID == b) ||
		(r.SenderID == b && r.ReceiverID == a)
}
