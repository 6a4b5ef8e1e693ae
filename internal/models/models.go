package models

import "time"

// User presence statuses as reported to clients.
const (
	StatusOnline  = "online"
	StatusOffline = "offline"
)

// Friend request statuses.
const (
	RequestPending  = "pending"
	RequestAccepted = "accepted"
	RequestDeclined = "declined"
)

// Message types.
const (
	MessageText  = "text"
	MessageImage = "image"
	MessageVideo = "video"
	MessageAudio = "audio"
	MessageFile  = "file"
	MessageGif   = "gif"
)

type User struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	Password  string    `json:"-"`
	Avatar    string    `json:"avatar,omitempty"`
	Status    string    `json:"status"`
	GoogleID  string    `json:"googleId,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Sender is the denormalized sender snapshot stored inline on every
// message, frozen at send time. It is a value copy, never a reference
// back into the user table.
type Sender struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Avatar   string `json:"avatar,omitempty"`
}

// Message is immutable once created. A conversation between two users is
// the set of messages whose {SenderID,ReceiverID} equals the unordered
// pair of their ids.
type Message struct {
	ID         string    `json:"id"`
	Content    string    `json:"content"`
	Type       string    `json:"type"`
	SenderID   string    `json:"senderId"`
	ReceiverID string    `json:"receiverId"`
	Sender     Sender    `json:"sender"`
	Timestamp  time.Time `json:"timestamp"`
	FileURL    string    `json:"fileUrl,omitempty"`
	FileName   string    `json:"fileName,omitempty"`
	FileSize   int64     `json:"fileSize,omitempty"`
}

type FriendRequest struct {
	ID         string    `json:"id"`
	SenderID   string    `json:"senderId"`
	ReceiverID string    `json:"receiverId"`
	Status     string    `json:"status"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// Active reports whether the request still binds the pair: pending and
// accepted requests block a new one, declined requests do not.
func (r *FriendRequest) Active() bool {
	return r.Status == RequestPending || r.Status == RequestAccepted
}

type FileMetadata struct {
	ID           string    `json:"id"`
	Filename     string    `json:"filename"`
	OriginalName string    `json:"originalName"`
	FileURL      string    `json:"fileUrl"`
	FileSize     int64     `json:"fileSize"`
	FileType     string    `json:"fileType"`
	IsImage      bool      `json:"isImage"`
	IsVideo      bool      `json:"isVideo"`
	IsAudio      bool      `json:"isAudio"`
	UploadedBy   string    `json:"uploadedBy"`
	UploadedAt   time.Time `json:"uploadedAt"`
}

// PushSubscription is a stored Web Push subscription for one of a user's
// browsers.
type PushSubscription struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Endpoint  string    `json:"endpoint"`
	KeyP256dh string    `json:"p256dh"`
	KeyAuth   string    `json:"auth"`
	CreatedAt time.Time `json:"createdAt"`
}
