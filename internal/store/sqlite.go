package store

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/chatspace/chatspace/internal/models"
)

// SQLiteStore is the durable backend. It has no retention cap; only the
// query-side page limit applies.
type SQLiteStore struct {
	conn *sql.DB
}

// OpenSQLite opens (creating if needed) the database at path and runs the
// schema migration. Callers fall back to NewMemoryStore when this fails.
func OpenSQLite(path string) (*SQLiteStore, error) {
	conn, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// WAL keeps readers unblocked while a writer is writing.
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := conn.Exec("PRAGMA busy_timeout=5000"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}
	if _, err := conn.Exec("PRAGMA synchronous=NORMAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to set synchronous mode: %w", err)
	}

	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(5 * time.Minute)

	s := &SQLiteStore{conn: conn}
	if err := s.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migration failed: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		username TEXT NOT NULL,
		email TEXT UNIQUE NOT NULL,
		password_hash TEXT,
		avatar TEXT,
		status TEXT NOT NULL DEFAULT 'offline',
		google_id TEXT,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS messages (
		id TEXT PRIMARY KEY,
		content TEXT NOT NULL,
		type TEXT NOT NULL DEFAULT 'text',
		sender_id TEXT NOT NULL,
		receiver_id TEXT NOT NULL,
		sender_username TEXT NOT NULL,
		sender_avatar TEXT,
		timestamp TIMESTAMP NOT NULL,
		file_url TEXT,
		file_name TEXT,
		file_size INTEGER,
		FOREIGN KEY (sender_id) REFERENCES users(id),
		FOREIGN KEY (receiver_id) REFERENCES users(id)
	);

	CREATE TABLE IF NOT EXISTS friend_requests (
		id TEXT PRIMARY KEY,
		sender_id TEXT NOT NULL,
		receiver_id TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL,
		FOREIGN KEY (sender_id) REFERENCES users(id),
		FOREIGN KEY (receiver_id) REFERENCES users(id)
	);

	CREATE TABLE IF NOT EXISTS files (
		id TEXT PRIMARY KEY,
		filename TEXT NOT NULL,
		original_name TEXT NOT NULL,
		file_url TEXT NOT NULL,
		file_size INTEGER NOT NULL,
		file_type TEXT NOT NULL,
		is_image INTEGER NOT NULL DEFAULT 0,
		is_video INTEGER NOT NULL DEFAULT 0,
		is_audio INTEGER NOT NULL DEFAULT 0,
		uploaded_by TEXT NOT NULL,
		uploaded_at TIMESTAMP NOT NULL,
		FOREIGN KEY (uploaded_by) REFERENCES users(id)
	);

	CREATE TABLE IF NOT EXISTS push_subscriptions (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		endpoint TEXT NOT NULL,
		key_p256dh TEXT NOT NULL,
		key_auth TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL,
		FOREIGN KEY (user_id) REFERENCES users(id)
	);

	CREATE INDEX IF NOT EXISTS idx_users_email ON users(email);
	CREATE INDEX IF NOT EXISTS idx_messages_pair ON messages(sender_id, receiver_id);
	CREATE INDEX IF NOT EXISTS idx_messages_timestamp ON messages(timestamp DESC);
	CREATE INDEX IF NOT EXISTS idx_friend_requests_receiver ON friend_requests(receiver_id, status);
	CREATE INDEX IF NOT EXISTS idx_friend_requests_sender ON friend_requests(sender_id, status);
	CREATE INDEX IF NOT EXISTS idx_files_uploader ON files(uploaded_by);
	CREATE INDEX IF NOT EXISTS idx_push_subscriptions_user ON push_subscriptions(user_id);
	`

	_, err := s.conn.Exec(schema)
	return err
}

func (s *SQLiteStore) Name() string { return "sqlite" }

func (s *SQLiteStore) Close() error { return s.conn.Close() }

func scanUser(row interface{ Scan(...interface{}) error }) (*models.User, error) {
	var u models.User
	var password, avatar, googleID sql.NullString
	err := row.Scan(&u.ID, &u.Username, &u.Email, &password, &avatar, &googleID, &u.Status, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	u.Password = password.String
	u.Avatar = avatar.String
	u.GoogleID = googleID.String
	return &u, nil
}

func (s *SQLiteStore) UserByID(id string) (*models.User, error) {
	row := s.conn.QueryRow(
		"SELECT id, username, email, password_hash, avatar, google_id, status, created_at, updated_at FROM users WHERE id = ?", id)
	u, err := scanUser(row)
	if err == sql.ErrNoRows {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query user: %w", err)
	}
	return u, nil
}

func (s *SQLiteStore) UserByEmail(email string) (*models.User, error) {
	row := s.conn.QueryRow(
		"SELECT id, username, email, password_hash, avatar, google_id, status, created_at, updated_at FROM users WHERE email = ?", email)
	u, err := scanUser(row)
	if err == sql.ErrNoRows {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query user: %w", err)
	}
	return u, nil
}

func (s *SQLiteStore) SaveUser(u *models.User) error {
	_, err := s.conn.Exec(`
		INSERT INTO users (id, username, email, password_hash, avatar, status, google_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			username = excluded.username,
			email = excluded.email,
			password_hash = excluded.password_hash,
			avatar = excluded.avatar,
			status = excluded.status,
			google_id = excluded.google_id,
			updated_at = excluded.updated_at
	`, u.ID, u.Username, u.Email, u.Password, u.Avatar, u.Status, u.GoogleID, u.CreatedAt, u.UpdatedAt)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed: users.email") {
			return ErrDuplicateEmail
		}
		return fmt.Errorf("failed to save user: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Users() ([]*models.User, error) {
	rows, err := s.conn.Query(
		"SELECT id, username, email, password_hash, avatar, google_id, status, created_at, updated_at FROM users ORDER BY username")
	if err != nil {
		return nil, fmt.Errorf("failed to query users: %w", err)
	}
	defer rows.Close()

	var users []*models.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (s *SQLiteStore) userExists(id string) (bool, error) {
	var exists bool
	err := s.conn.QueryRow("SELECT EXISTS(SELECT 1 FROM users WHERE id = ?)", id).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to query user: %w", err)
	}
	return exists, nil
}

func (s *SQLiteStore) SaveMessage(m *models.Message) error {
	if err := validateMessage(m); err != nil {
		return err
	}
	for _, id := range []string{m.SenderID, m.ReceiverID} {
		exists, err := s.userExists(id)
		if err != nil {
			return err
		}
		if !exists {
			return ErrUserNotFound
		}
	}

	_, err := s.conn.Exec(`
		INSERT INTO messages (id, content, type, sender_id, receiver_id, sender_username, sender_avatar, timestamp, file_url, file_name, file_size)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, m.ID, m.Content, m.Type, m.SenderID, m.ReceiverID, m.Sender.Username, m.Sender.Avatar, m.Timestamp, m.FileURL, m.FileName, m.FileSize)
	if err != nil {
		return fmt.Errorf("failed to save message: %w", err)
	}
	return nil
}

func (s *SQLiteStore) MessagesBetween(a, b string) ([]*models.Message, error) {
	rows, err := s.conn.Query(`
		SELECT id, content, type, sender_id, receiver_id, sender_username, sender_avatar, timestamp, file_url, file_name, file_size
		FROM messages
		WHERE (sender_id = ? AND receiver_id = ?) OR (sender_id = ? AND receiver_id = ?)
		ORDER BY timestamp DESC, rowid DESC
		LIMIT ?
	`, a, b, b, a, MaxConversationPage)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	var messages []*models.Message
	for rows.Next() {
		var m models.Message
		var avatar, fileURL, fileName sql.NullString
		var fileSize sql.NullInt64
		if err := rows.Scan(&m.ID, &m.Content, &m.Type, &m.SenderID, &m.ReceiverID, &m.Sender.Username, &avatar, &m.Timestamp, &fileURL, &fileName, &fileSize); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		m.Sender.ID = m.SenderID
		m.Sender.Avatar = avatar.String
		m.FileURL = fileURL.String
		m.FileName = fileName.String
		m.FileSize = fileSize.Int64
		messages = append(messages, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Query newest-first for the LIMIT, return oldest-first.
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

const requestColumns = "id, sender_id, receiver_id, status, created_at, updated_at"

func scanRequest(row interface{ Scan(...interface{}) error }) (*models.FriendRequest, error) {
	var r models.FriendRequest
	err := row.Scan(&r.ID, &r.SenderID, &r.ReceiverID, &r.Status, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *SQLiteStore) SaveFriendRequest(r *models.FriendRequest) error {
	_, err := s.conn.Exec(`
		INSERT INTO friend_requests (id, sender_id, receiver_id, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			updated_at = excluded.updated_at
	`, r.ID, r.SenderID, r.ReceiverID, r.Status, r.CreatedAt, r.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save friend request: %w", err)
	}
	return nil
}

func (s *SQLiteStore) FriendRequestByID(id string) (*models.FriendRequest, error) {
	row := s.conn.QueryRow(
		"SELECT "+requestColumns+" FROM friend_requests WHERE id = ?", id)
	r, err := scanRequest(row)
	if err == sql.ErrNoRows {
		return nil, ErrRequestNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query friend request: %w", err)
	}
	return r, nil
}

func (s *SQLiteStore) FriendRequestBetween(a, b string) (*models.FriendRequest, error) {
	// An active request wins over a stale declined one.
	row := s.conn.QueryRow(`
		SELECT `+requestColumns+` FROM friend_requests
		WHERE (sender_id = ? AND receiver_id = ?) OR (sender_id = ? AND receiver_id = ?)
		ORDER BY CASE WHEN status IN ('pending', 'accepted') THEN 0 ELSE 1 END, updated_at DESC
		LIMIT 1
	`, a, b, b, a)
	r, err := scanRequest(row)
	if err == sql.ErrNoRows {
		return nil, ErrRequestNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query friend request: %w", err)
	}
	return r, nil
}

func (s *SQLiteStore) DeleteFriendRequest(id string) error {
	res, err := s.conn.Exec("DELETE FROM friend_requests WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete friend request: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrRequestNotFound
	}
	return nil
}

func (s *SQLiteStore) IncomingPendingRequests(userID string) ([]*models.FriendRequest, error) {
	return s.queryRequests(
		"SELECT "+requestColumns+" FROM friend_requests WHERE receiver_id = ? AND status = 'pending' ORDER BY created_at", userID)
}

func (s *SQLiteStore) OutgoingPendingRequests(userID string) ([]*models.FriendRequest, error) {
	return s.queryRequests(
		"SELECT "+requestColumns+" FROM friend_requests WHERE sender_id = ? AND status = 'pending' ORDER BY created_at", userID)
}

func (s *SQLiteStore) queryRequests(query string, args ...interface{}) ([]*models.FriendRequest, error) {
	rows, err := s.conn.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query friend requests: %w", err)
	}
	defer rows.Close()

	var requests []*models.FriendRequest
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan friend request: %w", err)
		}
		requests = append(requests, r)
	}
	return requests, rows.Err()
}

func (s *SQLiteStore) SaveFileMetadata(f *models.FileMetadata) error {
	_, err := s.conn.Exec(`
		INSERT INTO files (id, filename, original_name, file_url, file_size, file_type, is_image, is_video, is_audio, uploaded_by, uploaded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, f.ID, f.Filename, f.OriginalName, f.FileURL, f.FileSize, f.FileType, f.IsImage, f.IsVideo, f.IsAudio, f.UploadedBy, f.UploadedAt)
	if err != nil {
		return fmt.Errorf("failed to save file record: %w", err)
	}
	return nil
}

func (s *SQLiteStore) FileMetadataByID(id string) (*models.FileMetadata, error) {
	row := s.conn.QueryRow(`
		SELECT id, filename, original_name, file_url, file_size, file_type, is_image, is_video, is_audio, uploaded_by, uploaded_at
		FROM files WHERE id = ?
	`, id)
	f, err := scanFile(row)
	if err == sql.ErrNoRows {
		return nil, ErrFileNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query file: %w", err)
	}
	return f, nil
}

func (s *SQLiteStore) FilesByUploader(userID string) ([]*models.FileMetadata, error) {
	rows, err := s.conn.Query(`
		SELECT id, filename, original_name, file_url, file_size, file_type, is_image, is_video, is_audio, uploaded_by, uploaded_at
		FROM files WHERE uploaded_by = ? ORDER BY uploaded_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query files: %w", err)
	}
	defer rows.Close()

	var files []*models.FileMetadata
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan file: %w", err)
		}
		files = append(files, f)
	}
	return files, rows.Err()
}

func scanFile(row interface{ Scan(...interface{}) error }) (*models.FileMetadata, error) {
	var f models.FileMetadata
	err := row.Scan(&f.ID, &f.Filename, &f.OriginalName, &f.FileURL, &f.FileSize, &f.FileType, &f.IsImage, &f.IsVideo, &f.IsAudio, &f.UploadedBy, &f.UploadedAt)
	if err != nil {
		return nil, err
	}
	return &f, nil
}

func (s *SQLiteStore) SavePushSubscription(sub *models.PushSubscription) error {
	_, err := s.conn.Exec(`
		INSERT INTO push_subscriptions (id, user_id, endpoint, key_p256dh, key_auth, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			endpoint = excluded.endpoint,
			key_p256dh = excluded.key_p256dh,
			key_auth = excluded.key_auth
	`, sub.ID, sub.UserID, sub.Endpoint, sub.KeyP256dh, sub.KeyAuth, sub.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save push subscription: %w", err)
	}
	return nil
}

func (s *SQLiteStore) PushSubscriptionsByUser(userID string) ([]*models.PushSubscription, error) {
	rows, err := s.conn.Query(`
		SELECT id, user_id, endpoint, key_p256dh, key_auth, created_at
		FROM push_subscriptions WHERE user_id = ? ORDER BY created_at
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query push subscriptions: %w", err)
	}
	defer rows.Close()

	var subs []*models.PushSubscription
	for rows.Next() {
		var sub models.PushSubscription
		if err := rows.Scan(&sub.ID, &sub.UserID, &sub.Endpoint, &sub.KeyP256dh, &sub.KeyAuth, &sub.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan push subscription: %w", err)
		}
		subs = append(subs, &sub)
	}
	return subs, rows.Err()
}

func (s *SQLiteStore) DeletePushSubscription(id string) error {
	_, err := s.conn.Exec("DELETE FROM push_subscriptions WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete push subscription: %w", err)
	}
	return nil
}

func (s *SQLiteStore) DeletePushSubscriptions(userID string) error {
	_, err := s.conn.Exec("DELETE FROM push_subscriptions WHERE user_id = ?", userID)
	if err != nil {
		return fmt.Errorf("failed to delete push subscriptions: %w", err)
	}
	return nil
}

// Counts reports per-entity row counts for the status command.
func (s *SQLiteStore) Counts() (users, messages, requests, files int64, err error) {
	for _, q := range []struct {
		query string
		dst   *int64
	}{
		{"SELECT COUNT(*) FROM users", &users},
		{"SELECT COUNT(*) FROM messages", &messages},
		{"SELECT COUNT(*) FROM friend_requests", &requests},
		{"SELECT COUNT(*) FROM files", &files},
	} {
		if err = s.conn.QueryRow(q.query).Scan(q.dst); err != nil {
			return
		}
	}
	return
}
