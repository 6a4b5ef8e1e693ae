package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/chatspace/chatspace/internal/auth"
	"github.com/chatspace/chatspace/internal/friends"
	"github.com/chatspace/chatspace/internal/models"
	"github.com/chatspace/chatspace/internal/store"
	"github.com/chatspace/chatspace/internal/ws"
	"github.com/chatspace/chatspace/pkg/logger"
)

type testServer struct {
	router  *gin.Engine
	store   *store.MemoryStore
	hub     *ws.Hub
	uploads string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger.Init(logger.Config{Level: "error", Output: io.Discard})

	st := store.NewMemoryStore()
	authSvc := auth.New(st, "test-secret", "")
	gate := friends.NewService(st)
	hub := ws.NewHub(st)
	go hub.Run()

	uploads := t.TempDir()

	authHandler := NewAuthHandler(authSvc)
	userHandler := NewUserHandler(st)
	msgHandler := NewMessageHandler(st, gate, hub, nil)
	friendHandler := NewFriendHandler(st, gate, hub)
	fileHandler := NewFileHandler(st, uploads, 10<<20)
	pushHandler := NewPushHandler(st, nil)

	router := gin.New()
	api := router.Group("/api")
	api.POST("/auth/register", authHandler.Register)
	api.POST("/auth/login", authHandler.Login)

	protected := api.Group("")
	protected.Use(authHandler.AuthMiddleware())
	protected.GET("/users", userHandler.GetUsers)
	protected.GET("/users/search", userHandler.SearchUsers)
	protected.GET("/messages", msgHandler.GetMessages)
	protected.POST("/messages", msgHandler.SendMessage)
	protected.POST("/upload", fileHandler.Upload)
	protected.POST("/profile/upload", fileHandler.UploadAvatar)
	protected.GET("/files/recover", fileHandler.Recover)
	protected.GET("/files/check-missing", fileHandler.CheckMissing)
	protected.POST("/friend-requests", friendHandler.SendRequest)
	protected.GET("/friend-requests/received", friendHandler.ReceivedRequests)
	protected.GET("/friend-requests/sent", friendHandler.SentRequests)
	protected.PUT("/friend-requests/:id", friendHandler.Respond)
	protected.DELETE("/friend-requests/:id", friendHandler.Cancel)
	protected.GET("/friends/:userId", friendHandler.AreFriends)
	protected.GET("/push/key", pushHandler.PublicKey)
	protected.POST("/push/subscriptions", pushHandler.Subscribe)
	protected.DELETE("/push/subscriptions", pushHandler.Unsubscribe)

	router.GET("/uploads/:filename", fileHandler.ServeUpload)
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "storage": st.Name()})
	})

	return &testServer{router: router, store: st, hub: hub, uploads: uploads}
}

func (ts *testServer) do(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request body: %v", err)
		}
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), out); err != nil {
		t.Fatalf("decode response %q: %v", w.Body.String(), err)
	}
}

// register creates an account through the API and returns the user and
// a usable bearer token.
func (ts *testServer) register(t *testing.T, username string) (*models.User, string) {
	t.Helper()
	w := ts.do(t, http.MethodPost, "/api/auth/register", "", gin.H{
		"username": username,
		"email":    username + "@example.com",
		"password": "s3cret",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("register %s: status %d body %s", username, w.Code, w.Body.String())
	}
	var resp AuthResponse
	decode(t, w, &resp)
	return resp.User, resp.Token
}

func TestRegisterValidation(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodPost, "/api/auth/register", "", gin.H{"username": "alice"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("incomplete register: status = %d, want 400", w.Code)
	}

	ts.register(t, "alice")
	w = ts.do(t, http.MethodPost, "/api/auth/register", "", gin.H{
		"username": "alice2", "email": "alice@example.com", "password": "other",
	})
	if w.Code != http.StatusBadRequest {
		t.Errorf("duplicate email: status = %d, want 400", w.Code)
	}
	var resp map[string]string
	decode(t, w, &resp)
	if resp["message"] != "User already exists" {
		t.Errorf("duplicate email message = %q", resp["message"])
	}
}

func TestRegisterHidesPassword(t *testing.T) {
	ts := newTestServer(t)
	w := ts.do(t, http.MethodPost, "/api/auth/register", "", gin.H{
		"username": "alice", "email": "alice@example.com", "password": "s3cret",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("register: status %d", w.Code)
	}
	if bytes.Contains(w.Body.Bytes(), []byte("s3cret")) || bytes.Contains(w.Body.Bytes(), []byte("password")) {
		t.Errorf("register response leaks password material: %s", w.Body.String())
	}
}

func TestLogin(t *testing.T) {
	ts := newTestServer(t)
	ts.register(t, "alice")

	w := ts.do(t, http.MethodPost, "/api/auth/login", "", gin.H{"email": "alice@example.com", "password": "s3cret"})
	if w.Code != http.StatusOK {
		t.Fatalf("login: status %d body %s", w.Code, w.Body.String())
	}
	var resp AuthResponse
	decode(t, w, &resp)
	if resp.Token == "" {
		t.Error("login returned empty token")
	}

	w = ts.do(t, http.MethodPost, "/api/auth/login", "", gin.H{"email": "alice@example.com", "password": "wrong"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("wrong password: status = %d, want 400", w.Code)
	}
	w = ts.do(t, http.MethodPost, "/api/auth/login", "", gin.H{"email": "nobody@example.com", "password": "s3cret"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("unknown email: status = %d, want 400", w.Code)
	}
}

func TestAuthMiddleware(t *testing.T) {
	ts := newTestServer(t)
	_, token := ts.register(t, "alice")

	w := ts.do(t, http.MethodGet, "/api/users", "", nil)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("no token: status = %d, want 401", w.Code)
	}

	w = ts.do(t, http.MethodGet, "/api/users", "garbage", nil)
	if w.Code != http.StatusForbidden {
		t.Errorf("bad token: status = %d, want 403", w.Code)
	}

	w = ts.do(t, http.MethodGet, "/api/users", token, nil)
	if w.Code != http.StatusOK {
		t.Errorf("good token: status = %d, want 200", w.Code)
	}

	// Sockets cannot set headers, so the token is accepted as a query
	// parameter too.
	w = ts.do(t, http.MethodGet, "/api/users?token="+token, "", nil)
	if w.Code != http.StatusOK {
		t.Errorf("query token: status = %d, want 200", w.Code)
	}
}

func TestGetUsersOnlineFirst(t *testing.T) {
	ts := newTestServer(t)
	_, token := ts.register(t, "zoe")
	bob, _ := ts.register(t, "bob")
	carol, _ := ts.register(t, "carol")

	// Registration marks everyone online; push two of them offline.
	for _, u := range []*models.User{bob, carol} {
		stored, err := ts.store.UserByID(u.ID)
		if err != nil {
			t.Fatalf("UserByID: %v", err)
		}
		stored.Status = models.StatusOffline
		if err := ts.store.SaveUser(stored); err != nil {
			t.Fatalf("SaveUser: %v", err)
		}
	}

	w := ts.do(t, http.MethodGet, "/api/users", token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get users: status %d", w.Code)
	}
	var users []*models.User
	decode(t, w, &users)
	if len(users) != 3 {
		t.Fatalf("got %d users, want 3", len(users))
	}
	if users[0].Username != "zoe" {
		t.Errorf("first user = %q, want the online one (zoe)", users[0].Username)
	}
	if users[1].Username != "bob" || users[2].Username != "carol" {
		t.Errorf("offline users not sorted by name: %q, %q", users[1].Username, users[2].Username)
	}
}

func TestSearchUsers(t *testing.T) {
	ts := newTestServer(t)
	_, token := ts.register(t, "alice")
	ts.register(t, "bob")
	ts.register(t, "bobby")

	w := ts.do(t, http.MethodGet, "/api/users/search?q=bob", token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("search: status %d", w.Code)
	}
	var users []*models.User
	decode(t, w, &users)
	if len(users) != 2 {
		t.Errorf("got %d matches, want 2", len(users))
	}

	// The caller never matches themselves.
	w = ts.do(t, http.MethodGet, "/api/users/search?q=alice", token, nil)
	decode(t, w, &users)
	if len(users) != 0 {
		t.Errorf("self match: got %d users, want 0", len(users))
	}

	// An empty query matches nobody rather than everybody.
	w = ts.do(t, http.MethodGet, "/api/users/search?q=", token, nil)
	decode(t, w, &users)
	if len(users) != 0 {
		t.Errorf("empty query: got %d users, want 0", len(users))
	}
}

// TestMessagingFlow walks the full product loop: two accounts, a friend
// request, acceptance, then a message that lands in both views of the
// conversation.
func TestMessagingFlow(t *testing.T) {
	ts := newTestServer(t)
	alice, aliceToken := ts.register(t, "alice")
	bob, bobToken := ts.register(t, "bob")

	// Strangers cannot message.
	w := ts.do(t, http.MethodPost, "/api/messages", aliceToken, gin.H{"receiverId": bob.ID, "content": "hi"})
	if w.Code != http.StatusForbidden {
		t.Fatalf("message before friendship: status = %d, want 403", w.Code)
	}

	w = ts.do(t, http.MethodPost, "/api/friend-requests", aliceToken, gin.H{"receiverId": bob.ID})
	if w.Code != http.StatusOK {
		t.Fatalf("send request: status %d body %s", w.Code, w.Body.String())
	}

	w = ts.do(t, http.MethodGet, "/api/friend-requests/received", bobToken, nil)
	var received struct {
		Requests []struct {
			ID     string         `json:"id"`
			Sender *models.Sender `json:"sender"`
		} `json:"requests"`
	}
	decode(t, w, &received)
	if len(received.Requests) != 1 {
		t.Fatalf("received requests = %d, want 1", len(received.Requests))
	}
	if received.Requests[0].Sender == nil || received.Requests[0].Sender.Username != "alice" {
		t.Error("received request missing sender snapshot")
	}

	w = ts.do(t, http.MethodPut, "/api/friend-requests/"+received.Requests[0].ID, bobToken, gin.H{"action": "accept"})
	if w.Code != http.StatusOK {
		t.Fatalf("accept: status %d body %s", w.Code, w.Body.String())
	}

	w = ts.do(t, http.MethodGet, "/api/friends/"+bob.ID, aliceToken, nil)
	var friendsResp struct {
		AreFriends bool `json:"areFriends"`
	}
	decode(t, w, &friendsResp)
	if !friendsResp.AreFriends {
		t.Fatal("areFriends = false after acceptance")
	}

	w = ts.do(t, http.MethodPost, "/api/messages", aliceToken, gin.H{"receiverId": bob.ID, "content": "hello bob"})
	if w.Code != http.StatusOK {
		t.Fatalf("send message: status %d body %s", w.Code, w.Body.String())
	}
	var sent models.Message
	decode(t, w, &sent)
	if sent.ID == "" || sent.Sender.Username != "alice" {
		t.Errorf("message missing id or sender snapshot: %+v", sent)
	}
	if sent.Type != models.MessageText {
		t.Errorf("message type = %q, want text default", sent.Type)
	}

	// Both directions see the same conversation.
	for _, token := range []string{aliceToken, bobToken} {
		other := bob.ID
		if token == bobToken {
			other = alice.ID
		}
		w = ts.do(t, http.MethodGet, "/api/messages?receiverId="+other, token, nil)
		if w.Code != http.StatusOK {
			t.Fatalf("get messages: status %d", w.Code)
		}
		var messages []*models.Message
		decode(t, w, &messages)
		if len(messages) != 1 || messages[0].Content != "hello bob" {
			t.Errorf("conversation = %+v, want the single message", messages)
		}
	}
}

func TestGetMessagesRequiresReceiver(t *testing.T) {
	ts := newTestServer(t)
	_, token := ts.register(t, "alice")

	w := ts.do(t, http.MethodGet, "/api/messages", token, nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
	var resp map[string]string
	decode(t, w, &resp)
	if resp["message"] != "Receiver ID is required" {
		t.Errorf("message = %q", resp["message"])
	}
}

func TestSendMessageValidation(t *testing.T) {
	ts := newTestServer(t)
	_, aliceToken := ts.register(t, "alice")
	bob, _ := ts.register(t, "bob")

	tests := []struct {
		name string
		body gin.H
		want int
	}{
		{"missing receiver", gin.H{"content": "hi"}, http.StatusBadRequest},
		{"blank content", gin.H{"receiverId": bob.ID, "content": "   "}, http.StatusBadRequest},
		{"unknown receiver", gin.H{"receiverId": "ghost", "content": "hi"}, http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := ts.do(t, http.MethodPost, "/api/messages", aliceToken, tt.body)
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d (body %s)", w.Code, tt.want, w.Body.String())
			}
		})
	}
}

func TestFriendRequestEndpointErrors(t *testing.T) {
	ts := newTestServer(t)
	alice, aliceToken := ts.register(t, "alice")
	bob, bobToken := ts.register(t, "bob")

	w := ts.do(t, http.MethodPost, "/api/friend-requests", aliceToken, gin.H{"receiverId": alice.ID})
	if w.Code != http.StatusBadRequest {
		t.Errorf("self request: status = %d, want 400", w.Code)
	}

	w = ts.do(t, http.MethodPost, "/api/friend-requests", aliceToken, gin.H{"receiverId": "ghost"})
	if w.Code != http.StatusNotFound {
		t.Errorf("unknown receiver: status = %d, want 404", w.Code)
	}

	w = ts.do(t, http.MethodPost, "/api/friend-requests", aliceToken, gin.H{"receiverId": bob.ID})
	if w.Code != http.StatusOK {
		t.Fatalf("send request: status %d", w.Code)
	}
	var sent struct {
		Request models.FriendRequest `json:"request"`
	}
	decode(t, w, &sent)

	w = ts.do(t, http.MethodPost, "/api/friend-requests", aliceToken, gin.H{"receiverId": bob.ID})
	if w.Code != http.StatusBadRequest {
		t.Errorf("duplicate request: status = %d, want 400", w.Code)
	}
	var resp map[string]interface{}
	decode(t, w, &resp)
	if resp["message"] != "Friend request already sent" {
		t.Errorf("duplicate message = %q", resp["message"])
	}

	// Only the receiver may respond.
	w = ts.do(t, http.MethodPut, "/api/friend-requests/"+sent.Request.ID, aliceToken, gin.H{"action": "accept"})
	if w.Code != http.StatusNotFound {
		t.Errorf("sender responding: status = %d, want 404", w.Code)
	}

	w = ts.do(t, http.MethodPut, "/api/friend-requests/"+sent.Request.ID, bobToken, gin.H{"action": "block"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad action: status = %d, want 400", w.Code)
	}
}

func TestCancelFriendRequest(t *testing.T) {
	ts := newTestServer(t)
	_, aliceToken := ts.register(t, "alice")
	bob, bobToken := ts.register(t, "bob")

	w := ts.do(t, http.MethodPost, "/api/friend-requests", aliceToken, gin.H{"receiverId": bob.ID})
	if w.Code != http.StatusOK {
		t.Fatalf("send request: status %d", w.Code)
	}
	var sent struct {
		Request models.FriendRequest `json:"request"`
	}
	decode(t, w, &sent)

	// The receiver cannot cancel, only the sender.
	w = ts.do(t, http.MethodDelete, "/api/friend-requests/"+sent.Request.ID, bobToken, nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("receiver cancelling: status = %d, want 404", w.Code)
	}

	w = ts.do(t, http.MethodDelete, "/api/friend-requests/"+sent.Request.ID, aliceToken, nil)
	if w.Code != http.StatusOK {
		t.Errorf("cancel: status = %d, want 200", w.Code)
	}

	w = ts.do(t, http.MethodGet, "/api/friend-requests/sent", aliceToken, nil)
	var sentList struct {
		Requests []json.RawMessage `json:"requests"`
	}
	decode(t, w, &sentList)
	if len(sentList.Requests) != 0 {
		t.Errorf("sent list after cancel = %d entries, want 0", len(sentList.Requests))
	}
}

// multipartBody builds a multipart form with a single file part carrying
// an explicit content type.
func multipartBody(t *testing.T, filename, contentType string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	buf := &bytes.Buffer{}
	writer := multipart.NewWriter(buf)

	header := textproto.MIMEHeader{}
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, filename))
	header.Set("Content-Type", contentType)
	part, err := writer.CreatePart(header)
	if err != nil {
		t.Fatalf("create part: %v", err)
	}
	if _, err := part.Write(content); err != nil {
		t.Fatalf("write part: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	return buf, writer.FormDataContentType()
}

func (ts *testServer) upload(t *testing.T, path, token, filename, contentType string, content []byte) *httptest.ResponseRecorder {
	t.Helper()
	body, formType := multipartBody(t, filename, contentType, content)
	req := httptest.NewRequest(http.MethodPost, path, body)
	req.Header.Set("Content-Type", formType)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)
	return w
}

func TestUpload(t *testing.T) {
	ts := newTestServer(t)
	_, token := ts.register(t, "alice")

	w := ts.upload(t, "/api/upload", token, "clip.mp4", "video/mp4", []byte("fake video bytes"))
	if w.Code != http.StatusOK {
		t.Fatalf("upload: status %d body %s", w.Code, w.Body.String())
	}
	var resp struct {
		FileURL  string `json:"fileUrl"`
		FileName string `json:"fileName"`
		FileType string `json:"fileType"`
		IsVideo  bool   `json:"isVideo"`
		IsImage  bool   `json:"isImage"`
	}
	decode(t, w, &resp)
	if resp.FileName != "clip.mp4" || resp.FileType != models.MessageVideo || !resp.IsVideo || resp.IsImage {
		t.Errorf("upload response = %+v", resp)
	}

	// The blob is immediately servable under its public URL.
	req := httptest.NewRequest(http.MethodGet, resp.FileURL, nil)
	served := httptest.NewRecorder()
	ts.router.ServeHTTP(served, req)
	if served.Code != http.StatusOK {
		t.Errorf("serve uploaded file: status = %d, want 200", served.Code)
	}
	if served.Body.String() != "fake video bytes" {
		t.Errorf("served content = %q", served.Body.String())
	}
}

func TestUploadRejectsDisallowedType(t *testing.T) {
	ts := newTestServer(t)
	_, token := ts.register(t, "alice")

	w := ts.upload(t, "/api/upload", token, "evil.exe", "application/x-msdownload", []byte("MZ"))
	if w.Code != http.StatusBadRequest {
		t.Errorf("exe upload: status = %d, want 400", w.Code)
	}
	var resp map[string]string
	decode(t, w, &resp)
	if resp["message"] != "File type not allowed" {
		t.Errorf("message = %q", resp["message"])
	}
}

func TestUploadRejectsOversize(t *testing.T) {
	ts := newTestServer(t)
	_, token := ts.register(t, "alice")
	// Mount the handler with a tiny cap so the test does not need to
	// allocate a huge body.
	fileHandler := NewFileHandler(ts.store, ts.uploads, 8)
	router := gin.New()
	authed := router.Group("", func(c *gin.Context) {
		c.Set("user_id", tokenUser(t, ts, token))
	})
	authed.POST("/api/upload", fileHandler.Upload)

	body, formType := multipartBody(t, "big.png", "image/png", bytes.Repeat([]byte("x"), 64))
	req := httptest.NewRequest(http.MethodPost, "/api/upload", body)
	req.Header.Set("Content-Type", formType)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("oversize upload: status = %d, want 413", w.Code)
	}
}

// tokenUser resolves the user id a register token belongs to.
func tokenUser(t *testing.T, ts *testServer, token string) string {
	t.Helper()
	svc := auth.New(ts.store, "test-secret", "")
	claims, err := svc.ValidateToken(token)
	if err != nil {
		t.Fatalf("ValidateToken: %v", err)
	}
	return claims.UserID
}

func TestAvatarUpload(t *testing.T) {
	ts := newTestServer(t)
	user, token := ts.register(t, "alice")

	w := ts.upload(t, "/api/profile/upload", token, "face.png", "image/png", []byte("png bytes"))
	if w.Code != http.StatusOK {
		t.Fatalf("avatar upload: status %d body %s", w.Code, w.Body.String())
	}

	stored, err := ts.store.UserByID(user.ID)
	if err != nil {
		t.Fatalf("UserByID: %v", err)
	}
	if stored.Avatar == "" {
		t.Error("avatar not set on user")
	}

	w = ts.upload(t, "/api/profile/upload", token, "notes.pdf", "application/pdf", []byte("%PDF"))
	if w.Code != http.StatusBadRequest {
		t.Errorf("non-image avatar: status = %d, want 400", w.Code)
	}
}

func TestFileRecoveryEndpoints(t *testing.T) {
	ts := newTestServer(t)
	_, token := ts.register(t, "alice")

	w := ts.upload(t, "/api/upload", token, "one.png", "image/png", []byte("one"))
	if w.Code != http.StatusOK {
		t.Fatalf("upload: status %d", w.Code)
	}
	time.Sleep(time.Millisecond)
	w = ts.upload(t, "/api/upload", token, "two.png", "image/png", []byte("two"))
	if w.Code != http.StatusOK {
		t.Fatalf("upload: status %d", w.Code)
	}

	w = ts.do(t, http.MethodGet, "/api/files/recover", token, nil)
	var recovered struct {
		Files []*models.FileMetadata `json:"files"`
	}
	decode(t, w, &recovered)
	if len(recovered.Files) != 2 {
		t.Fatalf("recovered %d files, want 2", len(recovered.Files))
	}
	if recovered.Files[0].OriginalName != "two.png" {
		t.Errorf("recover order: first = %q, want newest", recovered.Files[0].OriginalName)
	}

	// Simulate the blob vanishing across a restart.
	if err := os.Remove(filepath.Join(ts.uploads, recovered.Files[0].Filename)); err != nil {
		t.Fatalf("remove blob: %v", err)
	}

	w = ts.do(t, http.MethodGet, "/api/files/check-missing", token, nil)
	var missing struct {
		MissingFiles []*models.FileMetadata `json:"missingFiles"`
		TotalMissing int                    `json:"totalMissing"`
	}
	decode(t, w, &missing)
	if missing.TotalMissing != 1 {
		t.Errorf("totalMissing = %d, want 1", missing.TotalMissing)
	}

	// The vanished blob 404s with an explanatory body.
	req := httptest.NewRequest(http.MethodGet, recovered.Files[0].FileURL, nil)
	served := httptest.NewRecorder()
	ts.router.ServeHTTP(served, req)
	if served.Code != http.StatusNotFound {
		t.Errorf("vanished blob: status = %d, want 404", served.Code)
	}
	var body map[string]string
	decode(t, served, &body)
	if body["message"] != "This file may have been removed after server restart" {
		t.Errorf("vanished blob message = %q", body["message"])
	}
}

func TestPushEndpoints(t *testing.T) {
	ts := newTestServer(t)
	user, token := ts.register(t, "alice")

	// Push is unconfigured in tests, so the key endpoint 404s.
	w := ts.do(t, http.MethodGet, "/api/push/key", token, nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("push key: status = %d, want 404", w.Code)
	}

	w = ts.do(t, http.MethodPost, "/api/push/subscriptions", token, gin.H{
		"endpoint": "https://push.example.com/abc",
		"keys":     gin.H{"p256dh": "p", "auth": "a"},
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("subscribe: status %d body %s", w.Code, w.Body.String())
	}

	subs, err := ts.store.PushSubscriptionsByUser(user.ID)
	if err != nil || len(subs) != 1 {
		t.Fatalf("subscriptions = %d (err %v), want 1", len(subs), err)
	}

	w = ts.do(t, http.MethodDelete, "/api/push/subscriptions", token, nil)
	if w.Code != http.StatusOK {
		t.Errorf("unsubscribe: status = %d, want 200", w.Code)
	}
	subs, _ = ts.store.PushSubscriptionsByUser(user.ID)
	if len(subs) != 0 {
		t.Errorf("subscriptions after unsubscribe = %d, want 0", len(subs))
	}
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)
	w := ts.do(t, http.MethodGet, "/health", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("health: status %d", w.Code)
	}
	var resp map[string]string
	decode(t, w, &resp)
	if resp["status"] != "ok" || resp["storage"] != "memory" {
		t.Errorf("health body = %v", resp)
	}
}
