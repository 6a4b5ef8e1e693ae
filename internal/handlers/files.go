package handlers

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/chatspace/chatspace/internal/models"
	"github.com/chatspace/chatspace/internal/store"
)

// allowedUploadTypes is the server-side allow-list: images, video, audio
// and common document types.
var allowedUploadTypes = map[string]bool{
	"image/jpeg": true, "image/png": true, "image/gif": true, "image/webp": true, "image/avif": true,
	"video/mp4": true, "video/webm": true, "video/ogg": true, "video/avi": true, "video/mov": true,
	"audio/mpeg": true, "audio/wav": true, "audio/ogg": true, "audio/mp3": true, "audio/aac": true,
	"application/pdf": true, "application/msword": true,
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": true,
	"text/plain": true,
}

type FileHandler struct {
	store       store.Store
	storagePath string
	maxUpload   int64
}

func NewFileHandler(st store.Store, storagePath string, maxUpload int64) *FileHandler {
	return &FileHandler{store: st, storagePath: storagePath, maxUpload: maxUpload}
}

// classify maps a mime type to the message-level file category.
func classify(mimeType string) (fileType string, isImage, isVideo, isAudio bool) {
	switch {
	case strings.HasPrefix(mimeType, "image/"):
		return models.MessageImage, true, false, false
	case strings.HasPrefix(mimeType, "video/"):
		return models.MessageVideo, false, true, false
	case strings.HasPrefix(mimeType, "audio/"):
		return models.MessageAudio, false, false, true
	default:
		return models.MessageFile, false, false, false
	}
}

// Upload stores a blob on local disk and mirrors its metadata in the
// store so files can be rediscovered after a restart.
func (h *FileHandler) Upload(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	file, header, err := c.Request.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "No file uploaded"})
		return
	}
	defer file.Close()

	if header.Size > h.maxUpload {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"message": "File too large"})
		return
	}

	mimeType := header.Header.Get("Content-Type")
	if !allowedUploadTypes[mimeType] {
		c.JSON(http.StatusBadRequest, gin.H{"message": "File type not allowed"})
		return
	}

	if _, err := h.store.UserByID(userID); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"message": "User not found"})
		return
	}

	filename := fmt.Sprintf("%d-%s%s", time.Now().UnixNano(), uuid.NewString(), filepath.Ext(header.Filename))
	if err := c.SaveUploadedFile(header, filepath.Join(h.storagePath, filename)); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Failed to save file"})
		return
	}

	fileType, isImage, isVideo, isAudio := classify(mimeType)
	fileURL := "/uploads/" + filename

	metadata := &models.FileMetadata{
		ID:           uuid.NewString(),
		Filename:     filename,
		OriginalName: header.Filename,
		FileURL:      fileURL,
		FileSize:     header.Size,
		FileType:     fileType,
		IsImage:      isImage,
		IsVideo:      isVideo,
		IsAudio:      isAudio,
		UploadedBy:   userID,
		UploadedAt:   time.Now(),
	}
	if err := h.store.SaveFileMetadata(metadata); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Failed to save file record"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":  "File uploaded successfully",
		"fileUrl":  fileURL,
		"fileName": header.Filename,
		"fileSize": header.Size,
		"fileType": fileType,
		"isImage":  isImage,
		"isVideo":  isVideo,
		"isAudio":  isAudio,
	})
}

// UploadAvatar accepts an image and sets it as the caller's avatar.
func (h *FileHandler) UploadAvatar(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	file, header, err := c.Request.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "No file uploaded"})
		return
	}
	defer file.Close()

	if !strings.HasPrefix(header.Header.Get("Content-Type"), "image/") {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Only image files are allowed for profile pictures"})
		return
	}

	user, err := h.store.UserByID(userID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"message": "User not found"})
		return
	}

	filename := fmt.Sprintf("%d-%s%s", time.Now().UnixNano(), uuid.NewString(), filepath.Ext(header.Filename))
	if err := c.SaveUploadedFile(header, filepath.Join(h.storagePath, filename)); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Failed to save file"})
		return
	}

	user.Avatar = "/uploads/" + filename
	user.UpdatedAt = time.Now()
	if err := h.store.SaveUser(user); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Failed to update avatar"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Profile picture uploaded successfully",
		"avatar":  user.Avatar,
	})
}

// Recover returns the caller's file metadata, newest first, so a client
// can rebuild its file list after the server restarts.
func (h *FileHandler) Recover(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	files, err := h.store.FilesByUploader(userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Server error"})
		return
	}
	if files == nil {
		files = []*models.FileMetadata{}
	}
	c.JSON(http.StatusOK, gin.H{"files": files})
}

// CheckMissing reports metadata whose blob no longer exists on disk.
// Orphaned metadata is expected after a restart on ephemeral storage and
// must be detectable rather than silently serving broken links.
func (h *FileHandler) CheckMissing(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	files, err := h.store.FilesByUploader(userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Server error"})
		return
	}

	missing := []*models.FileMetadata{}
	for _, f := range files {
		if _, err := os.Stat(filepath.Join(h.storagePath, f.Filename)); os.IsNotExist(err) {
			missing = append(missing, f)
		}
	}

	message := "All files are present"
	if len(missing) > 0 {
		message = "Some files are missing from storage"
	}
	c.JSON(http.StatusOK, gin.H{
		"missingFiles": missing,
		"totalMissing": len(missing),
		"message":      message,
	})
}

// ServeUpload serves a stored blob, answering 404 with an explanatory
// body when the blob vanished (restart on ephemeral storage).
func (h *FileHandler) ServeUpload(c *gin.Context) {
	filename := filepath.Base(c.Param("filename"))
	path := filepath.Join(h.storagePath, filename)

	if _, err := os.Stat(path); os.IsNotExist(err) {
		c.JSON(http.StatusNotFound, gin.H{
			"message":  "This file may have been removed after server restart",
			"filename": filename,
		})
		return
	}
	c.File(path)
}
