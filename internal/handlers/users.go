package handlers

import (
	"net/http"
	"sort"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/chatspace/chatspace/internal/models"
	"github.com/chatspace/chatspace/internal/store"
)

type UserHandler struct {
	store store.Store
}

func NewUserHandler(st store.Store) *UserHandler {
	return &UserHandler{store: st}
}

// GetUsers lists all users, online first, then by username.
func (h *UserHandler) GetUsers(c *gin.Context) {
	users, err := h.store.Users()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Server error"})
		return
	}

	sort.SliceStable(users, func(i, j int) bool {
		if users[i].Status != users[j].Status {
			return users[i].Status == models.StatusOnline
		}
		return users[i].Username < users[j].Username
	})

	if users == nil {
		users = []*models.User{}
	}
	c.JSON(http.StatusOK, users)
}

// SearchUsers returns up to 10 users whose username or email contains
// the query, excluding the caller. An empty query matches nobody.
func (h *UserHandler) SearchUsers(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	q := strings.ToLower(strings.TrimSpace(c.Query("q")))
	if q == "" {
		c.JSON(http.StatusOK, []*models.User{})
		return
	}

	users, err := h.store.Users()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Server error"})
		return
	}

	matches := []*models.User{}
	for _, u := range users {
		if u.ID == userID {
			continue
		}
		if strings.Contains(strings.ToLower(u.Username), q) || strings.Contains(strings.ToLower(u.Email), q) {
			matches = append(matches, u)
			if len(matches) == 10 {
				break
			}
		}
	}

	c.JSON(http.StatusOK, matches)
}
