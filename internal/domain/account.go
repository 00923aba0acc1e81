package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// User is the single local account of an installation.
type User struct {
	ID                  string `json:"id"`
	ActiveWorkspaceID   string `json:"activeWorkspaceId"`
	OnboardingCompleted bool   `json:"onboardingCompleted"`
	CreatedAt           int64  `json:"createdAt"` // epoch ms
}

// Profile is the user's presentation data. Its ID is the user's ID.
type Profile struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	AvatarURL   string `json:"avatarUrl,omitempty"`
	Bio         string `json:"bio,omitempty"`
	UpdatedAt   int64  `json:"updatedAt"`
}

// Workspace is a named scope owning its own bookmark tree and theme.
type Workspace struct {
	ID         string          `json:"id"`
	UserID     string          `json:"userId"`
	Name       string          `json:"name"`
	Theme      string          `json:"theme,omitempty"`
	Layout     json.RawMessage `json:"layout,omitempty"`
	CreatedAt  int64           `json:"createdAt"`
	LastUsedAt int64           `json:"lastUsedAt"`
}

// NewID returns a time-ordered unique record id.
func NewID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// Millis converts t to the epoch-millisecond form stored in records.
func Millis(t time.Time) int64 { return t.UnixMilli() }
