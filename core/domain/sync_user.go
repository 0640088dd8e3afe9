package domain

import (
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// User
// =============================================================================

type User struct {
	ID         uuid.UUID `json:"id"`
	Name       string    `json:"name"`
	Email      string    `json:"email"`
	AvatarPath *string   `json:"avatar_path,omitempty"`
	UserType   UserType  `json:"user_type"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`

	SyncMetadata
}

func (u *User) GetID() uuid.UUID { return u.ID }
func (u *User) Kind() EntityKind { return KindUser }

type UserDTO struct {
	ID         uuid.UUID `json:"id"`
	Name       string    `json:"name"`
	Email      string    `json:"email"`
	AvatarPath *string   `json:"avatar_path"`
	UserType   string    `json:"user_type"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func (d UserDTO) RemoteID() uuid.UUID { return d.ID }

func (d UserDTO) UnknownEnums() []string {
	if _, ok := ParseUserType(d.UserType); !ok {
		return []string{"user_type=" + d.UserType}
	}
	return nil
}

func NewUserFromDTO(d UserDTO) *User {
	u := &User{ID: d.ID}
	u.Apply(d)
	return u
}

func (u *User) Apply(d UserDTO) {
	u.Name = d.Name
	u.Email = d.Email
	u.AvatarPath = d.AvatarPath
	u.UserType, _ = ParseUserType(d.UserType)
	u.CreatedAt = d.CreatedAt
	u.UpdatedAt = d.UpdatedAt
}

func (u *User) ToDTO() UserDTO {
	return UserDTO{
		ID:         u.ID,
		Name:       u.Name,
		Email:      u.Email,
		AvatarPath: u.AvatarPath,
		UserType:   string(u.UserType),
		CreatedAt:  u.CreatedAt,
		UpdatedAt:  u.UpdatedAt,
	}
}
