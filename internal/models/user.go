package models

import (
	"time"
)

type Role string

const (
	RoleUser  Role = "USER"
	RoleAdmin Role = "ADMIN"
)

type User struct {
	ID           int64
	CreatedAt    time.Time
	Username     string
	Email        string
	Name         string
	Address      string
	PasswordHash string // empty for accounts created by an oauth provider
	Role         Role
}

// Public representation, never carries the password hash
type UserView struct {
	ID       int64  `json:"id"`
	Username string `json:"username,omitempty"`
	Name     string `json:"name,omitempty"`
	Email    string `json:"email,omitempty"`
	Address  string `json:"address,omitempty"`
	Role     Role   `json:"role"`
}

func (u User) View() UserView {
	return UserView{
		ID:       u.ID,
		Username: u.Username,
		Name:     u.Name,
		Email:    u.Email,
		Address:  u.Address,
		Role:     u.Role,
	}
}

func (u User) HasPassword() bool {
	return u.PasswordHash != ""
}
