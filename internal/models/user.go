package models

import (
	"time"
)

type User struct {
	ID           int64
	CreatedAt    time.Time
	Name         string
	Email        string
	PasswordHash string
	IsPremium    bool
	LastLoginAt  *time.Time // nil if user never logged in
}
