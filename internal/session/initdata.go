// Package session resolves the shopper behind a storefront request: a Telegram
// Web App user, an anonymous browser session, or the debug test user.
package session

import (
	"errors"
	"fmt"
	"strings"
	"time"

	initdata "github.com/telegram-mini-apps/init-data-golang"
)

var (
	// ErrInvalidInitData is returned when init data fails signature or freshness checks.
	ErrInvalidInitData = errors.New("session: invalid telegram init data")
)

// TelegramUser is the subset of the Telegram user object carried in init data.
type TelegramUser struct {
	ID        int64  `json:"id"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
	Username  string `json:"username,omitempty"`
}

// DisplayName renders the user as "First Last (@username)" with empty parts omitted.
func (u TelegramUser) DisplayName() string {
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if u.Username != "" {
		if name == "" {
			return "@" + u.Username
		}
		return name + " (@" + u.Username + ")"
	}
	return name
}

// InitDataValidator checks Telegram Web App init data signed by the bot token.
type InitDataValidator struct {
	BotToken string
	MaxAge   time.Duration
	Now      func() time.Time
}

func (v InitDataValidator) now() time.Time {
	if v.Now != nil {
		return v.Now()
	}
	return time.Now()
}

// Validate verifies raw init data and returns the embedded user.
// Freshness is checked against v.Now so the clock stays injectable.
func (v InitDataValidator) Validate(raw string) (TelegramUser, error) {
	if v.BotToken == "" || strings.TrimSpace(raw) == "" {
		return TelegramUser{}, ErrInvalidInitData
	}
	if err := initdata.Validate(raw, v.BotToken, 0); err != nil {
		return TelegramUser{}, fmt.Errorf("%w: %v", ErrInvalidInitData, err)
	}
	data, err := initdata.Parse(raw)
	if err != nil {
		return TelegramUser{}, fmt.Errorf("%w: %v", ErrInvalidInitData, err)
	}

	maxAge := v.MaxAge
	if maxAge <= 0 {
		maxAge = 24 * time.Hour
	}
	if v.now().Sub(data.AuthDate()) > maxAge {
		return TelegramUser{}, fmt.Errorf("%w: auth_date expired", ErrInvalidInitData)
	}
	if data.User.ID == 0 {
		return TelegramUser{}, fmt.Errorf("%w: user missing", ErrInvalidInitData)
	}
	return TelegramUser{
		ID:        data.User.ID,
		FirstName: data.User.FirstName,
		LastName:  data.User.LastName,
		Username:  data.User.Username,
	}, nil
}
