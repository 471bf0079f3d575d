package identity

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

type Identity struct {
	ID       int64      `json:"id"`
	Nickname string     `json:"nickname"`
	Email    string     `json:"email,omitempty"`
	AboutMe  string     `json:"about_me"`
	LastSeen *time.Time `json:"last_seen,omitempty"`
}

// Avatar returns the Gravatar URL for the identity's email at the given size.
func (i Identity) Avatar(size int) string {
	sum := md5.Sum([]byte(strings.ToLower(strings.TrimSpace(i.Email))))
	return fmt.Sprintf("http://www.gravatar.com/avatar/%s?d=mm&s=%d", hex.EncodeToString(sum[:]), size)
}

// Public strips fields other identities must not see.
func (i Identity) Public() Identity {
	i.Email = ""
	return i
}

type NewIdentity struct {
	Nickname string `json:"nickname" validate:"required,max=64,nickname"`
	Email    string `json:"email" validate:"required,email,max=120"`
}

type ProfileUpdate struct {
	Nickname string `json:"nickname" validate:"required,max=64,nickname"`
	AboutMe  string `json:"about_me" validate:"max=140"`
}
