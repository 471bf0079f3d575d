package social

import (
	"time"

	"backend-microblog/internal/identity"
)

type Post struct {
	ID             int64     `json:"id"`
	AuthorID       int64     `json:"author_id"`
	AuthorNickname string    `json:"author_nickname"`
	Body           string    `json:"body"`
	CreatedAt      time.Time `json:"created_at"`
}

type NewPost struct {
	Body string `json:"body" validate:"required,max=140"`
}

// FeedPage is one page of posts, newest first.
type FeedPage struct {
	Items   []Post `json:"items"`
	Page    int    `json:"page"`
	PerPage int    `json:"per_page"`
	HasNext bool   `json:"has_next"`
	HasPrev bool   `json:"has_prev"`
}

type Profile struct {
	Identity    identity.Identity `json:"identity"`
	Avatar      string            `json:"avatar"`
	Followers   int64             `json:"followers"`
	Following   int64             `json:"following"`
	IsFollowing bool              `json:"is_following"`
	IsSelf      bool              `json:"is_self"`
}
