package social

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"backend-microblog/internal/db"
	"backend-microblog/internal/identity"
	"backend-microblog/internal/monitoring"
	"backend-microblog/internal/shared/apperr"
	"backend-microblog/internal/shared/validate"

	"github.com/sirupsen/logrus"
)

const defaultPerPage = 3

type IdentityFinder interface {
	GetByNickname(ctx context.Context, nickname string) (identity.Identity, error)
}

// Publisher pushes a payload to the live stream of one identity.
type Publisher interface {
	Broadcast(identityID int64, payload []byte)
}

type Service struct {
	db         db.Querier
	identities IdentityFinder
	publisher  Publisher
	perPage    int
	now        func() time.Time
}

// NewService builds the social service. publisher may be nil, in which case
// new posts are not streamed.
func NewService(q db.Querier, identities IdentityFinder, publisher Publisher, perPage int) *Service {
	if perPage <= 0 {
		perPage = defaultPerPage
	}
	return &Service{
		db:         q,
		identities: identities,
		publisher:  publisher,
		perPage:    perPage,
		now:        time.Now,
	}
}

// CreatePost stores a post authored by authorID, timestamped with the
// server clock in UTC.
func (s *Service) CreatePost(ctx context.Context, authorID int64, body string) (Post, error) {
	input := NewPost{Body: strings.TrimSpace(body)}
	if err := validate.Struct(input); err != nil {
		return Post{}, err
	}

	post := Post{
		AuthorID:  authorID,
		Body:      input.Body,
		CreatedAt: s.now().UTC(),
	}
	row := s.db.QueryRow(ctx, `
		WITH inserted AS (
			INSERT INTO posts (body, author_id, created_at)
			VALUES ($1,$2,$3)
			RETURNING id, author_id
		)
		SELECT inserted.id, identities.nickname
		FROM inserted JOIN identities ON identities.id = inserted.author_id
	`, post.Body, post.AuthorID, post.CreatedAt)
	if err := row.Scan(&post.ID, &post.AuthorNickname); err != nil {
		return Post{}, apperr.FromDB(err)
	}

	monitoring.PostsCreated.Inc()
	s.publish(ctx, post)
	return post, nil
}

// publish streams the post to everyone following its author, the author
// included. Failures are logged; the post is already stored.
func (s *Service) publish(ctx context.Context, post Post) {
	if s.publisher == nil {
		return
	}
	payload, err := json.Marshal(post)
	if err != nil {
		logrus.WithError(err).Warn("encode post for stream")
		return
	}
	followers, err := s.followerIDs(ctx, post.AuthorID)
	if err != nil {
		logrus.WithError(err).WithField("post_id", post.ID).Warn("load followers for stream")
		return
	}
	for _, id := range followers {
		s.publisher.Broadcast(id, payload)
	}
}
