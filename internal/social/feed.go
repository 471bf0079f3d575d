package social

import (
	"context"
	"fmt"
	"math"
)

// Feed returns page (1-indexed) of posts written by anyone viewerID follows,
// newest first. Because every identity follows itself, the viewer's own
// posts are part of it. A page past the end is empty, not an error.
func (s *Service) Feed(ctx context.Context, viewerID int64, page int) (FeedPage, error) {
	return s.page(ctx, `
		SELECT p.id, p.author_id, i.nickname, p.body, p.created_at
		FROM posts p
		JOIN follows f ON f.followed_id = p.author_id
		JOIN identities i ON i.id = p.author_id
		WHERE f.follower_id = $1
		ORDER BY p.created_at DESC, p.id DESC
		LIMIT $2 OFFSET $3
	`, viewerID, page)
}

// PostsBy pages through the posts of a single author, newest first.
func (s *Service) PostsBy(ctx context.Context, authorID int64, page int) (FeedPage, error) {
	return s.page(ctx, `
		SELECT p.id, p.author_id, i.nickname, p.body, p.created_at
		FROM posts p
		JOIN identities i ON i.id = p.author_id
		WHERE p.author_id = $1
		ORDER BY p.created_at DESC, p.id DESC
		LIMIT $2 OFFSET $3
	`, authorID, page)
}

// page runs query with one row beyond the page size; that extra row only
// tells whether a next page exists.
func (s *Service) page(ctx context.Context, query string, id int64, page int) (FeedPage, error) {
	if page < 1 {
		page = 1
	}
	result := FeedPage{Items: []Post{}, Page: page, PerPage: s.perPage, HasPrev: page > 1}
	// No table holds enough rows to reach an offset that overflows int.
	if page-1 > (math.MaxInt-s.perPage)/s.perPage {
		return result, nil
	}

	rows, err := s.db.Query(ctx, query, id, s.perPage+1, (page-1)*s.perPage)
	if err != nil {
		return FeedPage{}, fmt.Errorf("query posts: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var p Post
		if err := rows.Scan(&p.ID, &p.AuthorID, &p.AuthorNickname, &p.Body, &p.CreatedAt); err != nil {
			return FeedPage{}, err
		}
		result.Items = append(result.Items, p)
	}
	if err := rows.Err(); err != nil {
		return FeedPage{}, err
	}

	if len(result.Items) > s.perPage {
		result.Items = result.Items[:s.perPage]
		result.HasNext = true
	}
	return result, nil
}
