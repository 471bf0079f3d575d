package social

import (
	"context"
	"fmt"

	"backend-microblog/internal/identity"
	"backend-microblog/internal/monitoring"
	"backend-microblog/internal/shared/apperr"
)

// Follow adds the edge follower -> followed. It reports false when the edge
// already existed. Self-edges are accepted here; they are how an identity's
// own posts reach its feed.
func (s *Service) Follow(ctx context.Context, followerID, followedID int64) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		INSERT INTO follows (follower_id, followed_id)
		VALUES ($1,$2)
		ON CONFLICT DO NOTHING
	`, followerID, followedID)
	if err != nil {
		return false, apperr.FromDB(err)
	}
	return tag.RowsAffected() == 1, nil
}

// Unfollow removes the edge follower -> followed, reporting false when there
// was none.
func (s *Service) Unfollow(ctx context.Context, followerID, followedID int64) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		DELETE FROM follows
		WHERE follower_id=$1 AND followed_id=$2
	`, followerID, followedID)
	if err != nil {
		return false, apperr.FromDB(err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Service) IsFollowing(ctx context.Context, followerID, followedID int64) (bool, error) {
	var following bool
	err := s.db.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM follows WHERE follower_id=$1 AND followed_id=$2)
	`, followerID, followedID).Scan(&following)
	return following, err
}

// FollowersOf lists identities with an edge into id, including id itself
// through its self-follow.
func (s *Service) FollowersOf(ctx context.Context, id int64) ([]identity.Identity, error) {
	return s.listIdentities(ctx, `
		SELECT `+identity.Columns("i")+`
		FROM follows f
		JOIN identities i ON i.id = f.follower_id
		WHERE f.followed_id = $1
		ORDER BY i.nickname
	`, id)
}

// FollowingOf lists identities id has an edge to, including id itself.
func (s *Service) FollowingOf(ctx context.Context, id int64) ([]identity.Identity, error) {
	return s.listIdentities(ctx, `
		SELECT `+identity.Columns("i")+`
		FROM follows f
		JOIN identities i ON i.id = f.followed_id
		WHERE f.follower_id = $1
		ORDER BY i.nickname
	`, id)
}

// FollowIdentity is the user-initiated follow. Unlike Follow it rejects
// following yourself and reports an existing edge as a conflict.
func (s *Service) FollowIdentity(ctx context.Context, viewerID int64, nickname string) (identity.Identity, error) {
	target, err := s.identities.GetByNickname(ctx, nickname)
	if err != nil {
		return identity.Identity{}, err
	}
	if target.ID == viewerID {
		return identity.Identity{}, apperr.Wrap(apperr.ErrSelfActionRejected, "You can't follow yourself!")
	}
	created, err := s.Follow(ctx, viewerID, target.ID)
	if err != nil {
		return identity.Identity{}, err
	}
	if !created {
		return identity.Identity{}, apperr.Wrap(apperr.ErrConflict, fmt.Sprintf("You are already following %s.", target.Nickname))
	}
	monitoring.Follows.WithLabelValues("follow").Inc()
	return target.Public(), nil
}

// UnfollowIdentity is the user-initiated unfollow. The self-edge cannot be
// removed this way.
func (s *Service) UnfollowIdentity(ctx context.Context, viewerID int64, nickname string) (identity.Identity, error) {
	target, err := s.identities.GetByNickname(ctx, nickname)
	if err != nil {
		return identity.Identity{}, err
	}
	if target.ID == viewerID {
		return identity.Identity{}, apperr.Wrap(apperr.ErrSelfActionRejected, "You can't unfollow yourself!")
	}
	removed, err := s.Unfollow(ctx, viewerID, target.ID)
	if err != nil {
		return identity.Identity{}, err
	}
	if !removed {
		return identity.Identity{}, apperr.Wrap(apperr.ErrConflict, fmt.Sprintf("You are not following %s.", target.Nickname))
	}
	monitoring.Follows.WithLabelValues("unfollow").Inc()
	return target.Public(), nil
}

// CountFollowers counts identities following id, not counting id itself.
func (s *Service) CountFollowers(ctx context.Context, id int64) (int64, error) {
	var n int64
	err := s.db.QueryRow(ctx, `
		SELECT COUNT(*) FROM follows WHERE followed_id=$1 AND follower_id<>$1
	`, id).Scan(&n)
	return n, err
}

// CountFollowing counts identities id follows, not counting itself.
func (s *Service) CountFollowing(ctx context.Context, id int64) (int64, error) {
	var n int64
	err := s.db.QueryRow(ctx, `
		SELECT COUNT(*) FROM follows WHERE follower_id=$1 AND followed_id<>$1
	`, id).Scan(&n)
	return n, err
}

// Profile gathers what a viewer sees on another identity's page.
func (s *Service) Profile(ctx context.Context, viewerID int64, nickname string) (Profile, error) {
	target, err := s.identities.GetByNickname(ctx, nickname)
	if err != nil {
		return Profile{}, err
	}

	p := Profile{Avatar: target.Avatar(128), IsSelf: target.ID == viewerID}
	if p.Followers, err = s.CountFollowers(ctx, target.ID); err != nil {
		return Profile{}, err
	}
	if p.Following, err = s.CountFollowing(ctx, target.ID); err != nil {
		return Profile{}, err
	}
	if p.IsFollowing, err = s.IsFollowing(ctx, viewerID, target.ID); err != nil {
		return Profile{}, err
	}

	if p.IsSelf {
		p.Identity = target
	} else {
		p.Identity = target.Public()
	}
	return p, nil
}

func (s *Service) followerIDs(ctx context.Context, id int64) ([]int64, error) {
	rows, err := s.db.Query(ctx, `SELECT follower_id FROM follows WHERE followed_id = $1`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var followerID int64
		if err := rows.Scan(&followerID); err != nil {
			return nil, err
		}
		ids = append(ids, followerID)
	}
	return ids, rows.Err()
}

func (s *Service) listIdentities(ctx context.Context, query string, id int64) ([]identity.Identity, error) {
	rows, err := s.db.Query(ctx, query, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	list := []identity.Identity{}
	for rows.Next() {
		i, err := identity.Scan(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, i)
	}
	return list, rows.Err()
}
