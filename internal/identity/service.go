package identity

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"backend-microblog/internal/db"
	"backend-microblog/internal/monitoring"
	"backend-microblog/internal/shared/apperr"
	"backend-microblog/internal/shared/validate"

	"github.com/jackc/pgx/v5"
)

type Service struct {
	db db.Pool
}

func NewService(pool db.Pool) *Service {
	return &Service{db: pool}
}

// Columns lists the identity columns in scan order, qualified by alias when
// one is given.
func Columns(alias string) string {
	p := ""
	if alias != "" {
		p = alias + "."
	}
	return fmt.Sprintf("%[1]sid, %[1]snickname, %[1]semail, COALESCE(%[1]sabout_me, ''), %[1]slast_seen", p)
}

// Scan reads one row selected with Columns.
func Scan(row pgx.Row) (Identity, error) {
	var i Identity
	if err := row.Scan(&i.ID, &i.Nickname, &i.Email, &i.AboutMe, &i.LastSeen); err != nil {
		return Identity{}, err
	}
	return i, nil
}

// Create inserts a new identity together with its self-follow edge, which is
// what puts an identity's own posts into its feed.
func (s *Service) Create(ctx context.Context, input NewIdentity) (Identity, error) {
	input.Nickname = strings.TrimSpace(input.Nickname)
	input.Email = strings.TrimSpace(input.Email)
	if err := validate.Struct(input); err != nil {
		return Identity{}, err
	}

	created := Identity{Nickname: input.Nickname, Email: input.Email}
	err := db.WithTx(ctx, s.db, func(q db.Querier) error {
		row := q.QueryRow(ctx, `
			INSERT INTO identities (nickname, email)
			VALUES ($1,$2)
			RETURNING id
		`, created.Nickname, created.Email)
		if err := row.Scan(&created.ID); err != nil {
			return err
		}
		_, err := q.Exec(ctx, `
			INSERT INTO follows (follower_id, followed_id)
			VALUES ($1,$1)
			ON CONFLICT DO NOTHING
		`, created.ID)
		return err
	})
	if err != nil {
		return Identity{}, translate(err)
	}
	monitoring.IdentitiesCreated.Inc()
	return created, nil
}

// Get loads an identity by id; session restoration goes through here.
func (s *Service) Get(ctx context.Context, id int64) (Identity, error) {
	return s.getBy(ctx, "id", id)
}

func (s *Service) GetByNickname(ctx context.Context, nickname string) (Identity, error) {
	return s.getBy(ctx, "nickname", nickname)
}

func (s *Service) GetByEmail(ctx context.Context, email string) (Identity, error) {
	return s.getBy(ctx, "email", strings.TrimSpace(email))
}

func (s *Service) getBy(ctx context.Context, column string, value any) (Identity, error) {
	row := s.db.QueryRow(ctx, `SELECT `+Columns("")+` FROM identities WHERE `+column+` = $1`, value)
	i, err := Scan(row)
	if err != nil {
		return Identity{}, translate(err)
	}
	return i, nil
}

// MakeUniqueNickname returns nickname when it is free, otherwise the first free
// candidate among nickname2, nickname3, ... The result is only a hint: a
// concurrent insert can still take it, which Create reports as a conflict.
func (s *Service) MakeUniqueNickname(ctx context.Context, nickname string) (string, error) {
	candidate := nickname
	for version := 2; ; version++ {
		taken, err := s.nicknameTaken(ctx, candidate)
		if err != nil {
			return "", err
		}
		if !taken {
			return candidate, nil
		}
		candidate = nickname + strconv.Itoa(version)
	}
}

func (s *Service) nicknameTaken(ctx context.Context, nickname string) (bool, error) {
	var taken bool
	err := s.db.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM identities WHERE nickname = $1)
	`, nickname).Scan(&taken)
	return taken, err
}

func (s *Service) UpdateProfile(ctx context.Context, id int64, patch ProfileUpdate) (Identity, error) {
	patch.Nickname = strings.TrimSpace(patch.Nickname)
	patch.AboutMe = strings.TrimSpace(patch.AboutMe)
	if err := validate.Struct(patch); err != nil {
		return Identity{}, err
	}

	row := s.db.QueryRow(ctx, `
		UPDATE identities
		SET nickname=$2, about_me=NULLIF($3, '')
		WHERE id=$1
		RETURNING `+Columns(""), id, patch.Nickname, patch.AboutMe)
	updated, err := Scan(row)
	if err != nil {
		return Identity{}, translate(err)
	}
	return updated, nil
}

func (s *Service) TouchLastSeen(ctx context.Context, id int64, at time.Time) error {
	_, err := s.db.Exec(ctx, `UPDATE identities SET last_seen=$2 WHERE id=$1`, id, at.UTC())
	return err
}

func translate(err error) error {
	err = apperr.FromDB(err)
	if errors.Is(err, apperr.ErrNotFound) && apperr.Constraint(err) == "" {
		return apperr.Wrap(apperr.ErrNotFound, "identity not found")
	}
	switch apperr.Constraint(err) {
	case "identities_nickname_key":
		return apperr.Wrap(apperr.ErrConflict, "This nickname is already in use. Please choose another one.")
	case "identities_email_key":
		return apperr.Wrap(apperr.ErrConflict, "This email is already registered.")
	}
	return err
}
