package identity

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"backend-microblog/internal/shared/apperr"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v3"
)

var identityCols = []string{"id", "nickname", "email", "about_me", "last_seen"}

func newMock(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("mock pool: %v", err)
	}
	t.Cleanup(mock.Close)
	return mock
}

func TestCreateAddsSelfFollow(t *testing.T) {
	mock := newMock(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO identities`).
		WithArgs("john", "john@example.com").
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(1)))
	mock.ExpectExec(`INSERT INTO follows \(follower_id, followed_id\)\s+VALUES \(\$1,\$1\)`).
		WithArgs(int64(1)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	svc := NewService(mock)
	created, err := svc.Create(context.Background(), NewIdentity{Nickname: " john ", Email: "john@example.com"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.ID != 1 || created.Nickname != "john" {
		t.Fatalf("unexpected identity: %+v", created)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestCreateRollsBackWhenSelfFollowFails(t *testing.T) {
	mock := newMock(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO identities`).
		WithArgs("john", "john@example.com").
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(1)))
	mock.ExpectExec(`INSERT INTO follows`).
		WithArgs(int64(1)).
		WillReturnError(errIdentity)
	mock.ExpectRollback()

	svc := NewService(mock)
	if _, err := svc.Create(context.Background(), NewIdentity{Nickname: "john", Email: "john@example.com"}); !errors.Is(err, errIdentity) {
		t.Fatalf("expected self-follow error, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestCreateDuplicateNicknameIsConflict(t *testing.T) {
	mock := newMock(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO identities`).
		WithArgs("john", "other@example.com").
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "identities_nickname_key"})
	mock.ExpectRollback()

	svc := NewService(mock)
	_, err := svc.Create(context.Background(), NewIdentity{Nickname: "john", Email: "other@example.com"})
	if !errors.Is(err, apperr.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if !strings.Contains(err.Error(), "nickname") {
		t.Fatalf("expected nickname message, got %q", err.Error())
	}
}

func TestCreateDuplicateEmailIsConflict(t *testing.T) {
	mock := newMock(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO identities`).
		WithArgs("susan", "john@example.com").
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "identities_email_key"})
	mock.ExpectRollback()

	svc := NewService(mock)
	_, err := svc.Create(context.Background(), NewIdentity{Nickname: "susan", Email: "john@example.com"})
	if !errors.Is(err, apperr.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestCreateValidation(t *testing.T) {
	svc := NewService(nil)
	cases := []NewIdentity{
		{Nickname: "", Email: "john@example.com"},
		{Nickname: "john", Email: ""},
		{Nickname: "john", Email: "not-an-email"},
		{Nickname: strings.Repeat("a", 65), Email: "john@example.com"},
		{Nickname: "me", Email: "john@example.com"},
		{Nickname: "john/doe", Email: "john@example.com"},
	}
	for _, in := range cases {
		if _, err := svc.Create(context.Background(), in); !errors.Is(err, apperr.ErrInvalidInput) {
			t.Fatalf("expected invalid input for %+v, got %v", in, err)
		}
	}
}

func TestGet(t *testing.T) {
	mock := newMock(t)

	seen := time.Now().UTC()
	mock.ExpectQuery(`SELECT id, nickname, email, COALESCE\(about_me, ''\), last_seen FROM identities WHERE id = \$1`).
		WithArgs(int64(7)).
		WillReturnRows(pgxmock.NewRows(identityCols).AddRow(int64(7), "john", "john@example.com", "hi", &seen))

	svc := NewService(mock)
	got, err := svc.Get(context.Background(), 7)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Nickname != "john" || got.AboutMe != "hi" || got.LastSeen == nil {
		t.Fatalf("unexpected identity: %+v", got)
	}
}

func TestGetNotFound(t *testing.T) {
	mock := newMock(t)

	mock.ExpectQuery(`FROM identities WHERE id = \$1`).
		WithArgs(int64(99)).
		WillReturnError(pgx.ErrNoRows)

	svc := NewService(mock)
	if _, err := svc.Get(context.Background(), 99); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestGetByNicknameAndEmail(t *testing.T) {
	mock := newMock(t)

	mock.ExpectQuery(`FROM identities WHERE nickname = \$1`).
		WithArgs("susan").
		WillReturnRows(pgxmock.NewRows(identityCols).AddRow(int64(2), "susan", "susan@example.com", "", nil))
	mock.ExpectQuery(`FROM identities WHERE email = \$1`).
		WithArgs("susan@example.com").
		WillReturnRows(pgxmock.NewRows(identityCols).AddRow(int64(2), "susan", "susan@example.com", "", nil))

	svc := NewService(mock)
	byNick, err := svc.GetByNickname(context.Background(), "susan")
	if err != nil || byNick.ID != 2 || byNick.LastSeen != nil {
		t.Fatalf("get by nickname: %+v %v", byNick, err)
	}
	byEmail, err := svc.GetByEmail(context.Background(), " susan@example.com ")
	if err != nil || byEmail.ID != 2 {
		t.Fatalf("get by email: %+v %v", byEmail, err)
	}
}

func TestMakeUniqueNicknameFree(t *testing.T) {
	mock := newMock(t)

	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs("john").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))

	svc := NewService(mock)
	got, err := svc.MakeUniqueNickname(context.Background(), "john")
	if err != nil {
		t.Fatalf("make unique: %v", err)
	}
	if got != "john" {
		t.Fatalf("expected john, got %s", got)
	}
}

func TestMakeUniqueNicknameSkipsTaken(t *testing.T) {
	mock := newMock(t)

	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs("john").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs("john2").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs("john3").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))

	svc := NewService(mock)
	got, err := svc.MakeUniqueNickname(context.Background(), "john")
	if err != nil {
		t.Fatalf("make unique: %v", err)
	}
	if got != "john3" {
		t.Fatalf("expected john3, got %s", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestMakeUniqueNicknameError(t *testing.T) {
	mock := newMock(t)

	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs("john").
		WillReturnError(errIdentity)

	svc := NewService(mock)
	if _, err := svc.MakeUniqueNickname(context.Background(), "john"); err == nil {
		t.Fatalf("expected error")
	}
}

func TestUpdateProfile(t *testing.T) {
	mock := newMock(t)

	mock.ExpectQuery(`UPDATE identities`).
		WithArgs(int64(1), "johnny", "hello there").
		WillReturnRows(pgxmock.NewRows(identityCols).AddRow(int64(1), "johnny", "john@example.com", "hello there", nil))

	svc := NewService(mock)
	got, err := svc.UpdateProfile(context.Background(), 1, ProfileUpdate{Nickname: "johnny", AboutMe: " hello there "})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if got.Nickname != "johnny" || got.AboutMe != "hello there" {
		t.Fatalf("unexpected identity: %+v", got)
	}
}

func TestUpdateProfileErrors(t *testing.T) {
	mock := newMock(t)
	svc := NewService(mock)

	if _, err := svc.UpdateProfile(context.Background(), 1, ProfileUpdate{Nickname: "Me"}); !errors.Is(err, apperr.ErrInvalidInput) {
		t.Fatalf("expected reserved nickname to be rejected, got %v", err)
	}
	if _, err := svc.UpdateProfile(context.Background(), 1, ProfileUpdate{Nickname: "john", AboutMe: strings.Repeat("x", 141)}); !errors.Is(err, apperr.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}

	mock.ExpectQuery(`UPDATE identities`).
		WithArgs(int64(1), "susan", "").
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "identities_nickname_key"})
	if _, err := svc.UpdateProfile(context.Background(), 1, ProfileUpdate{Nickname: "susan"}); !errors.Is(err, apperr.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}

	mock.ExpectQuery(`UPDATE identities`).
		WithArgs(int64(9), "ghost", "").
		WillReturnError(pgx.ErrNoRows)
	if _, err := svc.UpdateProfile(context.Background(), 9, ProfileUpdate{Nickname: "ghost"}); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestTouchLastSeen(t *testing.T) {
	mock := newMock(t)

	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	mock.ExpectExec(`UPDATE identities SET last_seen`).
		WithArgs(int64(1), at).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	svc := NewService(mock)
	if err := svc.TouchLastSeen(context.Background(), 1, at); err != nil {
		t.Fatalf("touch: %v", err)
	}
}

func TestAvatar(t *testing.T) {
	u := Identity{Nickname: "john", Email: "john@example.com"}
	expected := "http://www.gravatar.com/avatar/d4c74594d841139328695756648b6bd6"
	if got := u.Avatar(128); !strings.HasPrefix(got, expected) || !strings.HasSuffix(got, "s=128") {
		t.Fatalf("unexpected avatar url: %s", got)
	}
}

func TestPublicHidesEmail(t *testing.T) {
	u := Identity{ID: 1, Nickname: "john", Email: "john@example.com"}
	if u.Public().Email != "" {
		t.Fatalf("expected email stripped")
	}
	if u.Email == "" {
		t.Fatalf("original should be untouched")
	}
}

func TestColumns(t *testing.T) {
	if got := Columns("i"); !strings.HasPrefix(got, "i.id, i.nickname") || !strings.Contains(got, "COALESCE(i.about_me, '')") {
		t.Fatalf("unexpected qualified columns: %s", got)
	}
}

var errIdentity = errors.New("identity error")
