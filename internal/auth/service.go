package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"strings"
	"time"

	"backend-microblog/internal/db"
	"backend-microblog/internal/identity"
	"backend-microblog/internal/monitoring"
	"backend-microblog/internal/shared/apperr"
	"backend-microblog/internal/shared/validate"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"golang.org/x/crypto/bcrypt"
)

const (
	accessTokenTTL      = 15 * time.Minute
	refreshTokenTTL     = 24 * time.Hour
	rememberMeTTL       = 30 * 24 * time.Hour
	refreshSecretBytes  = 32
	maxNicknameLength   = 64
	defaultNickname     = "user"
	invalidLoginMessage = "invalid login, please try again"
)

var errRefreshInvalid = fiber.NewError(fiber.StatusUnauthorized, "refresh token invalid")

// IdentityStore is the part of the identity service login needs.
type IdentityStore interface {
	GetByEmail(ctx context.Context, email string) (identity.Identity, error)
	MakeUniqueNickname(ctx context.Context, nickname string) (string, error)
	Create(ctx context.Context, input identity.NewIdentity) (identity.Identity, error)
}

type Service struct {
	secret         []byte
	providerSecret []byte
	db             db.Pool
	identities     IdentityStore
	hashCost       int
	now            func() time.Time
}

func NewService(secret, providerSecret string, pool db.Pool, identities IdentityStore) *Service {
	return &Service{
		secret:         []byte(secret),
		providerSecret: []byte(providerSecret),
		db:             pool,
		identities:     identities,
		hashCost:       bcrypt.DefaultCost,
		now:            time.Now,
	}
}

// Login exchanges a provider assertion for a token pair, creating the
// identity on first login.
func (s *Service) Login(ctx context.Context, req LoginRequest) (identity.Identity, TokenResponse, error) {
	if err := validate.Struct(req); err != nil {
		monitoring.LoginFailure.WithLabelValues("invalid_request").Inc()
		return identity.Identity{}, TokenResponse{}, err
	}

	ident, err := s.ResolveAssertion(ctx, req.Assertion)
	if err != nil {
		monitoring.LoginFailure.WithLabelValues("assertion").Inc()
		return identity.Identity{}, TokenResponse{}, err
	}

	tokens, err := s.GenerateTokens(ctx, ident.ID, req.RememberMe)
	if err != nil {
		monitoring.LoginFailure.WithLabelValues("tokens").Inc()
		return identity.Identity{}, TokenResponse{}, err
	}
	monitoring.LoginSuccess.Inc()
	return ident, tokens, nil
}

// ResolveAssertion verifies a provider assertion and returns the identity
// it names.
func (s *Service) ResolveAssertion(ctx context.Context, assertion string) (identity.Identity, error) {
	claims := &ProviderClaims{}
	_, err := jwt.ParseWithClaims(assertion, claims, func(_ *jwt.Token) (interface{}, error) {
		return s.providerSecret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return identity.Identity{}, fiber.NewError(fiber.StatusUnauthorized, invalidLoginMessage)
	}

	email := strings.ToLower(strings.TrimSpace(claims.Email))
	if email == "" {
		return identity.Identity{}, apperr.Wrap(apperr.ErrInvalidInput, invalidLoginMessage)
	}

	existing, err := s.identities.GetByEmail(ctx, email)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, apperr.ErrNotFound) {
		return identity.Identity{}, err
	}

	preferred := nicknameFor(claims.Nickname, email)
	// A concurrent login can take the email or the chosen nickname between
	// the checks and the insert; one retry settles either case.
	for attempt := 0; ; attempt++ {
		nickname, err := s.identities.MakeUniqueNickname(ctx, preferred)
		if err != nil {
			return identity.Identity{}, err
		}
		created, err := s.identities.Create(ctx, identity.NewIdentity{Nickname: nickname, Email: email})
		if !errors.Is(err, apperr.ErrConflict) {
			return created, err
		}
		if again, lookupErr := s.identities.GetByEmail(ctx, email); lookupErr == nil {
			return again, nil
		}
		if attempt > 0 {
			return identity.Identity{}, err
		}
	}
}

func nicknameFor(preferred, email string) string {
	nickname := validate.SanitizeNickname(preferred)
	if nickname == "" {
		local, _, _ := strings.Cut(email, "@")
		nickname = validate.SanitizeNickname(local)
	}
	if nickname == "" {
		nickname = defaultNickname
	}
	// Leave room for the numeric suffix of a taken nickname.
	if runes := []rune(nickname); len(runes) > maxNicknameLength-4 {
		nickname = strings.TrimSpace(string(runes[:maxNicknameLength-4]))
	}
	return nickname
}

func (s *Service) GenerateTokens(ctx context.Context, identityID int64, rememberMe bool) (TokenResponse, error) {
	return s.generateTokens(ctx, s.db, identityID, rememberMe)
}

func (s *Service) generateTokens(ctx context.Context, q db.Querier, identityID int64, rememberMe bool) (TokenResponse, error) {
	access, err := s.signToken(identityID, accessTokenTTL)
	if err != nil {
		return TokenResponse{}, err
	}

	refresh, err := s.saveRefreshToken(ctx, q, identityID, rememberMe)
	if err != nil {
		return TokenResponse{}, err
	}

	return TokenResponse{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "Bearer",
		ExpiresIn:    int64(accessTokenTTL.Seconds()),
	}, nil
}

// Refresh rotates a refresh token: the presented token is revoked and a new
// pair with the same remember-me lifetime is issued, in one transaction.
func (s *Service) Refresh(ctx context.Context, token string) (TokenResponse, error) {
	id, secret, err := parseRefreshToken(token)
	if err != nil {
		return TokenResponse{}, err
	}

	var tokens TokenResponse
	err = db.WithTx(ctx, s.db, func(q db.Querier) error {
		stored, err := s.lookupRefreshToken(ctx, q, id, secret)
		if err != nil {
			return err
		}
		if err := s.revoke(ctx, q, stored.id); err != nil {
			return err
		}
		tokens, err = s.generateTokens(ctx, q, stored.identityID, stored.rememberMe)
		return err
	})
	if err != nil {
		return TokenResponse{}, err
	}
	return tokens, nil
}

// Logout revokes a refresh token owned by identityID.
func (s *Service) Logout(ctx context.Context, identityID int64, token string) error {
	id, secret, err := parseRefreshToken(token)
	if err != nil {
		return err
	}
	stored, err := s.lookupRefreshToken(ctx, s.db, id, secret)
	if err != nil {
		return err
	}
	if stored.identityID != identityID {
		return errRefreshInvalid
	}
	return s.revoke(ctx, s.db, stored.id)
}

func (s *Service) ValidateAccessToken(token string) (int64, error) {
	claims, err := s.parseToken(token)
	if err != nil {
		return 0, err
	}
	return claims.IdentityID, nil
}

func (s *Service) signToken(identityID int64, ttl time.Duration) (string, error) {
	now := s.now()
	claims := Claims{
		IdentityID: identityID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

func (s *Service) parseToken(token string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(_ *jwt.Token) (interface{}, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, fiber.NewError(fiber.StatusUnauthorized, err.Error())
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || claims.IdentityID <= 0 {
		return nil, fiber.NewError(fiber.StatusUnauthorized, "token invalid")
	}
	return claims, nil
}

type refreshToken struct {
	id         uuid.UUID
	identityID int64
	rememberMe bool
}

// saveRefreshToken stores a new refresh token and returns it in its wire
// form "<id>.<secret>". Only a hash of the secret is kept.
func (s *Service) saveRefreshToken(ctx context.Context, q db.Querier, identityID int64, rememberMe bool) (string, error) {
	raw := make([]byte, refreshSecretBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	secret := base64.RawURLEncoding.EncodeToString(raw)
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), s.hashCost)
	if err != nil {
		return "", err
	}

	ttl := refreshTokenTTL
	if rememberMe {
		ttl = rememberMeTTL
	}
	id := uuid.New()
	_, err = q.Exec(ctx, `
		INSERT INTO refresh_tokens (id, identity_id, secret_hash, remember_me, expires_at)
		VALUES ($1,$2,$3,$4,$5)
	`, id, identityID, string(hash), rememberMe, s.now().Add(ttl).UTC())
	if err != nil {
		return "", err
	}
	return id.String() + "." + secret, nil
}

// parseRefreshToken splits the wire form "<id>.<secret>".
func parseRefreshToken(token string) (uuid.UUID, string, error) {
	rawID, secret, ok := strings.Cut(token, ".")
	if !ok || secret == "" {
		return uuid.Nil, "", errRefreshInvalid
	}
	id, err := uuid.Parse(rawID)
	if err != nil {
		return uuid.Nil, "", errRefreshInvalid
	}
	return id, secret, nil
}

func (s *Service) lookupRefreshToken(ctx context.Context, q db.Querier, id uuid.UUID, secret string) (refreshToken, error) {
	stored := refreshToken{id: id}
	var hash string
	var expiresAt time.Time
	err := q.QueryRow(ctx, `
		SELECT identity_id, secret_hash, remember_me, expires_at
		FROM refresh_tokens
		WHERE id = $1 AND revoked_at IS NULL
	`, id).Scan(&stored.identityID, &hash, &stored.rememberMe, &expiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return refreshToken{}, errRefreshInvalid
	}
	if err != nil {
		return refreshToken{}, err
	}

	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(secret)) != nil || s.now().After(expiresAt) {
		return refreshToken{}, errRefreshInvalid
	}
	return stored, nil
}

func (s *Service) revoke(ctx context.Context, q db.Querier, id uuid.UUID) error {
	tag, err := q.Exec(ctx, `
		UPDATE refresh_tokens SET revoked_at = $2
		WHERE id = $1 AND revoked_at IS NULL
	`, id, s.now().UTC())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errRefreshInvalid
	}
	return nil
}
