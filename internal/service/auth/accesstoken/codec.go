package accesstoken

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/nkiryanov/noteflix/internal/apperrors"
	"github.com/nkiryanov/noteflix/internal/models"
)

const (
	defaultTTL      = 60 * time.Minute
	defaultIssuer   = "noteflix"
	defaultAudience = "noteflix-clients"
)

// Only one algorithm is accepted: tokens with any other 'alg' header are rejected
var signingMethod = jwt.SigningMethodHS256

// Claims carried by every access token
type Claims struct {
	jwt.RegisteredClaims
	Email     string `json:"email"`
	Name      string `json:"name"`
	IsPremium bool   `json:"isPremium"`
}

// UserID parses subject claim
func (c Claims) UserID() (int64, error) {
	id, err := strconv.ParseInt(c.Subject, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: malformed subject %q", apperrors.ErrInvalidAccessToken, c.Subject)
	}
	return id, nil
}

type Config struct {
	// Secret key to sign access token
	// Required to be set
	SecretKey string

	// Values of 'iss' and 'aud' claims
	// If not set than default is used
	Issuer   string
	Audience string

	// Access token lifetime
	// If not set than default is used
	TTL time.Duration

	// Time source, time.Now if not set
	Now func() time.Time
}

// Codec issues and checks stateless access tokens
type Codec struct {
	key      []byte
	issuer   string
	audience string
	ttl      time.Duration
	now      func() time.Time
}

func New(cfg Config) (*Codec, error) {
	if cfg.SecretKey == "" {
		return nil, errors.New("secret key must not be empty")
	}

	if cfg.Issuer == "" {
		cfg.Issuer = defaultIssuer
	}
	if cfg.Audience == "" {
		cfg.Audience = defaultAudience
	}
	if cfg.TTL == 0 {
		cfg.TTL = defaultTTL
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &Codec{
		key:      []byte(cfg.SecretKey),
		issuer:   cfg.Issuer,
		audience: cfg.Audience,
		ttl:      cfg.TTL,
		now:      cfg.Now,
	}, nil
}

func (c *Codec) TTL() time.Duration {
	return c.ttl
}

// Issue signed access token for the user
func (c *Codec) Issue(user models.User) (models.IssuedToken, error) {
	now := c.now().Truncate(time.Second)
	expiresAt := now.Add(c.ttl)

	token := jwt.NewWithClaims(signingMethod, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   strconv.FormatInt(user.ID, 10),
			Issuer:    c.issuer,
			Audience:  jwt.ClaimStrings{c.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		Email:     user.Email,
		Name:      user.Name,
		IsPremium: user.IsPremium,
	})

	value, err := token.SignedString(c.key)
	if err != nil {
		return models.IssuedToken{}, fmt.Errorf("error while signing access token. Err: %w", err)
	}

	return models.IssuedToken{Value: value, ExpiresAt: expiresAt}, nil
}

// Validate reports whether token is signed by us and not expired
func (c *Codec) Validate(token string) bool {
	_, err := c.Parse(token)
	return err == nil
}

// Parse token checking signature, algorithm, issuer, audience and expiry
func (c *Codec) Parse(token string) (Claims, error) {
	return c.parse(token,
		jwt.WithIssuer(c.issuer),
		jwt.WithAudience(c.audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	)
}

// ExtractUserID returns token subject checking signature and algorithm only
// Expired tokens are accepted: they are presented on logout when access token may have just expired
func (c *Codec) ExtractUserID(token string) (int64, error) {
	claims, err := c.parse(token, jwt.WithoutClaimsValidation())
	if err != nil {
		return 0, err
	}
	return claims.UserID()
}

func (c *Codec) parse(token string, opts ...jwt.ParserOption) (Claims, error) {
	var claims Claims

	opts = append(opts, jwt.WithValidMethods([]string{signingMethod.Alg()}))
	_, err := jwt.ParseWithClaims(token, &claims, c.keyFunc, opts...)
	if err != nil {
		return Claims{}, fmt.Errorf("%w: %w", apperrors.ErrInvalidAccessToken, err)
	}

	if _, err := claims.UserID(); err != nil {
		return Claims{}, err
	}

	return claims, nil
}

func (c *Codec) keyFunc(t *jwt.Token) (any, error) {
	return c.key, nil
}
