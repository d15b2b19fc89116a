package credentials

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/hilthontt/chorus/internal/domain"
)

// Verifier is shared by the HTTP middleware and the websocket handshake.
type Verifier interface {
	Verify(token string) (*domain.Identity, error)
}

type Options struct {
	Secret []byte
	Alg    string // HS256 (default), HS384 or HS512
	Issuer string
	TTL    time.Duration
	Leeway time.Duration
	Now    func() time.Time
}

type Claims struct {
	Username string `json:"username,omitempty"`
	jwt.RegisteredClaims
}

type JWT struct {
	opts   Options
	method jwt.SigningMethod
	parser *jwt.Parser
}

func NewJWT(opts Options) (*JWT, error) {
	if len(opts.Secret) == 0 {
		return nil, &domain.ConfigurationError{Field: "auth.secret", Reason: "must be set"}
	}
	method, err := signingMethod(opts.Alg)
	if err != nil {
		return nil, &domain.ConfigurationError{Field: "auth.alg", Reason: err.Error()}
	}
	if opts.TTL <= 0 {
		opts.TTL = 2 * time.Hour
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	parserOpts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{method.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(opts.Leeway),
		jwt.WithTimeFunc(opts.Now),
	}
	if opts.Issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(opts.Issuer))
	}

	return &JWT{opts: opts, method: method, parser: jwt.NewParser(parserOpts...)}, nil
}

// Issue signs a token for identity. Token issuance belongs to the account
// service; this exists for tooling and tests.
func (j *JWT) Issue(identity domain.Identity) (string, time.Time, error) {
	now := j.opts.Now()
	exp := now.Add(j.opts.TTL)

	claims := Claims{
		Username: identity.Username,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   identity.UserID,
			Issuer:    j.opts.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}

	signed, err := jwt.NewWithClaims(j.method, claims).SignedString(j.opts.Secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, exp, nil
}

func (j *JWT) Verify(token string) (*domain.Identity, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, &domain.AuthenticationError{Reason: "missing credential"}
	}

	var claims Claims
	parsed, err := j.parser.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return j.opts.Secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, &domain.AuthenticationError{Reason: "credential expired", Expired: true, Err: err}
		}
		return nil, &domain.AuthenticationError{Reason: "invalid credential", Err: err}
	}
	if !parsed.Valid || claims.Subject == "" {
		return nil, &domain.AuthenticationError{Reason: "credential has no subject"}
	}

	return &domain.Identity{UserID: claims.Subject, Username: claims.Username}, nil
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) string {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

func signingMethod(alg string) (jwt.SigningMethod, error) {
	switch strings.ToUpper(strings.TrimSpace(alg)) {
	case "", "HS256":
		return jwt.SigningMethodHS256, nil
	case "HS384":
		return jwt.SigningMethodHS384, nil
	case "HS512":
		return jwt.SigningMethodHS512, nil
	default:
		return nil, fmt.Errorf("unsupported alg: %s (use HS256/HS384/HS512)", alg)
	}
}
