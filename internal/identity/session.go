package identity

import (
	"errors"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
)

// ErrInvalidSession is returned for tokens that fail signature or expiry checks.
var ErrInvalidSession = errors.New("invalid session")

// Session is the client-held state carried between requests in a signed token.
type Session struct {
	CartID                   string `json:"cartId,omitempty"`
	BusinessUnitKey          string `json:"businessUnitKey,omitempty"`
	StoreKey                 string `json:"storeKey,omitempty"`
	SuperUserBusinessUnitKey string `json:"superUserBusinessUnitKey,omitempty"`
	Currency                 string `json:"currency,omitempty"`
	Country                  string `json:"country,omitempty"`
	Locale                   string `json:"locale,omitempty"`
	AnonymousID              string `json:"anonymousId,omitempty"`

	changed bool
}

// SetCart points the session at cartID.
func (s *Session) SetCart(cartID string) {
	if s.CartID != cartID {
		s.CartID = cartID
		s.changed = true
	}
}

// ClearCart drops the session cart pointer.
func (s *Session) ClearCart() { s.SetCart("") }

func (s *Session) set(dst *string, v string) {
	if v != "" && *dst != v {
		*dst = v
		s.changed = true
	}
}

func (s *Session) fill(dst *string, v string) {
	if *dst == "" {
		s.set(dst, v)
	}
}

// Changed reports whether the session must be re-issued to the client.
func (s *Session) Changed() bool { return s.changed }

type sessionClaims struct {
	jwtlib.RegisteredClaims
	Session
}

// SessionCodec signs and verifies session tokens with HS256.
type SessionCodec struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewSessionCodec(secret string, ttl time.Duration) *SessionCodec {
	if secret == "" {
		secret = "dev-session-secret-change-me"
	}
	if ttl <= 0 {
		ttl = 30 * 24 * time.Hour
	}
	return &SessionCodec{secret: []byte(secret), ttl: ttl, now: time.Now}
}

func (c *SessionCodec) Encode(s Session) (string, error) {
	now := c.now().UTC()
	s.changed = false
	claims := sessionClaims{
		RegisteredClaims: jwtlib.RegisteredClaims{
			IssuedAt:  jwtlib.NewNumericDate(now),
			ExpiresAt: jwtlib.NewNumericDate(now.Add(c.ttl)),
			Issuer:    "commercetools-b2b",
		},
		Session: s,
	}
	return jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims).SignedString(c.secret)
}

func (c *SessionCodec) Decode(token string) (Session, error) {
	claims := &sessionClaims{}
	parsed, err := jwtlib.ParseWithClaims(token, claims, func(t *jwtlib.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwtlib.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return c.secret, nil
	}, jwtlib.WithValidMethods([]string{"HS256"}), jwtlib.WithTimeFunc(c.now))
	if err != nil || !parsed.Valid {
		return Session{}, ErrInvalidSession
	}
	return claims.Session, nil
}
