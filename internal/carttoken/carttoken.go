package carttoken

import (
	"errors"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"

	"storefront/backend/internal/domain"
)

const issuer = "storefront"

var ErrInvalidToken = errors.New("invalid or expired cart token")

// Signer issues tamper-evident snapshots of a session cart. Tokens are a
// display and resume aid only; they never authorize anything.
type Signer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

type cartClaims struct {
	jwtlib.RegisteredClaims
	Cart         []domain.CartLine         `json:"cart"`
	Fees         domain.Fees               `json:"fees"`
	Address      *domain.ShippingSelection `json:"address,omitempty"`
	BankTransfer bool                      `json:"bankTransfer"`
}

func NewSigner(secret string, ttl time.Duration) *Signer {
	if secret == "" {
		secret = "dev-change-me"
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Signer{
		secret: []byte(secret),
		ttl:    ttl,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (s *Signer) Sign(state domain.SessionState) (string, error) {
	now := s.now()
	claims := cartClaims{
		RegisteredClaims: jwtlib.RegisteredClaims{
			IssuedAt:  jwtlib.NewNumericDate(now),
			ExpiresAt: jwtlib.NewNumericDate(now.Add(s.ttl)),
			Issuer:    issuer,
		},
		Cart:         state.Cart,
		Fees:         state.Fees,
		Address:      state.Address,
		BankTransfer: state.BankTransfer,
	}
	token := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

func (s *Signer) Parse(tokenStr string) (domain.SessionState, error) {
	claims := &cartClaims{}
	token, err := jwtlib.ParseWithClaims(tokenStr, claims, func(t *jwtlib.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwtlib.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return s.secret, nil
	}, jwtlib.WithValidMethods([]string{"HS256"}), jwtlib.WithIssuer(issuer), jwtlib.WithTimeFunc(s.now))
	if err != nil || !token.Valid {
		return domain.SessionState{}, ErrInvalidToken
	}
	return domain.SessionState{
		Cart:         claims.Cart,
		Fees:         claims.Fees,
		Address:      claims.Address,
		BankTransfer: claims.BankTransfer,
	}, nil
}
