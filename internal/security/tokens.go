package security

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/rsa"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// LinkAudience is the aud claim of every signing-link token.
const LinkAudience = "hancock-sign"

var (
	// ErrInvalidToken is returned when a token is malformed, expired or signed by another key.
	ErrInvalidToken = errors.New("invalid token")
)

// LinkClaims holds JWT claims for a signing link. Subject and SID both carry the session id.
type LinkClaims struct {
	jwt.RegisteredClaims
	SID string `json:"sid"`
}

// LinkTokenProvider issues and validates signing-link JWTs using RS256 or ES256.
type LinkTokenProvider struct {
	privateKey crypto.Signer
	publicKey  crypto.PublicKey
	issuer     string
	ttl        time.Duration
	nowF       func() time.Time
}

// NewLinkTokenProvider returns a provider that signs with privateKey and verifies with publicKey.
func NewLinkTokenProvider(privateKey crypto.Signer, publicKey crypto.PublicKey, issuer string, ttl time.Duration) *LinkTokenProvider {
	return &LinkTokenProvider{
		privateKey: privateKey,
		publicKey:  publicKey,
		issuer:     issuer,
		ttl:        ttl,
		nowF:       time.Now,
	}
}

// NewEphemeralLinkTokenProvider generates an in-memory ES256 key. Links issued by it
// stop validating when the process restarts.
func NewEphemeralLinkTokenProvider(issuer string, ttl time.Duration) (*LinkTokenProvider, error) {
	priv, pub, err := GenerateECDSAKey()
	if err != nil {
		return nil, err
	}
	return NewLinkTokenProvider(priv, pub, issuer, ttl), nil
}

// Issue returns a signed link token for sid, its random jti, and the expiry.
// The caller stores HashLinkTokenID(jti) on the session.
func (p *LinkTokenProvider) Issue(sid string) (token, jti string, expiresAt time.Time, err error) {
	jti = uuid.NewString()
	now := p.nowF().UTC()
	expiresAt = now.Add(p.ttl)
	claims := LinkClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Subject:   sid,
			Issuer:    p.issuer,
			Audience:  jwt.ClaimStrings{LinkAudience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		SID: sid,
	}
	token, err = p.sign(claims)
	if err != nil {
		return "", "", time.Time{}, err
	}
	return token, jti, expiresAt, nil
}

func (p *LinkTokenProvider) sign(claims jwt.Claims) (string, error) {
	var method jwt.SigningMethod
	switch p.privateKey.Public().(type) {
	case *rsa.PublicKey:
		method = jwt.SigningMethodRS256
	case *ecdsa.PublicKey:
		method = jwt.SigningMethodES256
	default:
		return "", ErrInvalidToken
	}
	t := jwt.NewWithClaims(method, claims)
	return t.SignedString(p.privateKey)
}

// Validate parses and validates a link token (signature, exp, iss, aud).
// Returns the sid and jti it was issued for.
func (p *LinkTokenProvider) Validate(tokenString string) (sid, jti string, err error) {
	if tokenString == "" {
		return "", "", ErrInvalidToken
	}
	token, err := jwt.ParseWithClaims(tokenString, &LinkClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodRSA); ok {
			return p.publicKey, nil
		}
		if _, ok := token.Method.(*jwt.SigningMethodECDSA); ok {
			return p.publicKey, nil
		}
		return nil, ErrInvalidToken
	}, jwt.WithTimeFunc(p.nowF))
	if err != nil {
		return "", "", ErrInvalidToken
	}
	claims, ok := token.Claims.(*LinkClaims)
	if !ok || !token.Valid {
		return "", "", ErrInvalidToken
	}
	if claims.Issuer != p.issuer {
		return "", "", ErrInvalidToken
	}
	audOk := false
	for _, a := range claims.Audience {
		if a == LinkAudience {
			audOk = true
			break
		}
	}
	if !audOk || claims.SID == "" || claims.ID == "" {
		return "", "", ErrInvalidToken
	}
	return claims.SID, claims.ID, nil
}
