// Package auth verifies the bearer tokens issued by the identity service and turns them
// into actors. Tokens are HS256 signed; this service never issues production tokens.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/jwalitptl/fulfillment-api/internal/model"
)

type Claims struct {
	jwt.RegisteredClaims
	Role      string `json:"role"`
	PartnerID string `json:"partner_id,omitempty"`
}

type JWTService interface {
	ValidateToken(token string) (model.Actor, error)
	// IssueToken signs a token for actor. Used by tests and local tooling.
	IssueToken(actor model.Actor, ttl time.Duration) (string, error)
}

type jwtService struct {
	secret []byte
	issuer string
	now    func() time.Time
}

func NewJWTService(secret, issuer string) JWTService {
	return &jwtService{secret: []byte(secret), issuer: issuer, now: time.Now}
}

func (s *jwtService) ValidateToken(token string) (model.Actor, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	}
	if s.issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.issuer))
	}

	var claims Claims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (interface{}, error) {
		return s.secret, nil
	}, opts...)
	if err != nil {
		return model.Actor{}, fmt.Errorf("failed to parse token: %w", err)
	}
	return claims.actor()
}

func (c *Claims) actor() (model.Actor, error) {
	id, err := uuid.Parse(c.Subject)
	if err != nil {
		return model.Actor{}, fmt.Errorf("invalid subject: %w", err)
	}
	role := model.Role(c.Role)
	if !role.External() {
		return model.Actor{}, fmt.Errorf("role %q is not accepted", c.Role)
	}
	actor := model.Actor{ID: id, Role: role}
	if c.PartnerID != "" {
		pid, err := uuid.Parse(c.PartnerID)
		if err != nil {
			return model.Actor{}, fmt.Errorf("invalid partner_id: %w", err)
		}
		actor.PartnerID = &pid
	}
	switch role {
	case model.RoleLabStaff, model.RolePharmacyStaff:
		if actor.PartnerID == nil {
			return model.Actor{}, errors.New("partner staff tokens must carry partner_id")
		}
	}
	return actor, nil
}

func (s *jwtService) IssueToken(actor model.Actor, ttl time.Duration) (string, error) {
	if actor.Role == model.RoleSystem {
		return "", errors.New("system actor cannot be issued a token")
	}
	now := s.now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   actor.ID.String(),
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Role: string(actor.Role),
	}
	if actor.PartnerID != nil {
		claims.PartnerID = actor.PartnerID.String()
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}
