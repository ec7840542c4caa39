package jwttoken

import (
	"strconv"

	"solicitudes/internal/platform/middleware"
	dErrors "solicitudes/pkg/domain-errors"
)

func ToMiddlewareClaims(claims *Claims) (*middleware.JWTClaims, error) {
	actorID, err := strconv.ParseInt(claims.ActorID, 10, 64)
	if err != nil {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid actor id in token")
	}
	return &middleware.JWTClaims{
		ActorID: actorID,
		Role:    claims.Role,
		JTI:     claims.ID, // JWT ID for revocation tracking
	}, nil
}

type JWTServiceAdapter struct {
	service *JWTService
}

func NewJWTServiceAdapter(service *JWTService) *JWTServiceAdapter {
	return &JWTServiceAdapter{service: service}
}

func (a *JWTServiceAdapter) ValidateToken(tokenString string) (*middleware.JWTClaims, error) {
	claims, err := a.service.ValidateToken(tokenString)
	if err != nil {
		return nil, err
	}
	return ToMiddlewareClaims(claims)
}
