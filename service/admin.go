package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog/log"
	"github.com/zlnvch/pixelverse/worker"
)

const adminRole = "admin"

func (s *Service) CreateAdminJWT(subject string) (string, error) {
	if len(s.JWTSecret) == 0 {
		return "", eris.New("admin secret not configured")
	}

	claims := jwt.MapClaims{
		"sub":  subject,
		"role": adminRole,
		"exp":  time.Now().Add(24 * time.Hour).Unix(),
		"iat":  time.Now().Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signedToken, err := token.SignedString(s.JWTSecret)
	if err != nil {
		return "", eris.Wrap(err, "sign admin token")
	}

	return signedToken, nil
}

// AuthenticateAdmin returns the token subject.
func (s *Service) AuthenticateAdmin(tokenString string) (string, error) {
	if len(tokenString) == 0 {
		return "", eris.Wrap(ErrUnauthorized, "token not provided")
	}
	if len(s.JWTSecret) == 0 {
		return "", eris.Wrap(ErrUnauthorized, "admin access disabled")
	}

	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (any, error) {
		return s.JWTSecret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil || !token.Valid {
		return "", eris.Wrap(ErrUnauthorized, "invalid token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", eris.Wrap(ErrUnauthorized, "invalid token claims")
	}

	if role, _ := claims["role"].(string); role != adminRole {
		return "", eris.Wrap(ErrUnauthorized, "not an admin token")
	}

	subject, _ := claims["sub"].(string)
	return subject, nil
}

// RequestWalletClear queues removal of every pixel owned by wallet and
// returns the job id.
func (s *Service) RequestWalletClear(ctx context.Context, wallet string) (string, error) {
	wallet = NormalizeWallet(wallet)
	if err := ValidateWallet(wallet); err != nil {
		return "", err
	}
	if s.MQ == nil {
		return "", ErrModerationDisabled
	}

	jobId, err := uuid.NewV4()
	if err != nil {
		return "", eris.Wrap(err, "job id")
	}

	msg := worker.ClearWalletPixelsMessage{JobId: jobId.String(), WalletAddress: wallet}
	msgBytes, err := json.Marshal(msg)
	if err != nil {
		return "", eris.Wrap(err, "encode clear wallet message")
	}

	if _, err := s.MQ.Send(ctx, string(msgBytes)); err != nil {
		return "", eris.Wrap(err, "queue clear wallet job")
	}

	log.Info().Str("jobId", msg.JobId).Str("wallet", wallet).Msg("Queued wallet clear")
	return msg.JobId, nil
}
