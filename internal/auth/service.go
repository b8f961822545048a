package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"tradedesk/internal/accounts"
	"tradedesk/internal/model"
)

var walletPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)

// Service handles the mocked wallet login and issues session tokens. There is
// no signature verification, presenting any well-formed address (or none, in
// which case one is generated) signs you in to a demo account.
type Service struct {
	store       *accounts.Store
	issuer      string
	secret      []byte
	ttl         time.Duration
	demoBalance decimal.Decimal
}

func NewService(store *accounts.Store, issuer string, secret []byte, ttl time.Duration, demoBalance decimal.Decimal) *Service {
	return &Service{store: store, issuer: issuer, secret: secret, ttl: ttl, demoBalance: demoBalance}
}

// ConnectWallet signs a wallet in, creating the account on first contact.
// Returning accounts are reset to the demo stage and starting balance.
func (s *Service) ConnectWallet(ctx context.Context, wallet, email string) (string, model.Account, error) {
	wallet = strings.TrimSpace(wallet)
	if wallet == "" {
		wallet = randomWallet()
	} else if !walletPattern.MatchString(wallet) {
		return "", model.Account{}, errors.New("invalid wallet address")
	}

	acc, err := s.store.GetByWallet(ctx, wallet)
	switch {
	case err == nil:
		if err := s.store.ResetDemo(ctx, acc.ID, s.demoBalance); err != nil {
			return "", model.Account{}, err
		}
		acc, err = s.store.GetByID(ctx, acc.ID)
		if err != nil {
			return "", model.Account{}, err
		}
	case errors.Is(err, accounts.ErrNotFound):
		acc, err = s.store.Create(ctx, model.Account{
			ID:            uuid.NewString(),
			WalletAddress: wallet,
			Email:         email,
			Username:      "trader_" + wallet[:8],
			Tier:          "basic",
			Stage:         "demo",
			Balance:       s.demoBalance,
			RealizedPnL:   decimal.Zero,
		})
		if err != nil {
			return "", model.Account{}, err
		}
	default:
		return "", model.Account{}, err
	}

	token, err := s.signToken(acc.ID)
	if err != nil {
		return "", model.Account{}, err
	}
	return token, acc, nil
}

func (s *Service) signToken(userID string) (string, error) {
	now := time.Now().UTC()
	claims := jwt.RegisteredClaims{
		Issuer:    s.issuer,
		Subject:   userID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return t.SignedString(s.secret)
}

func (s *Service) ParseToken(token string) (string, error) {
	parsed, err := jwt.ParseWithClaims(token, &jwt.RegisteredClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("invalid signing method")
		}
		return s.secret, nil
	})
	if err != nil {
		return "", err
	}
	claims, ok := parsed.Claims.(*jwt.RegisteredClaims)
	if !ok || !parsed.Valid {
		return "", errors.New("invalid token")
	}
	if claims.Issuer != s.issuer {
		return "", errors.New("invalid issuer")
	}
	if claims.Subject == "" {
		return "", errors.New("invalid subject")
	}
	return claims.Subject, nil
}

func randomWallet() string {
	buf := make([]byte, 20)
	rand.Read(buf)
	return "0x" + hex.EncodeToString(buf)
}
