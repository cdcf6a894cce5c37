package user

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/pkondratev/chatwave/internal/errs"
)

const tokenTTL = 24 * time.Hour

// Store is the slice of the repository the service needs; tests plug in fakes.
type Store interface {
	CreateUser(ctx context.Context, u *User) (*User, error)
	GetUserByUsername(ctx context.Context, username string) (*User, error)
	SearchUsers(ctx context.Context, query string) ([]User, error)
}

// Service handles accounts and token issue/validation. It is the
// authentication gateway the realtime handshake resolves identities through.
type Service struct {
	store     Store
	jwtSecret []byte
}

type claims struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	jwt.RegisteredClaims
}

func NewService(store Store, secret string) *Service {
	return &Service{store: store, jwtSecret: []byte(secret)}
}

func (s *Service) Register(ctx context.Context, req *Credentials) error {
	if req.Username == "" || req.Password == "" {
		return fmt.Errorf("%w: username and password required", errs.ErrUnauthorized)
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	_, err = s.store.CreateUser(ctx, &User{Username: req.Username, Password: string(hashed)})
	return err
}

func (s *Service) Login(ctx context.Context, req *Credentials) (*LoginResponse, error) {
	u, err := s.store.GetUserByUsername(ctx, req.Username)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return nil, errs.ErrUnauthorized
		}
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.Password), []byte(req.Password)); err != nil {
		return nil, errs.ErrUnauthorized
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		ID:       u.ID,
		Username: u.Username,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "chatwave",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(tokenTTL)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	})
	signed, err := token.SignedString(s.jwtSecret)
	if err != nil {
		return nil, err
	}

	return &LoginResponse{AccessToken: signed, ID: u.ID, Username: u.Username}, nil
}

// ValidateToken resolves a token to (userID, username). Used by the HTTP auth
// middleware, which also guards the websocket handshake.
func (s *Service) ValidateToken(tokenString string) (int64, string, error) {
	c := &claims{}
	token, err := jwt.ParseWithClaims(tokenString, c, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.jwtSecret, nil
	})
	if err != nil || !token.Valid {
		return 0, "", errs.ErrUnauthorized
	}
	return c.ID, c.Username, nil
}

func (s *Service) SearchUsers(ctx context.Context, query string) ([]User, error) {
	return s.store.SearchUsers(ctx, query)
}
