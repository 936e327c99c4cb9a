package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/pawtrol-app/pawtrol-api/internal/model"
	"github.com/pawtrol-app/pawtrol-api/internal/repository"
	"github.com/pawtrol-app/pawtrol-api/pkg/auth"
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// AuthService is the slim authentication collaborator. Full account
// management (email verification, password reset, social login) lives
// with the platform's auth deployment; this covers just enough for the
// mobile client to hold a session and for logout to drop push tokens.
type AuthService struct {
	userRepo   *repository.UserRepository
	tokenRepo  *repository.TokenRepository
	jwtManager *auth.JWTManager
	rdb        *redis.Client
}

func NewAuthService(
	userRepo *repository.UserRepository,
	tokenRepo *repository.TokenRepository,
	jwtManager *auth.JWTManager,
	rdb *redis.Client,
) *AuthService {
	return &AuthService{
		userRepo:   userRepo,
		tokenRepo:  tokenRepo,
		jwtManager: jwtManager,
		rdb:        rdb,
	}
}

// Register creates a new user account and returns a session token
func (s *AuthService) Register(req model.RegisterRequest) (*model.LoginResponse, error) {
	if _, err := s.userRepo.FindByEmail(req.Email); err == nil {
		return nil, errors.New("email already registered")
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, errors.New("failed to hash password")
	}

	user := &model.User{
		Name:     req.Name,
		Email:    req.Email,
		Password: string(hashedPassword),
		CityID:   req.CityID,
	}
	if err := s.userRepo.Create(user); err != nil {
		return nil, errors.New("failed to create user")
	}

	token, err := s.jwtManager.GenerateToken(user.ID, user.Email)
	if err != nil {
		return nil, errors.New("failed to generate token")
	}

	return &model.LoginResponse{Token: token, User: user.ToResponse()}, nil
}

// Login authenticates a user and returns a JWT token
func (s *AuthService) Login(req model.LoginRequest) (*model.LoginResponse, error) {
	user, err := s.userRepo.FindByEmail(req.Email)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.New("invalid email or password")
		}
		return nil, errors.New("failed to find user")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)); err != nil {
		return nil, errors.New("invalid email or password")
	}

	token, err := s.jwtManager.GenerateToken(user.ID, user.Email)
	if err != nil {
		return nil, errors.New("failed to generate token")
	}

	return &model.LoginResponse{Token: token, User: user.ToResponse()}, nil
}

// GetProfile returns the current user's profile
func (s *AuthService) GetProfile(userID uuid.UUID) (*model.UserResponse, error) {
	user, err := s.userRepo.FindByID(userID)
	if err != nil {
		return nil, errors.New("user not found")
	}
	resp := user.ToResponse()
	return &resp, nil
}

// Logout blacklists the session token and removes the user's push tokens.
// Logout is the one place tokens are physically deleted.
func (s *AuthService) Logout(userID uuid.UUID, tokenString string) error {
	if _, err := s.tokenRepo.DeleteAll(userID); err != nil {
		return err
	}

	claims, err := s.jwtManager.ValidateToken(tokenString)
	if err != nil {
		return err
	}

	expiresIn := time.Until(claims.ExpiresAt.Time)
	if expiresIn <= 0 {
		return nil
	}

	return s.rdb.Set(context.Background(), "blacklist:"+tokenString, "revoked", expiresIn).Err()
}
