package api

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/tallyport/tallyport/internal/config"
	"github.com/tallyport/tallyport/internal/models"
)

type contextKey string

const userContextKey contextKey = "user"

// UserLoader resolves bearer-credential subjects to portal users.
type UserLoader interface {
	ByID(ctx context.Context, id int) (*models.User, error)
	ByEmail(ctx context.Context, email string) (*models.User, error)
	Create(ctx context.Context, user *models.User) error
}

// LoginRequest represents login credentials
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResponse represents login response
type LoginResponse struct {
	Token string       `json:"token"`
	User  *models.User `json:"user"`
}

// HandleLogin handles user login
func HandleLogin(users UserLoader, cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req LoginRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			log.Println("Login: Failed to decode request")
			writeError(w, http.StatusBadRequest, "Invalid request")
			return
		}

		user, err := users.ByEmail(r.Context(), req.Email)
		if err != nil {
			log.Println("Login: Authentication failed - user not found")
			writeError(w, http.StatusUnauthorized, "Invalid credentials")
			return
		}

		if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)); err != nil {
			log.Println("Login: Authentication failed - invalid password")
			writeError(w, http.StatusUnauthorized, "Invalid credentials")
			return
		}

		token, err := generateJWT(user.ID, cfg.JWTSecret)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to generate token")
			return
		}

		writeJSON(w, http.StatusOK, LoginResponse{
			Token: token,
			User:  user,
		})
	}
}

// HandleRegister creates a new portal account
func HandleRegister(users UserLoader, cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req LoginRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid request")
			return
		}

		if req.Email == "" || !strings.Contains(req.Email, "@") {
			writeError(w, http.StatusBadRequest, "A valid email is required")
			return
		}
		if len(req.Password) < 8 {
			writeError(w, http.StatusBadRequest, "Password must be at least 8 characters")
			return
		}

		hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
		if err != nil {
			log.Println("Register: Error hashing password:", err.Error())
			writeError(w, http.StatusInternalServerError, "Failed to hash password")
			return
		}

		newUser := models.User{
			Email:     req.Email,
			Password:  string(hashedPassword),
			Active:    true,
			CreatedAt: time.Now(),
		}

		if err := users.Create(r.Context(), &newUser); err != nil {
			log.Println("Register: Error creating user:", err.Error())
			writeError(w, http.StatusInternalServerError, "Failed to create user")
			return
		}

		token, err := generateJWT(newUser.ID, cfg.JWTSecret)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to generate token")
			return
		}

		writeJSON(w, http.StatusOK, LoginResponse{
			Token: token,
			User:  &newUser,
		})
	}
}

// HandleGetCurrentUser returns the current authenticated user
func HandleGetCurrentUser() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := r.Context().Value(userContextKey).(*models.User)
		writeJSON(w, http.StatusOK, user)
	}
}

// AuthMiddleware validates JWT bearer tokens and loads the requester identity
func AuthMiddleware(jwtSecret string, users UserLoader) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				writeError(w, http.StatusUnauthorized, "Missing authorization header")
				return
			}

			tokenString := strings.TrimPrefix(authHeader, "Bearer ")
			if tokenString == authHeader {
				writeError(w, http.StatusUnauthorized, "Invalid authorization header format")
				return
			}

			token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
				return []byte(jwtSecret), nil
			}, jwt.WithValidMethods([]string{"HS256"}))

			if err != nil || !token.Valid {
				writeError(w, http.StatusUnauthorized, "Invalid token")
				return
			}

			claims, ok := token.Claims.(jwt.MapClaims)
			if !ok {
				writeError(w, http.StatusUnauthorized, "Invalid token")
				return
			}
			sub, ok := claims["user_id"].(float64)
			if !ok {
				writeError(w, http.StatusUnauthorized, "Invalid token")
				return
			}

			user, err := users.ByID(r.Context(), int(sub))
			if err != nil {
				log.Println("AuthMiddleware: Failed to load user:", err.Error())
				writeError(w, http.StatusUnauthorized, "Invalid token")
				return
			}

			ctx := context.WithValue(r.Context(), userContextKey, user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// generateJWT generates a JWT token for a user
func generateJWT(userID int, secret string) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": userID,
		"exp":     time.Now().Add(2 * time.Hour).Unix(),
	})

	return token.SignedString([]byte(secret))
}

// requesterFromContext pulls the authenticated user set by AuthMiddleware.
func requesterFromContext(r *http.Request) *models.User {
	return r.Context().Value(userContextKey).(*models.User)
}
