package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/plantops/mv-backend/internal/store"
)

type contextKey string

const (
	UserIDKey     contextKey = "user_id"
	UserClaimsKey contextKey = "user_claims"
)

// AuthenticatedUser is the request-scoped identity: the token subject
// enriched with the role and department that rule evaluation scopes on.
type AuthenticatedUser struct {
	ID           uuid.UUID
	Email        string
	RoleID       uuid.UUID
	DepartmentID uuid.UUID
}

type userLoader interface {
	GetUser(ctx context.Context, id uuid.UUID) (store.User, error)
}

type Authenticator struct {
	jwtService *JWTService
	users      userLoader
}

func NewAuthenticator(jwtService *JWTService, users userLoader) *Authenticator {
	return &Authenticator{
		jwtService: jwtService,
		users:      users,
	}
}

// Middleware validates the bearer token, loads the user and stashes the
// identity in the request context. Inactive users are rejected the same
// way as a bad token.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			unauthorized(w, "authorization header missing")
			return
		}

		const bearerPrefix = "Bearer "
		if !strings.HasPrefix(authHeader, bearerPrefix) {
			unauthorized(w, "invalid authorization header format")
			return
		}

		claims, err := a.jwtService.ValidateToken(r.Context(), strings.TrimPrefix(authHeader, bearerPrefix))
		if err != nil {
			unauthorized(w, "invalid token")
			return
		}

		user, err := a.users.GetUser(r.Context(), claims.UserID)
		if err != nil || !user.IsActive {
			unauthorized(w, "user not found or inactive")
			return
		}

		authenticatedUser := &AuthenticatedUser{
			ID:    user.ID,
			Email: user.Email,
		}
		if user.RoleID != nil {
			authenticatedUser.RoleID = *user.RoleID
		}
		if user.DepartmentID != nil {
			authenticatedUser.DepartmentID = *user.DepartmentID
		}

		ctx := context.WithValue(r.Context(), UserIDKey, user.ID)
		ctx = context.WithValue(ctx, UserClaimsKey, authenticatedUser)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func unauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"code":    "UNAUTHORIZED",
			"message": message,
		},
	})
}

func GetUserID(ctx context.Context) (uuid.UUID, bool) {
	userID, ok := ctx.Value(UserIDKey).(uuid.UUID)
	return userID, ok
}

func GetAuthenticatedUser(ctx context.Context) (*AuthenticatedUser, bool) {
	user, ok := ctx.Value(UserClaimsKey).(*AuthenticatedUser)
	return user, ok
}
