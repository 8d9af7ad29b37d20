package surrealgrid

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/surrealdb/surrealgrid/pkg/client"
	"github.com/surrealdb/surrealgrid/pkg/models"
	"github.com/surrealdb/surrealgrid/pkg/store"
)

// sessionStore maps bearer tokens to users. Sessions live in memory and end with
// the process; passwords are not checked.
type sessionStore struct {
	mu     sync.RWMutex
	tokens map[string]*models.User
}

func newSessionStore() *sessionStore {
	return &sessionStore{tokens: make(map[string]*models.User)}
}

// create issues a new random token for user.
func (s *sessionStore) create(user *models.User) string {
	token := uuid.NewString()
	s.mu.Lock()
	s.tokens[token] = user
	s.mu.Unlock()
	return token
}

func (s *sessionStore) lookup(token string) (*models.User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	user, ok := s.tokens[token]
	return user, ok
}

func (s *sessionStore) remove(token string) {
	s.mu.Lock()
	delete(s.tokens, token)
	s.mu.Unlock()
}

type userKey struct{}

// currentUser returns the user requireUser stored in the request context.
func currentUser(r *http.Request) *models.User {
	user, _ := r.Context().Value(userKey{}).(*models.User)
	return user
}

// getTokenFromHeader extracts the token from the Authorization header
func getTokenFromHeader(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if token, ok := strings.CutPrefix(auth, "Bearer "); ok {
		return token
	}
	return auth
}

// requireUser rejects requests without a known bearer token with 401.
func (a *App) requireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := a.sessions.lookup(getTokenFromHeader(r))
		if !ok {
			a.respondErr(w, r, client.ErrUnauthorized)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userKey{}, user)))
	})
}

// ownedBy returns a check that the owner looked up for an entity is user.
// Lookup errors, typically store.ErrNotFound, pass through unchanged.
func ownedBy(user *models.User) func(models.UserID, error) error {
	return func(owner models.UserID, err error) error {
		if err != nil {
			return err
		}
		if user == nil || owner != user.ID {
			return store.ErrForbidden
		}
		return nil
	}
}

// handleSignUp registers a user and signs them in.
//
//	POST /api/auth/signup
//	{"email": "jane.doe@example.com", "name": "Jane Doe", "password": "..."}
//	Response: {"token": "...", "user": {...}}
func (a *App) handleSignUp(w http.ResponseWriter, r *http.Request) {
	var req client.SignUpRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.respondErr(w, r, store.Invalid("body", "invalid request payload"))
		return
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))
	if !strings.Contains(email, "@") {
		a.respondErr(w, r, store.Invalid("email", "must be an email address"))
		return
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		name, _, _ = strings.Cut(email, "@")
	}

	ctx := r.Context()
	existing, err := a.store.GetUserByEmail(ctx, email)
	if err != nil {
		a.respondErr(w, r, err)
		return
	}
	if existing != nil {
		a.respondErr(w, r, store.Invalid("email", "already registered"))
		return
	}

	user := &models.User{Email: email, Name: name}
	if err := a.store.CreateUser(ctx, user); err != nil {
		a.respondErr(w, r, err)
		return
	}

	respondJSON(w, http.StatusCreated, client.AuthResponse{Token: a.sessions.create(user), User: user})
}

// handleSignIn handles user authentication. Any password is accepted.
func (a *App) handleSignIn(w http.ResponseWriter, r *http.Request) {
	var req client.SignInRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.respondErr(w, r, store.Invalid("body", "invalid request payload"))
		return
	}

	user, err := a.store.GetUserByEmail(r.Context(), strings.ToLower(strings.TrimSpace(req.Email)))
	if err != nil {
		a.respondErr(w, r, err)
		return
	}
	if user == nil {
		a.respondErr(w, r, client.ErrUnauthorized)
		return
	}

	respondJSON(w, http.StatusOK, client.AuthResponse{Token: a.sessions.create(user), User: user})
}

// handleSignOut handles user logout
func (a *App) handleSignOut(w http.ResponseWriter, r *http.Request) {
	a.sessions.remove(getTokenFromHeader(r))
	respondJSON(w, http.StatusOK, map[string]string{"status": "success"})
}

// handleGetCurrentUser handles getting the current authenticated user
func (a *App) handleGetCurrentUser(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, currentUser(r))
}

// handleRefreshToken replaces the caller's token with a new one.
func (a *App) handleRefreshToken(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r)
	a.sessions.remove(getTokenFromHeader(r))
	respondJSON(w, http.StatusOK, client.AuthResponse{Token: a.sessions.create(user), User: user})
}
