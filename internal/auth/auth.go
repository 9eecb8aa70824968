// Package auth is the top-level entry point of the credential subsystem:
// registration, login, logout, and password changes. It validates inputs,
// coordinates the credential vault and the session manager, and converts
// every internal failure into a structured Result at its boundary.
package auth

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/credkeeper/credkeeper/internal/logging"
	"github.com/credkeeper/credkeeper/internal/session"
	"github.com/credkeeper/credkeeper/internal/vault"
)

// userNamespace is the fixed UUIDv5 namespace for deriving stable user ids
// from usernames. Changing it changes every derived id.
var userNamespace = uuid.MustParse("3f1f8f68-2c7b-4a5e-9b1d-8f4f0f3f9a21")

// Result is the structured outcome of an authentication operation. Errors
// are reported as messages, never thrown past this boundary.
type Result struct {
	Success      bool
	User         *session.User
	Token        string
	RefreshToken string
	ExpiresAt    time.Time
	Error        string

	// RequiresRegistration flags a login against an unknown username, so
	// the UI can offer the registration flow instead. A wrong password
	// never sets it.
	RequiresRegistration bool
}

// RegisterRequest carries registration input.
type RegisterRequest struct {
	Username        string
	Password        string
	ConfirmPassword string
	Remember        bool
}

// LoginRequest carries login input.
type LoginRequest struct {
	Username string
	Password string
	Remember bool
}

// Service orchestrates the vault and session manager.
type Service struct {
	vault    *vault.Vault
	sessions *session.Manager
	log      logging.Logger
}

func NewService(v *vault.Vault, sessions *session.Manager, log logging.Logger) *Service {
	return &Service{vault: v, sessions: sessions, log: log}
}

// UserID derives the stable user identifier for a username.
func UserID(username string) string {
	return uuid.NewSHA1(userNamespace, []byte(username)).String()
}

func failure(msg string) Result {
	return Result{Error: msg}
}

// Register validates the request, stores the credential, and opens a
// session. Validation fails fast: the first violation is reported and no
// storage write happens.
func (s *Service) Register(ctx context.Context, req RegisterRequest) Result {
	if err := ValidateUsername(req.Username); err != nil {
		return failure(err.Error())
	}
	if err := ValidatePassword(req.Password); err != nil {
		return failure(err.Error())
	}
	if req.Password != req.ConfirmPassword {
		return failure("Passwords do not match")
	}

	existing, err := s.vault.Retrieve(ctx, req.Username)
	if err != nil {
		// An unreadable record still occupies the username: either it was
		// written on another device or it is corrupted. Both mean the name
		// is taken, not free.
		s.log.Warn(ctx, "existing credential record unreadable during registration", "username", req.Username, "error", err)
		return failure("Username already exists")
	}
	if existing != nil {
		return failure("Username already exists")
	}

	cred := vault.NewCredential(req.Username, req.Password)
	if err := s.vault.Store(ctx, req.Username, cred); err != nil {
		s.log.Error(ctx, "failed to store credentials", "username", req.Username, "error", err)
		return failure("Failed to store credentials")
	}

	user := session.User{ID: UserID(req.Username), Username: req.Username}
	return s.openSession(ctx, user, req.Remember)
}

// Login verifies the supplied password against the stored credential and
// opens a session. An unknown username is flagged with
// RequiresRegistration; a wrong password is not.
func (s *Service) Login(ctx context.Context, req LoginRequest) Result {
	cred, err := s.vault.Retrieve(ctx, req.Username)
	if err != nil {
		s.log.Warn(ctx, "credential retrieval failed during login", "username", req.Username, "error", err)
		return failure("Invalid credentials")
	}
	if cred == nil {
		return Result{Error: "Invalid credentials", RequiresRegistration: true}
	}

	if !cred.VerifyPassword(req.Password) {
		return failure("Invalid credentials")
	}

	user := session.User{ID: UserID(req.Username), Username: req.Username}
	return s.openSession(ctx, user, req.Remember)
}

func (s *Service) openSession(ctx context.Context, user session.User, remember bool) Result {
	sess, err := s.sessions.Create(ctx, user, remember)
	if err != nil {
		s.log.Error(ctx, "failed to create session", "username", user.Username, "error", err)
		return failure("Failed to create session")
	}

	return Result{
		Success:      true,
		User:         &user,
		Token:        sess.Token,
		RefreshToken: sess.RefreshToken,
		ExpiresAt:    sess.ExpiresAt,
	}
}

// Logout tears down the current session. It never fails from the caller's
// perspective.
func (s *Service) Logout(ctx context.Context) {
	s.sessions.Clear(ctx)
}

// ChangePassword re-verifies the current password, validates the new one,
// and overwrites the stored record wholesale. The active session is not
// touched.
func (s *Service) ChangePassword(ctx context.Context, username, current, newPassword string) Result {
	cred, err := s.vault.Retrieve(ctx, username)
	if err != nil || cred == nil {
		return failure("Invalid credentials")
	}

	if !cred.VerifyPassword(current) {
		return failure("Invalid credentials")
	}

	if err := ValidatePassword(newPassword); err != nil {
		return failure(err.Error())
	}

	if err := s.vault.Store(ctx, username, vault.NewCredential(username, newPassword)); err != nil {
		s.log.Error(ctx, "failed to overwrite credentials", "username", username, "error", err)
		return failure("Failed to store credentials")
	}

	return Result{Success: true}
}

// VerifyCredentialIntegrity checks the stored credential of the currently
// authenticated user. With nobody authenticated there is nothing to check
// and the answer is true; any internal failure is reported as false.
func (s *Service) VerifyCredentialIntegrity(ctx context.Context) bool {
	user := s.sessions.CurrentUser()
	if user == nil {
		return true
	}
	return s.vault.VerifyIntegrity(ctx, user.Username)
}

// IsAuthenticated reports the session manager's lazy-expiry view.
func (s *Service) IsAuthenticated() bool {
	return s.sessions.IsAuthenticated()
}

// CurrentUser exposes the authenticated identity, or nil.
func (s *Service) CurrentUser() *session.User {
	return s.sessions.CurrentUser()
}
