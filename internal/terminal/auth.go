package terminal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/supabase-community/gotrue-go/types"
	"golang.org/x/crypto/bcrypt"

	"github.com/fieldnodes/field-nodes/internal/models"
	"github.com/fieldnodes/field-nodes/internal/store"
)

var (
	// ErrInvalidCredentials is returned by Login for an unknown user or wrong password.
	ErrInvalidCredentials = errors.New("invalid username or password")
	// ErrUserExists is returned by Register when the name is already taken.
	ErrUserExists = errors.New("user already exists")
)

// Authenticator creates and verifies accounts.
type Authenticator interface {
	Register(ctx context.Context, name, password string) (models.User, error)
	Login(ctx context.Context, name, password string) (models.User, error)
}

// LocalAuth keeps bcrypt password hashes on the users stored in a NodeStore.
type LocalAuth struct {
	store store.NodeStore
	cost  int
}

// NewLocalAuth returns a LocalAuth. A cost of zero uses bcrypt.DefaultCost.
func NewLocalAuth(st store.NodeStore, cost int) *LocalAuth {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	return &LocalAuth{store: st, cost: cost}
}

// Register stores a new user with a hashed password.
func (a *LocalAuth) Register(ctx context.Context, name, password string) (models.User, error) {
	if reservedName(name) {
		return models.User{}, fmt.Errorf("register %q: %w reserved name", name, models.ErrInvalid)
	}
	if _, err := a.store.GetUser(ctx, name); err == nil {
		return models.User{}, fmt.Errorf("register %q: %w", name, ErrUserExists)
	} else if !errors.Is(err, store.ErrNotFound) {
		return models.User{}, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), a.cost)
	if err != nil {
		return models.User{}, fmt.Errorf("hashing password: %w", err)
	}
	u := models.User{
		ID:           uuid.New().String(),
		Username:     name,
		DisplayName:  name,
		PasswordHash: string(hash),
	}
	if err := a.store.SaveUser(ctx, u); err != nil {
		return models.User{}, err
	}
	return u, nil
}

// reservedName reports whether name would be shown as the guest handle,
// which would make the account indistinguishable from a guest.
func reservedName(name string) bool {
	return models.FormatHandle(name) == models.GuestName
}

// Login checks password against the stored hash.
func (a *LocalAuth) Login(ctx context.Context, name, password string) (models.User, error) {
	u, err := a.store.GetUser(ctx, name)
	if errors.Is(err, store.ErrNotFound) {
		return models.User{}, ErrInvalidCredentials
	}
	if err != nil {
		return models.User{}, err
	}
	if u.PasswordHash == "" {
		return models.User{}, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return models.User{}, ErrInvalidCredentials
	}
	return u, nil
}

// GoTrue is the subset of the Supabase auth client SupabaseAuth needs.
// gotrue.Client and supabase.Client.Auth satisfy it.
type GoTrue interface {
	Signup(req types.SignupRequest) (*types.SignupResponse, error)
	SignInWithEmailPassword(email, password string) (*types.TokenResponse, error)
}

// SupabaseAuth signs users up and in through GoTrue. Names that are not
// email addresses are mapped to handle@domain.
type SupabaseAuth struct {
	auth   GoTrue
	store  store.NodeStore
	domain string
	logger *slog.Logger
}

// NewSupabaseAuth returns a SupabaseAuth. Profiles are mirrored into st.
func NewSupabaseAuth(auth GoTrue, st store.NodeStore, domain string, logger *slog.Logger) *SupabaseAuth {
	if domain == "" {
		domain = "fieldnodes.local"
	}
	return &SupabaseAuth{auth: auth, store: st, domain: domain, logger: logger}
}

func (a *SupabaseAuth) email(name string) string {
	if strings.Contains(name, "@") {
		return strings.ToLower(strings.TrimSpace(name))
	}
	return models.FormatHandle(name) + "@" + a.domain
}

// Register signs up with GoTrue, then stores the profile row.
func (a *SupabaseAuth) Register(ctx context.Context, name, password string) (models.User, error) {
	if err := ctx.Err(); err != nil {
		return models.User{}, err
	}
	if reservedName(name) {
		return models.User{}, fmt.Errorf("register %q: %w reserved name", name, models.ErrInvalid)
	}
	resp, err := a.auth.Signup(types.SignupRequest{
		Email:    a.email(name),
		Password: password,
		Data:     map[string]interface{}{"username": name},
	})
	if err != nil {
		if rejected(err) {
			return models.User{}, fmt.Errorf("register %q: %w", name, ErrUserExists)
		}
		return models.User{}, &store.StorageError{Op: "auth signup", Err: err}
	}
	id := resp.ID
	if id == uuid.Nil {
		id = resp.Session.User.ID
	}
	u := models.User{ID: id.String(), Username: name, DisplayName: name}
	if err := a.store.SaveUser(ctx, u); err != nil {
		return models.User{}, err
	}
	return u, nil
}

// Login signs in with GoTrue and loads the stored profile for the role.
func (a *SupabaseAuth) Login(ctx context.Context, name, password string) (models.User, error) {
	if err := ctx.Err(); err != nil {
		return models.User{}, err
	}
	tok, err := a.auth.SignInWithEmailPassword(a.email(name), password)
	if err != nil {
		if rejected(err) {
			return models.User{}, ErrInvalidCredentials
		}
		return models.User{}, &store.StorageError{Op: "auth sign in", Err: err}
	}
	u, err := a.store.GetUser(ctx, name)
	switch {
	case errors.Is(err, store.ErrNotFound):
		a.logger.Warn("auth: no profile for signed-in user", "user", name)
		return models.User{ID: tok.User.ID.String(), Username: name}, nil
	case err != nil:
		return models.User{}, err
	}
	return u, nil
}

// rejected reports whether GoTrue answered with a 4xx status, which it does
// for bad credentials and duplicate signups alike.
func rejected(err error) bool {
	msg := err.Error()
	for _, code := range []string{"400", "401", "403", "409", "422"} {
		if strings.HasPrefix(msg, "response status code "+code) {
			return true
		}
	}
	return false
}
