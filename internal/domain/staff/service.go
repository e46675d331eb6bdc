package staff

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/clinicdesk/clinicdesk/internal/platform/apierr"
	"github.com/clinicdesk/clinicdesk/internal/platform/auth"
	"github.com/clinicdesk/clinicdesk/internal/platform/docstore"
)

const minPasswordLength = 8

// Login results reported to the LoginObserver.
const (
	LoginSuccess = "success"
	LoginInvalid = "invalid"
	LoginError   = "error"
)

var errInvalidCredentials = apierr.Unauthorized("invalid email or password")

// LoginObserver is told the outcome of every login attempt.
type LoginObserver interface {
	ObserveLogin(result string)
}

type Service struct {
	repo     Repository
	issuer   *auth.Issuer
	revoker  auth.Revoker
	observer LoginObserver
	now      func() time.Time
	cost     int

	dummyOnce sync.Once
	dummyHash []byte
}

// NewService wires the staff service. revoker and obs may be nil.
func NewService(repo Repository, issuer *auth.Issuer, revoker auth.Revoker, obs LoginObserver) *Service {
	return &Service{
		repo:     repo,
		issuer:   issuer,
		revoker:  revoker,
		observer: obs,
		now:      time.Now,
		cost:     bcrypt.DefaultCost,
	}
}

func (s *Service) observe(result string) {
	if s.observer != nil {
		s.observer.ObserveLogin(result)
	}
}

func notFound(err error) error {
	if errors.Is(err, docstore.ErrNotFound) {
		return apierr.NotFound("staff")
	}
	return err
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// HashPassword returns the bcrypt hash of password.
func (s *Service) HashPassword(password string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(h), nil
}

// compareDummy spends the same bcrypt work as a real check so unknown
// emails cannot be told apart by timing.
func (s *Service) compareDummy(password string) {
	s.dummyOnce.Do(func() {
		s.dummyHash, _ = bcrypt.GenerateFromPassword([]byte("clinicdesk-placeholder"), s.cost)
	})
	_ = bcrypt.CompareHashAndPassword(s.dummyHash, []byte(password))
}

// Login checks credentials and issues a session token.
func (s *Service) Login(ctx context.Context, email, password string) (*Session, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return nil, apierr.Validation("email and password are required")
	}

	acct, err := s.repo.GetByEmail(ctx, email)
	if errors.Is(err, docstore.ErrNotFound) {
		s.compareDummy(password)
		s.observe(LoginInvalid)
		return nil, errInvalidCredentials
	}
	if err != nil {
		s.observe(LoginError)
		return nil, err
	}

	if bcrypt.CompareHashAndPassword([]byte(acct.PasswordHash), []byte(password)) != nil {
		s.observe(LoginInvalid)
		return nil, errInvalidCredentials
	}
	if !acct.IsActive {
		s.observe(LoginInvalid)
		return nil, apierr.Unauthorized("account is disabled")
	}

	token, claims, err := s.issuer.Issue(acct.StoreID, acct.Email, acct.Role)
	if err != nil {
		s.observe(LoginError)
		return nil, err
	}

	now := s.now().UTC()
	acct.LastLoginAt = &now
	if err := s.repo.Update(ctx, acct); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("staff_id", acct.StoreID).Msg("record last login")
	}

	s.observe(LoginSuccess)
	zerolog.Ctx(ctx).Info().Str("staff_id", acct.StoreID).Str("role", acct.Role).Msg("staff logged in")
	return &Session{Token: token, ExpiresAt: claims.ExpiresAt.Time, Staff: acct.Profile()}, nil
}

// Logout revokes the token behind id until it would have expired.
func (s *Service) Logout(ctx context.Context, id auth.Identity) error {
	if id.TokenID == "" {
		return apierr.Unauthorized("no active session")
	}
	if s.revoker == nil {
		return nil
	}
	return s.revoker.Revoke(ctx, id.TokenID, id.UserID, id.ExpiresAt)
}

// Me returns the profile of the authenticated staff member.
func (s *Service) Me(ctx context.Context, userID string) (*Profile, error) {
	if userID == "" {
		return nil, apierr.Unauthorized("authentication required")
	}
	acct, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		return nil, notFound(err)
	}
	p := acct.Profile()
	return &p, nil
}

func validateContact(name, email, role string) error {
	if name == "" {
		return apierr.Validation("name is required")
	}
	if email == "" {
		return apierr.Validation("email is required")
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return apierr.Validation("invalid email: %s", email)
	}
	if !auth.ValidRole(role) {
		return apierr.Validation("invalid role: %s", role)
	}
	return nil
}

func validatePassword(pw string) error {
	if len(pw) < minPasswordLength {
		return apierr.Validation("password must be at least %d characters", minPasswordLength)
	}
	return nil
}

// ensureEmailFree fails with a conflict when another account uses email.
func (s *Service) ensureEmailFree(ctx context.Context, email, selfID string) error {
	other, err := s.repo.GetByEmail(ctx, email)
	if errors.Is(err, docstore.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if other.StoreID != selfID {
		return apierr.Conflict("email %s is already in use", email)
	}
	return nil
}

// Create adds a new active account. Role defaults to operator.
func (s *Service) Create(ctx context.Context, in CreateInput) (*Profile, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = normalizeEmail(in.Email)
	if in.Role == "" {
		in.Role = auth.RoleOperator
	}
	if err := validateContact(in.Name, in.Email, in.Role); err != nil {
		return nil, err
	}
	if err := validatePassword(in.Password); err != nil {
		return nil, err
	}
	if err := s.ensureEmailFree(ctx, in.Email, ""); err != nil {
		return nil, err
	}

	hash, err := s.HashPassword(in.Password)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	acct := &Account{
		Name:         in.Name,
		Email:        in.Email,
		PasswordHash: hash,
		Role:         in.Role,
		IsActive:     true,
		Phone:        strings.TrimSpace(in.Phone),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.repo.Create(ctx, acct); err != nil {
		return nil, err
	}
	p := acct.Profile()
	return &p, nil
}

func (s *Service) List(ctx context.Context) ([]Profile, error) {
	accts, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Profile, 0, len(accts))
	for _, a := range accts {
		out = append(out, a.Profile())
	}
	return out, nil
}

func (s *Service) Get(ctx context.Context, id string) (*Profile, error) {
	if strings.TrimSpace(id) == "" {
		return nil, apierr.Validation("id is required")
	}
	acct, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, notFound(err)
	}
	p := acct.Profile()
	return &p, nil
}

// Update edits account id on behalf of actorID. Admins cannot disable or
// demote themselves. Disabling an account or changing its role ends its
// open sessions.
func (s *Service) Update(ctx context.Context, actorID, id string, in UpdateInput) (*Profile, error) {
	if strings.TrimSpace(id) == "" {
		return nil, apierr.Validation("id is required")
	}
	acct, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, notFound(err)
	}

	in.Name = strings.TrimSpace(in.Name)
	in.Email = normalizeEmail(in.Email)
	if in.Name == "" {
		in.Name = acct.Name
	}
	if in.Email == "" {
		in.Email = acct.Email
	}
	if in.Role == "" {
		in.Role = acct.Role
	}
	if err := validateContact(in.Name, in.Email, in.Role); err != nil {
		return nil, err
	}
	if id == actorID && (in.Role != auth.RoleAdmin || (in.IsActive != nil && !*in.IsActive)) {
		return nil, apierr.Validation("you cannot disable or demote your own account")
	}
	if in.Email != acct.Email {
		if err := s.ensureEmailFree(ctx, in.Email, acct.StoreID); err != nil {
			return nil, err
		}
	}
	if in.Password != "" {
		if err := validatePassword(in.Password); err != nil {
			return nil, err
		}
		hash, err := s.HashPassword(in.Password)
		if err != nil {
			return nil, err
		}
		acct.PasswordHash = hash
	}

	endSessions := in.Role != acct.Role || (acct.IsActive && in.IsActive != nil && !*in.IsActive)

	acct.Name = in.Name
	acct.Email = in.Email
	acct.Role = in.Role
	if phone := strings.TrimSpace(in.Phone); phone != "" {
		acct.Phone = phone
	}
	if in.IsActive != nil {
		acct.IsActive = *in.IsActive
	}
	acct.UpdatedAt = s.now().UTC()
	if err := s.repo.Update(ctx, acct); err != nil {
		return nil, notFound(err)
	}
	if endSessions {
		if err := s.endSessions(ctx, acct.StoreID); err != nil {
			return nil, err
		}
	}
	p := acct.Profile()
	return &p, nil
}

// endSessions revokes every token issued to id so far.
func (s *Service) endSessions(ctx context.Context, id string) error {
	if s.revoker == nil || s.issuer == nil {
		return nil
	}
	if err := s.revoker.RevokeUser(ctx, id, s.now(), s.issuer.TTL()); err != nil {
		return fmt.Errorf("end sessions: %w", err)
	}
	zerolog.Ctx(ctx).Info().Str("staff_id", id).Msg("staff sessions ended")
	return nil
}
