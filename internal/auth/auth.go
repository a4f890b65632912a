package auth

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/mail"
	"os"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/StoryBB/StoryBB-sub005/internal/apperr"
	"github.com/StoryBB/StoryBB-sub005/internal/settings"
	"github.com/StoryBB/StoryBB-sub005/pkg/models"
)

var logger = slog.New(slog.NewJSONHandler(os.Stdout, nil))

// SetLogger installs a logger for the auth package. Passing nil is a no-op.
func SetLogger(l *slog.Logger) {
	if l != nil {
		logger = l
	}
}

// Limits on account credentials.
const (
	MinPasswordLength = 8
	MinNameLength     = 3
	MaxNameLength     = 25
)

var namePattern = regexp.MustCompile(`^[A-Za-z0-9 _.\-]+$`)

// ValidEmail reports whether s is a plain email address.
func ValidEmail(s string) bool {
	a, err := mail.ParseAddress(s)
	return err == nil && a.Address == s && strings.Contains(s[strings.LastIndex(s, "@"):], ".")
}

// CheckMemberName validates a login name's shape, adding errors to verr.
func CheckMemberName(verr *apperr.Validation, field, name string) {
	n := utf8.RuneCountInString(name)
	switch {
	case n == 0:
		verr.Add(field, "field_required")
	case n < MinNameLength:
		verr.Add(field, "field_too_short", MinNameLength)
	case n > MaxNameLength:
		verr.Add(field, "field_too_long", MaxNameLength)
	case !namePattern.MatchString(name):
		verr.Add(field, "name_invalid")
	}
}

// CheckPasswordPair validates a new password and its confirmation.
func CheckPasswordPair(verr *apperr.Validation, field, password, confirm string) {
	switch {
	case password != confirm:
		verr.Add(field, "password_mismatch")
	case utf8.RuneCountInString(password) < MinPasswordLength:
		verr.Add(field, "password_short", MinPasswordLength)
	}
}

// Repo is the storage the auth service needs.
type Repo interface {
	CreateMember(ctx context.Context, m *models.Member) (int64, int64, error)
	GetMemberByLogin(ctx context.Context, login string) (*models.Member, error)
	MemberNameTaken(ctx context.Context, name string, exceptID int64) (bool, error)
	EmailTaken(ctx context.Context, email string, exceptID int64) (bool, error)
	UpdateLastLogin(ctx context.Context, id, at int64) error
	LogAction(ctx context.Context, a *models.ActionLog) (int64, error)
}

// Service registers and logs in members.
type Service struct {
	repo     Repo
	settings *settings.Store
	tokens   *Tokens
	now      func() int64
}

func unixNow() int64 { return time.Now().UTC().Unix() }

func NewService(repo Repo, s *settings.Store, tokens *Tokens) *Service {
	return &Service{repo: repo, settings: s, tokens: tokens, now: unixNow}
}

// RegisterInput is the registration form.
type RegisterInput struct {
	MemberName string `json:"member_name"`
	Email      string `json:"email"`
	Password   string `json:"password"`
	Confirm    string `json:"password_confirm"`
	Language   string `json:"language"`
	IP         string `json:"-"`
}

// Register creates an activated member in the regular members group.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*models.Member, error) {
	values, err := s.settings.Load(ctx)
	if err != nil {
		return nil, err
	}
	if values.Int("registration_method") == settings.RegistrationDisabled {
		return nil, apperr.Forbidden("registration_disabled")
	}

	in.MemberName = strings.TrimSpace(in.MemberName)
	in.Email = strings.TrimSpace(in.Email)
	verr := &apperr.Validation{}
	CheckMemberName(verr, "member_name", in.MemberName)
	if !verr.Has("member_name") {
		taken, err := s.repo.MemberNameTaken(ctx, in.MemberName, 0)
		if err != nil {
			return nil, err
		}
		if taken {
			verr.Add("member_name", "name_taken")
		}
	}
	if !ValidEmail(in.Email) {
		verr.Add("email", "email_invalid")
	} else {
		taken, err := s.repo.EmailTaken(ctx, in.Email, 0)
		if err != nil {
			return nil, err
		}
		if taken {
			verr.Add("email", "email_taken")
		}
	}
	confirm := in.Confirm
	if confirm == "" {
		confirm = in.Password
	}
	CheckPasswordPair(verr, "password", in.Password, confirm)
	if err := verr.Err(); err != nil {
		return nil, err
	}

	hash, err := HashPassword(in.Password)
	if err != nil {
		return nil, err
	}
	m := &models.Member{
		Name:         in.MemberName,
		RealName:     in.MemberName,
		Email:        in.Email,
		PasswordHash: hash,
		PrimaryGroup: models.GroupRegular,
		Language:     in.Language,
		Activated:    true,
		Registered:   s.now(),
	}
	if _, _, err := s.repo.CreateMember(ctx, m); err != nil {
		return nil, fmt.Errorf("create member: %w", err)
	}
	if _, err := s.repo.LogAction(ctx, &models.ActionLog{
		Log: models.LogProfile, MemberID: m.ID, AffectedID: m.ID, IP: in.IP, Action: "register",
	}); err != nil {
		return nil, err
	}
	logger.Info("member registered", slog.Int64("member", m.ID))
	return m, nil
}

// Login checks credentials and issues a session.
func (s *Service) Login(ctx context.Context, login, password string) (*Session, *models.Member, error) {
	login = strings.TrimSpace(login)
	if login == "" || password == "" {
		return nil, nil, apperr.Invalid("login", "field_required")
	}
	m, err := s.repo.GetMemberByLogin(ctx, login)
	if err != nil {
		return nil, nil, err
	}
	if m == nil || !CheckPassword(m.PasswordHash, password) {
		return nil, nil, apperr.Fatal(http.StatusUnauthorized, "bad_login")
	}
	if !m.Activated {
		return nil, nil, apperr.Forbidden("login_not_activated")
	}
	sess, err := s.tokens.Issue(m.ID)
	if err != nil {
		return nil, nil, err
	}
	if err := s.repo.UpdateLastLogin(ctx, m.ID, s.now()); err != nil {
		return nil, nil, err
	}
	return sess, m, nil
}
