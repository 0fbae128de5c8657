package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/samber/lo"
	"golang.org/x/crypto/bcrypt"

	"github.com/bonchi-health/bonchi_api/internal/events"
	"github.com/bonchi-health/bonchi_api/internal/identity"
	"github.com/bonchi-health/bonchi_api/internal/otp"
	"github.com/bonchi-health/bonchi_api/internal/sms"
)

const (
	bcryptCost     = 10
	releaseTimeout = 2 * time.Second
)

// Deps collects what the auth service needs at construction.
type Deps struct {
	Users    identity.Repository
	Sessions otp.Repository
	SMS      sms.Sender
	Events   events.Publisher
	Tokens   *TokenIssuer
	Logger   *slog.Logger
	OTPTTL   time.Duration
	// Now defaults to time.Now.
	Now func() time.Time
}

// Service implements email/password and phone OTP authentication.
type Service struct {
	users    identity.Repository
	sessions otp.Repository
	sender   sms.Sender
	events   events.Publisher
	tokens   *TokenIssuer
	logger   *slog.Logger
	otpTTL   time.Duration
	now      func() time.Time
}

// NewService wires the auth service.
func NewService(d Deps) *Service {
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.OTPTTL <= 0 {
		d.OTPTTL = 10 * time.Minute
	}
	if d.Events == nil {
		d.Events = events.NewLoggerPublisher(d.Logger)
	}
	return &Service{
		users:    d.Users,
		sessions: d.Sessions,
		sender:   d.SMS,
		events:   d.Events,
		tokens:   d.Tokens,
		logger:   d.Logger,
		otpTTL:   d.OTPTTL,
		now:      d.Now,
	}
}

// Profile is the member data collected at sign-up.
type Profile struct {
	FirstName  string
	MiddleName *string
	Address    *string
	District   string
	State      string
	GSTNumber  *string
	Gender     identity.Gender
	Age        *int
}

// Complete reports whether every mandatory profile field is present.
func (p Profile) Complete() bool {
	return p.FirstName != "" && p.District != "" && p.State != "" && p.Gender != ""
}

// RegisterInput is an email/password sign-up.
type RegisterInput struct {
	Email    string
	Password string
	Phone    *string
	Profile
}

// VerifyInput is an OTP check. Profile and Email are only used when the phone
// has no account yet.
type VerifyInput struct {
	Phone     string
	Code      string
	SessionID int64
	Email     *string
	Profile   *Profile
}

// Result is a signed-in user with a fresh token.
type Result struct {
	User  identity.User
	Token string
}

// Register creates an email/password account.
func (s *Service) Register(ctx context.Context, in RegisterInput) (Result, error) {
	in.Email = strings.TrimSpace(in.Email)
	if in.Email == "" || in.Password == "" || !in.Profile.Complete() {
		return Result{}, ErrInvalidInput
	}

	if _, err := s.users.FindByEmail(ctx, in.Email); err == nil {
		return Result{}, ErrDuplicateEmail
	} else if !errors.Is(err, identity.ErrNotFound) {
		return Result{}, fmt.Errorf("lookup email: %w", err)
	}
	if in.Phone != nil && *in.Phone != "" {
		if _, err := s.users.FindByPhone(ctx, *in.Phone); err == nil {
			return Result{}, ErrDuplicatePhone
		} else if !errors.Is(err, identity.ErrNotFound) {
			return Result{}, fmt.Errorf("lookup phone: %w", err)
		}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcryptCost)
	if err != nil {
		return Result{}, fmt.Errorf("hash password: %w", err)
	}

	user := newUser(in.Profile)
	user.Email = lo.ToPtr(in.Email)
	user.Phone = lo.EmptyableToPtr(lo.FromPtr(in.Phone))
	user.PasswordHash = hash
	user.AuthType = identity.AuthTypeEmailPassword

	created, err := s.createUser(ctx, user)
	if err != nil {
		return Result{}, err
	}
	s.publish(ctx, events.SubjectUserRegistered, created)
	token, err := s.tokens.IssueForEmail(created.ID, in.Email)
	if err != nil {
		return Result{}, err
	}
	return Result{User: created, Token: token}, nil
}

// Login checks an email/password pair. Every failure reports the same error.
func (s *Service) Login(ctx context.Context, email, password string) (Result, error) {
	user, err := s.users.FindByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		if errors.Is(err, identity.ErrNotFound) {
			return Result{}, ErrInvalidCredential
		}
		return Result{}, fmt.Errorf("lookup email: %w", err)
	}
	if user.AuthType != identity.AuthTypeEmailPassword || len(user.PasswordHash) == 0 {
		return Result{}, ErrInvalidCredential
	}
	if err := bcrypt.CompareHashAndPassword(user.PasswordHash, []byte(password)); err != nil {
		return Result{}, ErrInvalidCredential
	}
	token, err := s.tokens.IssueForEmail(user.ID, lo.FromPtr(user.Email))
	if err != nil {
		return Result{}, err
	}
	return Result{User: user, Token: token}, nil
}

// SendOTP starts a phone verification and returns the session id. A failed SMS
// delivery is logged and does not fail the call.
func (s *Service) SendOTP(ctx context.Context, phone string) (int64, error) {
	if !otp.ValidPhone(phone) {
		return 0, ErrInvalidPhone
	}

	code, err := otp.GenerateCode()
	if err != nil {
		return 0, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(code), bcryptCost)
	if err != nil {
		return 0, fmt.Errorf("hash otp: %w", err)
	}

	now := s.now()
	if n, err := s.sessions.DeleteExpiredUnverified(ctx, phone, now); err != nil {
		s.logger.Warn("otp session cleanup failed", slog.Any("error", err))
	} else if n > 0 {
		s.logger.Debug("otp sessions cleaned up", slog.Int64("deleted", n))
	}

	session, err := s.sessions.Create(ctx, otp.Session{
		Phone:     phone,
		CodeHash:  hash,
		ExpiresAt: now.Add(s.otpTTL),
	})
	if err != nil {
		return 0, fmt.Errorf("create otp session: %w", err)
	}

	if err := s.sender.SendOTP(ctx, phone, code, s.otpTTL); err != nil {
		s.logger.Error("otp sms delivery failed",
			slog.Int64("session_id", session.ID),
			slog.Any("error", err))
	}
	return session.ID, nil
}

// VerifyOTP checks a code against its session and signs the member in,
// creating the account on first verification.
func (s *Service) VerifyOTP(ctx context.Context, in VerifyInput) (Result, error) {
	session, err := s.sessions.Get(ctx, in.SessionID)
	if err != nil {
		if errors.Is(err, otp.ErrNotFound) {
			return Result{}, ErrSessionNotFound
		}
		return Result{}, fmt.Errorf("load otp session: %w", err)
	}
	if session.Phone != in.Phone {
		return Result{}, ErrSessionNotFound
	}

	now := s.now()
	if err := stateError(session.State(now)); err != nil {
		return Result{}, err
	}

	if bcrypt.CompareHashAndPassword(session.CodeHash, []byte(in.Code)) != nil {
		_, ok, err := s.sessions.RecordFailedAttempt(ctx, session.ID)
		if err != nil {
			return Result{}, fmt.Errorf("record otp attempt: %w", err)
		}
		if !ok {
			return Result{}, s.sessionConflict(ctx, session.ID, now, ErrInvalidCode)
		}
		return Result{}, ErrInvalidCode
	}

	// Resolve the account before consuming the session so a missing profile
	// leaves the code usable for a retry with the profile attached.
	existing, err := s.users.FindByPhone(ctx, in.Phone)
	found := err == nil
	if err != nil && !errors.Is(err, identity.ErrNotFound) {
		return Result{}, fmt.Errorf("lookup phone: %w", err)
	}
	if !found {
		if in.Profile == nil || !in.Profile.Complete() {
			return Result{}, ErrProfileRequired
		}
		if in.Email != nil && *in.Email != "" {
			if _, err := s.users.FindByEmail(ctx, *in.Email); err == nil {
				return Result{}, ErrDuplicateEmail
			} else if !errors.Is(err, identity.ErrNotFound) {
				return Result{}, fmt.Errorf("lookup email: %w", err)
			}
		}
	}

	ok, err := s.sessions.MarkVerified(ctx, session.ID, now)
	if err != nil {
		return Result{}, fmt.Errorf("mark otp verified: %w", err)
	}
	if !ok {
		return Result{}, s.sessionConflict(ctx, session.ID, now, ErrSessionExpired)
	}

	var user identity.User
	if found {
		user, err = s.users.MarkVerified(ctx, existing.ID)
		if err != nil {
			err = fmt.Errorf("mark user verified: %w", err)
		}
	} else {
		// The email pre-check can lose to a concurrent registration.
		user, err = s.createOTPUser(ctx, in)
	}
	if err != nil {
		s.releaseSession(session.ID)
		return Result{}, err
	}

	s.publish(ctx, events.SubjectUserVerified, user)
	token, err := s.tokens.IssueForPhone(user.ID, in.Phone)
	if err != nil {
		return Result{}, err
	}
	return Result{User: user, Token: token}, nil
}

// VerifyToken reports the user id carried by a valid token. Any failure is
// reported as not ok without a reason.
func (s *Service) VerifyToken(token string) (int64, bool) {
	claims, err := s.tokens.Parse(token)
	if err != nil {
		return 0, false
	}
	return claims.UserID, true
}

// CurrentUser loads the account behind a verified token.
func (s *Service) CurrentUser(ctx context.Context, id int64) (identity.User, error) {
	user, err := s.users.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, identity.ErrNotFound) {
			return identity.User{}, ErrUserNotFound
		}
		return identity.User{}, fmt.Errorf("load user: %w", err)
	}
	return user, nil
}

func (s *Service) createOTPUser(ctx context.Context, in VerifyInput) (identity.User, error) {
	user := newUser(*in.Profile)
	user.Phone = lo.ToPtr(in.Phone)
	user.Email = lo.EmptyableToPtr(lo.FromPtr(in.Email))
	user.AuthType = identity.AuthTypeSMSOTP
	user.IsVerified = true

	created, err := s.createUser(ctx, user)
	if errors.Is(err, ErrDuplicatePhone) {
		// A concurrent verification for the same phone created the account first.
		existing, findErr := s.users.FindByPhone(ctx, in.Phone)
		if findErr != nil {
			return identity.User{}, fmt.Errorf("lookup phone: %w", findErr)
		}
		return s.users.MarkVerified(ctx, existing.ID)
	}
	if err != nil {
		return identity.User{}, err
	}
	s.publish(ctx, events.SubjectUserRegistered, created)
	return created, nil
}

func (s *Service) createUser(ctx context.Context, user identity.User) (identity.User, error) {
	created, err := s.users.Create(ctx, user)
	switch {
	case errors.Is(err, identity.ErrEmailTaken):
		return identity.User{}, ErrDuplicateEmail
	case errors.Is(err, identity.ErrPhoneTaken):
		return identity.User{}, ErrDuplicatePhone
	case err != nil:
		return identity.User{}, fmt.Errorf("create user: %w", err)
	}
	return created, nil
}

// releaseSession hands a consumed session back so the member can retry the
// same code after a failed sign-in.
func (s *Service) releaseSession(id int64) {
	ctx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
	defer cancel()
	if err := s.sessions.ReleaseVerified(ctx, id); err != nil {
		s.logger.Error("otp session release failed", slog.Int64("session_id", id), slog.Any("error", err))
	}
}

// sessionConflict re-reads a session after a lost compare-and-swap and reports
// the state another request moved it to.
func (s *Service) sessionConflict(ctx context.Context, id int64, now time.Time, fallback *Error) error {
	session, err := s.sessions.Get(ctx, id)
	if err != nil {
		if errors.Is(err, otp.ErrNotFound) {
			return ErrSessionNotFound
		}
		return fmt.Errorf("reload otp session: %w", err)
	}
	if err := stateError(session.State(now)); err != nil {
		return err
	}
	return fallback
}

func (s *Service) publish(ctx context.Context, subject string, user identity.User) {
	event := events.UserEvent{
		UserID:     user.ID,
		Email:      lo.FromPtr(user.Email),
		Phone:      lo.FromPtr(user.Phone),
		AuthType:   string(user.AuthType),
		OccurredAt: s.now().UTC(),
	}
	if err := s.events.Publish(ctx, subject, event); err != nil {
		s.logger.Warn("publish auth event failed", slog.String("subject", subject), slog.Any("error", err))
	}
}

func stateError(state otp.State) error {
	switch state {
	case otp.StateExpired:
		return ErrSessionExpired
	case otp.StateVerified:
		return ErrAlreadyVerified
	case otp.StateExhausted:
		return ErrTooManyAttempts
	default:
		return nil
	}
}

func newUser(p Profile) identity.User {
	gender := p.Gender
	return identity.User{
		FirstName:  p.FirstName,
		MiddleName: p.MiddleName,
		Name:       identity.DisplayName(p.FirstName, p.MiddleName),
		Address:    p.Address,
		District:   lo.ToPtr(p.District),
		State:      lo.ToPtr(p.State),
		GSTNumber:  p.GSTNumber,
		Gender:     &gender,
		Age:        p.Age,
	}
}
