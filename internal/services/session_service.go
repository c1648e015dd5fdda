package services

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	domain "github.com/optima-bank/loyalty/internal/domain"
	"github.com/optima-bank/loyalty/internal/identity"
	"github.com/optima-bank/loyalty/internal/platform/observability"
	"github.com/optima-bank/loyalty/internal/repositories"
)

// IdentityClient is the slice of the identity provider API the session
// service depends on.
type IdentityClient interface {
	SignInWithPassword(ctx context.Context, email, password string) (identity.TokenPair, error)
	SignUp(ctx context.Context, email, password string, metadata map[string]any) (identity.User, error)
	SignOut(ctx context.Context, accessToken string) error
	SendPasswordReset(ctx context.Context, email, redirectTo string) error
	GetUser(ctx context.Context, accessToken string) (identity.User, error)
}

// AuthResult reports a completed authentication operation. Redirect names
// the route the client should navigate to next; the session event, when one
// applies, is always published before the result is returned.
type AuthResult struct {
	Session  domain.Session
	Tokens   identity.TokenPair
	Redirect string
}

// SessionService implements sign-in, sign-up, sign-out, password recovery
// and session resolution over the identity provider and the profile store.
type SessionService interface {
	SignIn(ctx context.Context, email, password string) (AuthResult, error)
	SignUp(ctx context.Context, email, password, fullName string) (AuthResult, error)
	SignOut(ctx context.Context, accessToken, cartKey string) (AuthResult, error)
	ResetPassword(ctx context.Context, email string) (AuthResult, error)
	Resolve(ctx context.Context, accessToken string) (domain.Session, error)
	Subscribe(ctx context.Context) (<-chan domain.SessionEvent, func())
}

// SessionServiceDeps wires the dependencies required by NewSessionService.
type SessionServiceDeps struct {
	Identity       IdentityClient
	Profiles       repositories.ProfileRepository
	Notifier       Notifier
	StartingPoints int64
	Tier           string
	HomeRoute      string
	ResetRedirect  string
	Clock          func() time.Time
	Logger         func(ctx context.Context, event string, fields map[string]any)
}

var (
	// ErrSessionInvalidInput indicates malformed credentials or fields.
	ErrSessionInvalidInput = errors.New("session: invalid input")
	// ErrSessionInvalidCredentials indicates the provider rejected the credentials.
	ErrSessionInvalidCredentials = errors.New("session: invalid credentials")
	// ErrSessionEmailTaken indicates the email is already registered.
	ErrSessionEmailTaken = errors.New("session: email already registered")
	// ErrSessionUnauthenticated indicates no valid session is attached.
	ErrSessionUnauthenticated = errors.New("session: unauthenticated")
	// ErrSessionUnavailable indicates the identity provider or profile store failed.
	ErrSessionUnavailable = errors.New("session: unavailable")

	errSessionIdentityRequired = errors.New("session service: identity dependency is required")
	errSessionProfilesRequired = errors.New("session service: profiles dependency is required")
	errSessionNotifierRequired = errors.New("session service: notifier dependency is required")
	errSessionPointsInvalid    = errors.New("session service: starting points must not be negative")
)

const (
	signInRoute        = "signin"
	defaultHomeRoute   = "dashboard"
	defaultProfileName = "User"
	minPasswordLength  = 8
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

type sessionService struct {
	identity       IdentityClient
	profiles       repositories.ProfileRepository
	notifier       Notifier
	startingPoints int64
	tier           string
	homeRoute      string
	resetRedirect  string
	now            func() time.Time
	log            func(ctx context.Context, event string, fields map[string]any)

	mu          sync.Mutex
	subscribers map[int]chan domain.SessionEvent
	nextSub     int
}

// NewSessionService constructs the session and authentication service.
func NewSessionService(deps SessionServiceDeps) (SessionService, error) {
	if deps.Identity == nil {
		return nil, errSessionIdentityRequired
	}
	if deps.Profiles == nil {
		return nil, errSessionProfilesRequired
	}
	if deps.Notifier == nil {
		return nil, errSessionNotifierRequired
	}
	if deps.StartingPoints < 0 {
		return nil, errSessionPointsInvalid
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	homeRoute := strings.TrimSpace(deps.HomeRoute)
	if homeRoute == "" {
		homeRoute = defaultHomeRoute
	}
	tier := strings.TrimSpace(deps.Tier)
	return &sessionService{
		identity:       deps.Identity,
		profiles:       deps.Profiles,
		notifier:       deps.Notifier,
		startingPoints: deps.StartingPoints,
		tier:           tier,
		homeRoute:      homeRoute,
		resetRedirect:  strings.TrimSpace(deps.ResetRedirect),
		now:            func() time.Time { return clock().UTC() },
		log:            deps.Logger,
		subscribers:    make(map[int]chan domain.SessionEvent),
	}, nil
}

func (s *sessionService) SignIn(ctx context.Context, email, password string) (AuthResult, error) {
	if s == nil {
		return AuthResult{}, ErrSessionUnavailable
	}
	email = strings.TrimSpace(strings.ToLower(email))
	if err := validateEmail(email); err != nil {
		return AuthResult{}, err
	}
	if err := validatePassword(password); err != nil {
		return AuthResult{}, err
	}

	tokens, err := s.identity.SignInWithPassword(ctx, email, password)
	if err != nil {
		translated := s.translateIdentityError(ctx, err)
		s.notifyAuthFailure(ctx, translated)
		return AuthResult{}, translated
	}

	session, err := s.buildSession(ctx, tokens.User)
	if err != nil {
		return AuthResult{}, err
	}

	s.publish(domain.SessionEvent{
		Kind:       domain.SessionSignedIn,
		UserID:     session.User.ID,
		OccurredAt: s.now(),
	})
	s.notifier.Publish(ctx, domain.SeveritySuccess, "Signed in successfully")
	s.logEvent(ctx, "session.signed_in", map[string]any{"user_id": session.User.ID})

	return AuthResult{Session: session, Tokens: tokens, Redirect: s.homeRoute}, nil
}

func (s *sessionService) SignUp(ctx context.Context, email, password, fullName string) (AuthResult, error) {
	if s == nil {
		return AuthResult{}, ErrSessionUnavailable
	}
	email = strings.TrimSpace(strings.ToLower(email))
	fullName = strings.TrimSpace(fullName)
	if err := validateEmail(email); err != nil {
		return AuthResult{}, err
	}
	if err := validatePassword(password); err != nil {
		return AuthResult{}, err
	}
	if fullName == "" {
		return AuthResult{}, fmt.Errorf("%w: full name is required", ErrSessionInvalidInput)
	}

	user, err := s.identity.SignUp(ctx, email, password, map[string]any{"full_name": fullName})
	if err != nil {
		translated := s.translateIdentityError(ctx, err)
		s.notifyAuthFailure(ctx, translated)
		return AuthResult{}, translated
	}

	s.notifier.Publish(ctx, domain.SeveritySuccess, "Account created, please sign in")
	s.logEvent(ctx, "session.signed_up", map[string]any{"user_id": user.ID})

	return AuthResult{Redirect: signInRoute}, nil
}

// SignOut tears down the session. Provider failures are logged and do not
// block the local teardown. The signed-out event carries the cart key so
// subscribers can clear the durable snapshot.
func (s *sessionService) SignOut(ctx context.Context, accessToken, cartKey string) (AuthResult, error) {
	if s == nil {
		return AuthResult{}, ErrSessionUnavailable
	}
	accessToken = strings.TrimSpace(accessToken)
	if accessToken == "" {
		return AuthResult{}, ErrSessionUnauthenticated
	}

	var userID string
	if user, err := s.identity.GetUser(ctx, accessToken); err == nil {
		userID = user.ID
	}
	if err := s.identity.SignOut(ctx, accessToken); err != nil {
		s.logEvent(ctx, "session.signout_provider_failed", map[string]any{"error": err.Error()})
	}

	cartKey = strings.TrimSpace(cartKey)
	if cartKey == "" {
		cartKey = userID
	}

	s.publish(domain.SessionEvent{
		Kind:       domain.SessionSignedOut,
		UserID:     userID,
		CartKey:    cartKey,
		OccurredAt: s.now(),
	})
	s.notifier.Publish(ctx, domain.SeverityInfo, "Signed out")
	s.logEvent(ctx, "session.signed_out", map[string]any{"user_id": userID})

	return AuthResult{Redirect: signInRoute}, nil
}

func (s *sessionService) ResetPassword(ctx context.Context, email string) (AuthResult, error) {
	if s == nil {
		return AuthResult{}, ErrSessionUnavailable
	}
	email = strings.TrimSpace(strings.ToLower(email))
	if err := validateEmail(email); err != nil {
		return AuthResult{}, err
	}

	if err := s.identity.SendPasswordReset(ctx, email, s.resetRedirect); err != nil {
		translated := s.translateIdentityError(ctx, err)
		s.notifyAuthFailure(ctx, translated)
		return AuthResult{}, translated
	}

	s.notifier.Publish(ctx, domain.SeveritySuccess, "Password reset email sent")
	s.logEvent(ctx, "session.reset_requested", map[string]any{
		"email": observability.RedactEmail(email),
	})

	return AuthResult{Redirect: signInRoute}, nil
}

// Resolve loads the session behind an access token, creating the loyalty
// profile on first sight.
func (s *sessionService) Resolve(ctx context.Context, accessToken string) (domain.Session, error) {
	if s == nil {
		return domain.Session{}, ErrSessionUnavailable
	}
	accessToken = strings.TrimSpace(accessToken)
	if accessToken == "" {
		return domain.Session{}, ErrSessionUnauthenticated
	}

	user, err := s.identity.GetUser(ctx, accessToken)
	if err != nil {
		return domain.Session{}, s.translateIdentityError(ctx, err)
	}
	return s.buildSession(ctx, user)
}

func (s *sessionService) Subscribe(_ context.Context) (<-chan domain.SessionEvent, func()) {
	ch := make(chan domain.SessionEvent, subscriberBuffer)

	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subscribers[id] = ch
	s.mu.Unlock()

	cancel := func() {
		s.mu.Lock()
		if _, ok := s.subscribers[id]; ok {
			delete(s.subscribers, id)
			close(ch)
		}
		s.mu.Unlock()
	}
	return ch, cancel
}

// buildSession assembles the session behind a verified provider user. A
// profile store failure is logged and leaves the session authenticated
// without a profile; it never fails the authentication itself.
func (s *sessionService) buildSession(ctx context.Context, user identity.User) (domain.Session, error) {
	if strings.TrimSpace(user.ID) == "" {
		return domain.Session{}, fmt.Errorf("%w: provider returned no user id", ErrSessionUnavailable)
	}
	session := domain.Session{
		User: &domain.User{
			ID:        user.ID,
			Email:     user.Email,
			FullName:  user.FullName(),
			CreatedAt: user.CreatedAt,
		},
	}
	profile, err := s.ensureProfile(ctx, user)
	if err != nil {
		s.logEvent(ctx, "session.profile_unavailable", map[string]any{
			"user_id": user.ID,
			"error":   err.Error(),
		})
		return session, nil
	}
	session.Profile = &profile
	return session, nil
}

// ensureProfile returns the loyalty profile for the user, creating it with
// the configured starting balance when absent. A concurrent create is
// resolved by re-reading.
func (s *sessionService) ensureProfile(ctx context.Context, user identity.User) (domain.UserProfile, error) {
	profile, err := s.profiles.FindByUserID(ctx, user.ID)
	if err == nil {
		return profile, nil
	}
	if !isRepoNotFound(err) {
		return domain.UserProfile{}, s.translateRepoError(err)
	}

	fullName := user.FullName()
	if fullName == "" {
		fullName = defaultProfileName
	}
	created, err := s.profiles.Insert(ctx, domain.UserProfile{
		UserID:   user.ID,
		Email:    user.Email,
		FullName: fullName,
		Points:   s.startingPoints,
		Tier:     s.tier,
	})
	if err == nil {
		s.logEvent(ctx, "session.profile_created", map[string]any{
			"user_id": user.ID,
			"points":  s.startingPoints,
		})
		return created, nil
	}
	if isRepoConflict(err) {
		profile, findErr := s.profiles.FindByUserID(ctx, user.ID)
		if findErr == nil {
			return profile, nil
		}
		return domain.UserProfile{}, s.translateRepoError(findErr)
	}
	return domain.UserProfile{}, s.translateRepoError(err)
}

func (s *sessionService) publish(event domain.SessionEvent) {
	s.mu.Lock()
	channels := make([]chan domain.SessionEvent, 0, len(s.subscribers))
	for _, ch := range s.subscribers {
		channels = append(channels, ch)
	}
	s.mu.Unlock()

	for _, ch := range channels {
		select {
		case ch <- event:
		default:
		}
	}
}

func (s *sessionService) translateIdentityError(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if errors.Is(err, identity.ErrUnavailable) {
		return fmt.Errorf("%w: %v", ErrSessionUnavailable, err)
	}
	var apiErr *identity.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Status == 401 || apiErr.Code == "invalid_credentials" || apiErr.Code == "invalid_grant":
			return fmt.Errorf("%w: %v", ErrSessionInvalidCredentials, err)
		case apiErr.Status == 422 || apiErr.Code == "user_already_exists" || apiErr.Code == "email_exists":
			return fmt.Errorf("%w: %v", ErrSessionEmailTaken, err)
		case apiErr.Status >= 400 && apiErr.Status < 500:
			return fmt.Errorf("%w: %v", ErrSessionInvalidInput, err)
		}
	}
	s.logEvent(ctx, "session.identity_error", map[string]any{"error": err.Error()})
	return fmt.Errorf("%w: %v", ErrSessionUnavailable, err)
}

// notifyAuthFailure surfaces a failed credential operation to the user. Every
// failure path carries a notification, mirroring the success paths.
func (s *sessionService) notifyAuthFailure(ctx context.Context, err error) {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return
	}
	message := "Something went wrong, please try again"
	switch {
	case errors.Is(err, ErrSessionInvalidCredentials):
		message = "Email or password is incorrect"
	case errors.Is(err, ErrSessionEmailTaken):
		message = "An account with this email already exists"
	case errors.Is(err, ErrSessionInvalidInput):
		message = "Please check the details you entered"
	case errors.Is(err, ErrSessionUnavailable):
		message = "Service is temporarily unavailable, please try again"
	}
	s.notifier.Publish(ctx, domain.SeverityError, message)
}

func (s *sessionService) translateRepoError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrSessionUnavailable, err)
}

func (s *sessionService) logEvent(ctx context.Context, event string, fields map[string]any) {
	if s.log == nil {
		return
	}
	s.log(ctx, event, fields)
}

func validateEmail(email string) error {
	if email == "" {
		return fmt.Errorf("%w: email is required", ErrSessionInvalidInput)
	}
	if !emailPattern.MatchString(email) {
		return fmt.Errorf("%w: email is malformed", ErrSessionInvalidInput)
	}
	return nil
}

func validatePassword(password string) error {
	if len(password) < minPasswordLength {
		return fmt.Errorf("%w: password must be at least %d characters", ErrSessionInvalidInput, minPasswordLength)
	}
	return nil
}

func isRepoNotFound(err error) bool {
	var repoErr repositories.RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsNotFound()
}

func isRepoConflict(err error) bool {
	var repoErr repositories.RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsConflict()
}
