// Package service implements the three authentication flows (login,
// jailer provisioning, password reset) on top of the challenge store,
// the attempt tracker, the credential repository, and the token service.
// All three flows share one shape: start issues a challenge and notifies
// someone, verify consumes it under the attempt budget and runs a flow
// specific side effect.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"pics-backend/internal/apperror"
	"pics-backend/internal/attempt"
	"pics-backend/internal/audit"
	"pics-backend/internal/challenge"
	"pics-backend/internal/clock"
	"pics-backend/internal/config"
	"pics-backend/internal/hashing"
	"pics-backend/internal/mailer"
	"pics-backend/internal/models"
	"pics-backend/internal/repository"
	"pics-backend/internal/token"
	"pics-backend/internal/util"
)

// invalidCredentialsMsg is the uniform rejection for every credential
// failure. Password wrong, account missing, role mismatch and OTP wrong
// all read the same from outside.
const invalidCredentialsMsg = "invalid credentials"

type AuthService struct {
	challenges challenge.Store
	attempts   attempt.Tracker
	identities repository.CredentialRepository
	hasher     *hashing.Hasher
	tokens     *token.Service
	notifier   mailer.Notifier
	audit      audit.Publisher
	clock      clock.Clock
	config     config.AuthConfig
}

func NewAuthService(
	challenges challenge.Store,
	attempts attempt.Tracker,
	identities repository.CredentialRepository,
	hasher *hashing.Hasher,
	tokens *token.Service,
	notifier mailer.Notifier,
	auditor audit.Publisher,
	clk clock.Clock,
	cfg config.AuthConfig,
) *AuthService {
	return &AuthService{
		challenges: challenges,
		attempts:   attempts,
		identities: identities,
		hasher:     hasher,
		tokens:     tokens,
		notifier:   notifier,
		audit:      auditor,
		clock:      clk,
		config:     cfg,
	}
}

// --- Login flow ---

type LoginInput struct {
	Email    string
	Password string
	Role     string
}

// Login checks the password and, on success, issues a login challenge
// and mails the code. The caller is not authenticated until VerifyLogin.
func (s *AuthService) Login(ctx context.Context, in LoginInput) error {
	email := normalizeEmail(in.Email)
	if email == "" || in.Password == "" || in.Role == "" {
		return apperror.NewInvalidInput("email, password and role are required")
	}
	if !models.ValidRole(in.Role) {
		return apperror.NewInvalidInput("unknown role")
	}

	identity, err := s.identities.FindByEmailRole(ctx, email, in.Role)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.publish(ctx, models.EventLoginFailed, email, in.Role, "unknown identity")
			return apperror.NewUnauthenticated(invalidCredentialsMsg)
		}
		return apperror.NewUnavailable("could not verify credentials", err)
	}

	if err := s.hasher.Compare(identity.PasswordHash, in.Password); err != nil {
		if errors.Is(err, hashing.ErrPasswordMismatch) {
			s.publish(ctx, models.EventLoginFailed, email, in.Role, "password mismatch")
			return apperror.NewUnauthenticated(invalidCredentialsMsg)
		}
		return apperror.NewUnavailable("could not verify credentials", err)
	}

	if !identity.IsActive {
		s.publish(ctx, models.EventLoginFailed, email, in.Role, "inactive account")
		return apperror.NewForbidden("account is deactivated")
	}

	payload := models.ChallengePayload{Role: identity.Role}
	return s.beginChallenge(ctx, challenge.KeyPrefixLogin+email, email, payload)
}

// VerifyLogin consumes the login challenge and mints the session pair.
func (s *AuthService) VerifyLogin(ctx context.Context, email, otp string) (*models.UserPayload, *token.Pair, error) {
	email = normalizeEmail(email)
	if email == "" || otp == "" {
		return nil, nil, apperror.NewInvalidInput("email and otp are required")
	}

	ch, err := s.verifyChallenge(ctx, challenge.KeyPrefixLogin+email, email, otp)
	if err != nil {
		return nil, nil, err
	}

	identity, err := s.identities.FindByEmailRole(ctx, email, ch.Payload.Role)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			// Account vanished between start and verify.
			return nil, nil, apperror.NewUnauthenticated(invalidCredentialsMsg)
		}
		return nil, nil, apperror.NewUnavailable("could not load identity", err)
	}

	user := models.UserPayload{Email: identity.Email, Role: identity.Role}
	pair, err := s.tokens.IssuePair(user)
	if err != nil {
		return nil, nil, apperror.NewUnavailable("could not issue session", err)
	}

	if err := s.identities.UpdateLastLogin(ctx, email, s.clock.Now().UTC()); err != nil {
		util.Warn("failed to record last login",
			util.String("email", email),
			util.ErrorField(err))
	}

	s.publish(ctx, models.EventLoginSucceeded, email, identity.Role, "")
	return &user, pair, nil
}

// --- Session refresh ---

// Refresh validates a refresh token and rotates the whole pair. The
// handler clears both cookies when this returns Unauthenticated.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*models.UserPayload, *token.Pair, error) {
	if refreshToken == "" {
		return nil, nil, apperror.NewUnauthenticated("missing refresh token")
	}

	claims, err := s.tokens.VerifyRefresh(refreshToken)
	if err != nil {
		s.publish(ctx, models.EventRefreshRejected, "", "", err.Error())
		return nil, nil, apperror.NewUnauthenticated("invalid refresh token")
	}

	user := models.UserPayload{Email: claims.Email, Role: claims.Role}
	pair, err := s.tokens.IssuePair(user)
	if err != nil {
		return nil, nil, apperror.NewUnavailable("could not issue session", err)
	}

	s.publish(ctx, models.EventTokenRefreshed, claims.Email, claims.Role, "")
	return &user, pair, nil
}

// --- Jailer provisioning flow ---

// CreateJailerSendOTP issues a provisioning challenge keyed by the
// authenticated admin's own email and mails the code to the admin. The
// out-of-band confirmation proves the admin, not someone riding a stolen
// session, approves the new account. Whether jailerEmail is already
// registered is deliberately not checked here; the duplicate check runs
// at verify time so this endpoint leaks nothing.
func (s *AuthService) CreateJailerSendOTP(ctx context.Context, admin models.UserPayload, jailerName, jailerEmail string) error {
	jailerName = strings.TrimSpace(jailerName)
	jailerEmail = normalizeEmail(jailerEmail)
	if jailerName == "" || jailerEmail == "" {
		return apperror.NewInvalidInput("jailerName and jailerEmail are required")
	}
	if !strings.Contains(jailerEmail, "@") {
		return apperror.NewInvalidInput("jailerEmail is not a valid email address")
	}

	payload := models.ChallengePayload{
		Role:        models.RoleJailer,
		JailerName:  jailerName,
		JailerEmail: jailerEmail,
	}
	return s.beginChallenge(ctx, challenge.KeyPrefixJailer+admin.Email, admin.Email, payload)
}

// CreateJailerVerify consumes the provisioning challenge, creates the
// jailer account with a generated password, and mails the credentials to
// the new jailer. Returns the created identity and whether the
// credential mail went out; a failed mail does not roll the account back.
func (s *AuthService) CreateJailerVerify(ctx context.Context, admin models.UserPayload, otp string) (*models.Identity, bool, error) {
	if otp == "" {
		return nil, false, apperror.NewInvalidInput("otp is required")
	}

	ch, err := s.verifyChallenge(ctx, challenge.KeyPrefixJailer+admin.Email, admin.Email, otp)
	if err != nil {
		return nil, false, err
	}

	password, err := hashing.GenerateRandomPassword()
	if err != nil {
		return nil, false, apperror.NewUnavailable("could not provision account", err)
	}
	passwordHash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, false, apperror.NewUnavailable("could not provision account", err)
	}

	identity := &models.Identity{
		Name:         ch.Payload.JailerName,
		Email:        ch.Payload.JailerEmail,
		Role:         models.RoleJailer,
		PasswordHash: passwordHash,
		IsActive:     true,
	}

	if err := s.identities.Create(ctx, identity); err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			return nil, false, apperror.NewConflict("an account with that email already exists")
		}
		return nil, false, apperror.NewUnavailable("could not provision account", err)
	}

	s.publish(ctx, models.EventJailerCreated, identity.Email, identity.Role,
		fmt.Sprintf("provisioned by %s", admin.Email))

	notified := true
	if err := s.notifier.SendJailerCredentials(ctx, identity.Email, identity.Name, identity.Email, password); err != nil {
		// Partial success. The account exists; only the mail failed.
		notified = false
		util.Error("failed to send jailer credentials",
			util.String("email", identity.Email),
			util.ErrorField(err))
	}

	return identity, notified, nil
}

// --- Password reset flow ---

// ForgotPasswordSendOTP issues a reset challenge when the email belongs
// to a registered identity. The caller always gets the same answer
// either way, so the endpoint cannot be used to enumerate accounts.
func (s *AuthService) ForgotPasswordSendOTP(ctx context.Context, email string) error {
	email = normalizeEmail(email)
	if email == "" {
		return apperror.NewInvalidInput("email is required")
	}

	identity, err := s.identities.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			// Same outcome as the registered case, minus the side effects.
			return nil
		}
		return apperror.NewUnavailable("could not process request", err)
	}

	payload := models.ChallengePayload{Role: identity.Role}
	if err := s.beginChallenge(ctx, challenge.KeyPrefixReset+email, email, payload); err != nil {
		// A notifier outage must not reveal that the account exists.
		util.Error("failed to issue reset challenge",
			util.String("email", email),
			util.ErrorField(err))
	}
	return nil
}

// ResetPassword consumes the reset challenge and overwrites the stored
// password hash. The new password is validated before the challenge is
// touched, so a policy rejection leaves the code usable for a retry.
func (s *AuthService) ResetPassword(ctx context.Context, email, otp, newPassword string) error {
	email = normalizeEmail(email)
	if email == "" || otp == "" || newPassword == "" {
		return apperror.NewInvalidInput("email, otp and newPassword are required")
	}
	if len(newPassword) < s.config.MinPasswordLength {
		return apperror.NewInvalidInput(
			fmt.Sprintf("password must be at least %d characters", s.config.MinPasswordLength))
	}

	if _, err := s.verifyChallenge(ctx, challenge.KeyPrefixReset+email, email, otp); err != nil {
		return err
	}

	passwordHash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return apperror.NewUnavailable("could not update password", err)
	}
	if err := s.identities.UpdatePassword(ctx, email, passwordHash); err != nil {
		return apperror.NewUnavailable("could not update password", err)
	}

	s.publish(ctx, models.EventPasswordResetDone, email, "", "")
	return nil
}

// --- Shared challenge plumbing ---

// beginChallenge issues (or reissues) the challenge for key and mails the
// code to recipient. A notifier failure leaves the challenge live; the
// client retries the start step to trigger a resend.
func (s *AuthService) beginChallenge(ctx context.Context, key, recipient string, payload models.ChallengePayload) error {
	secret, err := s.challenges.Issue(ctx, key, payload, s.config.OTPTTL)
	if err != nil {
		return apperror.NewUnavailable("could not issue verification code", err)
	}

	if err := s.notifier.SendOTP(ctx, recipient, secret, s.config.OTPTTL); err != nil {
		return apperror.NewUnavailable("could not send verification code", err)
	}

	s.publish(ctx, models.EventOTPIssued, recipient, payload.Role, "")
	return nil
}

// verifyChallenge runs the attempt-guarded consume sequence shared by
// all three flows. Every call burns one attempt except when the code
// turns out to be expired, which clears the record instead: a stale code
// should not count against whoever requests a fresh one.
func (s *AuthService) verifyChallenge(ctx context.Context, key, email, secret string) (*models.Challenge, error) {
	res, err := s.attempts.Consume(ctx, key)
	if err != nil {
		return nil, apperror.NewUnavailable("could not verify code", err)
	}
	if !res.Allowed {
		s.publish(ctx, models.EventLockoutEngaged, email, "", "")
		return nil, apperror.NewRateLimited("too many attempts, try again later")
	}

	ch, err := s.challenges.Consume(ctx, key, secret)
	switch {
	case err == nil:
		if err := s.attempts.Clear(ctx, key); err != nil {
			util.Warn("failed to clear attempt record",
				util.String("key", key),
				util.ErrorField(err))
		}
		return ch, nil

	case errors.Is(err, challenge.ErrExpired):
		if err := s.attempts.Clear(ctx, key); err != nil {
			util.Warn("failed to clear attempt record",
				util.String("key", key),
				util.ErrorField(err))
		}
		s.publish(ctx, models.EventOTPRejected, email, "", "expired")
		return nil, apperror.NewInvalidInput("verification code expired, request a new one")

	case errors.Is(err, challenge.ErrNotFound):
		s.publish(ctx, models.EventOTPRejected, email, "", "no challenge")
		return nil, apperror.NewInvalidInput("no verification code pending")

	case errors.Is(err, challenge.ErrMismatch):
		s.publish(ctx, models.EventOTPRejected, email, "", "mismatch")
		return nil, apperror.NewUnauthenticated(invalidCredentialsMsg)

	default:
		return nil, apperror.NewUnavailable("could not verify code", err)
	}
}

func (s *AuthService) publish(ctx context.Context, eventType, email, role, details string) {
	s.audit.Publish(ctx, models.SecurityEvent{
		EventType: eventType,
		EventTime: s.clock.Now().UTC(),
		Email:     email,
		Role:      role,
		Details:   details,
	})
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
