package service

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"pics-backend/internal/apperror"
	"pics-backend/internal/attempt"
	"pics-backend/internal/audit"
	"pics-backend/internal/challenge"
	"pics-backend/internal/config"
	"pics-backend/internal/hashing"
	"pics-backend/internal/mailer"
	"pics-backend/internal/models"
	"pics-backend/internal/repository"
	"pics-backend/internal/repository/memory"
	"pics-backend/internal/token"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type sentOTP struct {
	To   string
	Code string
}

type sentCreds struct {
	To       string
	Email    string
	Password string
}

// fakeNotifier records everything it is asked to send.
type fakeNotifier struct {
	mu        sync.Mutex
	otps      []sentOTP
	creds     []sentCreds
	failOTP   bool
	failCreds bool
}

var _ mailer.Notifier = (*fakeNotifier)(nil)

func (n *fakeNotifier) SendOTP(ctx context.Context, to, code string, ttl time.Duration) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.failOTP {
		return errors.New("smtp unavailable")
	}
	n.otps = append(n.otps, sentOTP{To: to, Code: code})
	return nil
}

func (n *fakeNotifier) SendJailerCredentials(ctx context.Context, to, name, email, password string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.failCreds {
		return errors.New("smtp unavailable")
	}
	n.creds = append(n.creds, sentCreds{To: to, Email: email, Password: password})
	return nil
}

func (n *fakeNotifier) lastOTP(t *testing.T) sentOTP {
	t.Helper()
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.otps) == 0 {
		t.Fatal("no OTP was sent")
	}
	return n.otps[len(n.otps)-1]
}

func (n *fakeNotifier) otpCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.otps)
}

type fixture struct {
	svc      *AuthService
	clock    *fakeClock
	notifier *fakeNotifier
	repo     *memory.IdentityRepository
	tokens   *token.Service
}

var testAuthConfig = config.AuthConfig{
	OTPTTL:            5 * time.Minute,
	LockoutWindow:     15 * time.Minute,
	AttemptThreshold:  5,
	MinPasswordLength: 6,
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	clk := newFakeClock()
	notifier := &fakeNotifier{}
	repo := memory.NewIdentityRepository()
	hasher := hashing.NewHasher(bcrypt.MinCost)
	tokens := token.NewService(config.JWTConfig{
		AccessSecret:  "access-secret-for-tests",
		RefreshSecret: "refresh-secret-for-tests",
		AccessTTL:     8 * time.Hour,
		RefreshTTL:    7 * 24 * time.Hour,
	}, clk)

	svc := NewAuthService(
		challenge.NewMemoryStore(clk),
		attempt.NewMemoryTracker(clk, testAuthConfig.AttemptThreshold, testAuthConfig.LockoutWindow),
		repo,
		hasher,
		tokens,
		notifier,
		audit.NopPublisher{},
		clk,
		testAuthConfig,
	)

	f := &fixture{svc: svc, clock: clk, notifier: notifier, repo: repo, tokens: tokens}
	f.addIdentity(t, "admin@x.com", "password1", models.RoleAdmin, true)
	return f
}

func (f *fixture) addIdentity(t *testing.T, email, password, role string, active bool) {
	t.Helper()
	hasher := hashing.NewHasher(bcrypt.MinCost)
	hash, err := hasher.Hash(password)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	err = f.repo.Create(context.Background(), &models.Identity{
		Name:         "Test " + email,
		Email:        email,
		Role:         role,
		PasswordHash: hash,
		IsActive:     active,
	})
	if err != nil {
		t.Fatalf("create identity: %v", err)
	}
}

func wantStatus(t *testing.T, err error, status int) {
	t.Helper()
	appErr := apperror.From(err)
	if appErr == nil {
		t.Fatalf("error %v is not an AppError, want status %d", err, status)
	}
	if appErr.Code != status {
		t.Fatalf("status = %d (%v), want %d", appErr.Code, err, status)
	}
}

func TestLoginThenVerify(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	err := f.svc.Login(ctx, LoginInput{Email: "admin@x.com", Password: "password1", Role: models.RoleAdmin})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	otp := f.notifier.lastOTP(t)
	if otp.To != "admin@x.com" {
		t.Errorf("OTP sent to %q, want admin@x.com", otp.To)
	}

	user, pair, err := f.svc.VerifyLogin(ctx, "admin@x.com", otp.Code)
	if err != nil {
		t.Fatalf("VerifyLogin: %v", err)
	}
	if user.Email != "admin@x.com" || user.Role != models.RoleAdmin {
		t.Errorf("user = %+v", user)
	}
	if _, err := f.tokens.VerifyAccess(pair.AccessToken); err != nil {
		t.Errorf("minted access token does not verify: %v", err)
	}

	// The challenge was consumed; the same code is dead.
	_, _, err = f.svc.VerifyLogin(ctx, "admin@x.com", otp.Code)
	wantStatus(t, err, http.StatusBadRequest)
}

func TestLoginReissueInvalidatesPrior(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	in := LoginInput{Email: "admin@x.com", Password: "password1", Role: models.RoleAdmin}
	if err := f.svc.Login(ctx, in); err != nil {
		t.Fatalf("Login: %v", err)
	}
	first := f.notifier.lastOTP(t).Code

	if err := f.svc.Login(ctx, in); err != nil {
		t.Fatalf("second Login: %v", err)
	}
	second := f.notifier.lastOTP(t).Code

	if first != second {
		_, _, err := f.svc.VerifyLogin(ctx, "admin@x.com", first)
		wantStatus(t, err, http.StatusUnauthorized)
	}
	if _, _, err := f.svc.VerifyLogin(ctx, "admin@x.com", second); err != nil {
		t.Errorf("verify with current code = %v, want nil", err)
	}
}

func TestLoginRejections(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.addIdentity(t, "inactive@x.com", "password1", models.RoleJailer, false)

	cases := []struct {
		name   string
		in     LoginInput
		status int
	}{
		{"wrong password", LoginInput{Email: "admin@x.com", Password: "nope", Role: models.RoleAdmin}, http.StatusUnauthorized},
		{"unknown email", LoginInput{Email: "ghost@x.com", Password: "password1", Role: models.RoleAdmin}, http.StatusUnauthorized},
		{"role mismatch", LoginInput{Email: "admin@x.com", Password: "password1", Role: models.RoleJailer}, http.StatusUnauthorized},
		{"inactive account", LoginInput{Email: "inactive@x.com", Password: "password1", Role: models.RoleJailer}, http.StatusForbidden},
		{"missing fields", LoginInput{Email: "admin@x.com"}, http.StatusBadRequest},
		{"bad role", LoginInput{Email: "admin@x.com", Password: "password1", Role: "Root"}, http.StatusBadRequest},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			wantStatus(t, f.svc.Login(ctx, tc.in), tc.status)
		})
	}

	if f.notifier.otpCount() != 0 {
		t.Errorf("%d OTPs sent for rejected logins, want 0", f.notifier.otpCount())
	}
}

func TestLockoutEndToEnd(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	if err := f.svc.Login(ctx, LoginInput{Email: "admin@x.com", Password: "password1", Role: models.RoleAdmin}); err != nil {
		t.Fatalf("Login: %v", err)
	}
	otp := f.notifier.lastOTP(t)

	// Four wrong codes burn attempts but not the challenge.
	for i := 0; i < 4; i++ {
		_, _, err := f.svc.VerifyLogin(ctx, "admin@x.com", "000000")
		wantStatus(t, err, http.StatusUnauthorized)
	}

	// The fifth attempt engages the lockout.
	_, _, err := f.svc.VerifyLogin(ctx, "admin@x.com", "000001")
	wantStatus(t, err, http.StatusTooManyRequests)

	// The correct code is rejected too while the window is open.
	_, _, err = f.svc.VerifyLogin(ctx, "admin@x.com", otp.Code)
	wantStatus(t, err, http.StatusTooManyRequests)

	// After the window the challenge has long expired, but the attempt
	// budget is back.
	f.clock.Advance(16 * time.Minute)
	_, _, err = f.svc.VerifyLogin(ctx, "admin@x.com", otp.Code)
	wantStatus(t, err, http.StatusBadRequest)
}

func TestSuccessClearsAttempts(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	login := func() sentOTP {
		t.Helper()
		if err := f.svc.Login(ctx, LoginInput{Email: "admin@x.com", Password: "password1", Role: models.RoleAdmin}); err != nil {
			t.Fatalf("Login: %v", err)
		}
		return f.notifier.lastOTP(t)
	}

	otp := login()
	for i := 0; i < 3; i++ {
		f.svc.VerifyLogin(ctx, "admin@x.com", "000000")
	}
	if _, _, err := f.svc.VerifyLogin(ctx, "admin@x.com", otp.Code); err != nil {
		t.Fatalf("verify after 3 failures: %v", err)
	}

	// No lockout carries into the next challenge lifecycle: a fresh
	// challenge gets the full attempt budget again.
	otp = login()
	for i := 0; i < 4; i++ {
		_, _, err := f.svc.VerifyLogin(ctx, "admin@x.com", "000000")
		wantStatus(t, err, http.StatusUnauthorized)
	}
	if _, _, err := f.svc.VerifyLogin(ctx, "admin@x.com", otp.Code); err == nil {
		t.Fatal("fifth attempt should have engaged the lockout")
	}
}

func TestExpiredCodeClearsAttempts(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	if err := f.svc.Login(ctx, LoginInput{Email: "admin@x.com", Password: "password1", Role: models.RoleAdmin}); err != nil {
		t.Fatalf("Login: %v", err)
	}
	otp := f.notifier.lastOTP(t)

	for i := 0; i < 3; i++ {
		f.svc.VerifyLogin(ctx, "admin@x.com", "000000")
	}

	f.clock.Advance(6 * time.Minute)

	// A stale code reports expired and resets the counter; it does not
	// count against the user.
	_, _, err := f.svc.VerifyLogin(ctx, "admin@x.com", otp.Code)
	wantStatus(t, err, http.StatusBadRequest)

	if err := f.svc.Login(ctx, LoginInput{Email: "admin@x.com", Password: "password1", Role: models.RoleAdmin}); err != nil {
		t.Fatalf("Login: %v", err)
	}
	fresh := f.notifier.lastOTP(t)

	for i := 0; i < 4; i++ {
		_, _, err := f.svc.VerifyLogin(ctx, "admin@x.com", "000000")
		wantStatus(t, err, http.StatusUnauthorized)
	}
	_, _, err = f.svc.VerifyLogin(ctx, "admin@x.com", fresh.Code)
	wantStatus(t, err, http.StatusTooManyRequests)
}

func TestRefreshRotatesPair(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	if err := f.svc.Login(ctx, LoginInput{Email: "admin@x.com", Password: "password1", Role: models.RoleAdmin}); err != nil {
		t.Fatalf("Login: %v", err)
	}
	_, pair, err := f.svc.VerifyLogin(ctx, "admin@x.com", f.notifier.lastOTP(t).Code)
	if err != nil {
		t.Fatalf("VerifyLogin: %v", err)
	}

	user, rotated, err := f.svc.Refresh(ctx, pair.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if user.Email != "admin@x.com" {
		t.Errorf("refreshed user = %+v", user)
	}
	if rotated.AccessToken == pair.AccessToken {
		t.Error("refresh returned the same access token")
	}
	if rotated.RefreshToken == pair.RefreshToken {
		t.Error("refresh returned the same refresh token")
	}
}

func TestRefreshRejections(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, _, err := f.svc.Refresh(ctx, "")
	wantStatus(t, err, http.StatusUnauthorized)

	_, _, err = f.svc.Refresh(ctx, "garbage")
	wantStatus(t, err, http.StatusUnauthorized)

	// An access token must not pass as a refresh token.
	if err := f.svc.Login(ctx, LoginInput{Email: "admin@x.com", Password: "password1", Role: models.RoleAdmin}); err != nil {
		t.Fatalf("Login: %v", err)
	}
	_, pair, err := f.svc.VerifyLogin(ctx, "admin@x.com", f.notifier.lastOTP(t).Code)
	if err != nil {
		t.Fatalf("VerifyLogin: %v", err)
	}
	_, _, err = f.svc.Refresh(ctx, pair.AccessToken)
	wantStatus(t, err, http.StatusUnauthorized)
}

func TestCreateJailerFlow(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	admin := models.UserPayload{Email: "admin@x.com", Role: models.RoleAdmin}

	err := f.svc.CreateJailerSendOTP(ctx, admin, "Joe Guard", "joe@x.com")
	if err != nil {
		t.Fatalf("CreateJailerSendOTP: %v", err)
	}

	// Confirmation goes to the admin, never to the new jailer.
	otp := f.notifier.lastOTP(t)
	if otp.To != "admin@x.com" {
		t.Fatalf("OTP sent to %q, want the admin", otp.To)
	}

	jailer, notified, err := f.svc.CreateJailerVerify(ctx, admin, otp.Code)
	if err != nil {
		t.Fatalf("CreateJailerVerify: %v", err)
	}
	if !notified {
		t.Error("credentials mail reported as failed")
	}
	if jailer.Email != "joe@x.com" || jailer.Role != models.RoleJailer || !jailer.IsActive {
		t.Errorf("jailer = %+v", jailer)
	}

	f.notifier.mu.Lock()
	creds := f.notifier.creds
	f.notifier.mu.Unlock()
	if len(creds) != 1 || creds[0].To != "joe@x.com" {
		t.Fatalf("credentials mail = %+v, want one to joe@x.com", creds)
	}

	// The generated password actually works.
	if err := f.svc.Login(ctx, LoginInput{Email: "joe@x.com", Password: creds[0].Password, Role: models.RoleJailer}); err != nil {
		t.Errorf("login with generated password: %v", err)
	}
}

func TestCreateJailerDuplicateAtVerify(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.addIdentity(t, "taken@x.com", "password1", models.RoleJailer, true)
	admin := models.UserPayload{Email: "admin@x.com", Role: models.RoleAdmin}

	// The duplicate is not detected at send time.
	if err := f.svc.CreateJailerSendOTP(ctx, admin, "Dup Guard", "taken@x.com"); err != nil {
		t.Fatalf("CreateJailerSendOTP: %v", err)
	}
	otp := f.notifier.lastOTP(t)

	_, _, err := f.svc.CreateJailerVerify(ctx, admin, otp.Code)
	wantStatus(t, err, http.StatusConflict)

	// The existing identity was not touched.
	existing, err := f.repo.FindByEmail(ctx, "taken@x.com")
	if err != nil {
		t.Fatalf("FindByEmail: %v", err)
	}
	if existing.Name != "Test taken@x.com" {
		t.Errorf("existing identity was replaced: %+v", existing)
	}
}

func TestCreateJailerPartialSuccess(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	admin := models.UserPayload{Email: "admin@x.com", Role: models.RoleAdmin}

	if err := f.svc.CreateJailerSendOTP(ctx, admin, "Joe Guard", "joe@x.com"); err != nil {
		t.Fatalf("CreateJailerSendOTP: %v", err)
	}
	otp := f.notifier.lastOTP(t)

	f.notifier.mu.Lock()
	f.notifier.failCreds = true
	f.notifier.mu.Unlock()

	jailer, notified, err := f.svc.CreateJailerVerify(ctx, admin, otp.Code)
	if err != nil {
		t.Fatalf("CreateJailerVerify: %v", err)
	}
	if notified {
		t.Error("notified = true despite mail failure")
	}

	// The account exists even though the mail never went out.
	if _, err := f.repo.FindByEmail(ctx, jailer.Email); err != nil {
		t.Errorf("account missing after partial success: %v", err)
	}
}

func TestForgotPasswordEnumerationResistance(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	if err := f.svc.ForgotPasswordSendOTP(ctx, "admin@x.com"); err != nil {
		t.Fatalf("registered email: %v", err)
	}
	if err := f.svc.ForgotPasswordSendOTP(ctx, "ghost@x.com"); err != nil {
		t.Fatalf("unregistered email: %v", err)
	}

	// Only the registered address got a code, but both calls looked
	// identical to the caller.
	if f.notifier.otpCount() != 1 {
		t.Errorf("OTPs sent = %d, want 1", f.notifier.otpCount())
	}
}

func TestResetPassword(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	if err := f.svc.ForgotPasswordSendOTP(ctx, "admin@x.com"); err != nil {
		t.Fatalf("ForgotPasswordSendOTP: %v", err)
	}
	otp := f.notifier.lastOTP(t)

	// A policy violation is caught before the challenge is consumed.
	err := f.svc.ResetPassword(ctx, "admin@x.com", otp.Code, "tiny")
	wantStatus(t, err, http.StatusBadRequest)

	// The same code still works for a compliant retry.
	if err := f.svc.ResetPassword(ctx, "admin@x.com", otp.Code, "brand-new-password"); err != nil {
		t.Fatalf("ResetPassword retry: %v", err)
	}

	if err := f.svc.Login(ctx, LoginInput{Email: "admin@x.com", Password: "brand-new-password", Role: models.RoleAdmin}); err != nil {
		t.Errorf("login with new password: %v", err)
	}
	err = f.svc.Login(ctx, LoginInput{Email: "admin@x.com", Password: "password1", Role: models.RoleAdmin})
	wantStatus(t, err, http.StatusUnauthorized)
}

func TestChallengeKeysDoNotCollideAcrossFlows(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	if err := f.svc.Login(ctx, LoginInput{Email: "admin@x.com", Password: "password1", Role: models.RoleAdmin}); err != nil {
		t.Fatalf("Login: %v", err)
	}
	loginOTP := f.notifier.lastOTP(t).Code

	if err := f.svc.ForgotPasswordSendOTP(ctx, "admin@x.com"); err != nil {
		t.Fatalf("ForgotPasswordSendOTP: %v", err)
	}
	resetOTP := f.notifier.lastOTP(t).Code

	// The reset code never unlocks a login, regardless of digits.
	if loginOTP != resetOTP {
		_, _, err := f.svc.VerifyLogin(ctx, "admin@x.com", resetOTP)
		wantStatus(t, err, http.StatusUnauthorized)
	}
	// The login challenge is still intact.
	if _, _, err := f.svc.VerifyLogin(ctx, "admin@x.com", loginOTP); err != nil {
		t.Errorf("login verify after reset issue: %v", err)
	}
}

var _ repository.CredentialRepository = (*memory.IdentityRepository)(nil)
