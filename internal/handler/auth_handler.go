package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"pics-backend/internal/models"
	"pics-backend/internal/service"
	"pics-backend/internal/token"
)

type AuthHandler struct {
	auth    *service.AuthService
	tokens  *token.Service
	cookies cookieWriter
}

func NewAuthHandler(auth *service.AuthService, tokens *token.Service, secureCookies bool) *AuthHandler {
	return &AuthHandler{
		auth:    auth,
		tokens:  tokens,
		cookies: newCookieWriter(secureCookies),
	}
}

// RegisterRoutes mounts the auth endpoints. The jailer-provisioning pair
// sits behind the session gate and requires the Admin role.
func (h *AuthHandler) RegisterRoutes(r chi.Router) {
	r.Post("/login", h.Login)
	r.Post("/verify-otp", h.VerifyOTP)
	r.Post("/refresh", h.Refresh)
	r.Post("/logout", h.Logout)
	r.Post("/forgot-password/send-otp", h.ForgotPasswordSendOTP)
	r.Post("/forgot-password/reset", h.ResetPassword)

	r.Group(func(pr chi.Router) {
		pr.Use(Authenticate(h.tokens))
		pr.Get("/me", h.Me)

		pr.Group(func(ar chi.Router) {
			ar.Use(RequireRole(models.RoleAdmin))
			ar.Post("/create-jailer/send-otp", h.CreateJailerSendOTP)
			ar.Post("/create-jailer/verify-otp", h.CreateJailerVerifyOTP)
		})
	})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, err)
		return
	}

	err := h.auth.Login(r.Context(), service.LoginInput{
		Email:    req.Email,
		Password: req.Password,
		Role:     req.Role,
	})
	if err != nil {
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"message": "verification code sent",
		"otpSent": true,
	})
}

type verifyOTPRequest struct {
	Email string `json:"email"`
	OTP   string `json:"otp"`
}

func (h *AuthHandler) VerifyOTP(w http.ResponseWriter, r *http.Request) {
	var req verifyOTPRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, err)
		return
	}

	user, pair, err := h.auth.VerifyLogin(r.Context(), req.Email, req.OTP)
	if err != nil {
		respondError(w, err)
		return
	}

	h.cookies.setPair(w, pair, h.tokens)
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"message": "login successful",
		"user":    user,
	})
}

func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var refreshToken string
	if cookie, err := r.Cookie(refreshCookieName); err == nil {
		refreshToken = cookie.Value
	}

	user, pair, err := h.auth.Refresh(r.Context(), refreshToken)
	if err != nil {
		// A refresh that fails for any reason must leave the browser
		// with no credentials to retry with.
		h.cookies.clearPair(w)
		respondError(w, err)
		return
	}

	h.cookies.setPair(w, pair, h.tokens)
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"message": "session refreshed",
		"user":    user,
	})
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	h.cookies.clearPair(w)
	respondJSON(w, http.StatusOK, map[string]string{"message": "logged out"})
}

func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	user, ok := CurrentUser(r.Context())
	if !ok {
		respondJSON(w, http.StatusUnauthorized, map[string]string{"message": "authentication required"})
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"user": user})
}

type createJailerRequest struct {
	JailerName  string `json:"jailerName"`
	JailerEmail string `json:"jailerEmail"`
}

func (h *AuthHandler) CreateJailerSendOTP(w http.ResponseWriter, r *http.Request) {
	admin, ok := CurrentUser(r.Context())
	if !ok {
		respondJSON(w, http.StatusUnauthorized, map[string]string{"message": "authentication required"})
		return
	}

	var req createJailerRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, err)
		return
	}

	if err := h.auth.CreateJailerSendOTP(r.Context(), admin, req.JailerName, req.JailerEmail); err != nil {
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"message": "verification code sent",
		"otpSent": true,
	})
}

type createJailerVerifyRequest struct {
	OTP string `json:"otp"`
}

func (h *AuthHandler) CreateJailerVerifyOTP(w http.ResponseWriter, r *http.Request) {
	admin, ok := CurrentUser(r.Context())
	if !ok {
		respondJSON(w, http.StatusUnauthorized, map[string]string{"message": "authentication required"})
		return
	}

	var req createJailerVerifyRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, err)
		return
	}

	jailer, notified, err := h.auth.CreateJailerVerify(r.Context(), admin, req.OTP)
	if err != nil {
		respondError(w, err)
		return
	}

	message := "jailer account created"
	if !notified {
		message = "jailer account created, but the credentials email could not be sent"
	}

	respondJSON(w, http.StatusCreated, map[string]interface{}{
		"message": message,
		"jailer": map[string]string{
			"name":  jailer.Name,
			"email": jailer.Email,
			"role":  jailer.Role,
		},
	})
}

type forgotPasswordRequest struct {
	Email string `json:"email"`
}

func (h *AuthHandler) ForgotPasswordSendOTP(w http.ResponseWriter, r *http.Request) {
	var req forgotPasswordRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, err)
		return
	}

	if err := h.auth.ForgotPasswordSendOTP(r.Context(), req.Email); err != nil {
		respondError(w, err)
		return
	}

	// Identical body whether or not the email is registered.
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"message": "if that email is registered, a verification code was sent",
		"otpSent": true,
	})
}

type resetPasswordRequest struct {
	Email       string `json:"email"`
	OTP         string `json:"otp"`
	NewPassword string `json:"newPassword"`
}

func (h *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, err)
		return
	}

	if err := h.auth.ResetPassword(r.Context(), req.Email, req.OTP, req.NewPassword); err != nil {
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"message": "password updated"})
}
