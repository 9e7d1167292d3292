package storeapi

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/accstore/accstore/internal/domain"
	"github.com/accstore/accstore/internal/webserver"
	"github.com/accstore/accstore/pkg/common"
)

func registerAuthRoutes() {
	webserver.PubPOST("/signup", signup)
	webserver.PubPOST("/login", login)
	webserver.PubPOST("/forgot-password", forgotPassword)
	webserver.PubPOST("/reset-password", resetPassword)
	webserver.StoreGET("/session", sessionInfo)
	webserver.StorePOST("/logout", logout)
}

type signupPayload struct {
	Name     string `json:"name"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
}

func signup(c echo.Context) error {
	var payload signupPayload
	if err := c.Bind(&payload); err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Unable to parse signup request", err.Error())
	}
	email := strings.ToLower(strings.TrimSpace(payload.Email))
	if email == "" || !strings.Contains(email, "@") {
		return fail(c, http.StatusBadRequest, "INVALID_EMAIL", "A valid email is required", nil)
	}
	if len(payload.Password) < 8 {
		return fail(c, http.StatusBadRequest, "WEAK_PASSWORD", "Password must be at least 8 characters", nil)
	}

	var existing int64
	GetDB(c).Model(&domain.User{}).Where("email = ?", email).Count(&existing)
	if existing > 0 {
		return fail(c, http.StatusConflict, "EMAIL_TAKEN", "An account with this email already exists", nil)
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(payload.Password), bcrypt.DefaultCost)
	if err != nil {
		return fail(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to create account", nil)
	}

	now := time.Now()
	user := domain.User{
		ID:        common.UUIDint64(),
		Name:      strings.TrimSpace(payload.Name),
		Email:     email,
		Password:  string(hashed),
		Status:    common.ENABLED,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := GetDB(c).Create(&user).Error; err != nil {
		return fail(c, http.StatusConflict, "EMAIL_TAKEN", "An account with this email already exists", nil)
	}

	return startSession(c, &user)
}

type loginPayload struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func login(c echo.Context) error {
	var payload loginPayload
	if err := c.Bind(&payload); err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Unable to parse login request", err.Error())
	}
	email := strings.ToLower(strings.TrimSpace(payload.Email))

	var user domain.User
	if err := GetDB(c).Where("email = ?", email).First(&user).Error; err != nil {
		return fail(c, http.StatusUnauthorized, "INVALID_CREDENTIALS", "Email or password is incorrect", nil)
	}
	if bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(payload.Password)) != nil {
		return fail(c, http.StatusUnauthorized, "INVALID_CREDENTIALS", "Email or password is incorrect", nil)
	}
	if user.Status == common.DISABLED {
		return fail(c, http.StatusForbidden, "ACCOUNT_DISABLED", "Account disabled", nil)
	}

	GetDB(c).Model(&domain.User{}).Where("id = ?", user.ID).
		Update("last_login", time.Now())

	return startSession(c, &user)
}

func startSession(c echo.Context, user *domain.User) error {
	appCtx := GetAppContext(c)
	maxAge := appCtx.Config().Web.SessionMaxAge
	if maxAge <= 0 {
		maxAge = 86400 * 7
	}

	us := domain.UserSession{
		ID:        common.UUIDint64(),
		UserID:    user.ID,
		Token:     common.RandomHex(32),
		ExpiresAt: time.Now().Add(time.Duration(maxAge) * time.Second),
		CreatedAt: time.Now(),
	}
	if err := GetDB(c).Create(&us).Error; err != nil {
		return fail(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to create session", nil)
	}
	if err := webserver.SetSessionToken(c, appCtx, us.Token); err != nil {
		return fail(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to set session cookie", nil)
	}

	return ok(c, map[string]interface{}{
		"authenticated": true,
		"user":          user,
	})
}

func sessionInfo(c echo.Context) error {
	return ok(c, map[string]interface{}{
		"authenticated": true,
		"user":          webserver.CurrentUser(c),
	})
}

func logout(c echo.Context) error {
	appCtx := GetAppContext(c)
	if user := webserver.CurrentUser(c); user != nil {
		GetDB(c).Where("user_id = ?", user.ID).Delete(&domain.UserSession{})
	}
	webserver.ClearSessionToken(c, appCtx)
	return ok(c, nil)
}

type forgotPayload struct {
	Email string `json:"email"`
}

// forgotPassword always answers OK so the endpoint cannot be used to probe
// which emails have accounts.
func forgotPassword(c echo.Context) error {
	var payload forgotPayload
	if err := c.Bind(&payload); err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Unable to parse request", err.Error())
	}
	email := strings.ToLower(strings.TrimSpace(payload.Email))

	var user domain.User
	if err := GetDB(c).Where("email = ?", email).First(&user).Error; err != nil {
		return ok(c, nil)
	}

	reset := domain.PasswordReset{
		ID:        common.UUIDint64(),
		UserID:    user.ID,
		Code:      common.RandomHex(16),
		ExpiresAt: time.Now().Add(time.Hour),
		CreatedAt: time.Now(),
	}
	if err := GetDB(c).Create(&reset).Error; err != nil {
		return ok(c, nil)
	}

	if mailSender != nil && GetAppContext(c).GetSettingsBoolValue("mail", "Enabled") {
		body := fmt.Sprintf("<p>Your password reset code is <b>%s</b>. It expires in one hour.</p>", reset.Code)
		if err := mailSender.Send(user.Email, "Password reset", body); err != nil {
			zap.L().Warn("reset mail not delivered", zap.Int64("user_id", user.ID), zap.Error(err))
		}
	}
	return ok(c, nil)
}

type resetPayload struct {
	Code     string `json:"code"`
	Password string `json:"password"`
}

func resetPassword(c echo.Context) error {
	var payload resetPayload
	if err := c.Bind(&payload); err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Unable to parse request", err.Error())
	}
	if len(payload.Password) < 8 {
		return fail(c, http.StatusBadRequest, "WEAK_PASSWORD", "Password must be at least 8 characters", nil)
	}

	var reset domain.PasswordReset
	err := GetDB(c).Where("code = ? AND used = ? AND expires_at > ?",
		strings.TrimSpace(payload.Code), false, time.Now()).First(&reset).Error
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_CODE", "Reset code is invalid or expired", nil)
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(payload.Password), bcrypt.DefaultCost)
	if err != nil {
		return fail(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to reset password", nil)
	}

	db := GetDB(c)
	// single-use claim; a second submit of the same code fails here
	res := db.Model(&domain.PasswordReset{}).
		Where("id = ? AND used = ?", reset.ID, false).
		Update("used", true)
	if res.Error != nil || res.RowsAffected == 0 {
		return fail(c, http.StatusBadRequest, "INVALID_CODE", "Reset code is invalid or expired", nil)
	}

	db.Model(&domain.User{}).Where("id = ?", reset.UserID).
		Updates(map[string]interface{}{"password": string(hashed), "updated_at": time.Now()})
	// force re-login everywhere
	db.Where("user_id = ?", reset.UserID).Delete(&domain.UserSession{})

	return ok(c, nil)
}
