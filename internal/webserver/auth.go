package webserver

import (
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/labstack/echo-contrib/session"
	"github.com/labstack/echo/v4"
	"github.com/spf13/cast"

	"github.com/accstore/accstore/internal/app"
	"github.com/accstore/accstore/internal/domain"
)

const sessionTokenKey = "token"

// StoreSessionAuth resolves the cookie session against the session table
// and loads the customer. The session table is the single source of truth;
// there is no client-side expiry logic.
func StoreSessionAuth(appCtx app.AppContext) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			sess, err := session.Get(appCtx.Config().Web.SessionName, c)
			if err != nil {
				return Fail(c, http.StatusUnauthorized, "SESSION_EXPIRED", "Please log in again", nil)
			}
			token, _ := sess.Values[sessionTokenKey].(string)
			if token == "" {
				return Fail(c, http.StatusUnauthorized, "SESSION_EXPIRED", "Please log in again", nil)
			}

			var us domain.UserSession
			err = appCtx.DB().Where("token = ? AND expires_at > ?", token, time.Now()).First(&us).Error
			if err != nil {
				return Fail(c, http.StatusUnauthorized, "SESSION_EXPIRED", "Please log in again", nil)
			}

			var user domain.User
			if err := appCtx.DB().Where("id = ?", us.UserID).First(&user).Error; err != nil {
				return Fail(c, http.StatusUnauthorized, "SESSION_EXPIRED", "Please log in again", nil)
			}
			if user.Status == "disabled" {
				return Fail(c, http.StatusForbidden, "ACCOUNT_DISABLED", "Account disabled", nil)
			}

			c.Set(ContextStoreUserKey, &user)
			return next(c)
		}
	}
}

// CurrentUser returns the session customer; nil on public routes.
func CurrentUser(c echo.Context) *domain.User {
	user, _ := c.Get(ContextStoreUserKey).(*domain.User)
	return user
}

// SetSessionToken stores the session token in the response cookie.
func SetSessionToken(c echo.Context, appCtx app.AppContext, token string) error {
	sess, err := session.Get(appCtx.Config().Web.SessionName, c)
	if err != nil {
		return err
	}
	sess.Values[sessionTokenKey] = token
	return sess.Save(c.Request(), c.Response())
}

// ClearSessionToken drops the session cookie.
func ClearSessionToken(c echo.Context, appCtx app.AppContext) {
	sess, err := session.Get(appCtx.Config().Web.SessionName, c)
	if err != nil {
		return
	}
	sess.Options.MaxAge = -1
	delete(sess.Values, sessionTokenKey)
	_ = sess.Save(c.Request(), c.Response())
}

// OprClaims are the JWT claims carried by admin tokens.
type OprClaims struct {
	OprID    int64  `json:"opr_id,string"`
	Username string `json:"username"`
	Level    string `json:"level"`
	jwt.RegisteredClaims
}

// IssueOprToken signs an admin JWT.
func IssueOprToken(appCtx app.AppContext, opr *domain.SysOpr) (string, error) {
	cfg := appCtx.Config()
	ttl := time.Duration(cfg.Web.JwtExpireHour) * time.Hour
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	claims := &OprClaims{
		OprID:    opr.ID,
		Username: opr.Username,
		Level:    opr.Level,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(cfg.Web.Secret))
}

// CurrentOpr extracts admin identity from the verified JWT.
func CurrentOpr(c echo.Context) *OprClaims {
	token, ok := c.Get(ContextOprKey).(*jwt.Token)
	if !ok {
		return nil
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil
	}
	out := &OprClaims{
		OprID:    cast.ToInt64(claims["opr_id"]),
		Username: cast.ToString(claims["username"]),
		Level:    cast.ToString(claims["level"]),
	}
	return out
}
