package adminapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/accstore/accstore/internal/domain"
	"github.com/accstore/accstore/internal/webserver"
	"github.com/accstore/accstore/pkg/common"
)

type loginPayload struct {
	Username string `json:"username" form:"username"`
	Password string `json:"password" form:"password"`
}

func registerLoginRoutes() {
	webserver.ApiPOST("/login", adminLogin)
}

func adminLogin(c echo.Context) error {
	var payload loginPayload
	if err := c.Bind(&payload); err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Unable to parse login parameters", nil)
	}
	payload.Username = strings.TrimSpace(payload.Username)
	if payload.Username == "" || payload.Password == "" {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Username and password are required", nil)
	}

	var opr domain.SysOpr
	err := GetDB(c).Where("username = ?", payload.Username).First(&opr).Error
	if err != nil {
		return fail(c, http.StatusUnauthorized, "INVALID_CREDENTIALS", "Invalid username or password", nil)
	}

	hashed := common.Sha256HashWithSalt(payload.Password, common.GetSecretSalt())
	if hashed != opr.Password {
		return fail(c, http.StatusUnauthorized, "INVALID_CREDENTIALS", "Invalid username or password", nil)
	}
	if !strings.EqualFold(opr.Status, common.ENABLED) {
		return fail(c, http.StatusForbidden, "ACCOUNT_DISABLED", "Operator account disabled", nil)
	}

	token, err := webserver.IssueOprToken(GetAppContext(c), &opr)
	if err != nil {
		return fail(c, http.StatusInternalServerError, "TOKEN_ERROR", "Failed to issue token", err.Error())
	}

	GetDB(c).Model(&domain.SysOpr{}).Where("id = ?", opr.ID).
		Update("last_login", time.Now())

	auditLog(c, opr.Username, "login", "operator logged in")
	zap.L().Info("operator login", zap.String("username", opr.Username))

	return ok(c, map[string]interface{}{
		"token":    token,
		"id":       opr.ID,
		"username": opr.Username,
		"realname": opr.Realname,
		"level":    opr.Level,
	})
}

// auditLog appends an operator action to the audit trail.
func auditLog(c echo.Context, oprName, action, desc string) {
	GetDB(c).Create(&domain.SysOprLog{
		ID:        common.UUIDint64(),
		OprName:   oprName,
		OprIp:     c.RealIP(),
		OptAction: action,
		OptDesc:   desc,
		OptTime:   time.Now(),
	})
}
