// Package adminapi implements the back-office REST API: resource CRUD,
// exports, dashboard metrics, and scheduler control.
package adminapi

import (
	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"github.com/accstore/accstore/internal/app"
	"github.com/accstore/accstore/internal/checkout"
	"github.com/accstore/accstore/internal/support"
	"github.com/accstore/accstore/internal/webserver"
)

var (
	checkoutSvc *checkout.Service
	supportSvc  *support.Service
)

// Init registers all admin routes. Call after webserver.Init.
func Init(co *checkout.Service, sup *support.Service) {
	checkoutSvc = co
	supportSvc = sup

	registerLoginRoutes()
	registerProductRoutes()
	registerCouponRoutes()
	registerUserRoutes()
	registerOrderRoutes()
	registerPaymentRoutes()
	registerTicketRoutes()
	registerSchedulerRoutes()
	registerDashboardRoutes()
}

// thin response helpers in the local idiom

func ok(c echo.Context, data interface{}) error {
	return webserver.Ok(c, data)
}

func fail(c echo.Context, status int, code, message string, detail interface{}) error {
	return webserver.Fail(c, status, code, message, detail)
}

func paged(c echo.Context, items interface{}, total int64, page, perPage int) error {
	return webserver.Paged(c, items, total, page, perPage)
}

func parsePagination(c echo.Context) (int, int) {
	return webserver.ParsePagination(c)
}

func parseIDParam(c echo.Context, name string) (int64, error) {
	return webserver.ParseIDParam(c, name)
}

func GetDB(c echo.Context) *gorm.DB {
	return webserver.GetDB(c)
}

func GetAppContext(c echo.Context) app.AppContext {
	return webserver.GetAppContext(c)
}
