package webserver

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/sessions"
	"github.com/labstack/echo-contrib/session"
	echojwt "github.com/labstack/echo-jwt/v4"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/accstore/accstore/internal/app"
)

const (
	ContextAppKey       = "app_ctx"
	ContextStoreUserKey = "store_user"
	ContextOprKey       = "opr_claims"
)

type WebServer struct {
	root   *echo.Echo
	api    *echo.Group // admin API, JWT protected
	store  *echo.Group // storefront API, session protected
	public *echo.Group // storefront API, no auth
	appCtx app.AppContext
}

var server *WebServer

// Init builds the echo server with the shared middleware stack. Route
// registration happens afterwards through the package-level helpers.
func Init(appCtx app.AppContext) *WebServer {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	cfg := appCtx.Config()

	e.Use(middleware.Recover())
	e.Use(middleware.BodyLimit(fmt.Sprintf("%dM", cfg.Web.MaxUploadMB)))
	e.Use(ZapLogger())

	cookieStore := sessions.NewCookieStore([]byte(cfg.Web.Secret))
	cookieStore.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   cfg.Web.SessionMaxAge,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
	e.Use(session.Middleware(cookieStore))

	// expose uploaded attachment files
	e.Static("/uploads", cfg.AbsUploadDir())

	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			c.Set(ContextAppKey, appCtx)
			return next(c)
		}
	})

	s := &WebServer{root: e, appCtx: appCtx}

	s.public = e.Group("/api/store/v1")

	s.store = e.Group("/api/store/v1")
	s.store.Use(StoreSessionAuth(appCtx))

	s.api = e.Group("/api/admin/v1")
	s.api.Use(echojwt.WithConfig(echojwt.Config{
		SigningKey:  []byte(cfg.Web.Secret),
		ContextKey:  ContextOprKey,
		TokenLookup: "header:Authorization:Bearer ",
		Skipper: func(c echo.Context) bool {
			return c.Path() == "/api/admin/v1/login"
		},
		ErrorHandler: func(c echo.Context, err error) error {
			return Fail(c, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid or missing token", nil)
		},
	}))

	server = s
	return s
}

// Start blocks serving HTTP until the listener fails or is shut down.
func (s *WebServer) Start() error {
	cfg := s.appCtx.Config()
	addr := fmt.Sprintf("%s:%d", cfg.Web.Host, cfg.Web.Port)
	zap.S().Infof("web server listening on %s", addr)
	return s.root.Start(addr)
}

// Echo exposes the underlying echo instance (tests, shutdown).
func (s *WebServer) Echo() *echo.Echo {
	return s.root
}

// ZapLogger logs one line per request through the global zap logger.
func ZapLogger() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}
			req := c.Request()
			res := c.Response()
			zap.L().Debug("http request",
				zap.String("method", req.Method),
				zap.String("uri", req.RequestURI),
				zap.Int("status", res.Status),
				zap.Duration("latency", time.Since(start)),
				zap.String("remote", c.RealIP()),
			)
			return nil
		}
	}
}

// Admin API route registration

func ApiGET(path string, h echo.HandlerFunc)    { server.api.GET(path, h) }
func ApiPOST(path string, h echo.HandlerFunc)   { server.api.POST(path, h) }
func ApiPUT(path string, h echo.HandlerFunc)    { server.api.PUT(path, h) }
func ApiDELETE(path string, h echo.HandlerFunc) { server.api.DELETE(path, h) }

// Storefront route registration; Pub variants skip the session check.

func StoreGET(path string, h echo.HandlerFunc)    { server.store.GET(path, h) }
func StorePOST(path string, h echo.HandlerFunc)   { server.store.POST(path, h) }
func StoreDELETE(path string, h echo.HandlerFunc) { server.store.DELETE(path, h) }

func PubGET(path string, h echo.HandlerFunc)  { server.public.GET(path, h) }
func PubPOST(path string, h echo.HandlerFunc) { server.public.POST(path, h) }
