package api

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/hbomb79/Tube/internal/api/downloads"
	"github.com/hbomb79/Tube/internal/api/progress"
	"github.com/hbomb79/Tube/internal/api/videos"
	"github.com/hbomb79/Tube/pkg/logger"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

var log = logger.Get("API")

type (
	RestConfig struct {
		HostAddr       string   `yaml:"host" env:"HOST_ADDR" env-default:"0.0.0.0"`
		Port           string   `yaml:"port" env:"PORT" env-default:"3000"`
		PublicDir      string   `yaml:"public_dir" env:"PUBLIC_DIR" env-default:"./public"`
		AllowedOrigins []string `yaml:"allowed_origins" env:"CORS_ALLOWED_ORIGINS" env-default:"*"`
	}

	controller interface {
		SetRoutes(*echo.Group)
	}

	// service represents a union of all the controller service requirements
	service interface {
		downloads.Service
		videos.Service
	}

	// The RestGateway is a thin-wrapper around the Echo HTTP router. It's sole responsibility
	// is to create the routes Tube exposes and serve the bundled client UI.
	RestGateway struct {
		config             *RestConfig
		ec                 *echo.Echo
		downloadController controller
		progressController controller
		videoController    controller
	}
)

// NewRestGateway constructs the Echo router and populates it with all the
// routes defined by the various controllers.
func NewRestGateway(config *RestConfig, service service, tracker progress.Tracker) *RestGateway {
	ec := echo.New()
	ec.OnAddRouteHandler = func(host string, route echo.Route, handler echo.HandlerFunc, middleware []echo.MiddlewareFunc) {
		log.Emit(logger.DEBUG, "Registered new route %s %s\n", route.Method, route.Path)
	}
	ec.HidePort = true
	ec.HideBanner = true
	ec.HTTPErrorHandler = plainTextErrorHandler(ec.DefaultHTTPErrorHandler)

	validate := validator.New()
	gateway := &RestGateway{
		config:             config,
		ec:                 ec,
		downloadController: downloads.New(validate, service),
		progressController: progress.New(tracker),
		videoController:    videos.New(service),
	}

	origins := config.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	ec.Use(middleware.Logger())
	ec.Use(middleware.Recover())
	ec.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:  origins,
		ExposeHeaders: []string{downloads.DownloadIDHeader},
	}))

	gateway.downloadController.SetRoutes(ec.Group("/download"))
	gateway.progressController.SetRoutes(ec.Group("/progress"))
	gateway.videoController.SetRoutes(ec.Group("/videoInfo"))

	if config.PublicDir != "" {
		ec.Static("/", config.PublicDir)
	}

	return gateway
}

// ServeHTTP allows the gateway to be mounted directly on an http.Server or httptest.Server.
func (gateway *RestGateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	gateway.ec.ServeHTTP(w, r)
}

func (gateway *RestGateway) Run(parentCtx context.Context) error {
	ctx, ctxCancel := context.WithCancelCause(parentCtx)
	wg := &sync.WaitGroup{}

	// Start echo router
	wg.Add(1)
	go func() {
		defer wg.Done()
		addr := net.JoinHostPort(gateway.config.HostAddr, gateway.config.Port)
		log.Emit(logger.INFO, "Server is running on %s\n", addr)
		if err := gateway.ec.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			ctxCancel(err)
		}
	}()

	// Start thread to listen for context cancellation
	wg.Add(1)
	go func(ec *echo.Echo) {
		defer wg.Done()
		<-ctx.Done()
		if err := ec.Close(); err != nil {
			log.Emit(logger.WARNING, "Failed to close HTTP server: %v\n", err)
		}
	}(gateway.ec)

	wg.Wait()

	// Return cancellation cause if any, otherwise nil as parent context
	// cancellation is not an error case we should report.
	if cause := context.Cause(ctx); cause != ctx.Err() {
		return cause
	}

	return nil
}

// plainTextErrorHandler returns an echo HTTP error handler which writes the
// message of an *echo.HTTPError as a plain-text body. If an error is provided
// which is not an HTTPError, it is passed off to the fallback handler.
func plainTextErrorHandler(fallbackHandler echo.HTTPErrorHandler) echo.HTTPErrorHandler {
	return func(err error, ctx echo.Context) {
		if ctx.Response().Committed {
			log.Emit(logger.WARNING, "Error %v raised after response to %s was committed\n", err, ctx.Request().RequestURI)
			return
		}

		var httpErr *echo.HTTPError
		if !errors.As(err, &httpErr) {
			fallbackHandler(err, ctx)
			return
		}

		message, ok := httpErr.Message.(string)
		if !ok {
			message = http.StatusText(httpErr.Code)
		}
		if err := ctx.String(httpErr.Code, message); err != nil {
			log.Emit(logger.ERROR, "Failed to write error response: %v\n", err)
		}
	}
}
