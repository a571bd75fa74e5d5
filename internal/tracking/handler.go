package tracking

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/sirupsen/logrus"

	apperrors "github.com/brandon/mcp-mailbridge/internal/errors"
	"github.com/brandon/mcp-mailbridge/internal/store"
)

// transparent 1x1 GIF
var pixelGIF = []byte{
	0x47, 0x49, 0x46, 0x38, 0x39, 0x61, 0x01, 0x00, 0x01, 0x00, 0x80, 0x00, 0x00, 0x00, 0x00, 0x00,
	0xff, 0xff, 0xff, 0x21, 0xf9, 0x04, 0x01, 0x00, 0x00, 0x00, 0x00, 0x2c, 0x00, 0x00, 0x00, 0x00,
	0x01, 0x00, 0x01, 0x00, 0x00, 0x02, 0x02, 0x44, 0x01, 0x00, 0x3b,
}

// EventRecorder stores tracking events
type EventRecorder interface {
	RecordEvent(ctx context.Context, ev store.TrackingEvent) error
}

// Pinger reports store health
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler serves the open pixel and click redirect endpoints
type Handler struct {
	events EventRecorder
	pinger Pinger
	logger *logrus.Logger
	now    func() time.Time
}

// NewHandler creates a new Handler
func NewHandler(events EventRecorder, pinger Pinger, logger *logrus.Logger) *Handler {
	return &Handler{
		events: events,
		pinger: pinger,
		logger: logger,
		now:    time.Now,
	}
}

// NewRouter builds the echo router for the tracking endpoints
func NewRouter(h *Handler) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURIPath: true,
		LogStatus:  true,
		LogLatency: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			h.logger.WithFields(logrus.Fields{
				"path":    v.URIPath,
				"status":  v.Status,
				"latency": v.Latency,
			}).Debug("Tracking request")
			return nil
		},
	}))

	e.GET("/health", h.Health)
	e.GET("/t/o/:token", h.Open)
	e.GET("/t/c/:token", h.Click)
	return e
}

// Open handles GET /t/o/:token. The pixel is served whatever the token.
func (h *Handler) Open(c echo.Context) error {
	if err := h.record(c, store.EventOpen, ""); err != nil {
		h.logFailure(err, store.EventOpen)
	}

	res := c.Response().Header()
	res.Set("Cache-Control", "no-store, no-cache, must-revalidate, max-age=0")
	res.Set("Pragma", "no-cache")
	return c.Blob(http.StatusOK, "image/gif", pixelGIF)
}

// Click handles GET /t/c/:token?u=
func (h *Handler) Click(c echo.Context) error {
	target := c.QueryParam("u")
	u, err := url.Parse(target)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid target url"})
	}

	// only links rewritten into the token's message are followed
	if err := h.record(c, store.EventClick, target); err != nil {
		h.logFailure(err, store.EventClick)
		if apperrors.IsNotFound(err) {
			return c.JSON(http.StatusNotFound, map[string]string{"error": "unknown tracking link"})
		}
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "tracking unavailable"})
	}
	return c.Redirect(http.StatusFound, target)
}

// Health handles GET /health
func (h *Handler) Health(c echo.Context) error {
	if h.pinger != nil {
		if err := h.pinger.Ping(c.Request().Context()); err != nil {
			return c.JSON(http.StatusServiceUnavailable, map[string]string{"status": "unhealthy"})
		}
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "healthy"})
}

func (h *Handler) record(c echo.Context, kind store.EventKind, target string) error {
	return h.events.RecordEvent(c.Request().Context(), store.TrackingEvent{
		Token:     c.Param("token"),
		Kind:      kind,
		URL:       target,
		UserAgent: c.Request().UserAgent(),
		At:        h.now(),
	})
}

func (h *Handler) logFailure(err error, kind store.EventKind) {
	entry := h.logger.WithError(err).WithField("kind", kind)
	if apperrors.IsNotFound(err) {
		entry.Debug("Unknown tracking token or link")
		return
	}
	entry.Warn("Failed to record tracking event")
}
