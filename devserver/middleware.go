package devserver

import (
	"compress/gzip"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	log "github.com/sirupsen/logrus"
)

const userIDKey = "user_id"

type requestMetrics struct {
	logger       *log.Logger
	start        time.Time
	authDuration time.Duration
	errorStage   string
}

func newRequestMetrics(logger *log.Logger) *requestMetrics {
	return &requestMetrics{logger: logger, start: time.Now()}
}

func (m *requestMetrics) ObserveAuth(d time.Duration) {
	if d > 0 {
		m.authDuration = d
	}
}

func (m *requestMetrics) SetErrorStage(stage string) {
	if stage != "" {
		m.errorStage = stage
	}
}

func (m *requestMetrics) Log(c echo.Context, err error) {
	if m == nil || m.logger == nil {
		return
	}
	fields := log.Fields{
		"method":   c.Request().Method,
		"route":    c.Path(),
		"status":   c.Response().Status,
		"total_ms": durationToMillis(time.Since(m.start)),
	}
	if id := c.Request().Header.Get(echo.HeaderXRequestID); id != "" {
		fields["request_id"] = id
	}
	if m.authDuration > 0 {
		fields["auth_ms"] = durationToMillis(m.authDuration)
	}
	if m.errorStage != "" {
		fields["error_stage"] = m.errorStage
	}
	if err != nil {
		fields["error"] = err.Error()
	}
	m.logger.WithFields(fields).Info("devgateway.request")
}

func durationToMillis(d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return float64(d) / float64(time.Millisecond)
}

// RequireUser authenticates each request and stores the user ID on the
// context. It also logs one line per request.
func RequireUser(auth Authenticator, logger *log.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) (err error) {
			metrics := newRequestMetrics(logger)
			defer func() { metrics.Log(c, err) }()

			authStart := time.Now()
			userID, authErr := auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
			metrics.ObserveAuth(time.Since(authStart))
			if authErr != nil {
				metrics.SetErrorStage("auth")
				return c.String(http.StatusUnauthorized, authErr.Error())
			}
			c.Set(userIDKey, userID)
			if err = next(c); err != nil {
				metrics.SetErrorStage("handler")
			}
			return err
		}
	}
}

func userID(c echo.Context) string {
	id, _ := c.Get(userIDKey).(string)
	return id
}

// decompressRequests inflates gzip request bodies with echo's Decompress and
// answers 400 when the body is not valid gzip.
func decompressRequests() echo.MiddlewareFunc {
	decompress := middleware.Decompress()
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		h := decompress(next)
		return func(c echo.Context) error {
			err := h(c)
			if errors.Is(err, gzip.ErrHeader) || errors.Is(err, io.ErrUnexpectedEOF) {
				return echo.NewHTTPError(http.StatusBadRequest, "invalid gzip body")
			}
			return err
		}
	}
}
