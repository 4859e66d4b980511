package api

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"

	"github.com/DeGirum/face-recognition/internal/logger"
	"github.com/DeGirum/face-recognition/internal/media"
	"github.com/DeGirum/face-recognition/internal/notification"
)

const (
	sseHeartbeatInterval = 30 * time.Second
	notifyLimiterExpiry  = 3 * time.Minute
)

// NotifyResponse acknowledges a broadcast notification.
type NotifyResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// handleHealth reports pipeline liveness: 200 when every pipeline runs, 500 otherwise.
func (s *Server) handleHealth(c echo.Context) error {
	report := s.health.Health()
	code := http.StatusOK
	if !report.Healthy() {
		code = http.StatusInternalServerError
	}
	return c.JSON(code, report)
}

// handleNotify broadcasts the raw request body to every connected viewer.
func (s *Server) handleNotify(c echo.Context) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return s.HandleErrorWithCode(c, err, "Failed to read notification body", http.StatusBadRequest)
	}
	message := string(body)

	stats := s.events.Publish(message)
	s.log.Debug("notification broadcast",
		logger.Int("delivered", stats.Delivered),
		logger.Int("dropped", stats.Dropped))

	return c.JSON(http.StatusOK, NotifyResponse{Status: "notification sent", Message: message})
}

func (s *Server) notifyRateLimiter() []echo.MiddlewareFunc {
	if s.config.NotifyRateLimit <= 0 {
		return nil
	}
	return []echo.MiddlewareFunc{middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
		Skipper: middleware.DefaultSkipper,
		Store: middleware.NewRateLimiterMemoryStoreWithConfig(middleware.RateLimiterMemoryStoreConfig{
			Rate:      rate.Limit(s.config.NotifyRateLimit),
			Burst:     int(math.Ceil(s.config.NotifyRateLimit)),
			ExpiresIn: notifyLimiterExpiry,
		}),
		IdentifierExtractor: func(ctx echo.Context) (string, error) {
			return ctx.RealIP(), nil
		},
		ErrorHandler: func(ctx echo.Context, err error) error {
			return s.HandleErrorWithCode(ctx, err, "Unable to identify client", http.StatusForbidden)
		},
		DenyHandler: func(ctx echo.Context, _ string, err error) error {
			return s.HandleErrorWithCode(ctx, err, "Too many notifications, please slow down", http.StatusTooManyRequests)
		},
	})}
}

// handleEvents streams notifications as Server-Sent Events until the client
// goes away, the broadcaster closes or the server shuts down.
func (s *Server) handleEvents(c echo.Context) error {
	ch, subCtx := s.events.Subscribe()
	defer s.events.Unsubscribe(ch)

	w := c.Response()
	w.Header().Set(echo.HeaderContentType, "text/event-stream")
	w.Header().Set(echo.HeaderCacheControl, "no-cache")
	w.Header().Set(echo.HeaderConnection, "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	if _, err := fmt.Fprint(w, ": connected\n\n"); err != nil {
		return nil
	}
	w.Flush()

	heartbeat := time.NewTicker(sseHeartbeatInterval)
	defer heartbeat.Stop()

	reqCtx := c.Request().Context()
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return nil
			}
			if err := writeEvent(w, ev); err != nil {
				return nil
			}
		case <-heartbeat.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return nil
			}
			w.Flush()
		case <-subCtx.Done():
			return nil
		case <-reqCtx.Done():
			return nil
		case <-s.shutdown:
			return nil
		}
	}
}

func writeEvent(w *echo.Response, ev *notification.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "event: notification\ndata: %s\n\n", data); err != nil {
		return err
	}
	w.Flush()
	return nil
}

// handleVideo serves clip bytes with Range support.
func (s *Server) handleVideo(c echo.Context) error {
	resp, err := s.media.Serve(c.Request().Context(), c.Param("filename"), c.Request().Header.Get("Range"))
	if err != nil {
		if contentRange, ok := media.UnsatisfiedContentRange(err); ok {
			c.Response().Header().Set("Content-Range", contentRange)
			c.Response().Header().Set("Accept-Ranges", "bytes")
		}
		return s.HandleError(c, err, "Unable to serve clip")
	}

	for key, values := range resp.Header {
		for _, v := range values {
			c.Response().Header().Add(key, v)
		}
	}
	return c.Blob(resp.Status, media.ContentType, resp.Body)
}
