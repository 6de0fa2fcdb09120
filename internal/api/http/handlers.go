package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/GriffinCanCode/termhub/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/termhub/internal/profiles"
	"github.com/GriffinCanCode/termhub/internal/shared/id"
	"github.com/GriffinCanCode/termhub/internal/terminal"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Sessions is the part of the terminal registry the API drives
type Sessions interface {
	OpenLocal(ctx context.Context, opts terminal.LocalOptions) (string, error)
	OpenSSH(ctx context.Context, p terminal.SSHParams) (string, error)
	WriteWithOrigin(sessionID string, data []byte, origin string) error
	Resize(sessionID string, cols, rows int) error
	Close(sessionID string) error
	MarkExited(sessionID string) error
	Lookup(sessionID string) (terminal.State, error)
	Snapshot(sessionID string) (terminal.Snapshot, error)
	List() []terminal.Snapshot
	Count() int
}

// Handlers contains all HTTP handlers
type Handlers struct {
	sessions Sessions
	profiles *profiles.Store
	metrics  *monitoring.Metrics
	logger   *zap.Logger
	version  string
}

// NewHandlers creates a new handler set. A nil store means no host profiles.
func NewHandlers(
	sessions Sessions,
	store *profiles.Store,
	metrics *monitoring.Metrics,
	logger *zap.Logger,
	version string,
) *Handlers {
	if store == nil {
		store = profiles.Empty()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handlers{
		sessions: sessions,
		profiles: store,
		metrics:  metrics,
		logger:   logger,
		version:  version,
	}
}

// Root handles the bare liveness probe
func (h *Handlers) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "online",
		"service": "termhubd",
		"version": h.version,
	})
}

// Health handles detailed health check
func (h *Handlers) Health(c *gin.Context) {
	resp := gin.H{
		"status":   "healthy",
		"version":  h.version,
		"sessions": h.sessions.Count(),
		"profiles": h.profiles.Len(),
	}
	if h.metrics != nil {
		resp["metrics"] = h.summary()
	}
	c.JSON(http.StatusOK, resp)
}

// sessionID reads and validates the :id path parameter
func sessionID(c *gin.Context) (string, bool) {
	sid := c.Param("id")
	if !id.IsValidSessionID(sid) {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   "invalid session_id",
		})
		return "", false
	}
	return sid, true
}

// statusFor maps registry and profile errors onto HTTP status codes
func statusFor(err error) int {
	var spawnErr *terminal.SpawnError
	switch {
	case errors.Is(err, terminal.ErrNotFound):
		return http.StatusNotFound
	case errors.As(err, &spawnErr):
		return http.StatusUnprocessableEntity
	case errors.Is(err, terminal.ErrInvalidParams),
		errors.Is(err, profiles.ErrNotFound):
		return http.StatusBadRequest
	case errors.Is(err, terminal.ErrRegistryClosed),
		errors.Is(err, terminal.ErrInputFull):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handlers) fail(c *gin.Context, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.logger.Error("Request failed",
			zap.String("path", c.FullPath()),
			zap.Error(err),
		)
	}
	_ = c.Error(err)
	c.JSON(status, gin.H{
		"success": false,
		"error":   err.Error(),
	})
}
