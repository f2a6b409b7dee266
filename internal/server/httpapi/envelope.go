package httpapi

import (
	"errors"
	"net/http"
	"time"

	"github.com/dmitrijs2005/gophauth/internal/common"
	"github.com/dmitrijs2005/gophauth/internal/server/i18n"
	"github.com/gin-gonic/gin"
)

const (
	statusSuccess = "success"
	statusError   = "error"
)

// Envelope is the body of every non-token response.
type Envelope struct {
	Code      int              `json:"code"`
	Status    string           `json:"status"`
	Message   string           `json:"message,omitempty"`
	Data      any              `json:"data,omitempty"`
	Errors    []map[string]any `json:"errors,omitempty"`
	Meta      map[string]any   `json:"meta,omitempty"`
	URL       string           `json:"url,omitempty"`
	Timestamp string           `json:"timestamp"`
}

func newEnvelope(c *gin.Context, code int, status string, msg i18n.Code) Envelope {
	return Envelope{
		Code:      code,
		Status:    status,
		Message:   i18n.Message(languageOf(c), msg),
		URL:       c.Request.URL.String(),
		Timestamp: time.Now().UTC().Format("2006-01-02T15:04:05Z"),
	}
}

func respond(c *gin.Context, code int, msg i18n.Code, data any, meta map[string]any) {
	env := newEnvelope(c, code, statusSuccess, msg)
	env.Data = data
	env.Meta = meta
	c.JSON(code, env)
}

func abortWith(c *gin.Context, code int, msg i18n.Code, details ...string) {
	env := newEnvelope(c, code, statusError, msg)
	for _, d := range details {
		env.Errors = append(env.Errors, map[string]any{"detail": d})
	}
	if code == http.StatusUnauthorized {
		c.Header("WWW-Authenticate", "Bearer")
	}
	c.AbortWithStatusJSON(code, env)
}

// fail maps a service error onto an HTTP status and catalog message. Causes
// of unauthorized and internal failures never reach the body.
func (h *handlers) fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, common.ErrorUnauthorized), errors.Is(err, common.ErrInvalidToken):
		abortWith(c, http.StatusUnauthorized, i18n.Unauthorized)
	case errors.Is(err, common.ErrorNotFound):
		abortWith(c, http.StatusNotFound, i18n.UserNotFound)
	case errors.Is(err, common.ErrorAlreadyExists):
		abortWith(c, http.StatusConflict, i18n.UsernameExists)
	case errors.Is(err, common.ErrorValidation):
		abortWith(c, http.StatusUnprocessableEntity, i18n.ValidationError, err.Error())
	default:
		h.log.Error(c.Request.Context(), "request failed", "path", c.FullPath(), "error", err)
		abortWith(c, http.StatusInternalServerError, i18n.InternalError)
	}
}
