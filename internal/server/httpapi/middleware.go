package httpapi

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dmitrijs2005/gophauth/internal/common"
	"github.com/dmitrijs2005/gophauth/internal/logging"
	"github.com/dmitrijs2005/gophauth/internal/server/i18n"
	"github.com/dmitrijs2005/gophauth/internal/server/metrics"
	"github.com/dmitrijs2005/gophauth/internal/server/models"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	langKey        = "lang"
	currentUserKey = "currentUser"
	bearerTokenKey = "bearerToken"
)

// requestID propagates X-Request-ID, generating one when absent, and puts it
// on the request context for logging.
func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(common.RequestIDHeaderName)
		if id == "" {
			id = uuid.NewString()
		}
		c.Header(common.RequestIDHeaderName, id)
		c.Request = c.Request.WithContext(logging.ContextWithRequestID(c.Request.Context(), id))
		c.Next()
	}
}

// accessLog records one log line and the http_* metrics per request.
func accessLog(log logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		elapsed := time.Since(start)
		status := c.Writer.Status()

		metrics.HTTPRequests.WithLabelValues(c.Request.Method, route, strconv.Itoa(status)).Inc()
		metrics.HTTPDuration.WithLabelValues(c.Request.Method, route).Observe(elapsed.Seconds())

		log.Info(c.Request.Context(), "http request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", status,
			"duration", elapsed,
			"client_ip", c.ClientIP(),
		)
	}
}

// language resolves the catalog language from the lang header.
func language() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(langKey, i18n.Negotiate(c.GetHeader(common.LanguageHeaderName)))
		c.Next()
	}
}

func languageOf(c *gin.Context) string {
	if v, ok := c.Get(langKey); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return i18n.DefaultLanguage
}

// bearer requires an active access token and stores its user on the context.
func (h *handlers) bearer() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c.GetHeader(common.AuthorizationHeaderName))
		if !ok {
			abortWith(c, http.StatusUnauthorized, i18n.Unauthorized)
			return
		}
		user, err := h.auth.Authenticate(c.Request.Context(), token)
		if err != nil {
			h.fail(c, err)
			return
		}
		c.Set(currentUserKey, user)
		c.Set(bearerTokenKey, token)
		c.Next()
	}
}

func bearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, common.BearerScheme) {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func currentUser(c *gin.Context) *models.User {
	if v, ok := c.Get(currentUserKey); ok {
		if u, ok := v.(*models.User); ok {
			return u
		}
	}
	return nil
}
