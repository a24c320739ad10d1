package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"erp-nlquery/internal/common/auth"
	apperrors "erp-nlquery/internal/common/errors"
	"erp-nlquery/internal/common/logger"
	"erp-nlquery/internal/models"
)

const (
	requestIDHeader = "X-Request-ID"
	requestIDKey    = "requestId"
	principalKey    = "principal"
)

var defaultOrigins = []string{
	"http://localhost:3000",
	"http://localhost:5173",
	"http://127.0.0.1:3000",
	"http://127.0.0.1:5173",
}

func corsMiddleware(frontendURL string) gin.HandlerFunc {
	origins := append([]string(nil), defaultOrigins...)
	if u := strings.TrimRight(strings.TrimSpace(frontendURL), "/"); u != "" {
		origins = append(origins, u)
	}
	return cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", requestIDHeader},
		ExposeHeaders:    []string{requestIDHeader},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	})
}

// requestID reuses a caller supplied id or mints one.
func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" || len(id) > 128 {
			id = uuid.NewString()
		}
		c.Set(requestIDKey, id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

func accessLog(log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		fields := map[string]interface{}{
			"method":     c.Request.Method,
			"path":       path,
			"status":     status,
			"durationMs": time.Since(start).Milliseconds(),
			"requestId":  c.GetString(requestIDKey),
		}
		if p, ok := principalFrom(c); ok {
			fields["userId"] = p.UserID
		}

		switch {
		case status >= 500:
			log.Error("HTTP request", fields)
		case status >= 400:
			log.Warn("HTTP request", fields)
		default:
			log.Info("HTTP request", fields)
		}
	}
}

// requireAuth verifies the bearer token and stores the principal on the
// context. Development bypass is handled by the verifier.
func requireAuth(v *auth.Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		principal, err := v.Verify(auth.BearerToken(c.GetHeader("Authorization")))
		if err != nil {
			c.Header("WWW-Authenticate", "Bearer")
			abortWithError(c, apperrors.NewUnauthorizedError(err.Error()))
			return
		}
		c.Set(principalKey, principal)
		c.Request = c.Request.WithContext(auth.WithPrincipal(c.Request.Context(), principal))
		c.Next()
	}
}

// requireRole answers 403 unless the principal holds one of roles.
func requireRole(roles ...models.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, ok := principalFrom(c)
		if !ok || !p.HasAnyRole(roles...) {
			abortWithError(c, apperrors.NewForbiddenError(nil))
			return
		}
		c.Next()
	}
}

func principalFrom(c *gin.Context) (models.Principal, bool) {
	v, ok := c.Get(principalKey)
	if !ok {
		return models.Principal{}, false
	}
	p, ok := v.(models.Principal)
	return p, ok
}

type errorBody struct {
	Error     string `json:"error"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

// abortWithError writes the public view of err. Internal details stay in logs.
func abortWithError(c *gin.Context, err error) {
	code := apperrors.CodeOf(err)
	c.AbortWithStatusJSON(apperrors.HTTPStatus(code), errorBody{
		Error:     string(code),
		Message:   apperrors.PublicMessage(err),
		RequestID: c.GetString(requestIDKey),
	})
}

func notFound(c *gin.Context) {
	c.JSON(http.StatusNotFound, errorBody{Error: "NOT_FOUND", Message: "Resource not found"})
}
