package server

import (
	"errors"
	"net/http"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/hairizuanbinnoorazman/rateloop/logger"
)

const minPasswordLength = 8

var ErrPasswordTooShort = errors.New("password must be at least 8 characters")

// HashPassword returns the bcrypt hash used for API basic auth.
func HashPassword(password string) (string, error) {
	if len(password) < minPasswordLength {
		return "", ErrPasswordTooShort
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// BasicAuthMiddleware guards the API with one username and a bcrypt password hash.
type BasicAuthMiddleware struct {
	username     string
	passwordHash []byte
	logger       logger.Logger
}

// NewBasicAuthMiddleware creates a new basic auth middleware.
func NewBasicAuthMiddleware(username, passwordHash string, log logger.Logger) *BasicAuthMiddleware {
	return &BasicAuthMiddleware{
		username:     username,
		passwordHash: []byte(passwordHash),
		logger:       log,
	}
}

// Handler wraps an HTTP handler with authentication.
func (m *BasicAuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		username, password, ok := r.BasicAuth()
		if !ok {
			w.Header().Set("WWW-Authenticate", `Basic realm="rateloop"`)
			respondError(w, http.StatusUnauthorized, "authentication required")
			return
		}

		if username != m.username || bcrypt.CompareHashAndPassword(m.passwordHash, []byte(password)) != nil {
			m.logger.Warn(r.Context(), "invalid credentials", map[string]interface{}{
				"path":     r.URL.Path,
				"username": username,
			})
			w.Header().Set("WWW-Authenticate", `Basic realm="rateloop"`)
			respondError(w, http.StatusUnauthorized, "invalid credentials")
			return
		}

		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(status int) {
	s.status = status
	s.ResponseWriter.WriteHeader(status)
}

// LoggingMiddleware logs every request at debug level.
func LoggingMiddleware(log logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)
			log.Debug(r.Context(), "request handled", map[string]interface{}{
				"method":      r.Method,
				"path":        r.URL.Path,
				"status":      rec.status,
				"duration_ms": time.Since(start).Milliseconds(),
			})
		})
	}
}
