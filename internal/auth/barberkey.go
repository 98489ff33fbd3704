package auth

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/barbearia-galileu/booking-server/internal/httpx"
)

const BarberKeyHeader = "X-Barber-Api-Key"

// RequireBarberKey guards staff endpoints with a shared API key. An empty
// configured key leaves the endpoints open, which is how local development
// runs.
func RequireBarberKey(key string) httpx.Middleware {
	key = strings.TrimSpace(key)
	return func(next http.Handler) http.Handler {
		if key == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := strings.TrimSpace(r.Header.Get(BarberKeyHeader))
			if got == "" || subtle.ConstantTimeCompare([]byte(got), []byte(key)) != 1 {
				http.Error(w, "missing or invalid api key", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireBarberKeyHash is the production variant: the environment carries a
// bcrypt hash of the key instead of the key itself.
func RequireBarberKeyHash(hash string) httpx.Middleware {
	hash = strings.TrimSpace(hash)
	return func(next http.Handler) http.Handler {
		if hash == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := strings.TrimSpace(r.Header.Get(BarberKeyHeader))
			if got == "" || bcrypt.CompareHashAndPassword([]byte(hash), []byte(got)) != nil {
				http.Error(w, "missing or invalid api key", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
