// Package httpx tem os middlewares HTTP comuns às APIs públicas.
package httpx

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
)

// UserHeader é preenchido pelo gateway depois da autenticação.
const UserHeader = "X-User-ID"

type ctxKey struct{}

// RequireUser rejeita com 401 requisições sem X-User-ID.
func RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := strings.TrimSpace(r.Header.Get(UserHeader))
		if userID == "" {
			WriteError(w, http.StatusUnauthorized, "Missing user")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, userID)))
	})
}

// UserID retorna o usuário autenticado (vazio fora de RequireUser).
func UserID(r *http.Request) string {
	v, _ := r.Context().Value(ctxKey{}).(string)
	return v
}

func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError responde {"message": ...}.
func WriteError(w http.ResponseWriter, status int, message string) {
	WriteJSON(w, status, map[string]string{"message": message})
}
