package middleware

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strings"
)

// AdminAuth проверяет токен оператора в заголовке Authorization.
// Операторские операции (начисления, каталог, бюджет пула) доступны
// только с корректным токеном.
type AdminAuth struct {
	tokenDigest [32]byte
}

// NewAdminAuth создаёт middleware с указанным токеном оператора.
// Пустой токен заменяется случайным: операторские операции при этом
// остаются закрытыми, пока токен не задан явно.
func NewAdminAuth(token string) *AdminAuth {
	if token == "" {
		buf := make([]byte, 32)
		if _, err := rand.Read(buf); err == nil {
			token = hex.EncodeToString(buf)
		} else {
			token = "disabled"
		}
	}

	return &AdminAuth{
		tokenDigest: sha256.Sum256([]byte(token)),
	}
}

// Middleware пропускает запрос дальше только с корректным bearer-токеном.
func (a *AdminAuth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}

		// Сравниваются дайджесты фиксированной длины за постоянное время.
		digest := sha256.Sum256([]byte(token))
		if !hmac.Equal(digest[:], a.tokenDigest[:]) {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r)
	})
}
