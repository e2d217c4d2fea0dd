// Package auth проверяет bearer-токены запросов.
package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"
)

var (
	// ErrMissingCredential в запросе нет bearer-токена
	ErrMissingCredential = errors.New("missing bearer credential")
	// ErrInvalidCredential токен не прошел проверку
	ErrInvalidCredential = errors.New("invalid bearer credential")
)

// Validator интерфейс проверки токена.
// Реализация решает только "разрешить или запретить", выпуск токенов вне зоны ответственности сервиса.
type Validator interface {
	Validate(ctx context.Context, credential string) error
}

// ValidatorFunc адаптер функции к Validator
type ValidatorFunc func(ctx context.Context, credential string) error

// Validate вызывает f
func (f ValidatorFunc) Validate(ctx context.Context, credential string) error {
	return f(ctx, credential)
}

// StaticToken сравнивает токен с единственным общим секретом
type StaticToken struct {
	Token string
}

// Validate проверяет точное совпадение токена за постоянное время
func (s StaticToken) Validate(_ context.Context, credential string) error {
	if credential == "" {
		return ErrMissingCredential
	}
	if s.Token == "" || subtle.ConstantTimeCompare([]byte(credential), []byte(s.Token)) != 1 {
		return ErrInvalidCredential
	}
	return nil
}

// BearerToken извлекает токен из заголовка Authorization
func BearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
