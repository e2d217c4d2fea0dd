package transport

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrTransient временный сбой, запрос можно повторить
	ErrTransient = errors.New("transient failure")
	// ErrValidation сервер отклонил запрос как некорректный
	ErrValidation = errors.New("request rejected")
	// ErrUnauthorized токен не принят сервером
	ErrUnauthorized = errors.New("unauthorized")
	// ErrConflict форма загрузки не совпадает с уже известной серверу
	ErrConflict = errors.New("upload conflict")
	// ErrNotFound загрузка неизвестна серверу
	ErrNotFound = errors.New("upload not found")
	// ErrNotReady контрольная сумма запрошена до завершения загрузки
	ErrNotReady = errors.New("upload not complete")
)

// StatusError ответ сервера с неуспешным статусом
type StatusError struct {
	StatusCode int
	Code       string
	Message    string
	Kind       error
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %d %s: %s", e.Kind, e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %d", e.Kind, e.StatusCode)
}

func (e *StatusError) Unwrap() error {
	return e.Kind
}

// IsTransient сообщает, имеет ли смысл повторить запрос
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient)
}

func kindOf(status int) error {
	switch {
	case status == http.StatusBadRequest, status == http.StatusRequestEntityTooLarge:
		return ErrValidation
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return ErrUnauthorized
	case status == http.StatusConflict:
		return ErrConflict
	case status == http.StatusNotFound:
		return ErrNotFound
	case status == http.StatusTooEarly:
		return ErrNotReady
	case status == http.StatusRequestTimeout, status == http.StatusTooManyRequests, status >= 500:
		return ErrTransient
	default:
		return ErrValidation
	}
}
