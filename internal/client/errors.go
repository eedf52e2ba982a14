package client

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrInvalidArgument — сервер отверг параметры запроса (HTTP 400).
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrUnauthenticated — запрос не прошёл аутентификацию (HTTP 401):
	// неверные логин/пароль либо токен, который сервер не принял.
	ErrUnauthenticated = errors.New("unauthenticated")

	// ErrPermissionDenied — операция запрещена для текущей роли (HTTP 403).
	ErrPermissionDenied = errors.New("permission denied")

	// ErrNotFound — сущность не найдена (HTTP 404).
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists — конфликт уникальности, например занятый username
	// (HTTP 409).
	ErrAlreadyExists = errors.New("already exists")

	// ErrUnavailable — сервер недоступен или перегружен (HTTP 502/503).
	ErrUnavailable = errors.New("service unavailable")

	// ErrInternal — прочие ошибки сервера (HTTP 5xx и неожиданные статусы).
	ErrInternal = errors.New("internal server error")
)

// errorFromStatus маппит HTTP-статус и message из конверта на sentinel-ошибку;
// message сохраняется в тексте, чтобы вызывающий мог показать его пользователю.
func errorFromStatus(status int, message string) error {
	var base error

	switch status {
	case http.StatusBadRequest:
		base = ErrInvalidArgument
	case http.StatusUnauthorized:
		base = ErrUnauthenticated
	case http.StatusForbidden:
		base = ErrPermissionDenied
	case http.StatusNotFound:
		base = ErrNotFound
	case http.StatusConflict:
		base = ErrAlreadyExists
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		base = ErrUnavailable
	default:
		base = ErrInternal
	}

	if message == "" {
		return base
	}

	return fmt.Errorf("%w: %s", base, message)
}
