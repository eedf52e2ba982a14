// Входные/выходные модели REST API, зеркалят контракт сервера.
package models

import "encoding/json"

// Envelope — единый конверт ответа API:
// {"success": bool, "message": string, "data": <payload>}.
type Envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type RegisterRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// AuthPayload — полезная нагрузка login/register: access-токен + профиль.
// У /auth/refresh поле user отсутствует.
type AuthPayload struct {
	Token string `json:"token"`
	User  *User  `json:"user,omitempty"`
}
