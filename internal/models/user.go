// models содержит доменные сущности клиента BookHub.
// Эти типы зеркалят JSON-представление REST API платформы.
package models

import "time"

// User — профиль пользователя платформы.
type User struct {
	ID        int64     `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email,omitempty"`
	Role      string    `json:"role,omitempty"`
	Bio       string    `json:"bio,omitempty"`
	AvatarURL string    `json:"avatar_url,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// UserPatch — частичное обновление профиля.
// nil-поле означает «не менять»; применяется локально без сетевого вызова
// (оптимистичное отражение уже подтверждённых сервером изменений).
type UserPatch struct {
	Username  *string `json:"username,omitempty"`
	Email     *string `json:"email,omitempty"`
	Bio       *string `json:"bio,omitempty"`
	AvatarURL *string `json:"avatar_url,omitempty"`
}

// Apply накладывает patch на пользователя (shallow-merge).
func (p UserPatch) Apply(u *User) {
	if u == nil {
		return
	}

	if p.Username != nil {
		u.Username = *p.Username
	}
	if p.Email != nil {
		u.Email = *p.Email
	}
	if p.Bio != nil {
		u.Bio = *p.Bio
	}
	if p.AvatarURL != nil {
		u.AvatarURL = *p.AvatarURL
	}
}
