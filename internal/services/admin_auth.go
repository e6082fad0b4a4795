package services

import (
	"crypto/subtle"
	"errors"
	"strings"

	"profilesite/internal/utils"
)

var ErrInvalidCredentials = errors.New("invalid credentials")

// AdminAuth 单管理员账号校验，账号来自配置
type AdminAuth struct {
	email        string
	passwordHash string
}

func NewAdminAuth(email, passwordHash string) *AdminAuth {
	return &AdminAuth{
		email:        strings.ToLower(strings.TrimSpace(email)),
		passwordHash: passwordHash,
	}
}

// Verify 邮箱不区分大小写；未配置管理员时一律拒绝
func (a *AdminAuth) Verify(email, password string) error {
	if a.email == "" || a.passwordHash == "" {
		return ErrInvalidCredentials
	}

	given := strings.ToLower(strings.TrimSpace(email))
	emailOK := subtle.ConstantTimeCompare([]byte(given), []byte(a.email)) == 1
	passwordOK := utils.CheckPasswordHash(password, a.passwordHash)
	if !emailOK || !passwordOK {
		return ErrInvalidCredentials
	}
	return nil
}

// Email 管理员邮箱（已规范化）
func (a *AdminAuth) Email() string {
	return a.email
}
