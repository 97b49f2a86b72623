// Package auth реализует хеширование паролей и выпуск подписанных токенов доступа.
package auth

import (
	"crypto/rand"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/mmeshcher/storefront/internal/model"
)

// TokenTTL задаёт время жизни токена доступа.
const TokenTTL = 24 * time.Hour

// ErrInvalidToken возвращается для просроченного, повреждённого или чужого токена.
var ErrInvalidToken = errors.New("invalid token")

// Claims содержит данные пользователя, зашитые в токен.
type Claims struct {
	ID       int64      `json:"id"`
	Username string     `json:"username"`
	Role     model.Role `json:"role"`
	Email    string     `json:"email"`
	jwt.RegisteredClaims
}

// Actor возвращает пользователя, от имени которого действует владелец токена.
func (c *Claims) Actor() model.Actor {
	return model.Actor{
		ID:       c.ID,
		Username: c.Username,
		Email:    c.Email,
		Role:     c.Role,
	}
}

// TokenManager выпускает и проверяет HS256-токены.
type TokenManager struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenManager создаёт TokenManager. Пустой секрет заменяется случайным ключом,
// такие токены перестают быть действительными после перезапуска.
func NewTokenManager(secret string) *TokenManager {
	key := []byte(secret)
	if len(key) == 0 {
		key = make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			key = []byte("storefront-default-secret")
		}
	}

	return &TokenManager{
		secret: key,
		ttl:    TokenTTL,
		now:    time.Now,
	}
}

// Issue выпускает токен для пользователя.
func (m *TokenManager) Issue(actor model.Actor) (string, error) {
	now := m.now()
	claims := Claims{
		ID:       actor.ID,
		Username: actor.Username,
		Role:     actor.Role,
		Email:    actor.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return token, nil
}

// Verify проверяет подпись и срок действия токена и возвращает его данные.
func (m *TokenManager) Verify(raw string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(raw, &Claims{}, func(*jwt.Token) (interface{}, error) {
		return m.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}

	// Роль проверяется отдельно: подпись не гарантирует, что значение из закрытого списка.
	if _, ok := model.ParseRole(string(claims.Role)); !ok {
		return nil, fmt.Errorf("%w: unknown role %q", ErrInvalidToken, claims.Role)
	}
	if claims.ID <= 0 {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}

	return claims, nil
}

// MaxPasswordLen ограничивает длину пароля в байтах, более длинные bcrypt не хеширует.
const MaxPasswordLen = 72

// HashPassword возвращает bcrypt-хеш пароля.
func HashPassword(password string) ([]byte, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	return hash, nil
}

// CheckPassword сравнивает хеш с паролем за время, не зависящее от совпадения.
func CheckPassword(hash []byte, password string) bool {
	return bcrypt.CompareHashAndPassword(hash, []byte(password)) == nil
}
