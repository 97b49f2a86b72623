// Package model содержит доменные сущности интернет-магазина.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Role описывает роль пользователя. Допустимы только RoleAdmin и RoleUser.
type Role string

const (
	RoleAdmin Role = "admin"
	RoleUser  Role = "user"
)

// ParseRole возвращает роль по строковому значению и признак того, что роль известна.
func ParseRole(s string) (Role, bool) {
	switch Role(s) {
	case RoleAdmin, RoleUser:
		return Role(s), true
	default:
		return "", false
	}
}

// User представляет зарегистрированного покупателя или администратора.
type User struct {
	ID           int64
	Username     string
	Email        string
	PasswordHash []byte
	Role         Role
	CreatedAt    time.Time
}

// Actor описывает пользователя, от имени которого выполняется операция.
type Actor struct {
	ID       int64
	Username string
	Email    string
	Role     Role
}

// IsAdmin сообщает, обладает ли пользователь правами администратора.
func (a Actor) IsAdmin() bool {
	return a.Role == RoleAdmin
}

// CanManage сообщает, может ли пользователь изменять заказ владельца ownerID.
func (a Actor) CanManage(ownerID int64) bool {
	return a.IsAdmin() || a.ID == ownerID
}

// Category описывает категорию товаров.
type Category struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description *string   `json:"description"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// CategoryPatch содержит изменяемые поля категории; nil означает «не менять».
type CategoryPatch struct {
	Name        *string
	Description *string
}

// CategoryRef содержит краткое представление категории внутри товара.
type CategoryRef struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Product описывает товар каталога с остатком на складе.
type Product struct {
	ID          int64           `json:"id"`
	Name        string          `json:"name"`
	Description *string         `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Stock       int             `json:"stock"`
	ImageURL    *string         `json:"imageUrl"`
	CategoryID  int64           `json:"categoryId"`
	Category    *CategoryRef    `json:"category,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

// ProductPatch содержит изменяемые поля товара; nil означает «не менять».
type ProductPatch struct {
	Name        *string
	Description *string
	Price       *decimal.Decimal
	Stock       *int
	ImageURL    *string
	CategoryID  *int64
}

// ProductFilter задаёт параметры выборки товаров.
type ProductFilter struct {
	CategoryID *int64
	Limit      int
	Offset     int
}

// ProductPage описывает страницу списка товаров.
type ProductPage struct {
	Products    []Product `json:"products"`
	TotalPages  int       `json:"totalPages"`
	CurrentPage int       `json:"currentPage"`
}

// TotalPages вычисляет число страниц как ceil(count/limit).
func TotalPages(count, limit int) int {
	if limit <= 0 {
		return 0
	}
	return (count + limit - 1) / limit
}
