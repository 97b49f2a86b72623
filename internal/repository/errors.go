package repository

import (
	"errors"

	"github.com/mmeshcher/storefront/internal/model"
)

var (
	// ErrNotFound возвращается, если сущность не найдена.
	ErrNotFound = errors.New("not found")
	// ErrConflict возвращается при нарушении уникальности логина или почты.
	ErrConflict = errors.New("already exists")
	// ErrInsufficientStock возвращается, если остатка товара не хватает для заказа.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrInvalidTransition возвращается при недопустимой смене статуса заказа.
	ErrInvalidTransition = errors.New("invalid order status transition")
	// ErrForbidden возвращается, если заказ принадлежит другому пользователю.
	ErrForbidden = errors.New("order belongs to another user")
	// ErrInvalidValue возвращается, если значение нарушает ограничение схемы.
	ErrInvalidValue = errors.New("value violates storage constraint")
)

// orderRef содержит минимальные данные заказа, нужные для проверки перехода.
type orderRef struct {
	UserID    int64
	ProductID int64
	Quantity  int
	Status    model.OrderStatus
}

func checkTransition(actor model.Actor, o orderRef, next model.OrderStatus) error {
	if !actor.CanManage(o.UserID) {
		return ErrForbidden
	}
	if !o.Status.CanTransitionTo(next) {
		return ErrInvalidTransition
	}
	return nil
}

// Удалить можно только зарезервированный заказ, иначе товар уже вернулся на склад или продан.
func checkRemoval(actor model.Actor, o orderRef) error {
	if !actor.CanManage(o.UserID) {
		return ErrForbidden
	}
	if o.Status != model.OrderStatusReserved {
		return ErrInvalidTransition
	}
	return nil
}
