package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus описывает статус заказа.
type OrderStatus string

const (
	OrderStatusReserved  OrderStatus = "reserved"
	OrderStatusCompleted OrderStatus = "completed"
	OrderStatusCancelled OrderStatus = "cancelled"
)

// ParseOrderStatus возвращает статус по строковому значению и признак того, что статус известен.
func ParseOrderStatus(s string) (OrderStatus, bool) {
	switch OrderStatus(s) {
	case OrderStatusReserved, OrderStatusCompleted, OrderStatusCancelled:
		return OrderStatus(s), true
	default:
		return "", false
	}
}

// CanTransitionTo сообщает, допустим ли переход в статус next.
// Из reserved можно перейти только в completed или cancelled, остальные статусы терминальные.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	if s != OrderStatusReserved {
		return false
	}
	return next == OrderStatusCompleted || next == OrderStatusCancelled
}

// RestocksOnExit сообщает, нужно ли вернуть товар на склад при переходе в статус next.
func (s OrderStatus) RestocksOnExit(next OrderStatus) bool {
	return s == OrderStatusReserved && next == OrderStatusCancelled
}

// Order описывает заказ пользователя на один товар.
type Order struct {
	ID        int64         `json:"id"`
	UserID    int64         `json:"userId"`
	ProductID int64         `json:"productId"`
	Quantity  int           `json:"quantity"`
	Status    OrderStatus   `json:"status"`
	CreatedAt time.Time     `json:"createdAt"`
	UpdatedAt time.Time     `json:"updatedAt"`
	User      *OrderBuyer   `json:"User,omitempty"`
	Product   *OrderProduct `json:"Product,omitempty"`
}

// OrderBuyer содержит данные покупателя в списке заказов.
type OrderBuyer struct {
	Username string `json:"username"`
	Email    string `json:"email"`
}

// OrderProduct содержит данные товара в списке заказов.
type OrderProduct struct {
	Name  string          `json:"name"`
	Price decimal.Decimal `json:"price"`
}

// PlacedOrder описывает результат оформления заказа вместе с данными для уведомлений.
type PlacedOrder struct {
	Order       Order
	ProductName string
}
