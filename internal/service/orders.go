package service

import (
	"context"
	"errors"
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/mmeshcher/storefront/internal/metrics"
	"github.com/mmeshcher/storefront/internal/model"
	"github.com/mmeshcher/storefront/internal/notify"
	"github.com/mmeshcher/storefront/internal/repository"
)

// PlaceOrder резервирует quantity единиц товара за пользователем actor.
// Списание остатка и создание заказа выполняются атомарно, письма отправляются в фоне.
func (s *Service) PlaceOrder(ctx context.Context, actor model.Actor, productID int64, quantity int) (*model.Order, error) {
	if productID <= 0 || quantity <= 0 {
		s.metrics.OrderPlaced(metrics.OutcomeInvalid)
		return nil, fmt.Errorf("%w: productId and positive quantity are required", ErrInvalidInput)
	}
	if quantity > math.MaxInt32 {
		s.metrics.OrderPlaced(metrics.OutcomeInvalid)
		return nil, fmt.Errorf("%w: quantity must be at most %d", ErrInvalidInput, math.MaxInt32)
	}

	placed, err := s.repo.PlaceOrder(ctx, actor.ID, productID, quantity)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrInsufficientStock):
			s.metrics.OrderPlaced(metrics.OutcomeInsufficientStock)
		case errors.Is(err, repository.ErrNotFound):
			s.metrics.OrderPlaced(metrics.OutcomeNotFound)
		default:
			s.metrics.OrderPlaced(metrics.OutcomeError)
		}
		return nil, err
	}
	s.metrics.OrderPlaced(metrics.OutcomeOK)

	s.logger.Info("order created",
		zap.Int64("order_id", placed.Order.ID),
		zap.Int64("product_id", productID),
		zap.Int("quantity", quantity),
	)

	s.notifier.OrderPlaced(notify.OrderPlaced{
		OrderID:       placed.Order.ID,
		BuyerUsername: actor.Username,
		BuyerEmail:    actor.Email,
		ProductName:   placed.ProductName,
		Quantity:      quantity,
	})

	return &placed.Order, nil
}

// ListOrders возвращает все заказы с данными покупателя и товара.
func (s *Service) ListOrders(ctx context.Context) ([]model.Order, error) {
	return s.repo.ListOrders(ctx)
}

// ListUserOrders возвращает заказы пользователя actor.
func (s *Service) ListUserOrders(ctx context.Context, actor model.Actor) ([]model.Order, error) {
	return s.repo.ListOrdersByUser(ctx, actor.ID)
}

// SetOrderStatus переводит заказ в статус status. При отмене товар возвращается на склад.
func (s *Service) SetOrderStatus(ctx context.Context, actor model.Actor, orderID int64, status string) (*model.Order, error) {
	next, ok := model.ParseOrderStatus(status)
	if !ok {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidInput, status)
	}

	o, err := s.repo.SetOrderStatus(ctx, actor, orderID, next)
	if err != nil {
		return nil, err
	}

	s.logger.Info("order status changed", zap.Int64("order_id", orderID), zap.String("status", string(next)))
	return o, nil
}

// RemoveOrder удаляет зарезервированный заказ и возвращает товар на склад.
func (s *Service) RemoveOrder(ctx context.Context, actor model.Actor, orderID int64) error {
	if err := s.repo.RemoveOrder(ctx, actor, orderID); err != nil {
		return err
	}
	s.logger.Info("order removed", zap.Int64("order_id", orderID))
	return nil
}
