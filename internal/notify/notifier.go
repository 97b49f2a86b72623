package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/storefront/internal/metrics"
)

const defaultSendTimeout = 10 * time.Second

// OrderPlaced содержит данные оформленного заказа для писем.
type OrderPlaced struct {
	OrderID       int64
	BuyerUsername string
	BuyerEmail    string
	ProductName   string
	Quantity      int
}

// Notifier рассылает письма покупателю и владельцу магазина.
type Notifier struct {
	pool        *Pool
	mailer      Mailer
	ownerEmail  string
	sendTimeout time.Duration
	metrics     *metrics.Metrics
	logger      *zap.Logger
}

// NewNotifier создаёт Notifier с пулом из workers воркеров.
func NewNotifier(mailer Mailer, ownerEmail string, workers int, m *metrics.Metrics, logger *zap.Logger) *Notifier {
	n := &Notifier{
		mailer:      mailer,
		ownerEmail:  ownerEmail,
		sendTimeout: defaultSendTimeout,
		metrics:     m,
		logger:      logger,
	}
	n.pool = NewPool(workers, func(r any) {
		logger.Error("notification task panicked", zap.Any("panic", r))
	})
	return n
}

// OrderPlaced ставит в очередь письмо покупателю и письмо владельцу. Не блокируется.
func (n *Notifier) OrderPlaced(o OrderPlaced) {
	mails := []Mail{
		{
			To:      o.BuyerEmail,
			Subject: "Order Confirmation",
			Text:    fmt.Sprintf("Your order for %s (Quantity: %d) has been reserved.", o.ProductName, o.Quantity),
		},
		{
			To:      n.ownerEmail,
			Subject: "New Order Placed",
			Text:    fmt.Sprintf("New order for %s (Quantity: %d) by %s.", o.ProductName, o.Quantity, o.BuyerUsername),
		},
	}

	for _, m := range mails {
		if m.To == "" {
			continue
		}
		n.submit(o.OrderID, m)
	}
}

func (n *Notifier) submit(orderID int64, m Mail) {
	err := n.pool.Submit(func() {
		ctx, cancel := context.WithTimeout(context.Background(), n.sendTimeout)
		defer cancel()

		if err := n.mailer.Send(ctx, m); err != nil {
			n.metrics.Notification(metrics.NotificationFailed)
			n.logger.Error("failed to send notification",
				zap.Int64("order_id", orderID),
				zap.String("subject", m.Subject),
				zap.Error(err),
			)
			return
		}
		n.metrics.Notification(metrics.NotificationSent)
	})

	if err != nil {
		n.metrics.Notification(metrics.NotificationDropped)
		level := n.logger.Warn
		if errors.Is(err, ErrPoolClosed) {
			level = n.logger.Info
		}
		level("notification dropped",
			zap.Int64("order_id", orderID),
			zap.String("subject", m.Subject),
			zap.Error(err),
		)
	}
}

// Shutdown дожидается отправки поставленных в очередь писем.
func (n *Notifier) Shutdown() {
	n.pool.Shutdown()
}
