package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mmeshcher/storefront/internal/metrics"
)

func TestPool_SubmitAndExecute(t *testing.T) {
	pool := NewPool(4, nil)

	const n = 50
	var count atomic.Int64
	var wg sync.WaitGroup
	wg.Add(n)

	for i := 0; i < n; i++ {
		for {
			err := pool.Submit(func() {
				defer wg.Done()
				count.Add(1)
			})
			if err == nil {
				break
			}
			require.ErrorIs(t, err, ErrPoolFull)
			time.Sleep(time.Millisecond)
		}
	}

	wg.Wait()
	pool.Shutdown()
	assert.Equal(t, int64(n), count.Load())
}

func TestPool_ErrPoolFull(t *testing.T) {
	pool := NewPool(1, nil)

	blocker := make(chan struct{})
	started := make(chan struct{})
	require.NoError(t, pool.Submit(func() {
		close(started)
		<-blocker
	}))
	<-started

	// очередь на 2 задачи
	require.NoError(t, pool.Submit(func() {}))
	require.NoError(t, pool.Submit(func() {}))

	assert.ErrorIs(t, pool.Submit(func() {}), ErrPoolFull)

	close(blocker)
	pool.Shutdown()
}

func TestPool_ErrPoolClosed(t *testing.T) {
	pool := NewPool(2, nil)
	pool.Shutdown()
	pool.Shutdown()

	assert.ErrorIs(t, pool.Submit(func() {}), ErrPoolClosed)
}

func TestPool_PanicRecovery(t *testing.T) {
	var panics atomic.Int64
	pool := NewPool(1, func(any) { panics.Add(1) })

	require.NoError(t, pool.Submit(func() { panic("boom") }))

	done := make(chan struct{})
	require.NoError(t, pool.Submit(func() { close(done) }))

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not survive a panicking task")
	}
	pool.Shutdown()
	assert.Equal(t, int64(1), panics.Load())
}

type recordingMailer struct {
	mu    sync.Mutex
	mails []Mail
	err   error
}

func (r *recordingMailer) Send(_ context.Context, m Mail) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mails = append(r.mails, m)
	return r.err
}

func TestNotifier_OrderPlaced(t *testing.T) {
	mailer := &recordingMailer{}
	m := metrics.New()
	n := NewNotifier(mailer, "owner@example.com", 2, m, zap.NewNop())

	n.OrderPlaced(OrderPlaced{
		OrderID:       7,
		BuyerUsername: "alice",
		BuyerEmail:    "a@x.com",
		ProductName:   "Lamp",
		Quantity:      2,
	})
	n.Shutdown()

	require.Len(t, mailer.mails, 2)

	bySubject := map[string]Mail{}
	for _, mail := range mailer.mails {
		bySubject[mail.Subject] = mail
	}

	buyer := bySubject["Order Confirmation"]
	assert.Equal(t, "a@x.com", buyer.To)
	assert.Equal(t, "Your order for Lamp (Quantity: 2) has been reserved.", buyer.Text)

	owner := bySubject["New Order Placed"]
	assert.Equal(t, "owner@example.com", owner.To)
	assert.Equal(t, "New order for Lamp (Quantity: 2) by alice.", owner.Text)

	assertNotifications(t, m, "sent", 2)
}

func assertNotifications(t *testing.T, m *metrics.Metrics, status string, n int) {
	t.Helper()
	expected := fmt.Sprintf(`
# HELP storefront_notifications_total Order notifications by delivery status.
# TYPE storefront_notifications_total counter
storefront_notifications_total{status=%q} %d
`, status, n)
	assert.NoError(t, testutil.GatherAndCompare(m.Registry(), strings.NewReader(expected), "storefront_notifications_total"))
}

func TestNotifier_FailuresAreCounted(t *testing.T) {
	mailer := &recordingMailer{err: errors.New("smtp down")}
	m := metrics.New()
	n := NewNotifier(mailer, "owner@example.com", 1, m, zap.NewNop())

	n.OrderPlaced(OrderPlaced{OrderID: 1, BuyerUsername: "bob", BuyerEmail: "b@x.com", ProductName: "Lamp", Quantity: 1})
	n.Shutdown()

	assert.Len(t, mailer.mails, 2, "each mail is attempted exactly once")
	assertNotifications(t, m, "failed", 2)
}

func TestNotifier_AfterShutdown(t *testing.T) {
	mailer := &recordingMailer{}
	n := NewNotifier(mailer, "owner@example.com", 1, nil, zap.NewNop())
	n.Shutdown()

	assert.NotPanics(t, func() {
		n.OrderPlaced(OrderPlaced{OrderID: 1, BuyerEmail: "b@x.com", ProductName: "Lamp", Quantity: 1})
	})
	assert.Empty(t, mailer.mails)
}

func TestBuildMessage(t *testing.T) {
	raw := string(buildMessage("shop@example.com", Mail{
		To:      "a@x.com",
		Subject: "Order Confirmation",
		Text:    "hello",
	}, time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)))

	assert.True(t, strings.HasPrefix(raw, "From: shop@example.com\r\nTo: a@x.com\r\nSubject: Order Confirmation\r\n"))
	assert.Contains(t, raw, "Content-Type: text/plain; charset=\"UTF-8\"\r\n\r\nhello")
}
