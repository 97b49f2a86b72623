// Package notify отправляет уведомления о заказах в фоне, не задерживая ответ клиенту.
package notify

import (
	"errors"
	"sync"
)

var (
	// ErrPoolFull возвращается Submit, если все воркеры заняты и очередь заполнена.
	ErrPoolFull = errors.New("notify: pool is full")
	// ErrPoolClosed возвращается Submit после Shutdown.
	ErrPoolClosed = errors.New("notify: pool is closed")
)

// Pool представляет ограниченный пул горутин. Submit никогда не блокируется.
type Pool struct {
	mu      sync.RWMutex
	closed  bool
	tasks   chan func()
	wg      sync.WaitGroup
	once    sync.Once
	onPanic func(any)
}

// NewPool запускает size воркеров; очередь вдвое больше числа воркеров.
func NewPool(size int, onPanic func(any)) *Pool {
	if size <= 0 {
		size = 1
	}

	p := &Pool{
		tasks:   make(chan func(), size*2),
		onPanic: onPanic,
	}

	for i := 0; i < size; i++ {
		p.wg.Add(1)
		go p.worker()
	}

	return p
}

// Submit ставит задачу в очередь и сразу возвращает управление.
func (p *Pool) Submit(task func()) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return ErrPoolClosed
	}

	select {
	case p.tasks <- task:
		return nil
	default:
		return ErrPoolFull
	}
}

// Shutdown перестаёт принимать задачи и ждёт завершения уже поставленных.
// Повторный вызов безопасен.
func (p *Pool) Shutdown() {
	p.once.Do(func() {
		p.mu.Lock()
		p.closed = true
		close(p.tasks)
		p.mu.Unlock()

		p.wg.Wait()
	})
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for task := range p.tasks {
		p.safeRun(task)
	}
}

func (p *Pool) safeRun(task func()) {
	defer func() {
		if r := recover(); r != nil && p.onPanic != nil {
			p.onPanic(r)
		}
	}()
	task()
}
