// Package service реализует бизнес-логику интернет-магазина.
package service

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/storefront/internal/cache"
	"github.com/mmeshcher/storefront/internal/metrics"
	"github.com/mmeshcher/storefront/internal/model"
	"github.com/mmeshcher/storefront/internal/notify"
	"github.com/mmeshcher/storefront/internal/storage"
)

var (
	// ErrInvalidInput возвращается при некорректных или отсутствующих полях запроса.
	ErrInvalidInput = errors.New("invalid input")
	// ErrUnauthorized возвращается при неверном логине или пароле.
	ErrUnauthorized = errors.New("invalid credentials")
)

// Repository описывает контракт доступа к данным, используемый сервисом.
type Repository interface {
	Close() error
	Ping(ctx context.Context) error

	CreateUser(ctx context.Context, u model.User) (int64, error)
	GetUserByUsername(ctx context.Context, username string) (*model.User, error)

	ListCategories(ctx context.Context) ([]model.Category, error)
	CreateCategory(ctx context.Context, c model.Category) (*model.Category, error)
	UpdateCategory(ctx context.Context, id int64, patch model.CategoryPatch) (*model.Category, error)
	DeleteCategory(ctx context.Context, id int64) ([]string, error)

	ListProducts(ctx context.Context, f model.ProductFilter) ([]model.Product, int, error)
	GetProduct(ctx context.Context, id int64) (*model.Product, error)
	CreateProduct(ctx context.Context, p model.Product) (*model.Product, error)
	UpdateProduct(ctx context.Context, id int64, patch model.ProductPatch) (*model.Product, *string, error)
	DeleteProduct(ctx context.Context, id int64) (*model.Product, error)

	PlaceOrder(ctx context.Context, userID, productID int64, quantity int) (*model.PlacedOrder, error)
	ListOrders(ctx context.Context) ([]model.Order, error)
	ListOrdersByUser(ctx context.Context, userID int64) ([]model.Order, error)
	SetOrderStatus(ctx context.Context, actor model.Actor, orderID int64, next model.OrderStatus) (*model.Order, error)
	RemoveOrder(ctx context.Context, actor model.Actor, orderID int64) error
}

// OrderNotifier получает события об оформленных заказах. Вызов не должен блокироваться.
type OrderNotifier interface {
	OrderPlaced(o notify.OrderPlaced)
}

// Deps содержит дополнительные зависимости сервиса. Незаданные поля заменяются заглушками.
type Deps struct {
	Disk     storage.Disk
	Cache    cache.Cache
	CacheTTL time.Duration
	Notifier OrderNotifier
	Metrics  *metrics.Metrics
	Logger   *zap.Logger
}

// Service содержит бизнес-логику интернет-магазина.
type Service struct {
	repo     Repository
	disk     storage.Disk
	cache    cache.Cache
	cacheTTL time.Duration
	notifier OrderNotifier
	metrics  *metrics.Metrics
	logger   *zap.Logger

	// categoriesGen растёт при каждой записи категорий. Список, прочитанный до записи, в кэш не попадает.
	categoriesGen atomic.Uint64
}

// NewService создаёт новый сервис с указанным репозиторием.
func NewService(repo Repository, deps Deps) *Service {
	s := &Service{
		repo:     repo,
		disk:     deps.Disk,
		cache:    deps.Cache,
		cacheTTL: deps.CacheTTL,
		notifier: deps.Notifier,
		metrics:  deps.Metrics,
		logger:   deps.Logger,
	}
	if s.cache == nil {
		s.cache = cache.Nop{}
	}
	if s.cacheTTL <= 0 {
		s.cacheTTL = 5 * time.Minute
	}
	if s.notifier == nil {
		s.notifier = nopNotifier{}
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	return s
}

type nopNotifier struct{}

func (nopNotifier) OrderPlaced(notify.OrderPlaced) {}

// Close закрывает ресурсы сервиса.
func (s *Service) Close() error {
	if s.repo != nil {
		return s.repo.Close()
	}
	return nil
}

// Ping проверяет доступность хранилища.
func (s *Service) Ping(ctx context.Context) error {
	return s.repo.Ping(ctx)
}
