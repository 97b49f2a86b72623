package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/mmeshcher/storefront/internal/model"
)

// MemoryRepository реализует хранилище в памяти для локального запуска и тестов.
// Каждая операция выполняется под одной блокировкой записи, что заменяет транзакцию БД.
type MemoryRepository struct {
	mu sync.RWMutex

	nextUserID     int64
	nextCategoryID int64
	nextProductID  int64
	nextOrderID    int64

	users      map[int64]model.User
	categories map[int64]model.Category
	products   map[int64]model.Product
	orders     map[int64]model.Order

	now func() time.Time
}

// NewMemoryRepository создаёт пустое хранилище в памяти.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		nextUserID:     1,
		nextCategoryID: 1,
		nextProductID:  1,
		nextOrderID:    1,
		users:          make(map[int64]model.User),
		categories:     make(map[int64]model.Category),
		products:       make(map[int64]model.Product),
		orders:         make(map[int64]model.Order),
		now:            func() time.Time { return time.Now().UTC() },
	}
}

// Close ничего не делает.
func (m *MemoryRepository) Close() error { return nil }

// Ping всегда успешен.
func (m *MemoryRepository) Ping(context.Context) error { return nil }

// CreateUser создаёт нового пользователя.
func (m *MemoryRepository) CreateUser(_ context.Context, u model.User) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.users {
		if existing.Username == u.Username || existing.Email == u.Email {
			return 0, ErrConflict
		}
	}

	u.ID = m.nextUserID
	m.nextUserID++
	u.CreatedAt = m.now()
	u.PasswordHash = append([]byte(nil), u.PasswordHash...)
	m.users[u.ID] = u

	return u.ID, nil
}

// GetUserByUsername возвращает пользователя по логину.
func (m *MemoryRepository) GetUserByUsername(_ context.Context, username string) (*model.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, u := range m.users {
		if u.Username == username {
			cp := u
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

// ListCategories возвращает все категории.
func (m *MemoryRepository) ListCategories(context.Context) ([]model.Category, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	res := make([]model.Category, 0, len(m.categories))
	for _, c := range m.categories {
		res = append(res, c)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	return res, nil
}

// CreateCategory создаёт категорию.
func (m *MemoryRepository) CreateCategory(_ context.Context, c model.Category) (*model.Category, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c.ID = m.nextCategoryID
	m.nextCategoryID++
	c.CreatedAt = m.now()
	c.UpdatedAt = c.CreatedAt
	m.categories[c.ID] = c

	return &c, nil
}

// UpdateCategory меняет заданные поля категории.
func (m *MemoryRepository) UpdateCategory(_ context.Context, id int64, patch model.CategoryPatch) (*model.Category, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.categories[id]
	if !ok {
		return nil, ErrNotFound
	}
	if patch.Name != nil {
		c.Name = *patch.Name
	}
	if patch.Description != nil {
		c.Description = patch.Description
	}
	c.UpdatedAt = m.now()
	m.categories[id] = c

	return &c, nil
}

// DeleteCategory удаляет категорию вместе с её товарами и заказами на эти товары.
func (m *MemoryRepository) DeleteCategory(_ context.Context, id int64) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.categories[id]; !ok {
		return nil, ErrNotFound
	}

	var images []string
	for pid, p := range m.products {
		if p.CategoryID != id {
			continue
		}
		if p.ImageURL != nil && *p.ImageURL != "" {
			images = append(images, *p.ImageURL)
		}
		m.deleteProductLocked(pid)
	}
	delete(m.categories, id)
	sort.Strings(images)

	return images, nil
}

func (m *MemoryRepository) deleteProductLocked(id int64) {
	delete(m.products, id)
	for oid, o := range m.orders {
		if o.ProductID == id {
			delete(m.orders, oid)
		}
	}
}

func (m *MemoryRepository) productLocked(id int64) (*model.Product, bool) {
	p, ok := m.products[id]
	if !ok {
		return nil, false
	}
	if c, ok := m.categories[p.CategoryID]; ok {
		p.Category = &model.CategoryRef{ID: c.ID, Name: c.Name}
	}
	return &p, true
}

// ListProducts возвращает страницу товаров и общее количество товаров, подходящих под фильтр.
func (m *MemoryRepository) ListProducts(_ context.Context, f model.ProductFilter) ([]model.Product, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]int64, 0, len(m.products))
	for id, p := range m.products {
		if f.CategoryID != nil && p.CategoryID != *f.CategoryID {
			continue
		}
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	count := len(ids)
	res := []model.Product{}
	for i := f.Offset; i < count && (f.Limit <= 0 || len(res) < f.Limit); i++ {
		p, _ := m.productLocked(ids[i])
		res = append(res, *p)
	}

	return res, count, nil
}

// GetProduct возвращает товар по идентификатору.
func (m *MemoryRepository) GetProduct(_ context.Context, id int64) (*model.Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.productLocked(id)
	if !ok {
		return nil, ErrNotFound
	}
	return p, nil
}

// CreateProduct создаёт товар. Если категория не существует, возвращается ErrNotFound.
func (m *MemoryRepository) CreateProduct(_ context.Context, p model.Product) (*model.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.categories[p.CategoryID]; !ok {
		return nil, ErrNotFound
	}

	p.ID = m.nextProductID
	m.nextProductID++
	p.CreatedAt = m.now()
	p.UpdatedAt = p.CreatedAt
	p.Category = nil
	m.products[p.ID] = p

	res, _ := m.productLocked(p.ID)
	return res, nil
}

// UpdateProduct меняет заданные поля товара и возвращает обновлённый товар и прежнюю ссылку на изображение.
func (m *MemoryRepository) UpdateProduct(_ context.Context, id int64, patch model.ProductPatch) (*model.Product, *string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.products[id]
	if !ok {
		return nil, nil, ErrNotFound
	}
	previous := p.ImageURL

	if patch.CategoryID != nil {
		if _, ok := m.categories[*patch.CategoryID]; !ok {
			return nil, nil, ErrNotFound
		}
		p.CategoryID = *patch.CategoryID
	}
	if patch.Name != nil {
		p.Name = *patch.Name
	}
	if patch.Description != nil {
		p.Description = patch.Description
	}
	if patch.Price != nil {
		p.Price = *patch.Price
	}
	if patch.Stock != nil {
		p.Stock = *patch.Stock
	}
	if patch.ImageURL != nil {
		p.ImageURL = patch.ImageURL
	}
	p.UpdatedAt = m.now()
	m.products[id] = p

	res, _ := m.productLocked(id)
	return res, previous, nil
}

// DeleteProduct удаляет товар и возвращает удалённую запись.
func (m *MemoryRepository) DeleteProduct(_ context.Context, id int64) (*model.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.productLocked(id)
	if !ok {
		return nil, ErrNotFound
	}
	m.deleteProductLocked(id)
	return p, nil
}

// PlaceOrder атомарно списывает остаток товара и создаёт заказ в статусе reserved.
func (m *MemoryRepository) PlaceOrder(_ context.Context, userID, productID int64, quantity int) (*model.PlacedOrder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.products[productID]
	if !ok {
		return nil, ErrNotFound
	}
	if _, ok := m.users[userID]; !ok {
		return nil, ErrNotFound
	}
	if p.Stock < quantity {
		return nil, ErrInsufficientStock
	}

	now := m.now()
	p.Stock -= quantity
	p.UpdatedAt = now
	m.products[productID] = p

	o := model.Order{
		ID:        m.nextOrderID,
		UserID:    userID,
		ProductID: productID,
		Quantity:  quantity,
		Status:    model.OrderStatusReserved,
		CreatedAt: now,
		UpdatedAt: now,
	}
	m.nextOrderID++
	m.orders[o.ID] = o

	return &model.PlacedOrder{Order: o, ProductName: p.Name}, nil
}

func (m *MemoryRepository) listOrdersLocked(match func(model.Order) bool) []model.Order {
	res := []model.Order{}
	for _, o := range m.orders {
		if !match(o) {
			continue
		}
		if u, ok := m.users[o.UserID]; ok {
			o.User = &model.OrderBuyer{Username: u.Username, Email: u.Email}
		}
		if p, ok := m.products[o.ProductID]; ok {
			o.Product = &model.OrderProduct{Name: p.Name, Price: p.Price}
		}
		res = append(res, o)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID > res[j].ID })
	return res
}

// ListOrders возвращает все заказы с данными покупателя и товара.
func (m *MemoryRepository) ListOrders(context.Context) ([]model.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.listOrdersLocked(func(model.Order) bool { return true }), nil
}

// ListOrdersByUser возвращает заказы пользователя.
func (m *MemoryRepository) ListOrdersByUser(_ context.Context, userID int64) ([]model.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.listOrdersLocked(func(o model.Order) bool { return o.UserID == userID }), nil
}

func toRef(o model.Order) orderRef {
	return orderRef{UserID: o.UserID, ProductID: o.ProductID, Quantity: o.Quantity, Status: o.Status}
}

func (m *MemoryRepository) restockLocked(productID int64, quantity int) {
	if p, ok := m.products[productID]; ok {
		p.Stock += quantity
		p.UpdatedAt = m.now()
		m.products[productID] = p
	}
}

// SetOrderStatus переводит заказ в новый статус. При отмене остаток товара возвращается на склад.
func (m *MemoryRepository) SetOrderStatus(_ context.Context, actor model.Actor, orderID int64, next model.OrderStatus) (*model.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	o, ok := m.orders[orderID]
	if !ok {
		return nil, ErrNotFound
	}
	if err := checkTransition(actor, toRef(o), next); err != nil {
		return nil, err
	}

	if o.Status.RestocksOnExit(next) {
		m.restockLocked(o.ProductID, o.Quantity)
	}

	o.Status = next
	o.UpdatedAt = m.now()
	m.orders[orderID] = o

	return &o, nil
}

// RemoveOrder удаляет зарезервированный заказ и возвращает остаток товара на склад.
func (m *MemoryRepository) RemoveOrder(_ context.Context, actor model.Actor, orderID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	o, ok := m.orders[orderID]
	if !ok {
		return ErrNotFound
	}
	if err := checkRemoval(actor, toRef(o)); err != nil {
		return err
	}

	m.restockLocked(o.ProductID, o.Quantity)
	delete(m.orders, orderID)

	return nil
}
