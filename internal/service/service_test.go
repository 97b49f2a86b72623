package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/png"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/mmeshcher/storefront/internal/auth"
	"github.com/mmeshcher/storefront/internal/media"
	"github.com/mmeshcher/storefront/internal/model"
	"github.com/mmeshcher/storefront/internal/notify"
	"github.com/mmeshcher/storefront/internal/repository"
	"github.com/mmeshcher/storefront/internal/storage"
)

type recordingNotifier struct {
	mu     sync.Mutex
	events []notify.OrderPlaced
}

func (r *recordingNotifier) OrderPlaced(o notify.OrderPlaced) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, o)
}

type mapCache struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMapCache() *mapCache {
	return &mapCache{data: map[string][]byte{}}
}

func (c *mapCache) Get(_ context.Context, key string, dest any) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	raw, ok := c.data[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(raw, dest)
}

func (c *mapCache) Set(_ context.Context, key string, value any, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.data[key] = raw
	return nil
}

func (c *mapCache) Delete(_ context.Context, keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, k := range keys {
		delete(c.data, k)
	}
	return nil
}

type fixture struct {
	svc      *Service
	repo     *repository.MemoryRepository
	notifier *recordingNotifier
	cache    *mapCache
	disk     *storage.LocalDisk
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	disk, err := storage.NewLocalDisk(t.TempDir(), "/uploads")
	require.NoError(t, err)

	f := &fixture{
		repo:     repository.NewMemoryRepository(),
		notifier: &recordingNotifier{},
		cache:    newMapCache(),
		disk:     disk,
	}
	f.svc = NewService(f.repo, Deps{
		Disk:     disk,
		Cache:    f.cache,
		Notifier: f.notifier,
		Logger:   zaptest.NewLogger(t),
	})
	return f
}

func (f *fixture) user(t *testing.T, name string) model.Actor {
	t.Helper()
	ctx := context.Background()
	_, err := f.svc.RegisterUser(ctx, name, "secret", name+"@x.com")
	require.NoError(t, err)
	actor, err := f.svc.AuthenticateUser(ctx, name, "secret")
	require.NoError(t, err)
	return actor
}

func (f *fixture) product(t *testing.T, stock int) *model.Product {
	t.Helper()
	ctx := context.Background()
	c, err := f.svc.CreateCategory(ctx, "Lamps", nil)
	require.NoError(t, err)
	p, err := f.svc.CreateProduct(ctx, ProductInput{
		Name:       "Desk lamp",
		Price:      decimal.RequireFromString("19.99"),
		Stock:      stock,
		CategoryID: c.ID,
	}, nil)
	require.NoError(t, err)
	return p
}

func (f *fixture) stock(t *testing.T, productID int64) int {
	t.Helper()
	p, err := f.svc.GetProduct(context.Background(), productID)
	require.NoError(t, err)
	return p.Stock
}

func pngUpload(t *testing.T, name string) *Upload {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 20, 10))))
	return &Upload{Data: buf.Bytes(), ContentType: "image/png", Filename: name}
}

func TestRegisterUser_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tests := []struct {
		name                      string
		username, password, email string
	}{
		{"empty username", " ", "pw", "a@x.com"},
		{"empty password", "alice", "", "a@x.com"},
		{"empty email", "alice", "pw", ""},
		{"malformed email", "alice", "pw", "alice"},
		{"password too long", "bob", strings.Repeat("p", 80), "b@x.com"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.RegisterUser(ctx, tt.username, tt.password, tt.email)
			assert.ErrorIs(t, err, ErrInvalidInput)
		})
	}
}

func TestRegisterUser_Conflict(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.RegisterUser(ctx, "alice", "pw", "a@x.com")
	require.NoError(t, err)

	_, err = f.svc.RegisterUser(ctx, "alice", "pw", "other@x.com")
	assert.ErrorIs(t, err, repository.ErrConflict)

	_, err = f.svc.RegisterUser(ctx, "bob", "pw", "a@x.com")
	assert.ErrorIs(t, err, repository.ErrConflict)
}

func TestAuthenticateUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	id, err := f.svc.RegisterUser(ctx, "alice", "pw123", "a@x.com")
	require.NoError(t, err)

	actor, err := f.svc.AuthenticateUser(ctx, "alice", "pw123")
	require.NoError(t, err)
	assert.Equal(t, model.Actor{ID: id, Username: "alice", Email: "a@x.com", Role: model.RoleUser}, actor)

	_, err = f.svc.AuthenticateUser(ctx, "alice", "wrong")
	assert.ErrorIs(t, err, ErrUnauthorized)

	_, err = f.svc.AuthenticateUser(ctx, "nobody", "pw123")
	assert.ErrorIs(t, err, ErrUnauthorized)

	u, err := f.repo.GetUserByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.NotEqual(t, []byte("pw123"), u.PasswordHash, "password must be stored hashed")
}

func TestEnsureAdmin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.svc.EnsureAdmin(ctx, "root", "toor", "root@x.com"))
	require.NoError(t, f.svc.EnsureAdmin(ctx, "root", "toor", "root@x.com"), "second call is a no-op")

	actor, err := f.svc.AuthenticateUser(ctx, "root", "toor")
	require.NoError(t, err)
	assert.True(t, actor.IsAdmin())
}

func TestEndToEnd_RegisterLoginOrderCancel(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.RegisterUser(ctx, "alice", "pw123", "a@x.com")
	require.NoError(t, err)

	actor, err := f.svc.AuthenticateUser(ctx, "alice", "pw123")
	require.NoError(t, err)

	tokens := auth.NewTokenManager("test-secret")
	token, err := tokens.Issue(actor)
	require.NoError(t, err)
	claims, err := tokens.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, model.RoleUser, claims.Role)

	p := f.product(t, 5)
	require.Equal(t, int64(1), p.ID)

	order, err := f.svc.PlaceOrder(ctx, claims.Actor(), p.ID, 2)
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusReserved, order.Status)
	assert.Equal(t, 3, f.stock(t, p.ID))

	cancelled, err := f.svc.SetOrderStatus(ctx, claims.Actor(), order.ID, "cancelled")
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusCancelled, cancelled.Status)
	assert.Equal(t, 5, f.stock(t, p.ID))

	require.Len(t, f.notifier.events, 1)
	assert.Equal(t, notify.OrderPlaced{
		OrderID:       order.ID,
		BuyerUsername: "alice",
		BuyerEmail:    "a@x.com",
		ProductName:   "Desk lamp",
		Quantity:      2,
	}, f.notifier.events[0])
}

func TestPlaceOrder_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	actor := f.user(t, "alice")
	p := f.product(t, 5)

	_, err := f.svc.PlaceOrder(ctx, actor, p.ID, 0)
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = f.svc.PlaceOrder(ctx, actor, 0, 1)
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = f.svc.PlaceOrder(ctx, actor, p.ID, math.MaxInt32+1)
	assert.ErrorIs(t, err, ErrInvalidInput, "quantity must fit the integer column")

	_, err = f.svc.PlaceOrder(ctx, actor, 999, 1)
	assert.ErrorIs(t, err, repository.ErrNotFound)

	_, err = f.svc.PlaceOrder(ctx, actor, p.ID, 6)
	assert.ErrorIs(t, err, repository.ErrInsufficientStock)

	assert.Equal(t, 5, f.stock(t, p.ID))
	assert.Empty(t, f.notifier.events, "failed orders are not announced")
}

func TestPlaceOrder_ConcurrentLastUnits(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	actor := f.user(t, "alice")

	const (
		stock    = 17
		quantity = 4
		attempts = 20
	)
	p := f.product(t, stock)

	var (
		wg         sync.WaitGroup
		mu         sync.Mutex
		ok         int
		outOfStock int
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.PlaceOrder(ctx, actor, p.ID, quantity)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case assert.ErrorIs(t, err, repository.ErrInsufficientStock):
				outOfStock++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, stock/quantity, ok)
	assert.Equal(t, attempts-stock/quantity, outOfStock)
	assert.Equal(t, stock%quantity, f.stock(t, p.ID))
}

func TestOrderRestock_ExactlyOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	actor := f.user(t, "alice")
	p := f.product(t, 10)

	t.Run("cancel twice", func(t *testing.T) {
		o, err := f.svc.PlaceOrder(ctx, actor, p.ID, 3)
		require.NoError(t, err)
		require.Equal(t, 7, f.stock(t, p.ID))

		_, err = f.svc.SetOrderStatus(ctx, actor, o.ID, "cancelled")
		require.NoError(t, err)
		assert.Equal(t, 10, f.stock(t, p.ID))

		_, err = f.svc.SetOrderStatus(ctx, actor, o.ID, "cancelled")
		assert.ErrorIs(t, err, repository.ErrInvalidTransition)

		assert.ErrorIs(t, f.svc.RemoveOrder(ctx, actor, o.ID), repository.ErrInvalidTransition)
		assert.Equal(t, 10, f.stock(t, p.ID))
	})

	t.Run("remove twice", func(t *testing.T) {
		o, err := f.svc.PlaceOrder(ctx, actor, p.ID, 4)
		require.NoError(t, err)
		require.Equal(t, 6, f.stock(t, p.ID))

		require.NoError(t, f.svc.RemoveOrder(ctx, actor, o.ID))
		assert.Equal(t, 10, f.stock(t, p.ID))

		assert.ErrorIs(t, f.svc.RemoveOrder(ctx, actor, o.ID), repository.ErrNotFound)
		assert.Equal(t, 10, f.stock(t, p.ID))
	})

	t.Run("completed order keeps stock", func(t *testing.T) {
		o, err := f.svc.PlaceOrder(ctx, actor, p.ID, 2)
		require.NoError(t, err)

		_, err = f.svc.SetOrderStatus(ctx, actor, o.ID, "completed")
		require.NoError(t, err)

		for _, next := range []string{"reserved", "cancelled", "completed"} {
			_, err = f.svc.SetOrderStatus(ctx, actor, o.ID, next)
			assert.ErrorIs(t, err, repository.ErrInvalidTransition, next)
		}
		assert.ErrorIs(t, f.svc.RemoveOrder(ctx, actor, o.ID), repository.ErrInvalidTransition)
		assert.Equal(t, 8, f.stock(t, p.ID))
	})
}

func TestSetOrderStatus_AccessAndInput(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.user(t, "alice")
	bob := f.user(t, "bob")
	require.NoError(t, f.svc.EnsureAdmin(ctx, "root", "toor", "root@x.com"))
	admin, err := f.svc.AuthenticateUser(ctx, "root", "toor")
	require.NoError(t, err)
	p := f.product(t, 10)

	o, err := f.svc.PlaceOrder(ctx, alice, p.ID, 1)
	require.NoError(t, err)

	_, err = f.svc.SetOrderStatus(ctx, alice, o.ID, "shipped")
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = f.svc.SetOrderStatus(ctx, bob, o.ID, "cancelled")
	assert.ErrorIs(t, err, repository.ErrForbidden)
	assert.ErrorIs(t, f.svc.RemoveOrder(ctx, bob, o.ID), repository.ErrForbidden)

	_, err = f.svc.SetOrderStatus(ctx, alice, 999, "cancelled")
	assert.ErrorIs(t, err, repository.ErrNotFound)

	done, err := f.svc.SetOrderStatus(ctx, admin, o.ID, "completed")
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusCompleted, done.Status)

	mine, err := f.svc.ListUserOrders(ctx, alice)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, &model.OrderProduct{Name: "Desk lamp", Price: decimal.RequireFromString("19.99")}, mine[0].Product)

	theirs, err := f.svc.ListUserOrders(ctx, bob)
	require.NoError(t, err)
	assert.Empty(t, theirs)

	all, err := f.svc.ListOrders(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, &model.OrderBuyer{Username: "alice", Email: "alice@x.com"}, all[0].User)
}

func TestStockNeverNegative(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	actor := f.user(t, "alice")
	p := f.product(t, 6)

	rnd := rand.New(rand.NewSource(42))
	var open []int64

	for i := 0; i < 200; i++ {
		switch rnd.Intn(3) {
		case 0:
			o, err := f.svc.PlaceOrder(ctx, actor, p.ID, 1+rnd.Intn(4))
			if err == nil {
				open = append(open, o.ID)
			} else {
				require.ErrorIs(t, err, repository.ErrInsufficientStock)
			}
		case 1:
			if len(open) > 0 {
				idx := rnd.Intn(len(open))
				_, err := f.svc.SetOrderStatus(ctx, actor, open[idx], "cancelled")
				require.NoError(t, err)
				open = append(open[:idx], open[idx+1:]...)
			}
		case 2:
			if len(open) > 0 {
				idx := rnd.Intn(len(open))
				require.NoError(t, f.svc.RemoveOrder(ctx, actor, open[idx]))
				open = append(open[:idx], open[idx+1:]...)
			}
		}
		require.GreaterOrEqual(t, f.stock(t, p.ID), 0)
	}

	for _, id := range open {
		require.NoError(t, f.svc.RemoveOrder(ctx, actor, id))
	}
	assert.Equal(t, 6, f.stock(t, p.ID), "all stock returns once every order is released")
}

func TestProduct_RoundTripAndPartialUpdate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	c, err := f.svc.CreateCategory(ctx, "Books", nil)
	require.NoError(t, err)
	other, err := f.svc.CreateCategory(ctx, "Music", nil)
	require.NoError(t, err)

	desc := "hardcover"
	created, err := f.svc.CreateProduct(ctx, ProductInput{
		Name:        "Go in Action",
		Description: &desc,
		Price:       decimal.RequireFromString("39.50"),
		Stock:       7,
		CategoryID:  c.ID,
	}, nil)
	require.NoError(t, err)

	got, err := f.svc.GetProduct(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "Go in Action", got.Name)
	assert.True(t, decimal.RequireFromString("39.5").Equal(got.Price))
	assert.Equal(t, 7, got.Stock)
	assert.Equal(t, c.ID, got.CategoryID)
	assert.Equal(t, &model.CategoryRef{ID: c.ID, Name: "Books"}, got.Category)

	stock := 3
	updated, err := f.svc.UpdateProduct(ctx, created.ID, model.ProductPatch{Stock: &stock, CategoryID: &other.ID}, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, updated.Stock)
	assert.Equal(t, other.ID, updated.CategoryID)
	assert.Equal(t, "Go in Action", updated.Name)
	assert.Equal(t, &desc, updated.Description)
	assert.True(t, got.Price.Equal(updated.Price))

	_, err = f.svc.GetProduct(ctx, 999)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestProduct_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c, err := f.svc.CreateCategory(ctx, "Books", nil)
	require.NoError(t, err)

	valid := ProductInput{Name: "x", Price: decimal.NewFromInt(1), Stock: 1, CategoryID: c.ID}

	tests := []struct {
		name    string
		mutate  func(in *ProductInput)
		wantErr error
	}{
		{"empty name", func(in *ProductInput) { in.Name = "  " }, ErrInvalidInput},
		{"negative price", func(in *ProductInput) { in.Price = decimal.NewFromInt(-1) }, ErrInvalidInput},
		{"negative stock", func(in *ProductInput) { in.Stock = -1 }, ErrInvalidInput},
		{"stock overflow", func(in *ProductInput) { in.Stock = math.MaxInt32 + 1 }, ErrInvalidInput},
		{"missing category", func(in *ProductInput) { in.CategoryID = 0 }, ErrInvalidInput},
		{"unknown category", func(in *ProductInput) { in.CategoryID = 999 }, repository.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := valid
			tt.mutate(&in)
			_, err := f.svc.CreateProduct(ctx, in, nil)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	p, err := f.svc.CreateProduct(ctx, valid, nil)
	require.NoError(t, err)

	negative := -5
	_, err = f.svc.UpdateProduct(ctx, p.ID, model.ProductPatch{Stock: &negative}, nil)
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = f.svc.UpdateProduct(ctx, 999, model.ProductPatch{}, nil)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestListProducts_Pagination(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	books, err := f.svc.CreateCategory(ctx, "Books", nil)
	require.NoError(t, err)
	music, err := f.svc.CreateCategory(ctx, "Music", nil)
	require.NoError(t, err)

	for i := 0; i < 25; i++ {
		_, err := f.svc.CreateProduct(ctx, ProductInput{
			Name:       fmt.Sprintf("book %d", i),
			Price:      decimal.NewFromInt(int64(i)),
			Stock:      1,
			CategoryID: books.ID,
		}, nil)
		require.NoError(t, err)
	}
	_, err = f.svc.CreateProduct(ctx, ProductInput{Name: "album", Stock: 1, CategoryID: music.ID}, nil)
	require.NoError(t, err)

	page, err := f.svc.ListProducts(ctx, &books.ID, 3, 10)
	require.NoError(t, err)
	assert.Equal(t, 3, page.TotalPages)
	assert.Equal(t, 3, page.CurrentPage)
	assert.Len(t, page.Products, 5)

	page, err = f.svc.ListProducts(ctx, nil, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, DefaultPage, page.CurrentPage)
	assert.Len(t, page.Products, DefaultLimit)
	assert.Equal(t, 3, page.TotalPages)

	page, err = f.svc.ListProducts(ctx, &music.ID, 1, 1000)
	require.NoError(t, err)
	assert.Len(t, page.Products, 1)
	assert.Equal(t, 1, page.TotalPages)

	page, err = f.svc.ListProducts(ctx, &books.ID, 9, 10)
	require.NoError(t, err)
	assert.NotNil(t, page.Products)
	assert.Empty(t, page.Products)
}

func TestProduct_ImageLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c, err := f.svc.CreateCategory(ctx, "Lamps", nil)
	require.NoError(t, err)

	fileOf := func(p *model.Product) string {
		t.Helper()
		require.NotNil(t, p.ImageURL)
		key, ok := f.disk.KeyFromURL(*p.ImageURL)
		require.True(t, ok)
		return filepath.Join(f.disk.Root(), key)
	}

	p, err := f.svc.CreateProduct(ctx, ProductInput{Name: "lamp", Stock: 1, CategoryID: c.ID}, pngUpload(t, "lamp.png"))
	require.NoError(t, err)
	first := fileOf(p)
	assert.FileExists(t, first)

	data, err := os.ReadFile(first)
	require.NoError(t, err)
	cfg, err := png.DecodeConfig(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, media.BoxSize, cfg.Width)
	assert.Equal(t, media.BoxSize, cfg.Height)

	p, err = f.svc.UpdateProduct(ctx, p.ID, model.ProductPatch{}, pngUpload(t, "lamp2.png"))
	require.NoError(t, err)
	second := fileOf(p)
	assert.FileExists(t, second)
	assert.NoFileExists(t, first, "replaced image is removed")

	require.NoError(t, f.svc.DeleteProduct(ctx, p.ID))
	assert.NoFileExists(t, second)

	_, err = f.svc.CreateProduct(ctx, ProductInput{Name: "lamp", Stock: 1, CategoryID: c.ID},
		&Upload{Data: []byte("GIF89a"), ContentType: "image/gif", Filename: "a.gif"})
	assert.ErrorIs(t, err, media.ErrUnsupportedImage)

	_, err = f.svc.CreateProduct(ctx, ProductInput{Name: "lamp", Stock: 1, CategoryID: 999}, pngUpload(t, "orphan.png"))
	assert.ErrorIs(t, err, repository.ErrNotFound)

	entries, err := os.ReadDir(f.disk.Root())
	require.NoError(t, err)
	assert.Empty(t, entries, "assets of failed writes are cleaned up")
}

func TestCategories_CacheAndCascade(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	c, err := f.svc.CreateCategory(ctx, "Lamps", nil)
	require.NoError(t, err)

	list, err := f.svc.ListCategories(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Contains(t, f.cache.data, categoriesCacheKey)

	name := "Lights"
	_, err = f.svc.UpdateCategory(ctx, c.ID, model.CategoryPatch{Name: &name})
	require.NoError(t, err)
	assert.NotContains(t, f.cache.data, categoriesCacheKey, "writes invalidate the cached list")

	list, err = f.svc.ListCategories(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Lights", list[0].Name)

	empty := " "
	_, err = f.svc.UpdateCategory(ctx, c.ID, model.CategoryPatch{Name: &empty})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = f.svc.CreateCategory(ctx, "", nil)
	assert.ErrorIs(t, err, ErrInvalidInput)

	p, err := f.svc.CreateProduct(ctx, ProductInput{Name: "lamp", Stock: 1, CategoryID: c.ID}, pngUpload(t, "lamp.png"))
	require.NoError(t, err)
	key, ok := f.disk.KeyFromURL(*p.ImageURL)
	require.True(t, ok)

	require.NoError(t, f.svc.DeleteCategory(ctx, c.ID))

	_, err = f.svc.GetProduct(ctx, p.ID)
	assert.ErrorIs(t, err, repository.ErrNotFound)
	assert.NoFileExists(t, filepath.Join(f.disk.Root(), key))

	list, err = f.svc.ListCategories(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)

	assert.ErrorIs(t, f.svc.DeleteCategory(ctx, c.ID), repository.ErrNotFound)
}

// pausingRepository останавливает ListCategories после чтения, пока тест не отпустит его.
type pausingRepository struct {
	*repository.MemoryRepository
	read    chan struct{}
	release chan struct{}
}

func (r *pausingRepository) ListCategories(ctx context.Context) ([]model.Category, error) {
	list, err := r.MemoryRepository.ListCategories(ctx)
	if r.read != nil {
		close(r.read)
		<-r.release
		r.read = nil
	}
	return list, err
}

func TestCategories_ReadOverlappingWriteIsNotCached(t *testing.T) {
	ctx := context.Background()
	repo := &pausingRepository{
		MemoryRepository: repository.NewMemoryRepository(),
		read:             make(chan struct{}),
		release:          make(chan struct{}),
	}
	c := newMapCache()
	svc := NewService(repo, Deps{Cache: c, Logger: zaptest.NewLogger(t)})

	done := make(chan []model.Category)
	go func() {
		list, err := svc.ListCategories(ctx)
		assert.NoError(t, err)
		done <- list
	}()

	<-repo.read
	_, err := svc.CreateCategory(ctx, "Lamps", nil)
	require.NoError(t, err)
	close(repo.release)

	stale := <-done
	assert.Empty(t, stale)
	assert.NotContains(t, c.data, categoriesCacheKey, "a list read before the write must not be cached")

	list, err := svc.ListCategories(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "Lamps", list[0].Name)
}
