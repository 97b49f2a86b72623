package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mmeshcher/storefront/internal/media"
	"github.com/mmeshcher/storefront/internal/model"
	"github.com/mmeshcher/storefront/internal/storage"
)

const (
	categoriesCacheKey = "categories:all"

	// DefaultPage и DefaultLimit применяются, если параметры пагинации не заданы.
	DefaultPage  = 1
	DefaultLimit = 10
	// MaxLimit ограничивает размер страницы.
	MaxLimit = 100
)

// Upload содержит загруженный файл изображения.
type Upload struct {
	Data        []byte
	ContentType string
	Filename    string
}

// ProductInput содержит поля нового товара.
type ProductInput struct {
	Name        string
	Description *string
	Price       decimal.Decimal
	Stock       int
	CategoryID  int64
}

// ListCategories возвращает все категории, по возможности из кэша.
func (s *Service) ListCategories(ctx context.Context) ([]model.Category, error) {
	var cached []model.Category
	hit, err := s.cache.Get(ctx, categoriesCacheKey, &cached)
	if err != nil {
		s.logger.Warn("categories cache read failed", zap.Error(err))
	}
	if hit {
		return cached, nil
	}

	gen := s.categoriesGen.Load()
	categories, err := s.repo.ListCategories(ctx)
	if err != nil {
		return nil, err
	}
	if s.categoriesGen.Load() != gen {
		return categories, nil
	}

	if err := s.cache.Set(ctx, categoriesCacheKey, categories, s.cacheTTL); err != nil {
		s.logger.Warn("categories cache write failed", zap.Error(err))
	}
	return categories, nil
}

func (s *Service) invalidateCategories(ctx context.Context) {
	s.categoriesGen.Add(1)
	if err := s.cache.Delete(ctx, categoriesCacheKey); err != nil {
		s.logger.Warn("categories cache invalidation failed", zap.Error(err))
	}
}

// CreateCategory создаёт категорию.
func (s *Service) CreateCategory(ctx context.Context, name string, description *string) (*model.Category, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: category name is required", ErrInvalidInput)
	}

	c, err := s.repo.CreateCategory(ctx, model.Category{Name: name, Description: description})
	if err != nil {
		return nil, err
	}
	s.invalidateCategories(ctx)
	return c, nil
}

// UpdateCategory меняет заданные поля категории.
func (s *Service) UpdateCategory(ctx context.Context, id int64, patch model.CategoryPatch) (*model.Category, error) {
	if patch.Name != nil {
		name := strings.TrimSpace(*patch.Name)
		if name == "" {
			return nil, fmt.Errorf("%w: category name must not be empty", ErrInvalidInput)
		}
		patch.Name = &name
	}

	c, err := s.repo.UpdateCategory(ctx, id, patch)
	if err != nil {
		return nil, err
	}
	s.invalidateCategories(ctx)
	return c, nil
}

// DeleteCategory удаляет категорию вместе с её товарами и их изображениями.
func (s *Service) DeleteCategory(ctx context.Context, id int64) error {
	images, err := s.repo.DeleteCategory(ctx, id)
	if err != nil {
		return err
	}
	s.invalidateCategories(ctx)

	for _, url := range images {
		s.removeAsset(ctx, url)
	}
	return nil
}

// ListProducts возвращает страницу товаров, при необходимости только одной категории.
// page и limit меньше единицы заменяются значениями по умолчанию, limit не больше MaxLimit.
func (s *Service) ListProducts(ctx context.Context, categoryID *int64, page, limit int) (*model.ProductPage, error) {
	if page <= 0 {
		page = DefaultPage
	}
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}

	products, count, err := s.repo.ListProducts(ctx, model.ProductFilter{
		CategoryID: categoryID,
		Limit:      limit,
		Offset:     (page - 1) * limit,
	})
	if err != nil {
		return nil, err
	}
	if products == nil {
		products = []model.Product{}
	}

	return &model.ProductPage{
		Products:    products,
		TotalPages:  model.TotalPages(count, limit),
		CurrentPage: page,
	}, nil
}

// GetProduct возвращает товар по идентификатору.
func (s *Service) GetProduct(ctx context.Context, id int64) (*model.Product, error) {
	return s.repo.GetProduct(ctx, id)
}

// CreateProduct создаёт товар. Изображение проверяется и сохраняется до записи в хранилище.
func (s *Service) CreateProduct(ctx context.Context, in ProductInput, img *Upload) (*model.Product, error) {
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		return nil, fmt.Errorf("%w: product name is required", ErrInvalidInput)
	}
	if in.Price.IsNegative() {
		return nil, fmt.Errorf("%w: price must not be negative", ErrInvalidInput)
	}
	if in.Stock < 0 || in.Stock > math.MaxInt32 {
		return nil, fmt.Errorf("%w: stock must be between 0 and %d", ErrInvalidInput, math.MaxInt32)
	}
	if in.CategoryID <= 0 {
		return nil, fmt.Errorf("%w: categoryId is required", ErrInvalidInput)
	}

	p := model.Product{
		Name:        in.Name,
		Description: in.Description,
		Price:       in.Price,
		Stock:       in.Stock,
		CategoryID:  in.CategoryID,
	}

	if img != nil {
		url, err := s.storeImage(ctx, img)
		if err != nil {
			return nil, err
		}
		p.ImageURL = &url
	}

	created, err := s.repo.CreateProduct(ctx, p)
	if err != nil {
		if p.ImageURL != nil {
			s.removeAsset(ctx, *p.ImageURL)
		}
		return nil, err
	}

	s.logger.Info("product created", zap.Int64("product_id", created.ID))
	return created, nil
}

// UpdateProduct меняет заданные поля товара. Новое изображение заменяет старое,
// старый файл удаляется после успешного обновления.
func (s *Service) UpdateProduct(ctx context.Context, id int64, patch model.ProductPatch, img *Upload) (*model.Product, error) {
	if patch.Name != nil {
		name := strings.TrimSpace(*patch.Name)
		if name == "" {
			return nil, fmt.Errorf("%w: product name must not be empty", ErrInvalidInput)
		}
		patch.Name = &name
	}
	if patch.Price != nil && patch.Price.IsNegative() {
		return nil, fmt.Errorf("%w: price must not be negative", ErrInvalidInput)
	}
	if patch.Stock != nil && (*patch.Stock < 0 || *patch.Stock > math.MaxInt32) {
		return nil, fmt.Errorf("%w: stock must be between 0 and %d", ErrInvalidInput, math.MaxInt32)
	}
	if patch.CategoryID != nil && *patch.CategoryID <= 0 {
		return nil, fmt.Errorf("%w: categoryId must be positive", ErrInvalidInput)
	}

	patch.ImageURL = nil
	if img != nil {
		url, err := s.storeImage(ctx, img)
		if err != nil {
			return nil, err
		}
		patch.ImageURL = &url
	}

	updated, previous, err := s.repo.UpdateProduct(ctx, id, patch)
	if err != nil {
		if patch.ImageURL != nil {
			s.removeAsset(ctx, *patch.ImageURL)
		}
		return nil, err
	}

	if patch.ImageURL != nil && previous != nil && *previous != *patch.ImageURL {
		s.removeAsset(ctx, *previous)
	}
	return updated, nil
}

// DeleteProduct удаляет товар и его изображение.
func (s *Service) DeleteProduct(ctx context.Context, id int64) error {
	p, err := s.repo.DeleteProduct(ctx, id)
	if err != nil {
		return err
	}
	if p.ImageURL != nil {
		s.removeAsset(ctx, *p.ImageURL)
	}
	s.logger.Info("product deleted", zap.Int64("product_id", id))
	return nil
}

func (s *Service) storeImage(ctx context.Context, up *Upload) (string, error) {
	if s.disk == nil {
		return "", errors.New("image storage is not configured")
	}

	img, err := media.Normalize(up.Data, up.ContentType, up.Filename)
	if err != nil {
		return "", err
	}

	key := storage.NewKey(img.Ext)
	if err := s.disk.Put(ctx, key, img.Data, img.ContentType); err != nil {
		return "", fmt.Errorf("store image: %w", err)
	}
	return s.disk.URL(key), nil
}

// removeAsset удаляет файл изображения. Ошибка только логируется.
func (s *Service) removeAsset(ctx context.Context, url string) {
	if s.disk == nil || url == "" {
		return
	}
	key, ok := s.disk.KeyFromURL(url)
	if !ok {
		s.logger.Warn("image url does not belong to storage", zap.String("url", url))
		return
	}
	if err := s.disk.Delete(ctx, key); err != nil {
		s.logger.Warn("failed to delete image", zap.String("key", key), zap.Error(err))
	}
}
