package handler

import (
	"errors"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/mmeshcher/storefront/internal/middleware"
	"github.com/mmeshcher/storefront/internal/model"
	"github.com/mmeshcher/storefront/internal/service"
)

// maxUploadSize ограничивает тело запроса с изображением товара.
const maxUploadSize = 10 << 20

var errTooLarge = errors.New("request body too large")

// ListCategories возвращает список категорий.
func (h *Handler) ListCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.service.ListCategories(r.Context())
	if err != nil {
		h.writeServiceError(w, r, "list categories", err)
		return
	}
	if categories == nil {
		categories = []model.Category{}
	}
	h.writeJSON(w, http.StatusOK, categories)
}

type categoryRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
}

// CreateCategory создаёт категорию.
func (h *Handler) CreateCategory(w http.ResponseWriter, r *http.Request) {
	var req categoryRequest
	if err := decodeJSON(r, &req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	name := ""
	if req.Name != nil {
		name = *req.Name
	}

	c, err := h.service.CreateCategory(r.Context(), name, req.Description)
	if err != nil {
		h.writeServiceError(w, r, "create category", err)
		return
	}
	h.writeJSON(w, http.StatusCreated, c)
}

// UpdateCategory меняет переданные поля категории.
func (h *Handler) UpdateCategory(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		middleware.WriteError(w, http.StatusBadRequest, "invalid category id")
		return
	}

	var req categoryRequest
	if err := decodeJSON(r, &req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	c, err := h.service.UpdateCategory(r.Context(), id, model.CategoryPatch{
		Name:        req.Name,
		Description: req.Description,
	})
	if err != nil {
		h.writeServiceError(w, r, "update category", err)
		return
	}
	h.writeJSON(w, http.StatusOK, c)
}

// DeleteCategory удаляет категорию вместе с её товарами.
func (h *Handler) DeleteCategory(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		middleware.WriteError(w, http.StatusBadRequest, "invalid category id")
		return
	}

	if err := h.service.DeleteCategory(r.Context(), id); err != nil {
		h.writeServiceError(w, r, "delete category", err)
		return
	}
	h.writeJSON(w, http.StatusOK, messageResponse{Message: "Category deleted"})
}

// queryInt возвращает 0 для отсутствующего или нечислового параметра, сервис подставит значение по умолчанию.
func queryInt(r *http.Request, name string) int {
	v, err := strconv.Atoi(r.URL.Query().Get(name))
	if err != nil {
		return 0
	}
	return v
}

// ListProducts возвращает страницу товаров.
func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	var categoryID *int64
	if raw := r.URL.Query().Get("categoryId"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			middleware.WriteError(w, http.StatusBadRequest, "invalid categoryId")
			return
		}
		categoryID = &id
	}

	page, err := h.service.ListProducts(r.Context(), categoryID, queryInt(r, "page"), queryInt(r, "limit"))
	if err != nil {
		h.writeServiceError(w, r, "list products", err)
		return
	}
	h.writeJSON(w, http.StatusOK, page)
}

// GetProduct возвращает товар по идентификатору.
func (h *Handler) GetProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		middleware.WriteError(w, http.StatusBadRequest, "invalid product id")
		return
	}

	p, err := h.service.GetProduct(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, r, "get product", err)
		return
	}
	h.writeJSON(w, http.StatusOK, p)
}

// productForm содержит поля товара из JSON или multipart-формы. nil означает, что поле не передано.
type productForm struct {
	Name        *string          `json:"name"`
	Description *string          `json:"description"`
	Price       *decimal.Decimal `json:"price"`
	Stock       *int             `json:"stock"`
	CategoryID  *int64           `json:"categoryId"`
}

func formValue(r *http.Request, key string) (string, bool) {
	vs, ok := r.MultipartForm.Value[key]
	if !ok || len(vs) == 0 {
		return "", false
	}
	return vs[0], true
}

// parseProductRequest разбирает тело запроса товара. Изображение принимается только в multipart-форме в поле image.
func parseProductRequest(w http.ResponseWriter, r *http.Request) (*productForm, *service.Upload, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "multipart/form-data" {
		var form productForm
		if err := decodeJSON(r, &form); err != nil {
			var maxErr *http.MaxBytesError
			if errors.As(err, &maxErr) {
				return nil, nil, errTooLarge
			}
			return nil, nil, errors.New("invalid request body")
		}
		return &form, nil, nil
	}

	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return nil, nil, errTooLarge
		}
		return nil, nil, errors.New("invalid multipart form")
	}

	var form productForm
	if v, ok := formValue(r, "name"); ok {
		form.Name = &v
	}
	if v, ok := formValue(r, "description"); ok {
		form.Description = &v
	}
	if v, ok := formValue(r, "price"); ok {
		price, err := decimal.NewFromString(strings.TrimSpace(v))
		if err != nil {
			return nil, nil, errors.New("invalid price")
		}
		form.Price = &price
	}
	if v, ok := formValue(r, "stock"); ok {
		stock, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return nil, nil, errors.New("invalid stock")
		}
		form.Stock = &stock
	}
	if v, ok := formValue(r, "categoryId"); ok {
		id, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return nil, nil, errors.New("invalid categoryId")
		}
		form.CategoryID = &id
	}

	file, header, err := r.FormFile("image")
	if errors.Is(err, http.ErrMissingFile) {
		return &form, nil, nil
	}
	if err != nil {
		return nil, nil, errors.New("invalid image upload")
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, nil, errors.New("invalid image upload")
	}

	return &form, &service.Upload{
		Data:        data,
		ContentType: header.Header.Get("Content-Type"),
		Filename:    header.Filename,
	}, nil
}

func writeFormError(w http.ResponseWriter, err error) {
	if errors.Is(err, errTooLarge) {
		middleware.WriteError(w, http.StatusRequestEntityTooLarge, err.Error())
		return
	}
	middleware.WriteError(w, http.StatusBadRequest, err.Error())
}

// CreateProduct создаёт товар.
func (h *Handler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	form, img, err := parseProductRequest(w, r)
	if err != nil {
		writeFormError(w, err)
		return
	}
	if form.Name == nil || form.Price == nil || form.Stock == nil || form.CategoryID == nil {
		middleware.WriteError(w, http.StatusBadRequest, "name, price, stock and categoryId are required")
		return
	}

	p, err := h.service.CreateProduct(r.Context(), service.ProductInput{
		Name:        *form.Name,
		Description: form.Description,
		Price:       *form.Price,
		Stock:       *form.Stock,
		CategoryID:  *form.CategoryID,
	}, img)
	if err != nil {
		h.writeServiceError(w, r, "create product", err)
		return
	}
	h.writeJSON(w, http.StatusCreated, p)
}

// UpdateProduct меняет переданные поля товара и, если передано, его изображение.
func (h *Handler) UpdateProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		middleware.WriteError(w, http.StatusBadRequest, "invalid product id")
		return
	}

	form, img, err := parseProductRequest(w, r)
	if err != nil {
		writeFormError(w, err)
		return
	}

	p, err := h.service.UpdateProduct(r.Context(), id, model.ProductPatch{
		Name:        form.Name,
		Description: form.Description,
		Price:       form.Price,
		Stock:       form.Stock,
		CategoryID:  form.CategoryID,
	}, img)
	if err != nil {
		h.writeServiceError(w, r, "update product", err)
		return
	}
	h.writeJSON(w, http.StatusOK, p)
}

// DeleteProduct удаляет товар.
func (h *Handler) DeleteProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		middleware.WriteError(w, http.StatusBadRequest, "invalid product id")
		return
	}

	if err := h.service.DeleteProduct(r.Context(), id); err != nil {
		h.writeServiceError(w, r, "delete product", err)
		return
	}
	h.writeJSON(w, http.StatusOK, messageResponse{Message: "Product deleted"})
}
