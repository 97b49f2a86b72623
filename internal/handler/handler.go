// Package handler содержит HTTP-обработчики API интернет-магазина.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/mmeshcher/storefront/internal/auth"
	"github.com/mmeshcher/storefront/internal/media"
	"github.com/mmeshcher/storefront/internal/metrics"
	"github.com/mmeshcher/storefront/internal/middleware"
	"github.com/mmeshcher/storefront/internal/model"
	"github.com/mmeshcher/storefront/internal/repository"
	"github.com/mmeshcher/storefront/internal/service"
)

// Service определяет контракт бизнес-логики, используемой HTTP-обработчиками.
type Service interface {
	Ping(ctx context.Context) error

	RegisterUser(ctx context.Context, username, password, email string) (int64, error)
	AuthenticateUser(ctx context.Context, username, password string) (model.Actor, error)

	ListCategories(ctx context.Context) ([]model.Category, error)
	CreateCategory(ctx context.Context, name string, description *string) (*model.Category, error)
	UpdateCategory(ctx context.Context, id int64, patch model.CategoryPatch) (*model.Category, error)
	DeleteCategory(ctx context.Context, id int64) error

	ListProducts(ctx context.Context, categoryID *int64, page, limit int) (*model.ProductPage, error)
	GetProduct(ctx context.Context, id int64) (*model.Product, error)
	CreateProduct(ctx context.Context, in service.ProductInput, img *service.Upload) (*model.Product, error)
	UpdateProduct(ctx context.Context, id int64, patch model.ProductPatch, img *service.Upload) (*model.Product, error)
	DeleteProduct(ctx context.Context, id int64) error

	PlaceOrder(ctx context.Context, actor model.Actor, productID int64, quantity int) (*model.Order, error)
	ListOrders(ctx context.Context) ([]model.Order, error)
	ListUserOrders(ctx context.Context, actor model.Actor) ([]model.Order, error)
	SetOrderStatus(ctx context.Context, actor model.Actor, orderID int64, status string) (*model.Order, error)
	RemoveOrder(ctx context.Context, actor model.Actor, orderID int64) error
}

// Options задаёт необязательные части HTTP API.
type Options struct {
	Metrics     *metrics.Metrics
	// StaticDir задаёт каталог с изображениями, который отдаётся по StaticPath. Пустое значение отключает раздачу.
	StaticDir   string
	StaticPath  string
	// CORSOrigins задаёт origin фронтенда. Пустой список отключает CORS.
	CORSOrigins []string
}

// Handler реализует HTTP-обработчики API интернет-магазина.
type Handler struct {
	service        Service
	logger         *zap.Logger
	tokens         *auth.TokenManager
	authMiddleware *middleware.AuthMiddleware
	opts           Options
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
func NewHandler(s Service, logger *zap.Logger, tokens *auth.TokenManager, opts Options) *Handler {
	return &Handler{
		service:        s,
		logger:         logger,
		tokens:         tokens,
		authMiddleware: middleware.NewAuthMiddleware(tokens),
		opts:           opts,
	}
}

type messageResponse struct {
	Message string `json:"message"`
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("encode response error", zap.Error(err))
	}
}

// writeServiceError переводит ошибку бизнес-логики в HTTP-статус.
// Неизвестные ошибки логируются, клиент получает общий текст.
func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, op string, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidInput),
		errors.Is(err, repository.ErrInsufficientStock),
		errors.Is(err, repository.ErrInvalidTransition),
		errors.Is(err, repository.ErrInvalidValue),
		errors.Is(err, media.ErrUnsupportedImage),
		errors.Is(err, media.ErrTypeMismatch):
		middleware.WriteError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrUnauthorized):
		middleware.WriteError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, repository.ErrForbidden):
		middleware.WriteError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, repository.ErrNotFound):
		middleware.WriteError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, repository.ErrConflict):
		middleware.WriteError(w, http.StatusConflict, err.Error())
	default:
		h.logger.Error(op+" error",
			zap.Error(err),
			zap.String("request_id", middleware.RequestIDFromContext(r.Context())),
		)
		middleware.WriteError(w, http.StatusInternalServerError, "internal server error")
	}
}

func decodeJSON(r *http.Request, dst any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(dst)
}

func pathID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func (h *Handler) actor(r *http.Request) (model.Actor, bool) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		return model.Actor{}, false
	}
	return claims.Actor(), true
}

type registerRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Email    string `json:"email"`
}

type registerResponse struct {
	Message string `json:"message"`
	ID      int64  `json:"id"`
}

// Register обрабатывает регистрацию нового пользователя.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	id, err := h.service.RegisterUser(r.Context(), req.Username, req.Password, req.Email)
	if err != nil {
		h.writeServiceError(w, r, "register user", err)
		return
	}

	h.logger.Info("user registered", zap.Int64("user_id", id))
	h.writeJSON(w, http.StatusCreated, registerResponse{Message: "User registered successfully", ID: id})
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token string `json:"token"`
}

// Login проверяет логин и пароль и выдаёт bearer-токен.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Username == "" || req.Password == "" {
		middleware.WriteError(w, http.StatusBadRequest, "username and password are required")
		return
	}

	actor, err := h.service.AuthenticateUser(r.Context(), req.Username, req.Password)
	if err != nil {
		h.writeServiceError(w, r, "login user", err)
		return
	}

	token, err := h.tokens.Issue(actor)
	if err != nil {
		h.writeServiceError(w, r, "issue token", err)
		return
	}

	h.writeJSON(w, http.StatusOK, loginResponse{Token: token})
}

// Health сообщает, доступно ли хранилище.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := h.service.Ping(ctx); err != nil {
		h.logger.Warn("health check failed", zap.Error(err))
		h.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
