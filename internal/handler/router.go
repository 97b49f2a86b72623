package handler

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	custommiddleware "github.com/mmeshcher/storefront/internal/middleware"
	"github.com/mmeshcher/storefront/internal/model"
)

// SetupRouter настраивает HTTP-маршруты и middleware интернет-магазина.
func (h *Handler) SetupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(custommiddleware.RequestID)
	r.Use(custommiddleware.Logger(h.logger))
	r.Use(custommiddleware.Recoverer(h.logger))
	if len(h.opts.CORSOrigins) > 0 {
		r.Use(custommiddleware.CORS(custommiddleware.DefaultCORSOptions(h.opts.CORSOrigins)))
	}
	if h.opts.Metrics != nil {
		r.Use(h.opts.Metrics.Middleware)
	}
	r.Use(custommiddleware.GzipMiddleware)

	r.Get("/healthz", h.Health)
	if h.opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", h.opts.Metrics.Handler())
	}
	if h.opts.StaticDir != "" {
		h.mountStatic(r)
	}

	adminOnly := custommiddleware.RequireRole(model.RoleAdmin)

	r.Route("/api", func(r chi.Router) {
		r.Post("/register", h.Register)
		r.Post("/login", h.Login)

		r.Get("/categories", h.ListCategories)
		r.Get("/products", h.ListProducts)
		r.Get("/products/{id}", h.GetProduct)

		r.Group(func(r chi.Router) {
			r.Use(h.authMiddleware.Authenticate)

			r.Post("/orders", h.PlaceOrder)
			r.Get("/orders/mine", h.ListMyOrders)
			r.Patch("/orders/{id}/status", h.SetOrderStatus)
			r.Delete("/orders/{id}", h.RemoveOrder)

			r.Group(func(r chi.Router) {
				r.Use(adminOnly)

				r.Post("/categories", h.CreateCategory)
				r.Put("/categories/{id}", h.UpdateCategory)
				r.Delete("/categories/{id}", h.DeleteCategory)

				r.Post("/products", h.CreateProduct)
				r.Put("/products/{id}", h.UpdateProduct)
				r.Delete("/products/{id}", h.DeleteProduct)

				r.Get("/orders", h.ListOrders)
			})
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		custommiddleware.WriteError(w, http.StatusNotFound, http.StatusText(http.StatusNotFound))
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		custommiddleware.WriteError(w, http.StatusMethodNotAllowed, http.StatusText(http.StatusMethodNotAllowed))
	})

	return r
}

// mountStatic раздаёт загруженные изображения без листинга каталога.
func (h *Handler) mountStatic(r chi.Router) {
	prefix := "/" + strings.Trim(h.opts.StaticPath, "/")
	files := http.StripPrefix(prefix, http.FileServer(http.Dir(h.opts.StaticDir)))

	r.Get(prefix+"/*", func(w http.ResponseWriter, req *http.Request) {
		if strings.HasSuffix(req.URL.Path, "/") {
			custommiddleware.WriteError(w, http.StatusNotFound, http.StatusText(http.StatusNotFound))
			return
		}
		files.ServeHTTP(w, req)
	})
}
