// Package repository содержит реализацию доступа к данным магазина в PostgreSQL и в памяти.
package repository

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/shopspring/decimal"

	"github.com/mmeshcher/storefront/internal/model"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// PostgresRepository предоставляет доступ к хранилищу данных в PostgreSQL.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository создаёт новый репозиторий и инициализирует схему БД через миграции.
func NewPostgresRepository(dsn string) (*PostgresRepository, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pool config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	r := &PostgresRepository{pool: pool}

	if err := r.runMigrations(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return r, nil
}

func (r *PostgresRepository) runMigrations(ctx context.Context) error {
	db := stdlib.OpenDBFromPool(r.pool)
	defer db.Close()

	goose.SetBaseFS(migrationsFS)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}

	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	return nil
}

var retryDelays = []time.Duration{50 * time.Millisecond, 150 * time.Millisecond, 400 * time.Millisecond}

// withRetry повторяет транзакцию только при конфликте сериализации или взаимной блокировке.
// Недоступность БД не ретраится.
func (r *PostgresRepository) withRetry(ctx context.Context, fn func() error) error {
	var err error
	for i := 0; ; i++ {
		err = fn()
		if err == nil || !isRetryable(err) || i >= len(retryDelays) {
			return err
		}

		timer := time.NewTimer(retryDelays[i])
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

func isRetryable(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == pgerrcode.SerializationFailure || pgErr.Code == pgerrcode.DeadlockDetected
}

func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

// productWriteError переводит ошибку записи товара в ошибки репозитория.
func productWriteError(err error, categoryID int64, op string) error {
	switch pgCode(err) {
	case pgerrcode.ForeignKeyViolation:
		return fmt.Errorf("%w: category %d", ErrNotFound, categoryID)
	case pgerrcode.CheckViolation, pgerrcode.NumericValueOutOfRange:
		return fmt.Errorf("%w: %v", ErrInvalidValue, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// inTx выполняет fn в транзакции и фиксирует её, если fn не вернула ошибку.
func (r *PostgresRepository) inTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	return r.withRetry(ctx, func() error {
		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		if err := fn(tx); err != nil {
			return err
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit tx: %w", err)
		}
		return nil
	})
}

// Close закрывает пул соединений с БД.
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

// Ping проверяет доступность БД.
func (r *PostgresRepository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// CreateUser создаёт нового пользователя.
func (r *PostgresRepository) CreateUser(ctx context.Context, u model.User) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx,
		`INSERT INTO users (username, email, password_hash, role) VALUES ($1, $2, $3, $4) RETURNING id`,
		u.Username, u.Email, u.PasswordHash, string(u.Role),
	).Scan(&id)
	if err != nil {
		if pgCode(err) == pgerrcode.UniqueViolation {
			return 0, fmt.Errorf("%w: user %s", ErrConflict, u.Username)
		}
		return 0, fmt.Errorf("create user: %w", err)
	}
	return id, nil
}

// GetUserByUsername возвращает пользователя по логину.
func (r *PostgresRepository) GetUserByUsername(ctx context.Context, username string) (*model.User, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, username, email, password_hash, role, created_at FROM users WHERE username = $1`,
		username,
	)

	var (
		u    model.User
		role string
	)
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &role, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	u.Role = model.Role(role)

	return &u, nil
}

// ListCategories возвращает все категории.
func (r *PostgresRepository) ListCategories(ctx context.Context) ([]model.Category, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, name, description, created_at, updated_at FROM categories ORDER BY id`,
	)
	if err != nil {
		return nil, fmt.Errorf("select categories: %w", err)
	}
	defer rows.Close()

	res := []model.Category{}
	for rows.Next() {
		var c model.Category
		if err := rows.Scan(&c.ID, &c.Name, &c.Description, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		res = append(res, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// CreateCategory создаёт категорию.
func (r *PostgresRepository) CreateCategory(ctx context.Context, c model.Category) (*model.Category, error) {
	err := r.pool.QueryRow(ctx,
		`INSERT INTO categories (name, description) VALUES ($1, $2) RETURNING id, created_at, updated_at`,
		c.Name, c.Description,
	).Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert category: %w", err)
	}
	return &c, nil
}

// UpdateCategory меняет заданные поля категории.
func (r *PostgresRepository) UpdateCategory(ctx context.Context, id int64, patch model.CategoryPatch) (*model.Category, error) {
	var c model.Category
	err := r.pool.QueryRow(ctx,
		`UPDATE categories
		 SET name = COALESCE($2, name),
		     description = COALESCE($3, description),
		     updated_at = now()
		 WHERE id = $1
		 RETURNING id, name, description, created_at, updated_at`,
		id, patch.Name, patch.Description,
	).Scan(&c.ID, &c.Name, &c.Description, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("update category: %w", err)
	}
	return &c, nil
}

// DeleteCategory удаляет категорию вместе с её товарами и возвращает ссылки на изображения удалённых товаров.
func (r *PostgresRepository) DeleteCategory(ctx context.Context, id int64) ([]string, error) {
	var images []string

	err := r.inTx(ctx, func(tx pgx.Tx) error {
		images = images[:0]

		// Товары удаляются явно, не полагаясь только на каскад внешнего ключа,
		// чтобы получить ссылки на их изображения.
		rows, err := tx.Query(ctx,
			`DELETE FROM products WHERE category_id = $1 RETURNING image_url`, id,
		)
		if err != nil {
			return fmt.Errorf("delete category products: %w", err)
		}
		for rows.Next() {
			var img *string
			if err := rows.Scan(&img); err != nil {
				rows.Close()
				return fmt.Errorf("scan image: %w", err)
			}
			if img != nil && *img != "" {
				images = append(images, *img)
			}
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return fmt.Errorf("rows error: %w", err)
		}

		tag, err := tx.Exec(ctx, `DELETE FROM categories WHERE id = $1`, id)
		if err != nil {
			return fmt.Errorf("delete category: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return ErrNotFound
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return images, nil
}

const productColumns = `p.id, p.name, p.description, p.price::text, p.stock, p.image_url, p.category_id, c.name, p.created_at, p.updated_at`

func scanProduct(row pgx.Row) (*model.Product, error) {
	var (
		p            model.Product
		price        string
		categoryName string
	)
	err := row.Scan(&p.ID, &p.Name, &p.Description, &price, &p.Stock, &p.ImageURL, &p.CategoryID,
		&categoryName, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}

	p.Price, err = decimal.NewFromString(price)
	if err != nil {
		return nil, fmt.Errorf("parse price %q: %w", price, err)
	}
	p.Category = &model.CategoryRef{ID: p.CategoryID, Name: categoryName}

	return &p, nil
}

// ListProducts возвращает страницу товаров и общее количество товаров, подходящих под фильтр.
func (r *PostgresRepository) ListProducts(ctx context.Context, f model.ProductFilter) ([]model.Product, int, error) {
	var count int
	err := r.pool.QueryRow(ctx,
		`SELECT count(*) FROM products p WHERE ($1::bigint IS NULL OR p.category_id = $1)`,
		f.CategoryID,
	).Scan(&count)
	if err != nil {
		return nil, 0, fmt.Errorf("count products: %w", err)
	}

	rows, err := r.pool.Query(ctx,
		`SELECT `+productColumns+`
		 FROM products p
		 JOIN categories c ON c.id = p.category_id
		 WHERE ($1::bigint IS NULL OR p.category_id = $1)
		 ORDER BY p.id
		 LIMIT $2 OFFSET $3`,
		f.CategoryID, f.Limit, f.Offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("select products: %w", err)
	}
	defer rows.Close()

	res := []model.Product{}
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan product: %w", err)
		}
		res = append(res, *p)
	}

	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("rows error: %w", err)
	}

	return res, count, nil
}

// GetProduct возвращает товар по идентификатору.
func (r *PostgresRepository) GetProduct(ctx context.Context, id int64) (*model.Product, error) {
	p, err := scanProduct(r.pool.QueryRow(ctx,
		`SELECT `+productColumns+`
		 FROM products p
		 JOIN categories c ON c.id = p.category_id
		 WHERE p.id = $1`,
		id,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get product: %w", err)
	}
	return p, nil
}

// CreateProduct создаёт товар. Если категория не существует, возвращается ErrNotFound.
func (r *PostgresRepository) CreateProduct(ctx context.Context, p model.Product) (*model.Product, error) {
	var id int64
	err := r.pool.QueryRow(ctx,
		`INSERT INTO products (name, description, price, stock, image_url, category_id)
		 VALUES ($1, $2, $3::numeric, $4, $5, $6)
		 RETURNING id`,
		p.Name, p.Description, p.Price.String(), p.Stock, p.ImageURL, p.CategoryID,
	).Scan(&id)
	if err != nil {
		return nil, productWriteError(err, p.CategoryID, "insert product")
	}

	return r.GetProduct(ctx, id)
}

// UpdateProduct меняет заданные поля товара и возвращает обновлённый товар и прежнюю ссылку на изображение.
func (r *PostgresRepository) UpdateProduct(ctx context.Context, id int64, patch model.ProductPatch) (*model.Product, *string, error) {
	var (
		previous *string
		price    *string
	)
	if patch.Price != nil {
		s := patch.Price.String()
		price = &s
	}

	err := r.inTx(ctx, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `SELECT image_url FROM products WHERE id = $1 FOR UPDATE`, id).Scan(&previous)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrNotFound
			}
			return fmt.Errorf("lock product: %w", err)
		}

		_, err = tx.Exec(ctx,
			`UPDATE products
			 SET name = COALESCE($2, name),
			     description = COALESCE($3, description),
			     price = COALESCE($4::numeric, price),
			     stock = COALESCE($5::integer, stock),
			     image_url = COALESCE($6, image_url),
			     category_id = COALESCE($7::bigint, category_id),
			     updated_at = now()
			 WHERE id = $1`,
			id, patch.Name, patch.Description, price, patch.Stock, patch.ImageURL, patch.CategoryID,
		)
		if err != nil {
			var categoryID int64
			if patch.CategoryID != nil {
				categoryID = *patch.CategoryID
			}
			return productWriteError(err, categoryID, "update product")
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	p, err := r.GetProduct(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	return p, previous, nil
}

// DeleteProduct удаляет товар и возвращает удалённую запись.
func (r *PostgresRepository) DeleteProduct(ctx context.Context, id int64) (*model.Product, error) {
	p, err := r.GetProduct(ctx, id)
	if err != nil {
		return nil, err
	}

	tag, err := r.pool.Exec(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("delete product: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, ErrNotFound
	}
	return p, nil
}

// PlaceOrder атомарно списывает остаток товара и создаёт заказ в статусе reserved.
// Проверка остатка и списание выполняются одним условным UPDATE, поэтому
// два параллельных заказа на последнюю единицу товара не могут пройти одновременно.
func (r *PostgresRepository) PlaceOrder(ctx context.Context, userID, productID int64, quantity int) (*model.PlacedOrder, error) {
	var res model.PlacedOrder

	err := r.inTx(ctx, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx,
			`UPDATE products SET stock = stock - $2, updated_at = now()
			 WHERE id = $1 AND stock >= $2
			 RETURNING name`,
			productID, quantity,
		).Scan(&res.ProductName)
		if err != nil {
			if !errors.Is(err, pgx.ErrNoRows) {
				return fmt.Errorf("reserve stock: %w", err)
			}

			var exists bool
			if err := tx.QueryRow(ctx,
				`SELECT EXISTS (SELECT 1 FROM products WHERE id = $1)`, productID,
			).Scan(&exists); err != nil {
				return fmt.Errorf("check product: %w", err)
			}
			if !exists {
				return fmt.Errorf("%w: product %d", ErrNotFound, productID)
			}
			return ErrInsufficientStock
		}

		res.Order = model.Order{
			UserID:    userID,
			ProductID: productID,
			Quantity:  quantity,
			Status:    model.OrderStatusReserved,
		}
		err = tx.QueryRow(ctx,
			`INSERT INTO orders (user_id, product_id, quantity, status) VALUES ($1, $2, $3, $4)
			 RETURNING id, created_at, updated_at`,
			userID, productID, quantity, string(model.OrderStatusReserved),
		).Scan(&res.Order.ID, &res.Order.CreatedAt, &res.Order.UpdatedAt)
		if err != nil {
			if pgCode(err) == pgerrcode.ForeignKeyViolation {
				return fmt.Errorf("%w: user %d", ErrNotFound, userID)
			}
			return fmt.Errorf("insert order: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &res, nil
}

const orderListQuery = `SELECT o.id, o.user_id, o.product_id, o.quantity, o.status, o.created_at, o.updated_at,
	        u.username, u.email, p.name, p.price::text
	 FROM orders o
	 JOIN users u ON u.id = o.user_id
	 JOIN products p ON p.id = o.product_id`

func (r *PostgresRepository) queryOrders(ctx context.Context, query string, args ...any) ([]model.Order, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select orders: %w", err)
	}
	defer rows.Close()

	res := []model.Order{}
	for rows.Next() {
		var (
			o      model.Order
			status string
			buyer  model.OrderBuyer
			item   model.OrderProduct
			price  string
		)
		if err := rows.Scan(&o.ID, &o.UserID, &o.ProductID, &o.Quantity, &status, &o.CreatedAt, &o.UpdatedAt,
			&buyer.Username, &buyer.Email, &item.Name, &price); err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}

		item.Price, err = decimal.NewFromString(price)
		if err != nil {
			return nil, fmt.Errorf("parse price %q: %w", price, err)
		}
		o.Status = model.OrderStatus(status)
		o.User = &buyer
		o.Product = &item

		res = append(res, o)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// ListOrders возвращает все заказы с данными покупателя и товара.
func (r *PostgresRepository) ListOrders(ctx context.Context) ([]model.Order, error) {
	return r.queryOrders(ctx, orderListQuery+` ORDER BY o.created_at DESC, o.id DESC`)
}

// ListOrdersByUser возвращает заказы пользователя.
func (r *PostgresRepository) ListOrdersByUser(ctx context.Context, userID int64) ([]model.Order, error) {
	return r.queryOrders(ctx, orderListQuery+` WHERE o.user_id = $1 ORDER BY o.created_at DESC, o.id DESC`, userID)
}

func lockOrder(ctx context.Context, tx pgx.Tx, orderID int64) (orderRef, error) {
	var (
		o      orderRef
		status string
	)
	err := tx.QueryRow(ctx,
		`SELECT user_id, product_id, quantity, status FROM orders WHERE id = $1 FOR UPDATE`,
		orderID,
	).Scan(&o.UserID, &o.ProductID, &o.Quantity, &status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return o, fmt.Errorf("%w: order %d", ErrNotFound, orderID)
		}
		return o, fmt.Errorf("lock order: %w", err)
	}
	o.Status = model.OrderStatus(status)
	return o, nil
}

func restock(ctx context.Context, tx pgx.Tx, productID int64, quantity int) error {
	_, err := tx.Exec(ctx,
		`UPDATE products SET stock = stock + $2, updated_at = now() WHERE id = $1`,
		productID, quantity,
	)
	if err != nil {
		return fmt.Errorf("restock product: %w", err)
	}
	return nil
}

// SetOrderStatus переводит заказ в новый статус. При отмене остаток товара возвращается в той же транзакции.
func (r *PostgresRepository) SetOrderStatus(ctx context.Context, actor model.Actor, orderID int64, next model.OrderStatus) (*model.Order, error) {
	var res model.Order

	err := r.inTx(ctx, func(tx pgx.Tx) error {
		o, err := lockOrder(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if err := checkTransition(actor, o, next); err != nil {
			return err
		}

		if o.Status.RestocksOnExit(next) {
			if err := restock(ctx, tx, o.ProductID, o.Quantity); err != nil {
				return err
			}
		}

		res = model.Order{
			ID:        orderID,
			UserID:    o.UserID,
			ProductID: o.ProductID,
			Quantity:  o.Quantity,
			Status:    next,
		}
		err = tx.QueryRow(ctx,
			`UPDATE orders SET status = $2, updated_at = now() WHERE id = $1 RETURNING created_at, updated_at`,
			orderID, string(next),
		).Scan(&res.CreatedAt, &res.UpdatedAt)
		if err != nil {
			return fmt.Errorf("update order: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &res, nil
}

// RemoveOrder удаляет зарезервированный заказ и возвращает остаток товара на склад.
func (r *PostgresRepository) RemoveOrder(ctx context.Context, actor model.Actor, orderID int64) error {
	return r.inTx(ctx, func(tx pgx.Tx) error {
		o, err := lockOrder(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if err := checkRemoval(actor, o); err != nil {
			return err
		}

		if err := restock(ctx, tx, o.ProductID, o.Quantity); err != nil {
			return err
		}

		if _, err := tx.Exec(ctx, `DELETE FROM orders WHERE id = $1`, orderID); err != nil {
			return fmt.Errorf("delete order: %w", err)
		}
		return nil
	})
}
