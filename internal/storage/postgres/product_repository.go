package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/ofs/internal/domain"
)

type productRepository struct {
	q querier
}

// NewProductRepository создаёт PostgreSQL-реализацию ProductRepository
// в autocommit-режиме.
func NewProductRepository(store *Store) domain.ProductRepository {
	return &productRepository{q: store.DB()}
}

func (r *productRepository) Create(product domain.Product) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	now := time.Now().UTC()
	if product.CreatedAt.IsZero() {
		product.CreatedAt = now
	}
	if product.UpdatedAt.IsZero() {
		product.UpdatedAt = now
	}
	if product.Version == 0 {
		product.Version = 1
	}

	meta, err := marshalMetadata(product.Metadata)
	if err != nil {
		return fmt.Errorf("marshal product metadata: %w", err)
	}

	_, err = r.q.ExecContext(ctx, `
		INSERT INTO products (id, category, price_minor, stock, active, metadata, version, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`,
		product.ID,
		string(product.Category),
		product.PriceMinor,
		stockValue(product.Stock),
		product.Active,
		meta,
		product.Version,
		product.CreatedAt,
		product.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrProductVersionConflict
		}
		return fmt.Errorf("insert product: %w", err)
	}

	return nil
}

func (r *productRepository) Get(id string) (domain.Product, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	var (
		product  domain.Product
		category string
		stock    sql.NullInt32
		meta     []byte
	)
	err := r.q.QueryRowContext(ctx, `
		SELECT id, category, price_minor, stock, active, metadata, version, created_at, updated_at
		FROM products
		WHERE id = $1
	`, id).Scan(
		&product.ID, &category, &product.PriceMinor, &stock, &product.Active,
		&meta, &product.Version, &product.CreatedAt, &product.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Product{}, domain.ErrProductNotFound
	}
	if err != nil {
		return domain.Product{}, fmt.Errorf("select product: %w", err)
	}

	product.Category = domain.Category(category)
	if stock.Valid {
		v := stock.Int32
		product.Stock = &v
	}
	product.Metadata, err = unmarshalMetadata(meta)
	if err != nil {
		return domain.Product{}, fmt.Errorf("unmarshal product metadata: %w", err)
	}

	return product, nil
}

func (r *productRepository) Save(product domain.Product) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	meta, err := marshalMetadata(product.Metadata)
	if err != nil {
		return fmt.Errorf("marshal product metadata: %w", err)
	}

	res, err := r.q.ExecContext(ctx, `
		UPDATE products
		SET category = $1,
		    price_minor = $2,
		    stock = $3,
		    active = $4,
		    metadata = $5,
		    version = version + 1,
		    updated_at = $6
		WHERE id = $7
		  AND version = $8
	`,
		string(product.Category),
		product.PriceMinor,
		stockValue(product.Stock),
		product.Active,
		meta,
		product.UpdatedAt,
		product.ID,
		product.Version,
	)
	if err != nil {
		return fmt.Errorf("update product: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		exists, err := r.productExists(ctx, product.ID)
		if err != nil {
			return err
		}
		if !exists {
			return domain.ErrProductNotFound
		}
		return domain.ErrProductVersionConflict
	}

	return nil
}

func (r *productRepository) productExists(ctx context.Context, id string) (bool, error) {
	var got string
	err := r.q.QueryRowContext(ctx, `SELECT id FROM products WHERE id = $1`, id).Scan(&got)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return false, fmt.Errorf("check product exists: %w", err)
}

func stockValue(stock *int32) sql.NullInt32 {
	if stock == nil {
		return sql.NullInt32{}
	}
	return sql.NullInt32{Int32: *stock, Valid: true}
}

var _ domain.ProductRepository = (*productRepository)(nil)
