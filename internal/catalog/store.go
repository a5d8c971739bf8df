package catalog

import (
	"context"
	"database/sql"
)

// Product はproductsテーブルの1行。
type Product struct {
	// ID は商品の一意識別子。
	ID int64
	// Name は商品名。
	Name string
	// Price は価格。
	Price float64
	// InStock は在庫の有無。
	InStock bool
}

// Queries はproductsテーブルへのクエリ実行オブジェクト。
type Queries struct {
	db *sql.DB
}

// NewQueries は新しいクエリ実行オブジェクトを生成する。
func NewQueries(db *sql.DB) *Queries {
	return &Queries{db: db}
}

// CreateProductParams は商品作成のパラメータ。
type CreateProductParams struct {
	// Name は商品名。
	Name string
	// Price は価格。
	Price float64
	// InStock は在庫の有無。
	InStock bool
}

// CreateProduct は新しい商品を作成し、作成された行を返す。
func (q *Queries) CreateProduct(ctx context.Context, params CreateProductParams) (Product, error) {
	result, err := q.db.ExecContext(ctx,
		`INSERT INTO products (name, price, in_stock) VALUES (?, ?, ?)`,
		params.Name, params.Price, params.InStock,
	)
	if err != nil {
		return Product{}, err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return Product{}, err
	}
	return q.GetProductByID(ctx, id)
}

// GetProductByID はIDで商品を取得する。存在しない場合はsql.ErrNoRowsを返す。
func (q *Queries) GetProductByID(ctx context.Context, id int64) (Product, error) {
	var p Product
	err := q.db.QueryRowContext(ctx,
		`SELECT id, name, price, in_stock FROM products WHERE id = ?`, id,
	).Scan(&p.ID, &p.Name, &p.Price, &p.InStock)
	return p, err
}

// ListProducts は全商品をID昇順で返す。
func (q *Queries) ListProducts(ctx context.Context) ([]Product, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT id, name, price, in_stock FROM products ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var products []Product
	for rows.Next() {
		var p Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Price, &p.InStock); err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

// CountProducts は商品数を返す。起動時のシード判定に使用する。
func (q *Queries) CountProducts(ctx context.Context) (int64, error) {
	var count int64
	err := q.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM products`).Scan(&count)
	return count, err
}
