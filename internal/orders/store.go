package orders

import (
	"context"
	"database/sql"
	"fmt"
)

// Order はordersテーブルの1行と、その明細。
type Order struct {
	// ID は注文の一意識別子。
	ID int64
	// UserID は注文したユーザーの数値ID。
	UserID int64
	// Status は注文の状態。
	Status string
	// Items は注文の明細。
	Items []OrderItem
}

// OrderItem はorder_itemsテーブルの1行。
type OrderItem struct {
	// ID は明細の一意識別子。
	ID int64
	// OrderID は注文ID。
	OrderID int64
	// ProductID は商品の数値ID。
	ProductID int64
	// Quantity は数量。
	Quantity int64
}

// Queries はorders・order_itemsテーブルへのクエリ実行オブジェクト。
type Queries struct {
	db *sql.DB
}

// NewQueries は新しいクエリ実行オブジェクトを生成する。
func NewQueries(db *sql.DB) *Queries {
	return &Queries{db: db}
}

// CreateOrderParams は注文作成のパラメータ。
type CreateOrderParams struct {
	// UserID は注文したユーザーの数値ID。
	UserID int64
	// Items は注文の明細（1件以上）。
	Items []CreateOrderItemParams
}

// CreateOrderItemParams は注文明細1件のパラメータ。
type CreateOrderItemParams struct {
	// ProductID は商品の数値ID。
	ProductID int64
	// Quantity は数量。
	Quantity int64
}

// CreateOrder は注文と明細を1トランザクションで作成し、作成された注文を返す。
// 明細の挿入に失敗した場合は注文ごとロールバックする。
func (q *Queries) CreateOrder(ctx context.Context, params CreateOrderParams) (Order, error) {
	tx, err := q.db.BeginTx(ctx, nil)
	if err != nil {
		return Order{}, fmt.Errorf("トランザクションの開始に失敗: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx,
		`INSERT INTO orders (user_id, status) VALUES (?, 'created')`,
		params.UserID,
	)
	if err != nil {
		return Order{}, fmt.Errorf("注文の挿入に失敗: %w", err)
	}

	orderID, err := result.LastInsertId()
	if err != nil {
		return Order{}, fmt.Errorf("注文IDの取得に失敗: %w", err)
	}

	for _, item := range params.Items {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO order_items (order_id, product_id, quantity) VALUES (?, ?, ?)`,
			orderID, item.ProductID, item.Quantity,
		); err != nil {
			return Order{}, fmt.Errorf("注文明細の挿入に失敗: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return Order{}, fmt.Errorf("トランザクションのコミットに失敗: %w", err)
	}

	return q.GetOrderByID(ctx, orderID)
}

// GetOrderByID はIDで注文を明細込みで取得する。
// 存在しない場合はsql.ErrNoRowsを返す。
func (q *Queries) GetOrderByID(ctx context.Context, id int64) (Order, error) {
	var o Order
	err := q.db.QueryRowContext(ctx,
		`SELECT id, user_id, status FROM orders WHERE id = ?`, id,
	).Scan(&o.ID, &o.UserID, &o.Status)
	if err != nil {
		return Order{}, err
	}

	items, err := q.listItemsByOrderID(ctx, id)
	if err != nil {
		return Order{}, err
	}
	o.Items = items
	return o, nil
}

// ListOrders は全注文を明細込みでID昇順で返す。
func (q *Queries) ListOrders(ctx context.Context) ([]Order, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT id, user_id, status FROM orders ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []Order
	for rows.Next() {
		var o Order
		if err := rows.Scan(&o.ID, &o.UserID, &o.Status); err != nil {
			return nil, err
		}
		o.Items = []OrderItem{}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// 明細は1クエリでまとめて取得し、メモリ上で注文に紐付ける
	itemRows, err := q.db.QueryContext(ctx,
		`SELECT id, order_id, product_id, quantity FROM order_items ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer itemRows.Close()

	itemsByOrder := make(map[int64][]OrderItem)
	for itemRows.Next() {
		var item OrderItem
		if err := itemRows.Scan(&item.ID, &item.OrderID, &item.ProductID, &item.Quantity); err != nil {
			return nil, err
		}
		itemsByOrder[item.OrderID] = append(itemsByOrder[item.OrderID], item)
	}
	if err := itemRows.Err(); err != nil {
		return nil, err
	}

	for i := range orders {
		if items, ok := itemsByOrder[orders[i].ID]; ok {
			orders[i].Items = items
		}
	}
	return orders, nil
}

// listItemsByOrderID は注文IDで明細を取得する。
func (q *Queries) listItemsByOrderID(ctx context.Context, orderID int64) ([]OrderItem, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT id, order_id, product_id, quantity FROM order_items WHERE order_id = ? ORDER BY id`,
		orderID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := []OrderItem{}
	for rows.Next() {
		var item OrderItem
		if err := rows.Scan(&item.ID, &item.OrderID, &item.ProductID, &item.Quantity); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}
