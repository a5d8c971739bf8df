package orders

import (
	"database/sql"
	"fmt"
)

// スキーマ定義。
const schema = `
CREATE TABLE IF NOT EXISTS orders (
    -- 注文の一意識別子
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    -- 注文したユーザーの数値ID。gatewayがフィルタに利用する
    user_id INTEGER NOT NULL,
    -- 注文の状態
    status TEXT NOT NULL DEFAULT 'created'
);

CREATE TABLE IF NOT EXISTS order_items (
    -- 明細の一意識別子
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    -- 注文ID
    order_id INTEGER NOT NULL,
    -- 商品の数値ID
    product_id INTEGER NOT NULL,
    -- 数量
    quantity INTEGER NOT NULL DEFAULT 1,
    FOREIGN KEY (order_id) REFERENCES orders(id) ON DELETE CASCADE
);

-- ユーザーIDでの検索を高速化するインデックス。
CREATE INDEX IF NOT EXISTS idx_orders_user_id
    ON orders(user_id);

-- 注文IDでの明細検索を高速化するインデックス。
CREATE INDEX IF NOT EXISTS idx_order_items_order_id
    ON order_items(order_id);
`

// initSchema はSQLiteデータベースにスキーマを適用する。
func initSchema(db *sql.DB) error {
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("スキーマの適用に失敗: %w", err)
	}
	return nil
}
