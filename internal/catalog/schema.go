package catalog

import (
	"database/sql"
	"fmt"
)

// スキーマ定義。
const schema = `
CREATE TABLE IF NOT EXISTS products (
    -- 商品の一意識別子
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    -- 商品名
    name TEXT NOT NULL,
    -- 価格
    price REAL NOT NULL,
    -- 在庫の有無
    in_stock INTEGER NOT NULL DEFAULT 1
);

-- 商品名での検索を高速化するインデックス。
CREATE INDEX IF NOT EXISTS idx_products_name
    ON products(name);
`

// initSchema はSQLiteデータベースにスキーマを適用する。
func initSchema(db *sql.DB) error {
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("スキーマの適用に失敗: %w", err)
	}
	return nil
}
