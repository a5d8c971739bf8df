package users

import (
	"database/sql"
	"fmt"
)

// スキーマ定義。
const schema = `
CREATE TABLE IF NOT EXISTS users (
    -- ユーザーの一意識別子。gatewayがユーザー名からの解決に利用する
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    -- ユーザー名
    username TEXT NOT NULL UNIQUE,
    -- メールアドレス（任意）
    email TEXT UNIQUE
);
`

// initSchema はSQLiteデータベースにスキーマを適用する。
func initSchema(db *sql.DB) error {
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("スキーマの適用に失敗: %w", err)
	}
	return nil
}
