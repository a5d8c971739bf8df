package auth

import (
	"database/sql"
	"fmt"
)

// スキーマ定義。
const schema = `
CREATE TABLE IF NOT EXISTS auth_users (
    -- ユーザーの一意識別子
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    -- ユーザー名
    username TEXT NOT NULL UNIQUE,
    -- メールアドレス
    email TEXT NOT NULL UNIQUE,
    -- bcryptハッシュ化済みパスワード
    password_hash TEXT NOT NULL,
    -- ロール（"admin" のみ特別扱い。それ以外は一般権限）
    role TEXT NOT NULL DEFAULT 'user'
);

-- ユーザー名での検索を高速化するインデックス。
CREATE INDEX IF NOT EXISTS idx_auth_users_username
    ON auth_users(username);
`

// initSchema はSQLiteデータベースにスキーマを適用する。
func initSchema(db *sql.DB) error {
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("スキーマの適用に失敗: %w", err)
	}
	return nil
}
