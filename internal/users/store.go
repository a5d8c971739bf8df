package users

import (
	"context"
	"database/sql"
)

// User はusersテーブルの1行。
type User struct {
	// ID はユーザーの一意識別子。
	ID int64
	// Username はユーザー名。
	Username string
	// Email はメールアドレス。未設定の場合はNULL。
	Email sql.NullString
}

// Queries はusersテーブルへのクエリ実行オブジェクト。
type Queries struct {
	db *sql.DB
}

// NewQueries は新しいクエリ実行オブジェクトを生成する。
func NewQueries(db *sql.DB) *Queries {
	return &Queries{db: db}
}

// CreateUser は新しいユーザーを作成し、作成された行を返す。
// 空のメールアドレスはNULLとして保存する（UNIQUE制約に空文字を数えない）。
func (q *Queries) CreateUser(ctx context.Context, username, email string) (User, error) {
	result, err := q.db.ExecContext(ctx,
		`INSERT INTO users (username, email) VALUES (?, NULLIF(?, ''))`,
		username, email,
	)
	if err != nil {
		return User{}, err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return User{}, err
	}
	return q.GetUserByID(ctx, id)
}

// GetUserByID はIDでユーザーを取得する。存在しない場合はsql.ErrNoRowsを返す。
func (q *Queries) GetUserByID(ctx context.Context, id int64) (User, error) {
	var u User
	err := q.db.QueryRowContext(ctx,
		`SELECT id, username, email FROM users WHERE id = ?`, id,
	).Scan(&u.ID, &u.Username, &u.Email)
	return u, err
}

// ListUsers は全ユーザーをID昇順で返す。
func (q *Queries) ListUsers(ctx context.Context) ([]User, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT id, username, email FROM users ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.Username, &u.Email); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// CountUsers はユーザー数を返す。起動時のシード判定に使用する。
func (q *Queries) CountUsers(ctx context.Context) (int64, error) {
	var count int64
	err := q.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&count)
	return count, err
}

// ExistsByUsername はユーザー名が使用済みかを返す。
func (q *Queries) ExistsByUsername(ctx context.Context, username string) (bool, error) {
	var count int64
	err := q.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM users WHERE username = ?`, username,
	).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
