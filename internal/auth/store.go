package auth

import (
	"context"
	"database/sql"
)

// AuthUser はauth_usersテーブルの1行。
type AuthUser struct {
	// ID はユーザーの一意識別子。
	ID int64
	// Username はユーザー名。
	Username string
	// Email はメールアドレス。
	Email string
	// PasswordHash はbcryptハッシュ化済みパスワード。
	PasswordHash string
	// Role はユーザーのロール。
	Role string
}

// Queries はauth_usersテーブルへのクエリ実行オブジェクト。
type Queries struct {
	db *sql.DB
}

// NewQueries は新しいクエリ実行オブジェクトを生成する。
func NewQueries(db *sql.DB) *Queries {
	return &Queries{db: db}
}

// CreateUserParams はユーザー作成のパラメータ。
type CreateUserParams struct {
	// Username はユーザー名。
	Username string
	// Email はメールアドレス。
	Email string
	// PasswordHash はbcryptハッシュ化済みパスワード。
	PasswordHash string
	// Role はユーザーのロール。
	Role string
}

// CreateUser は新しいユーザーを作成する。
func (q *Queries) CreateUser(ctx context.Context, params CreateUserParams) error {
	_, err := q.db.ExecContext(ctx,
		`INSERT INTO auth_users (username, email, password_hash, role) VALUES (?, ?, ?, ?)`,
		params.Username, params.Email, params.PasswordHash, params.Role,
	)
	return err
}

// GetUserByUsername はユーザー名でユーザーを取得する。
// 存在しない場合はsql.ErrNoRowsを返す。
func (q *Queries) GetUserByUsername(ctx context.Context, username string) (AuthUser, error) {
	var u AuthUser
	err := q.db.QueryRowContext(ctx,
		`SELECT id, username, email, password_hash, role FROM auth_users WHERE username = ?`,
		username,
	).Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.Role)
	return u, err
}

// ExistsByUsernameOrEmail はユーザー名またはメールアドレスが使用済みかを返す。
func (q *Queries) ExistsByUsernameOrEmail(ctx context.Context, username, email string) (bool, error) {
	var count int64
	err := q.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM auth_users WHERE username = ? OR email = ?`,
		username, email,
	).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
