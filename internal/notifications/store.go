package notifications

import (
	"context"
	"database/sql"
)

// Notification はnotificationsテーブルの1行。
type Notification struct {
	// ID は通知の一意識別子。
	ID string
	// UserID は通知先のユーザーの数値ID。
	UserID int64
	// Message は通知メッセージ。
	Message string
	// CreatedAt は作成日時（SQLiteのdatetime形式の文字列）。
	CreatedAt string
}

// Queries はnotificationsテーブルへのクエリ実行オブジェクト。
type Queries struct {
	db *sql.DB
}

// NewQueries は新しいクエリ実行オブジェクトを生成する。
func NewQueries(db *sql.DB) *Queries {
	return &Queries{db: db}
}

// CreateNotificationParams は通知作成のパラメータ。
type CreateNotificationParams struct {
	// ID は通知の一意識別子。
	ID string
	// UserID は通知先のユーザーの数値ID。
	UserID int64
	// Message は通知メッセージ。
	Message string
}

// CreateNotification は新しい通知を保存する。
func (q *Queries) CreateNotification(ctx context.Context, params CreateNotificationParams) error {
	_, err := q.db.ExecContext(ctx,
		`INSERT INTO notifications (id, user_id, message) VALUES (?, ?, ?)`,
		params.ID, params.UserID, params.Message,
	)
	return err
}

// ListNotifications は全通知を新しい順で返す。
func (q *Queries) ListNotifications(ctx context.Context) ([]Notification, error) {
	return q.list(ctx,
		`SELECT id, user_id, message, created_at FROM notifications ORDER BY created_at DESC, id`)
}

// ListNotificationsByUserID は指定ユーザー宛の通知を新しい順で返す。
func (q *Queries) ListNotificationsByUserID(ctx context.Context, userID int64) ([]Notification, error) {
	return q.list(ctx,
		`SELECT id, user_id, message, created_at FROM notifications WHERE user_id = ? ORDER BY created_at DESC, id`,
		userID)
}

// list は通知一覧クエリの共通処理。
func (q *Queries) list(ctx context.Context, query string, args ...any) ([]Notification, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var notifications []Notification
	for rows.Next() {
		var n Notification
		if err := rows.Scan(&n.ID, &n.UserID, &n.Message, &n.CreatedAt); err != nil {
			return nil, err
		}
		notifications = append(notifications, n)
	}
	return notifications, rows.Err()
}
