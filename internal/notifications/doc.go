// Package notifications は通知サービスの内部実装を提供する。
//
// 他サービス（主にorders）からの通知を受け取り、SQLiteに保存する。
// ユーザーごとの通知一覧の取得にも対応する。
package notifications
