// Package orders は注文サービスの内部実装を提供する。
//
// 注文と明細のCRUD、SQLiteへの永続化、注文作成時の
// notificationsサービスへの通知送信を担当する。
// 通知の送信はベストエフォートであり、notificationsサービスの障害が
// 注文の作成を妨げることはない。
package orders
