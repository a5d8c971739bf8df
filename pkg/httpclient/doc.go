// Package httpclient はサービス間のHTTP通信を行うクライアントを提供する。
//
// gatewayからバックエンドの読み取りエンドポイントを呼び出す際や、
// authからusersへのユーザー同期、ordersからnotificationsへの通知送信など、
// サービス間の通信パターンを統一する。短いタイムアウトを固定で適用し、
// あらゆる失敗をErrUnavailableに正規化するため、不安定なバックエンド1つが
// 呼び出し元のリクエスト全体を失敗させることはない。
package httpclient
