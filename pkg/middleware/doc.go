// Package middleware はGinベースのHTTP APIで使用する共通ミドルウェアを提供する。
//
// Bearerトークンの検証、管理者ロールの強制、リクエストアクセスログ、
// パニックリカバリ、CORS設定など、全サービスで共通して使用する
// ミドルウェアを含む。トークンの検証と発行は秘密鍵とアルゴリズムを
// 引数で受け取るため、グローバル設定に依存しない。
package middleware
