// Package users はユーザーサービスの内部実装を提供する。
//
// ユーザーのCRUDとSQLiteへの永続化を担当する。
// gatewayはこのサービスの一覧エンドポイントを使って
// ユーザー名から数値IDへの解決を行う。
package users
