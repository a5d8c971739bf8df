// Package auth は認証サービスの内部実装を提供する。
//
// ユーザー登録、パスワード検証、JWTトークンの発行を担当する。
// パスワードはbcryptでハッシュ化してSQLiteに保存する。
// 発行するトークンの秘密鍵とアルゴリズムはgatewayと共有しており、
// gateway側の検証設定と一致している必要がある。
package auth
