// Package gateway はAPI Gatewayサービスの内部実装を提供する。
//
// Bearerトークンの検証とロールベースのアクセス制御を行い、
// 複数のバックエンドサービスから並行に取得した結果を1つのレスポンスに
// 集約する。バックエンドの一部が利用できない場合は、該当リソースに
// 障害マーカーを立てた部分的なレスポンスを返し、全体を失敗させない。
// 外部からアクセス可能な唯一のサービスであり、セキュリティの境界線として
// 機能する。
package gateway
