// Package catalog は商品カタログサービスの内部実装を提供する。
//
// 商品のCRUDとSQLiteへの永続化を担当する。
package catalog
