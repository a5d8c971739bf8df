// 認証サービスのエントリポイント。
// ユーザー登録、ログイン、JWTトークンの発行を担当する。
package main

import (
	"log"
	"os"

	"github.com/nao1215/shopmesh/internal/auth"
)

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8001"
	}

	server, err := auth.NewServer(port)
	if err != nil {
		log.Fatalf("認証サーバーの初期化に失敗: %v", err)
	}

	log.Printf("認証サービスを起動します: :%s", port)
	if err := server.Run(); err != nil {
		log.Fatalf("認証サービスの起動に失敗: %v", err)
	}
}
