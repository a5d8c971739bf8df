// ユーザーサービスのエントリポイント。
// ユーザーのCRUDとSQLiteへの永続化を担当する。
package main

import (
	"log"
	"os"

	"github.com/nao1215/shopmesh/internal/users"
)

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8002"
	}

	server, err := users.NewServer(port)
	if err != nil {
		log.Fatalf("ユーザーサーバーの初期化に失敗: %v", err)
	}

	log.Printf("ユーザーサービスを起動します: :%s", port)
	if err := server.Run(); err != nil {
		log.Fatalf("ユーザーサービスの起動に失敗: %v", err)
	}
}
