// 注文サービスのエントリポイント。
// 注文と明細のCRUD、注文作成時の通知送信を担当する。
package main

import (
	"log"
	"os"

	"github.com/nao1215/shopmesh/internal/orders"
)

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8004"
	}

	server, err := orders.NewServer(port)
	if err != nil {
		log.Fatalf("注文サーバーの初期化に失敗: %v", err)
	}

	log.Printf("注文サービスを起動します: :%s", port)
	if err := server.Run(); err != nil {
		log.Fatalf("注文サービスの起動に失敗: %v", err)
	}
}
