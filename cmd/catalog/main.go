// 商品カタログサービスのエントリポイント。
// 商品のCRUDとSQLiteへの永続化を担当する。
package main

import (
	"log"
	"os"

	"github.com/nao1215/shopmesh/internal/catalog"
)

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8003"
	}

	server, err := catalog.NewServer(port)
	if err != nil {
		log.Fatalf("カタログサーバーの初期化に失敗: %v", err)
	}

	log.Printf("カタログサービスを起動します: :%s", port)
	if err := server.Run(); err != nil {
		log.Fatalf("カタログサービスの起動に失敗: %v", err)
	}
}
