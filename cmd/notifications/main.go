// 通知サービスのエントリポイント。
// 他サービスからの通知の受信・保存・一覧取得を担当する。
package main

import (
	"log"
	"os"

	"github.com/nao1215/shopmesh/internal/notifications"
)

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8006"
	}

	server, err := notifications.NewServer(port)
	if err != nil {
		log.Fatalf("通知サーバーの初期化に失敗: %v", err)
	}

	log.Printf("通知サービスを起動します: :%s", port)
	if err := server.Run(); err != nil {
		log.Fatalf("通知サービスの起動に失敗: %v", err)
	}
}
