package middleware

import (
	"log"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// headerKeyRequestID はリクエストIDを呼び出し元に返すHTTPヘッダーキー。
const headerKeyRequestID = "X-Request-ID"

// RequestLog は全リクエストのアクセスログを出力するGinミドルウェアを返す。
// サービス名、メソッド、パス、ステータスコード、処理時間（ミリ秒）、
// リクエストIDを1リクエストにつき1行記録する。
// リクエストIDは呼び出し元から渡された場合はそれを使い、無ければ新規に採番する。
func RequestLog(service string) gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(headerKeyRequestID)
		if requestID == "" {
			requestID = uuid.New().String()
		}
		c.Header(headerKeyRequestID, requestID)

		start := time.Now()
		c.Next()
		durationMs := float64(time.Since(start).Microseconds()) / 1000

		log.Printf("[%s] %s %s -> %d (%.2f ms) request_id=%s",
			service, c.Request.Method, c.Request.URL.Path, c.Writer.Status(), durationMs, requestID)
	}
}
