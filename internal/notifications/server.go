package notifications

import (
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/nao1215/shopmesh/pkg/middleware"
)

// Server は通知サービスのHTTPサーバー。
type Server struct {
	// router はGinのHTTPルーター。
	router *gin.Engine
	// port はサーバーのリッスンポート。
	port string
	// queries はnotificationsテーブルへのクエリ実行オブジェクト。
	queries *Queries
	// db はSQLiteデータベース接続。
	db *sql.DB
}

// NewServer は新しい通知サーバーを生成する。
// SQLiteデータベースの初期化とスキーマ作成を行う。
func NewServer(port string) (*Server, error) {
	sqlDB, err := sql.Open("sqlite", "/data/notifications.db?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("データベース接続に失敗: %w", err)
	}

	if err := initSchema(sqlDB); err != nil {
		return nil, fmt.Errorf("スキーマ初期化に失敗: %w", err)
	}

	router := gin.New()
	router.Use(middleware.Recovery())
	router.Use(middleware.RequestLog("notifications"))

	s := &Server{
		router:  router,
		port:    port,
		queries: NewQueries(sqlDB),
		db:      sqlDB,
	}
	s.setupRoutes()

	return s, nil
}

// Run はHTTPサーバーを起動する。
func (s *Server) Run() error {
	return s.router.Run(fmt.Sprintf(":%s", s.port))
}

// setupRoutes はAPIルーティングを設定する。
func (s *Server) setupRoutes() {
	// 通知送信（内部API - ordersサービスから呼び出される）
	s.router.POST("/notify", s.handleNotify())
	// 通知一覧取得
	s.router.GET("/notifications", s.handleList())

	// ヘルスチェック
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "notifications"})
	})
}

// notifyRequest は通知送信リクエストのJSON構造。
type notifyRequest struct {
	// UserID は通知先のユーザーの数値ID。
	UserID int64 `json:"user_id" binding:"required"`
	// Message は通知メッセージ。
	Message string `json:"message" binding:"required"`
}

// notificationResponse は通知のJSONレスポンス構造。
type notificationResponse struct {
	// ID は通知の一意識別子。
	ID string `json:"id"`
	// UserID は通知先のユーザーの数値ID。
	UserID int64 `json:"user_id"`
	// Message は通知メッセージ。
	Message string `json:"message"`
	// CreatedAt は作成日時。
	CreatedAt string `json:"created_at"`
}

// toNotificationResponse はDB行をJSONレスポンスに変換する。
func toNotificationResponse(n Notification) notificationResponse {
	return notificationResponse{
		ID:        n.ID,
		UserID:    n.UserID,
		Message:   n.Message,
		CreatedAt: n.CreatedAt,
	}
}

// handleNotify は通知の受信と保存を処理するハンドラを返す。
func (s *Server) handleNotify() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req notifyRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("リクエストが不正です: %v", err)})
			return
		}

		if err := s.queries.CreateNotification(c.Request.Context(), CreateNotificationParams{
			ID:      uuid.New().String(),
			UserID:  req.UserID,
			Message: req.Message,
		}); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "通知の保存に失敗しました"})
			log.Printf("通知保存エラー: %v", err)
			return
		}

		log.Printf("[NOTIFICATION] To user %d: %s", req.UserID, req.Message)
		c.JSON(http.StatusOK, gin.H{"status": "sent"})
	}
}

// handleList は通知一覧取得を処理するハンドラを返す。
// user_idクエリパラメータを指定すると、そのユーザー宛の通知のみを返す。
func (s *Server) handleList() gin.HandlerFunc {
	return func(c *gin.Context) {
		var (
			notifications []Notification
			err           error
		)
		if userIDParam := c.Query("user_id"); userIDParam != "" {
			userID, parseErr := strconv.ParseInt(userIDParam, 10, 64)
			if parseErr != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "user_idが不正です"})
				return
			}
			notifications, err = s.queries.ListNotificationsByUserID(c.Request.Context(), userID)
		} else {
			notifications, err = s.queries.ListNotifications(c.Request.Context())
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "通知一覧の取得に失敗しました"})
			log.Printf("通知一覧取得エラー: %v", err)
			return
		}

		responses := make([]notificationResponse, 0, len(notifications))
		for _, n := range notifications {
			responses = append(responses, toNotificationResponse(n))
		}

		c.JSON(http.StatusOK, responses)
	}
}
