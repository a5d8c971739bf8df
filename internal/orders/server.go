package orders

import (
	"database/sql"
	"errors"
	"fmt"
	"log"
	"math"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	_ "modernc.org/sqlite"

	"github.com/nao1215/shopmesh/pkg/httpclient"
	"github.com/nao1215/shopmesh/pkg/middleware"
)

// Server は注文サービスのHTTPサーバー。
type Server struct {
	// router はGinのHTTPルーター。
	router *gin.Engine
	// port はサーバーのリッスンポート。
	port string
	// queries はorders・order_itemsテーブルへのクエリ実行オブジェクト。
	queries *Queries
	// db はSQLiteデータベース接続。
	db *sql.DB
	// notificationsClient はnotificationsサービスへのHTTPクライアント。
	notificationsClient *httpclient.Client
}

// NewServer は新しい注文サーバーを生成する。
// SQLiteデータベースの初期化とスキーマ作成を行う。
func NewServer(port string) (*Server, error) {
	sqlDB, err := sql.Open("sqlite", "/data/orders.db?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("データベース接続に失敗: %w", err)
	}

	if err := initSchema(sqlDB); err != nil {
		return nil, fmt.Errorf("スキーマ初期化に失敗: %w", err)
	}

	notificationsURL := getEnvOr("NOTIFICATIONS_SERVICE_URL", "http://localhost:8006")

	router := gin.New()
	router.Use(middleware.Recovery())
	router.Use(middleware.RequestLog("orders"))

	s := &Server{
		router:              router,
		port:                port,
		queries:             NewQueries(sqlDB),
		db:                  sqlDB,
		notificationsClient: httpclient.New("notifications", notificationsURL),
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
	orders := s.router.Group("/orders")
	{
		// 注文一覧取得
		orders.GET("", s.handleList())
		// 注文詳細取得
		orders.GET("/:id", s.handleGetByID())
		// 注文作成
		orders.POST("", s.handleCreate())
	}

	// ヘルスチェック（DB疎通確認込み）
	s.router.GET("/health", s.handleHealth())
}

// createOrderRequest は注文作成リクエストのJSON構造。
type createOrderRequest struct {
	// UserID は注文したユーザーの数値ID。
	UserID int64 `json:"user_id" binding:"required"`
	// Items は注文の明細（1件以上）。
	Items []createOrderItemRequest `json:"items"`
}

// createOrderItemRequest は注文明細1件のJSON構造。
type createOrderItemRequest struct {
	// ProductID は商品の数値ID。
	ProductID int64 `json:"product_id" binding:"required"`
	// Quantity は数量。省略時は1。
	Quantity int64 `json:"quantity"`
}

// orderResponse は注文のJSONレスポンス構造。
type orderResponse struct {
	// ID は注文の一意識別子。
	ID int64 `json:"id"`
	// UserID は注文したユーザーの数値ID。
	UserID int64 `json:"user_id"`
	// Status は注文の状態。
	Status string `json:"status"`
	// Items は注文の明細。
	Items []orderItemResponse `json:"items"`
}

// orderItemResponse は注文明細1件のJSONレスポンス構造。
type orderItemResponse struct {
	// ID は明細の一意識別子。
	ID int64 `json:"id"`
	// ProductID は商品の数値ID。
	ProductID int64 `json:"product_id"`
	// Quantity は数量。
	Quantity int64 `json:"quantity"`
}

// toOrderResponse はDB行をJSONレスポンスに変換する。
func toOrderResponse(o Order) orderResponse {
	items := make([]orderItemResponse, 0, len(o.Items))
	for _, item := range o.Items {
		items = append(items, orderItemResponse{
			ID:        item.ID,
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
		})
	}
	return orderResponse{
		ID:     o.ID,
		UserID: o.UserID,
		Status: o.Status,
		Items:  items,
	}
}

// handleList は注文一覧取得を処理するハンドラを返す。
func (s *Server) handleList() gin.HandlerFunc {
	return func(c *gin.Context) {
		orders, err := s.queries.ListOrders(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "注文一覧の取得に失敗しました"})
			log.Printf("注文一覧取得エラー: %v", err)
			return
		}

		responses := make([]orderResponse, 0, len(orders))
		for _, o := range orders {
			responses = append(responses, toOrderResponse(o))
		}

		c.JSON(http.StatusOK, responses)
	}
}

// handleGetByID は注文詳細取得を処理するハンドラを返す。
func (s *Server) handleGetByID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.ParseInt(c.Param("id"), 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "注文IDが不正です"})
			return
		}

		o, err := s.queries.GetOrderByID(c.Request.Context(), id)
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"error": "注文が見つかりません"})
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "注文の取得に失敗しました"})
			log.Printf("注文取得エラー: %v", err)
			return
		}

		c.JSON(http.StatusOK, toOrderResponse(o))
	}
}

// handleCreate は注文作成を処理するハンドラを返す。
// 注文と明細を作成し、notificationsサービスに通知を送信する。
// 通知の失敗はログに記録するだけで、注文の作成は成功させる。
func (s *Server) handleCreate() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req createOrderRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("リクエストが不正です: %v", err)})
			return
		}
		if len(req.Items) == 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "注文には1件以上の明細が必要です"})
			return
		}

		items := make([]CreateOrderItemParams, 0, len(req.Items))
		for _, item := range req.Items {
			quantity := item.Quantity
			if quantity <= 0 {
				quantity = 1
			}
			items = append(items, CreateOrderItemParams{
				ProductID: item.ProductID,
				Quantity:  quantity,
			})
		}

		o, err := s.queries.CreateOrder(c.Request.Context(), CreateOrderParams{
			UserID: req.UserID,
			Items:  items,
		})
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "注文の作成に失敗しました"})
			log.Printf("注文作成エラー: %v", err)
			return
		}

		log.Printf("注文を作成しました: id=%d user_id=%d", o.ID, o.UserID)

		// notificationsサービスの障害で注文作成を失敗させないため、
		// 通知はベストエフォートで送信する
		s.sendNotification(c, o.UserID, fmt.Sprintf("Order #%d created", o.ID))

		c.JSON(http.StatusCreated, toOrderResponse(o))
	}
}

// sendNotification はnotificationsサービスに通知を送信する。
// 失敗した場合はログに記録するが、呼び出し元にはエラーを返さない。
func (s *Server) sendNotification(c *gin.Context, userID int64, message string) {
	reqBody := map[string]any{
		"user_id": userID,
		"message": message,
	}
	if _, err := s.notificationsClient.PostJSON(c.Request.Context(), "/notify", reqBody); err != nil {
		log.Printf("通知の送信に失敗: %v", err)
	}
}

// handleHealth はDB疎通確認込みのヘルスチェックを処理するハンドラを返す。
func (s *Server) handleHealth() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		pingErr := s.db.PingContext(c.Request.Context())
		durationMs := math.Round(float64(time.Since(start).Microseconds())/1000*100) / 100

		dbStatus := gin.H{
			"status":           "ok",
			"response_time_ms": durationMs,
		}
		status := "ok"
		if pingErr != nil {
			log.Printf("DBヘルスチェックに失敗: %v", pingErr)
			status = "degraded"
			dbStatus["status"] = "error"
			dbStatus["error"] = pingErr.Error()
		}

		c.JSON(http.StatusOK, gin.H{
			"service": "orders",
			"status":  status,
			"db":      dbStatus,
		})
	}
}

// getEnvOr は環境変数を取得し、設定されていない場合はデフォルト値を返す。
func getEnvOr(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}
