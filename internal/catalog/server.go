package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	_ "modernc.org/sqlite"

	"github.com/nao1215/shopmesh/pkg/middleware"
)

// Server は商品カタログサービスのHTTPサーバー。
type Server struct {
	// router はGinのHTTPルーター。
	router *gin.Engine
	// port はサーバーのリッスンポート。
	port string
	// queries はproductsテーブルへのクエリ実行オブジェクト。
	queries *Queries
	// db はSQLiteデータベース接続。
	db *sql.DB
}

// NewServer は新しいカタログサーバーを生成する。
// SQLiteデータベースの初期化、スキーマ作成、初期データの投入を行う。
func NewServer(port string) (*Server, error) {
	sqlDB, err := sql.Open("sqlite", "/data/catalog.db?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("データベース接続に失敗: %w", err)
	}

	if err := initSchema(sqlDB); err != nil {
		return nil, fmt.Errorf("スキーマ初期化に失敗: %w", err)
	}

	router := gin.New()
	router.Use(middleware.Recovery())
	router.Use(middleware.RequestLog("catalog"))

	s := &Server{
		router:  router,
		port:    port,
		queries: NewQueries(sqlDB),
		db:      sqlDB,
	}
	s.setupRoutes()

	if err := s.seedInitialProducts(context.Background()); err != nil {
		return nil, fmt.Errorf("初期データの投入に失敗: %w", err)
	}

	return s, nil
}

// Run はHTTPサーバーを起動する。
func (s *Server) Run() error {
	return s.router.Run(fmt.Sprintf(":%s", s.port))
}

// setupRoutes はAPIルーティングを設定する。
func (s *Server) setupRoutes() {
	products := s.router.Group("/products")
	{
		// 商品一覧取得
		products.GET("", s.handleList())
		// 商品詳細取得
		products.GET("/:id", s.handleGetByID())
		// 商品作成
		products.POST("", s.handleCreate())
	}

	// ヘルスチェック（DB疎通確認込み）
	s.router.GET("/health", s.handleHealth())
}

// seedInitialProducts はテーブルが空の場合に初期商品を投入する。
func (s *Server) seedInitialProducts(ctx context.Context) error {
	count, err := s.queries.CountProducts(ctx)
	if err != nil {
		return fmt.Errorf("商品数の取得に失敗: %w", err)
	}
	if count > 0 {
		return nil
	}

	log.Printf("初期商品を投入します")
	for _, seed := range []CreateProductParams{
		{Name: "Smartphone X", Price: 699.0, InStock: true},
		{Name: "Laptop Pro", Price: 1299.0, InStock: true},
		{Name: "Wireless Headphones", Price: 199.0, InStock: false},
	} {
		if _, err := s.queries.CreateProduct(ctx, seed); err != nil {
			return fmt.Errorf("初期商品 %s の作成に失敗: %w", seed.Name, err)
		}
	}
	return nil
}

// createProductRequest は商品作成リクエストのJSON構造。
type createProductRequest struct {
	// Name は商品名。
	Name string `json:"name" binding:"required"`
	// Price は価格。
	Price float64 `json:"price" binding:"required"`
	// InStock は在庫の有無。省略時はtrue。
	InStock *bool `json:"in_stock"`
}

// productResponse は商品のJSONレスポンス構造。
type productResponse struct {
	// ID は商品の一意識別子。
	ID int64 `json:"id"`
	// Name は商品名。
	Name string `json:"name"`
	// Price は価格。
	Price float64 `json:"price"`
	// InStock は在庫の有無。
	InStock bool `json:"in_stock"`
}

// toProductResponse はDB行をJSONレスポンスに変換する。
func toProductResponse(p Product) productResponse {
	return productResponse{
		ID:      p.ID,
		Name:    p.Name,
		Price:   p.Price,
		InStock: p.InStock,
	}
}

// handleList は商品一覧取得を処理するハンドラを返す。
func (s *Server) handleList() gin.HandlerFunc {
	return func(c *gin.Context) {
		products, err := s.queries.ListProducts(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "商品一覧の取得に失敗しました"})
			log.Printf("商品一覧取得エラー: %v", err)
			return
		}

		responses := make([]productResponse, 0, len(products))
		for _, p := range products {
			responses = append(responses, toProductResponse(p))
		}

		c.JSON(http.StatusOK, responses)
	}
}

// handleGetByID は商品詳細取得を処理するハンドラを返す。
func (s *Server) handleGetByID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.ParseInt(c.Param("id"), 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "商品IDが不正です"})
			return
		}

		p, err := s.queries.GetProductByID(c.Request.Context(), id)
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"error": "商品が見つかりません"})
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "商品の取得に失敗しました"})
			log.Printf("商品取得エラー: %v", err)
			return
		}

		c.JSON(http.StatusOK, toProductResponse(p))
	}
}

// handleCreate は商品作成を処理するハンドラを返す。
func (s *Server) handleCreate() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req createProductRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("リクエストが不正です: %v", err)})
			return
		}

		inStock := true
		if req.InStock != nil {
			inStock = *req.InStock
		}

		p, err := s.queries.CreateProduct(c.Request.Context(), CreateProductParams{
			Name:    req.Name,
			Price:   req.Price,
			InStock: inStock,
		})
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "商品の作成に失敗しました"})
			log.Printf("商品作成エラー: %v", err)
			return
		}

		log.Printf("商品を作成しました: id=%d name=%s", p.ID, p.Name)
		c.JSON(http.StatusCreated, toProductResponse(p))
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
			"service": "catalog",
			"status":  status,
			"db":      dbStatus,
		})
	}
}
