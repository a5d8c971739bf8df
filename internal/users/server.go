package users

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

// Server はユーザーサービスのHTTPサーバー。
type Server struct {
	// router はGinのHTTPルーター。
	router *gin.Engine
	// port はサーバーのリッスンポート。
	port string
	// queries はusersテーブルへのクエリ実行オブジェクト。
	queries *Queries
	// db はSQLiteデータベース接続。
	db *sql.DB
}

// NewServer は新しいユーザーサーバーを生成する。
// SQLiteデータベースの初期化、スキーマ作成、初期データの投入を行う。
func NewServer(port string) (*Server, error) {
	sqlDB, err := sql.Open("sqlite", "/data/users.db?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("データベース接続に失敗: %w", err)
	}

	if err := initSchema(sqlDB); err != nil {
		return nil, fmt.Errorf("スキーマ初期化に失敗: %w", err)
	}

	router := gin.New()
	router.Use(middleware.Recovery())
	router.Use(middleware.RequestLog("users"))

	s := &Server{
		router:  router,
		port:    port,
		queries: NewQueries(sqlDB),
		db:      sqlDB,
	}
	s.setupRoutes()

	if err := s.seedInitialUsers(context.Background()); err != nil {
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
	users := s.router.Group("/users")
	{
		// ユーザー一覧取得
		users.GET("", s.handleList())
		// ユーザー詳細取得
		users.GET("/:id", s.handleGetByID())
		// ユーザー作成
		users.POST("", s.handleCreate())
	}

	// ヘルスチェック（DB疎通確認込み）
	s.router.GET("/health", s.handleHealth())
}

// seedInitialUsers はテーブルが空の場合に初期ユーザーを投入する。
func (s *Server) seedInitialUsers(ctx context.Context) error {
	count, err := s.queries.CountUsers(ctx)
	if err != nil {
		return fmt.Errorf("ユーザー数の取得に失敗: %w", err)
	}
	if count > 0 {
		return nil
	}

	log.Printf("初期ユーザーを投入します")
	for _, seed := range []struct {
		username string
		email    string
	}{
		{"alice", "alice@example.com"},
		{"bob", "bob@example.com"},
	} {
		if _, err := s.queries.CreateUser(ctx, seed.username, seed.email); err != nil {
			return fmt.Errorf("初期ユーザー %s の作成に失敗: %w", seed.username, err)
		}
	}
	return nil
}

// createUserRequest はユーザー作成リクエストのJSON構造。
type createUserRequest struct {
	// Username はユーザー名。
	Username string `json:"username" binding:"required"`
	// Email はメールアドレス（任意）。
	Email string `json:"email"`
}

// userResponse はユーザーのJSONレスポンス構造。
// gatewayはusernameとidを識別子解決に利用するため、両方を必ず含める。
type userResponse struct {
	// ID はユーザーの一意識別子。
	ID int64 `json:"id"`
	// Username はユーザー名。
	Username string `json:"username"`
	// Email はメールアドレス。未設定の場合はnull。
	Email *string `json:"email"`
}

// toUserResponse はDB行をJSONレスポンスに変換する。
func toUserResponse(u User) userResponse {
	resp := userResponse{
		ID:       u.ID,
		Username: u.Username,
	}
	if u.Email.Valid {
		resp.Email = &u.Email.String
	}
	return resp
}

// handleList はユーザー一覧取得を処理するハンドラを返す。
func (s *Server) handleList() gin.HandlerFunc {
	return func(c *gin.Context) {
		users, err := s.queries.ListUsers(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "ユーザー一覧の取得に失敗しました"})
			log.Printf("ユーザー一覧取得エラー: %v", err)
			return
		}

		responses := make([]userResponse, 0, len(users))
		for _, u := range users {
			responses = append(responses, toUserResponse(u))
		}

		c.JSON(http.StatusOK, responses)
	}
}

// handleGetByID はユーザー詳細取得を処理するハンドラを返す。
func (s *Server) handleGetByID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.ParseInt(c.Param("id"), 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "ユーザーIDが不正です"})
			return
		}

		u, err := s.queries.GetUserByID(c.Request.Context(), id)
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"error": "ユーザーが見つかりません"})
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "ユーザーの取得に失敗しました"})
			log.Printf("ユーザー取得エラー: %v", err)
			return
		}

		c.JSON(http.StatusOK, toUserResponse(u))
	}
}

// handleCreate はユーザー作成を処理するハンドラを返す。
// authサービスからの登録同期でも呼び出される。
func (s *Server) handleCreate() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req createUserRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("リクエストが不正です: %v", err)})
			return
		}

		exists, err := s.queries.ExistsByUsername(c.Request.Context(), req.Username)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "ユーザーの存在確認に失敗しました"})
			log.Printf("ユーザー存在確認エラー: %v", err)
			return
		}
		if exists {
			c.JSON(http.StatusBadRequest, gin.H{"error": "このユーザー名は既に使用されています"})
			return
		}

		u, err := s.queries.CreateUser(c.Request.Context(), req.Username, req.Email)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "ユーザーの作成に失敗しました"})
			log.Printf("ユーザー作成エラー: %v", err)
			return
		}

		log.Printf("ユーザーを作成しました: id=%d username=%s", u.ID, u.Username)
		c.JSON(http.StatusCreated, toUserResponse(u))
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
			"service": "users",
			"status":  status,
			"db":      dbStatus,
		})
	}
}
