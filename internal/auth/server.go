package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"
	_ "modernc.org/sqlite"

	"github.com/nao1215/shopmesh/pkg/httpclient"
	"github.com/nao1215/shopmesh/pkg/middleware"
)

// デフォルト管理者の設定。パスワードはAUTH_ADMIN_PASSWORD環境変数で上書きできる。
const (
	adminDefaultUsername = "admin"
	adminDefaultPassword = "admin123"
	adminDefaultEmail    = "admin@example.com"
)

// Server は認証サービスのHTTPサーバー。
type Server struct {
	// router はGinのHTTPルーター。
	router *gin.Engine
	// port はサーバーのリッスンポート。
	port string
	// queries はauth_usersテーブルへのクエリ実行オブジェクト。
	queries *Queries
	// db はSQLiteデータベース接続。
	db *sql.DB
	// jwtSecret はJWT署名用の秘密鍵。gatewayと共有する。
	jwtSecret string
	// jwtAlgorithm はJWTの署名アルゴリズム。
	jwtAlgorithm string
	// tokenExpiry は発行するトークンの有効期間。
	tokenExpiry time.Duration
	// usersClient はusersサービスへのHTTPクライアント。登録時の同期に使用する。
	usersClient *httpclient.Client
}

// NewServer は新しい認証サーバーを生成する。
// SQLiteデータベースの初期化、スキーマ作成、デフォルト管理者の作成を行う。
func NewServer(port string) (*Server, error) {
	sqlDB, err := sql.Open("sqlite", "/data/auth.db?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("データベース接続に失敗: %w", err)
	}

	if err := initSchema(sqlDB); err != nil {
		return nil, fmt.Errorf("スキーマ初期化に失敗: %w", err)
	}

	expireMinutes, err := strconv.Atoi(getEnvOr("AUTH_ACCESS_TOKEN_EXPIRE_MINUTES", "60"))
	if err != nil {
		return nil, fmt.Errorf("AUTH_ACCESS_TOKEN_EXPIRE_MINUTESが不正: %w", err)
	}

	router := gin.New()
	router.Use(middleware.Recovery())
	router.Use(middleware.RequestLog("auth"))

	s := &Server{
		router:       router,
		port:         port,
		queries:      NewQueries(sqlDB),
		db:           sqlDB,
		jwtSecret:    getEnvOr("AUTH_SECRET_KEY", "dev_secret_change_me"),
		jwtAlgorithm: getEnvOr("AUTH_ALGORITHM", "HS256"),
		tokenExpiry:  time.Duration(expireMinutes) * time.Minute,
		usersClient:  httpclient.New("users", getEnvOr("USERS_SERVICE_URL", "http://localhost:8002")),
	}
	s.setupRoutes()

	if err := s.ensureDefaultAdmin(context.Background()); err != nil {
		return nil, fmt.Errorf("デフォルト管理者の作成に失敗: %w", err)
	}

	return s, nil
}

// Run はHTTPサーバーを起動する。
func (s *Server) Run() error {
	return s.router.Run(fmt.Sprintf(":%s", s.port))
}

// setupRoutes はAPIルーティングを設定する。
func (s *Server) setupRoutes() {
	// ユーザー登録
	s.router.POST("/register", s.handleRegister())
	// ログイン（JWT発行）
	s.router.POST("/login", s.handleLogin())

	// ヘルスチェック
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"service": "auth", "status": "ok"})
	})
}

// ensureDefaultAdmin はadminロールのデフォルト管理者が存在することを確認する。
// 存在しない場合はadmin/admin123（環境変数で上書き可）で作成する。
func (s *Server) ensureDefaultAdmin(ctx context.Context) error {
	_, err := s.queries.GetUserByUsername(ctx, adminDefaultUsername)
	if err == nil {
		return nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("管理者の存在確認に失敗: %w", err)
	}

	password := getEnvOr("AUTH_ADMIN_PASSWORD", adminDefaultPassword)
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("管理者パスワードのハッシュ化に失敗: %w", err)
	}

	if err := s.queries.CreateUser(ctx, CreateUserParams{
		Username:     adminDefaultUsername,
		Email:        adminDefaultEmail,
		PasswordHash: string(hashed),
		Role:         "admin",
	}); err != nil {
		return fmt.Errorf("管理者の作成に失敗: %w", err)
	}

	log.Printf("デフォルト管理者 %s を作成しました", adminDefaultUsername)
	return nil
}

// registerRequest はユーザー登録リクエストのJSON構造。
type registerRequest struct {
	// Username はユーザー名。
	Username string `json:"username" binding:"required"`
	// Email はメールアドレス。
	Email string `json:"email" binding:"required,email"`
	// Password は平文パスワード。保存前にbcryptでハッシュ化する。
	Password string `json:"password" binding:"required"`
}

// loginRequest はログインリクエストのJSON構造。
type loginRequest struct {
	// Username はユーザー名。
	Username string `json:"username" binding:"required"`
	// Password は平文パスワード。
	Password string `json:"password" binding:"required"`
}

// handleRegister はユーザー登録を処理するハンドラを返す。
// authサービスのDBにユーザーを作成し、usersサービスへの同期を試みる。
// 同期の失敗はログに記録するだけで、登録自体は成功させる。
func (s *Server) handleRegister() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req registerRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("リクエストが不正です: %v", err)})
			return
		}

		exists, err := s.queries.ExistsByUsernameOrEmail(c.Request.Context(), req.Username, req.Email)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "ユーザーの存在確認に失敗しました"})
			log.Printf("ユーザー存在確認エラー: %v", err)
			return
		}
		if exists {
			c.JSON(http.StatusBadRequest, gin.H{"error": "このユーザー名またはメールアドレスは既に使用されています"})
			return
		}

		hashed, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "パスワードのハッシュ化に失敗しました"})
			log.Printf("パスワードハッシュ化エラー: %v", err)
			return
		}

		if err := s.queries.CreateUser(c.Request.Context(), CreateUserParams{
			Username:     req.Username,
			Email:        req.Email,
			PasswordHash: string(hashed),
			Role:         "user", // 登録時は常に一般ユーザー
		}); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "ユーザーの作成に失敗しました"})
			log.Printf("ユーザー作成エラー: %v", err)
			return
		}

		// usersサービスへの同期は他サービスの障害で登録を失敗させないため、
		// ベストエフォートで行う
		s.syncUserToUsersService(c, req.Username, req.Email)

		c.JSON(http.StatusCreated, gin.H{"message": "登録が完了しました"})
	}
}

// syncUserToUsersService は登録されたユーザーをusersサービスにも作成する。
// 失敗した場合はログに記録するが、呼び出し元にはエラーを返さない。
func (s *Server) syncUserToUsersService(c *gin.Context, username, email string) {
	reqBody := map[string]string{
		"username": username,
		"email":    email,
	}
	if _, err := s.usersClient.PostJSON(c.Request.Context(), "/users", reqBody); err != nil {
		log.Printf("usersサービスへのユーザー同期に失敗: %v", err)
	}
}

// handleLogin はログインを処理するハンドラを返す。
// ユーザー名とパスワードを検証し、subとroleを含むJWTトークンを発行する。
// ユーザー不在とパスワード不一致はどちらも同じ401を返し、区別させない。
func (s *Server) handleLogin() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req loginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("リクエストが不正です: %v", err)})
			return
		}

		user, err := s.queries.GetUserByUsername(c.Request.Context(), req.Username)
		if errors.Is(err, sql.ErrNoRows) || (err == nil && !verifyPassword(req.Password, user.PasswordHash)) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "ユーザー名またはパスワードが正しくありません"})
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "ユーザーの取得に失敗しました"})
			log.Printf("ユーザー取得エラー: %v", err)
			return
		}

		role := user.Role
		if role == "" {
			role = "user"
		}

		token, err := middleware.GenerateToken(s.jwtSecret, s.jwtAlgorithm, user.Username, role, s.tokenExpiry)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "トークンの生成に失敗しました"})
			log.Printf("JWT生成エラー: %v", err)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"access_token": token,
			"token_type":   "bearer",
		})
	}
}

// verifyPassword は平文パスワードとbcryptハッシュを照合する。
// ハッシュが壊れている場合も不一致として扱い、サービスを落とさない。
func verifyPassword(plain, hashed string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hashed), []byte(plain)) == nil
}

// getEnvOr は環境変数を取得し、設定されていない場合はデフォルト値を返す。
func getEnvOr(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}
