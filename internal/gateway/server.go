package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"

	"github.com/gin-gonic/gin"

	"github.com/nao1215/shopmesh/pkg/httpclient"
	"github.com/nao1215/shopmesh/pkg/middleware"
)

// バックエンドサービスの論理名。backendsマップのキーと障害マーカーに使用する。
const (
	serviceAuth          = "auth"
	serviceUsers         = "users"
	serviceCatalog       = "catalog"
	serviceOrders        = "orders"
	serviceNotifications = "notifications"
)

// Server はAPI GatewayサービスのHTTPサーバー。
// 自身の永続化層は持たず、バックエンドの読み取り結果の集約のみを行う。
type Server struct {
	// router はGinのHTTPルーター。
	router *gin.Engine
	// port はサーバーのリッスンポート。
	port string
	// jwtSecret はJWT検証用の秘密鍵。authサービスと共有する。
	jwtSecret string
	// jwtAlgorithm はJWTの署名アルゴリズム。authサービスと一致している必要がある。
	jwtAlgorithm string
	// backends は論理名からバックエンドへのクライアントのマップ。
	// 起動時に一度だけ構築し、以降は読み取り専用。
	backends map[string]*httpclient.Client
}

// NewServer は新しいGatewayサーバーを生成する。
// バックエンドのURLとJWT設定を環境変数から読み込む。
func NewServer(port string) (*Server, error) {
	backends := map[string]*httpclient.Client{
		serviceAuth:          httpclient.New(serviceAuth, getEnvOr("AUTH_SERVICE_URL", "http://localhost:8001")),
		serviceUsers:         httpclient.New(serviceUsers, getEnvOr("USERS_SERVICE_URL", "http://localhost:8002")),
		serviceCatalog:       httpclient.New(serviceCatalog, getEnvOr("CATALOG_SERVICE_URL", "http://localhost:8003")),
		serviceOrders:        httpclient.New(serviceOrders, getEnvOr("ORDERS_SERVICE_URL", "http://localhost:8004")),
		serviceNotifications: httpclient.New(serviceNotifications, getEnvOr("NOTIFICATIONS_SERVICE_URL", "http://localhost:8006")),
	}

	frontendURL := getEnvOr("FRONTEND_URL", "http://localhost:5173")

	router := gin.New()
	router.Use(middleware.Recovery())
	router.Use(middleware.RequestLog("gateway"))
	router.Use(middleware.CORS([]string{frontendURL}))

	s := &Server{
		router:       router,
		port:         port,
		jwtSecret:    getEnvOr("AUTH_SECRET_KEY", "dev_secret_change_me"),
		jwtAlgorithm: getEnvOr("AUTH_ALGORITHM", "HS256"),
		backends:     backends,
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
	// ヘルスチェック（認証不要）
	s.router.GET("/health", s.handleHealth())

	// 認証必須のエンドポイント
	authed := s.router.Group("/")
	authed.Use(middleware.JWTAuth(s.jwtSecret, s.jwtAlgorithm))
	{
		// 複数サービスの集約サマリー
		authed.GET("/summary", s.handleSummary())
		// 認証済みユーザー自身のプロフィール
		authed.GET("/me", s.handleMe())
		// 認証済みユーザー自身の注文一覧
		authed.GET("/my-orders", s.handleMyOrders())

		// 管理者専用エンドポイント
		admin := authed.Group("/admin")
		admin.Use(middleware.RequireAdmin())
		{
			admin.GET("/users", s.handleAdminUsers())
		}
	}
}

// handleHealth はgateway自身と全バックエンドのヘルス状態を返すハンドラを返す。
// 各バックエンドの/healthを並行に呼び出し、状態と応答時間を集約する。
func (s *Server) handleHealth() gin.HandlerFunc {
	return func(c *gin.Context) {
		result := gin.H{
			"gateway": gin.H{"status": "ok"},
		}
		for name, health := range s.checkBackends(c.Request.Context()) {
			result[name] = health
		}
		c.JSON(http.StatusOK, result)
	}
}

// handleSummary はusers・catalog・ordersの読み取り結果を1つにまとめて返すハンドラを返す。
// 一部のバックエンドが利用できなくても全体は200で応答し、
// 失敗したリソースには "<service>_service_unavailable" マーカーを埋め込む。
func (s *Server) handleSummary() gin.HandlerFunc {
	return func(c *gin.Context) {
		principal := middleware.GetPrincipal(c)

		aggregated := s.aggregate(c.Request.Context(), []resourceRequest{
			{Name: "users", Service: serviceUsers, Path: "/users"},
			{Name: "products", Service: serviceCatalog, Path: "/products"},
			{Name: "orders", Service: serviceOrders, Path: "/orders"},
		})

		result := gin.H{
			"requested_by": principal.Username,
			"role":         principal.Role,
		}
		for _, r := range []struct {
			name    string
			service string
		}{
			{"users", serviceUsers},
			{"products", serviceCatalog},
			{"orders", serviceOrders},
		} {
			res := aggregated[r.name]
			if res.Err != nil {
				result[r.name+"_error"] = unavailableMarker(r.service)
				continue
			}
			result[r.name] = res.Payload
		}

		c.JSON(http.StatusOK, result)
	}
}

// handleMe は認証済みユーザー自身のプロフィールをusersサービスから取得して返すハンドラを返す。
// 集約対象が1リソースだけのため部分的な結果は存在せず、
// usersサービスの障害は503、ユーザー不在は404として呼び出し元に伝播する。
func (s *Server) handleMe() gin.HandlerFunc {
	return func(c *gin.Context) {
		principal := middleware.GetPrincipal(c)

		user, err := s.resolveUser(c.Request.Context(), principal.Username)
		if errors.Is(err, errUserNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "ユーザーが見つかりません"})
			return
		}
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": unavailableMarker(serviceUsers)})
			return
		}

		c.JSON(http.StatusOK, user)
	}
}

// orderRecord はordersサービスが返す注文オブジェクト。
// 所有者の判定のためにuser_idを持つことを前提とする。
type orderRecord struct {
	// ID は注文の数値ID。
	ID int64 `json:"id"`
	// UserID は注文したユーザーの数値ID。
	UserID int64 `json:"user_id"`
	// Status は注文の状態。
	Status string `json:"status"`
	// Items は注文の明細。
	Items []orderItemRecord `json:"items"`
}

// orderItemRecord は注文明細1件。
type orderItemRecord struct {
	// ID は明細の数値ID。
	ID int64 `json:"id"`
	// ProductID は商品の数値ID。
	ProductID int64 `json:"product_id"`
	// Quantity は数量。
	Quantity int64 `json:"quantity"`
}

// handleMyOrders は認証済みユーザー自身の注文一覧を返すハンドラを返す。
//
// トークンにはユーザー名しか含まれないため、次の2段階で取得する。
//  1. usersサービスの一覧からユーザー名で数値IDを解決する
//  2. ordersサービスの一覧をそのIDで完全一致フィルタする
//
// 1段目の障害（503）とユーザー不在（404）は区別して応答する。
// 依存先の解決に失敗した場合、2段目の呼び出しは行わない。
func (s *Server) handleMyOrders() gin.HandlerFunc {
	return func(c *gin.Context) {
		principal := middleware.GetPrincipal(c)

		user, err := s.resolveUser(c.Request.Context(), principal.Username)
		if errors.Is(err, errUserNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "usersサービスにユーザーが見つかりません"})
			return
		}
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": unavailableMarker(serviceUsers)})
			return
		}

		payload, err := s.backends[serviceOrders].GetJSON(c.Request.Context(), "/orders")
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": unavailableMarker(serviceOrders)})
			return
		}

		var orders []orderRecord
		if err := json.Unmarshal(payload, &orders); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": unavailableMarker(serviceOrders)})
			return
		}

		myOrders := make([]orderRecord, 0, len(orders))
		for _, o := range orders {
			if o.UserID == user.ID {
				myOrders = append(myOrders, o)
			}
		}

		c.JSON(http.StatusOK, myOrders)
	}
}

// handleAdminUsers は全ユーザー一覧を返す管理者専用ハンドラを返す。
// ロール検証はRequireAdminミドルウェアが行う。
func (s *Server) handleAdminUsers() gin.HandlerFunc {
	return func(c *gin.Context) {
		payload, err := s.backends[serviceUsers].GetJSON(c.Request.Context(), "/users")
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": unavailableMarker(serviceUsers)})
			return
		}

		c.Data(http.StatusOK, "application/json", payload)
	}
}

// getEnvOr は環境変数を取得し、設定されていない場合はデフォルト値を返す。
func getEnvOr(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}
