package auth

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	_ "modernc.org/sqlite"

	"github.com/nao1215/shopmesh/pkg/httpclient"
	"github.com/nao1215/shopmesh/pkg/middleware"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const testJWTSecret = "test-secret-key"

// newTestServer はインメモリSQLiteを使うテスト用認証サーバーを生成する。
// usersURLが空の場合、usersサービスは接続不能として構成する。
func newTestServer(t *testing.T, usersURL string) *Server {
	t.Helper()

	sqlDB, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("テスト用DBのオープンに失敗: %v", err)
	}
	t.Cleanup(func() { sqlDB.Close() })

	if err := initSchema(sqlDB); err != nil {
		t.Fatalf("スキーマ初期化に失敗: %v", err)
	}

	if usersURL == "" {
		backend := httptest.NewServer(http.NotFoundHandler())
		backend.Close()
		usersURL = backend.URL
	}

	s := &Server{
		router:       gin.New(),
		port:         "0",
		queries:      NewQueries(sqlDB),
		db:           sqlDB,
		jwtSecret:    testJWTSecret,
		jwtAlgorithm: "HS256",
		tokenExpiry:  time.Hour,
		usersClient:  httpclient.New("users", usersURL),
	}
	s.setupRoutes()

	if err := s.ensureDefaultAdmin(context.Background()); err != nil {
		t.Fatalf("デフォルト管理者の作成に失敗: %v", err)
	}
	return s
}

// postJSON はテスト用サーバーにJSONをPOSTする。
func postJSON(t *testing.T, s *Server, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("リクエストボディのエンコードに失敗: %v", err)
	}

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	s.router.ServeHTTP(w, req)
	return w
}

// TestEnsureDefaultAdmin はデフォルト管理者作成のテスト。
func TestEnsureDefaultAdmin(t *testing.T) {
	t.Parallel()

	t.Run("adminロールのデフォルト管理者が作成される", func(t *testing.T) {
		t.Parallel()

		s := newTestServer(t, "")
		admin, err := s.queries.GetUserByUsername(context.Background(), "admin")
		if err != nil {
			t.Fatalf("GetUserByUsername() error = %v", err)
		}
		if admin.Role != "admin" {
			t.Errorf("Role = %q, want %q", admin.Role, "admin")
		}
		if !verifyPassword("admin123", admin.PasswordHash) {
			t.Error("デフォルトパスワードで照合できない")
		}
	})

	t.Run("2回呼んでも重複して作成しない", func(t *testing.T) {
		t.Parallel()

		s := newTestServer(t, "")
		if err := s.ensureDefaultAdmin(context.Background()); err != nil {
			t.Fatalf("ensureDefaultAdmin() error = %v", err)
		}

		var count int64
		err := s.db.QueryRowContext(context.Background(),
			`SELECT COUNT(*) FROM auth_users WHERE username = 'admin'`).Scan(&count)
		if err != nil {
			t.Fatalf("管理者数の取得に失敗: %v", err)
		}
		if count != 1 {
			t.Errorf("管理者数 = %d, want 1", count)
		}
	})
}

// TestHandleRegister はユーザー登録エンドポイントのテスト。
func TestHandleRegister(t *testing.T) {
	t.Parallel()

	t.Run("新規ユーザーを登録できる", func(t *testing.T) {
		t.Parallel()

		s := newTestServer(t, "")
		w := postJSON(t, s, "/register", map[string]string{
			"username": "alice",
			"email":    "alice@example.com",
			"password": "password123",
		})

		if w.Code != http.StatusCreated {
			t.Fatalf("ステータスコード = %d, want %d", w.Code, http.StatusCreated)
		}

		user, err := s.queries.GetUserByUsername(context.Background(), "alice")
		if err != nil {
			t.Fatalf("登録したユーザーが取得できない: %v", err)
		}
		if user.Role != "user" {
			t.Errorf("Role = %q, want %q", user.Role, "user")
		}
		if user.PasswordHash == "password123" {
			t.Error("パスワードが平文のまま保存されている")
		}
		if !verifyPassword("password123", user.PasswordHash) {
			t.Error("登録したパスワードで照合できない")
		}
	})

	t.Run("登録時にusersサービスへ同期リクエストを送る", func(t *testing.T) {
		t.Parallel()

		var synced map[string]string
		backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodPost && r.URL.Path == "/users" {
				json.NewDecoder(r.Body).Decode(&synced)
			}
			w.WriteHeader(http.StatusCreated)
			w.Write([]byte(`{"id": 1}`))
		}))
		defer backend.Close()

		s := newTestServer(t, backend.URL)
		w := postJSON(t, s, "/register", map[string]string{
			"username": "bob",
			"email":    "bob@example.com",
			"password": "password123",
		})

		if w.Code != http.StatusCreated {
			t.Fatalf("ステータスコード = %d, want %d", w.Code, http.StatusCreated)
		}
		if synced["username"] != "bob" || synced["email"] != "bob@example.com" {
			t.Errorf("同期内容 = %v, want bob/bob@example.com", synced)
		}
	})

	t.Run("usersサービスが落ちていても登録は成功する", func(t *testing.T) {
		t.Parallel()

		s := newTestServer(t, "")
		w := postJSON(t, s, "/register", map[string]string{
			"username": "carol",
			"email":    "carol@example.com",
			"password": "password123",
		})

		if w.Code != http.StatusCreated {
			t.Errorf("ステータスコード = %d, want %d", w.Code, http.StatusCreated)
		}
	})

	t.Run("重複するユーザー名は400", func(t *testing.T) {
		t.Parallel()

		s := newTestServer(t, "")
		postJSON(t, s, "/register", map[string]string{
			"username": "dave",
			"email":    "dave@example.com",
			"password": "password123",
		})
		w := postJSON(t, s, "/register", map[string]string{
			"username": "dave",
			"email":    "dave2@example.com",
			"password": "password123",
		})

		if w.Code != http.StatusBadRequest {
			t.Errorf("ステータスコード = %d, want %d", w.Code, http.StatusBadRequest)
		}
	})

	t.Run("重複するメールアドレスは400", func(t *testing.T) {
		t.Parallel()

		s := newTestServer(t, "")
		postJSON(t, s, "/register", map[string]string{
			"username": "erin",
			"email":    "erin@example.com",
			"password": "password123",
		})
		w := postJSON(t, s, "/register", map[string]string{
			"username": "erin2",
			"email":    "erin@example.com",
			"password": "password123",
		})

		if w.Code != http.StatusBadRequest {
			t.Errorf("ステータスコード = %d, want %d", w.Code, http.StatusBadRequest)
		}
	})

	t.Run("不正なメールアドレスは400", func(t *testing.T) {
		t.Parallel()

		s := newTestServer(t, "")
		w := postJSON(t, s, "/register", map[string]string{
			"username": "frank",
			"email":    "not-an-email",
			"password": "password123",
		})

		if w.Code != http.StatusBadRequest {
			t.Errorf("ステータスコード = %d, want %d", w.Code, http.StatusBadRequest)
		}
	})
}

// TestHandleLogin はログインエンドポイントのテスト。
func TestHandleLogin(t *testing.T) {
	t.Parallel()

	t.Run("正しい認証情報で検証可能なトークンが発行される", func(t *testing.T) {
		t.Parallel()

		s := newTestServer(t, "")
		postJSON(t, s, "/register", map[string]string{
			"username": "alice",
			"email":    "alice@example.com",
			"password": "password123",
		})

		w := postJSON(t, s, "/login", map[string]string{
			"username": "alice",
			"password": "password123",
		})

		if w.Code != http.StatusOK {
			t.Fatalf("ステータスコード = %d, want %d", w.Code, http.StatusOK)
		}

		var body struct {
			AccessToken string `json:"access_token"`
			TokenType   string `json:"token_type"`
		}
		if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
			t.Fatalf("レスポンスのパースに失敗: %v", err)
		}
		if body.TokenType != "bearer" {
			t.Errorf("token_type = %q, want %q", body.TokenType, "bearer")
		}

		principal, err := middleware.VerifyToken(testJWTSecret, "HS256", body.AccessToken)
		if err != nil {
			t.Fatalf("発行されたトークンの検証に失敗: %v", err)
		}
		if principal.Username != "alice" {
			t.Errorf("Username = %q, want %q", principal.Username, "alice")
		}
		if principal.Role != "user" {
			t.Errorf("Role = %q, want %q", principal.Role, "user")
		}
	})

	t.Run("adminでログインするとroleがadminのトークンになる", func(t *testing.T) {
		t.Parallel()

		s := newTestServer(t, "")
		w := postJSON(t, s, "/login", map[string]string{
			"username": "admin",
			"password": "admin123",
		})

		if w.Code != http.StatusOK {
			t.Fatalf("ステータスコード = %d, want %d", w.Code, http.StatusOK)
		}

		var body struct {
			AccessToken string `json:"access_token"`
		}
		if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
			t.Fatalf("レスポンスのパースに失敗: %v", err)
		}

		principal, err := middleware.VerifyToken(testJWTSecret, "HS256", body.AccessToken)
		if err != nil {
			t.Fatalf("発行されたトークンの検証に失敗: %v", err)
		}
		if !principal.IsAdmin() {
			t.Errorf("IsAdmin() = false, want true (role = %q)", principal.Role)
		}
	})

	t.Run("パスワード不一致は401", func(t *testing.T) {
		t.Parallel()

		s := newTestServer(t, "")
		w := postJSON(t, s, "/login", map[string]string{
			"username": "admin",
			"password": "wrong-password",
		})

		if w.Code != http.StatusUnauthorized {
			t.Errorf("ステータスコード = %d, want %d", w.Code, http.StatusUnauthorized)
		}
	})

	t.Run("存在しないユーザーもパスワード不一致と同じ401", func(t *testing.T) {
		t.Parallel()

		s := newTestServer(t, "")
		w := postJSON(t, s, "/login", map[string]string{
			"username": "nobody",
			"password": "password123",
		})

		if w.Code != http.StatusUnauthorized {
			t.Errorf("ステータスコード = %d, want %d", w.Code, http.StatusUnauthorized)
		}
	})
}
