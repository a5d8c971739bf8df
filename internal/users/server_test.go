package users

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	_ "modernc.org/sqlite"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// newTestServer はインメモリSQLiteを使い初期データ投入済みのテスト用サーバーを生成する。
func newTestServer(t *testing.T) *Server {
	t.Helper()

	sqlDB, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("テスト用DBのオープンに失敗: %v", err)
	}
	t.Cleanup(func() { sqlDB.Close() })

	if err := initSchema(sqlDB); err != nil {
		t.Fatalf("スキーマ初期化に失敗: %v", err)
	}

	s := &Server{
		router:  gin.New(),
		port:    "0",
		queries: NewQueries(sqlDB),
		db:      sqlDB,
	}
	s.setupRoutes()

	if err := s.seedInitialUsers(context.Background()); err != nil {
		t.Fatalf("初期データの投入に失敗: %v", err)
	}
	return s
}

// doRequest はテスト用サーバーにリクエストを送信する。
func doRequest(t *testing.T, s *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("リクエストボディのエンコードに失敗: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	s.router.ServeHTTP(w, req)
	return w
}

// TestSeedInitialUsers は初期データ投入のテスト。
func TestSeedInitialUsers(t *testing.T) {
	t.Parallel()

	t.Run("空のテーブルにaliceとbobが投入される", func(t *testing.T) {
		t.Parallel()

		s := newTestServer(t)
		users, err := s.queries.ListUsers(context.Background())
		if err != nil {
			t.Fatalf("ListUsers() error = %v", err)
		}
		if len(users) != 2 {
			t.Fatalf("ユーザー数 = %d, want 2", len(users))
		}
		if users[0].Username != "alice" || users[1].Username != "bob" {
			t.Errorf("初期ユーザー = %s, %s, want alice, bob", users[0].Username, users[1].Username)
		}
	})

	t.Run("テーブルにデータがある場合は投入しない", func(t *testing.T) {
		t.Parallel()

		s := newTestServer(t)
		if err := s.seedInitialUsers(context.Background()); err != nil {
			t.Fatalf("seedInitialUsers() error = %v", err)
		}

		count, err := s.queries.CountUsers(context.Background())
		if err != nil {
			t.Fatalf("CountUsers() error = %v", err)
		}
		if count != 2 {
			t.Errorf("ユーザー数 = %d, want 2", count)
		}
	})
}

// TestHandleList はユーザー一覧取得エンドポイントのテスト。
func TestHandleList(t *testing.T) {
	t.Parallel()

	s := newTestServer(t)
	w := doRequest(t, s, http.MethodGet, "/users", nil)

	if w.Code != http.StatusOK {
		t.Fatalf("ステータスコード = %d, want %d", w.Code, http.StatusOK)
	}

	var users []userResponse
	if err := json.Unmarshal(w.Body.Bytes(), &users); err != nil {
		t.Fatalf("レスポンスのパースに失敗: %v", err)
	}
	if len(users) != 2 {
		t.Fatalf("ユーザー数 = %d, want 2", len(users))
	}
	if users[0].ID == 0 {
		t.Error("idフィールドが設定されていない")
	}
	if users[0].Email == nil || *users[0].Email != "alice@example.com" {
		t.Errorf("Email = %v, want alice@example.com", users[0].Email)
	}
}

// TestHandleGetByID はユーザー詳細取得エンドポイントのテスト。
func TestHandleGetByID(t *testing.T) {
	t.Parallel()

	t.Run("存在するユーザーを取得できる", func(t *testing.T) {
		t.Parallel()

		s := newTestServer(t)
		w := doRequest(t, s, http.MethodGet, "/users/1", nil)

		if w.Code != http.StatusOK {
			t.Fatalf("ステータスコード = %d, want %d", w.Code, http.StatusOK)
		}

		var user userResponse
		if err := json.Unmarshal(w.Body.Bytes(), &user); err != nil {
			t.Fatalf("レスポンスのパースに失敗: %v", err)
		}
		if user.Username != "alice" {
			t.Errorf("Username = %q, want %q", user.Username, "alice")
		}
	})

	t.Run("存在しないユーザーは404", func(t *testing.T) {
		t.Parallel()

		s := newTestServer(t)
		w := doRequest(t, s, http.MethodGet, "/users/999", nil)

		if w.Code != http.StatusNotFound {
			t.Errorf("ステータスコード = %d, want %d", w.Code, http.StatusNotFound)
		}
	})

	t.Run("数値でないIDは400", func(t *testing.T) {
		t.Parallel()

		s := newTestServer(t)
		w := doRequest(t, s, http.MethodGet, "/users/abc", nil)

		if w.Code != http.StatusBadRequest {
			t.Errorf("ステータスコード = %d, want %d", w.Code, http.StatusBadRequest)
		}
	})
}

// TestHandleCreate はユーザー作成エンドポイントのテスト。
func TestHandleCreate(t *testing.T) {
	t.Parallel()

	t.Run("新規ユーザーを作成できる", func(t *testing.T) {
		t.Parallel()

		s := newTestServer(t)
		w := doRequest(t, s, http.MethodPost, "/users", map[string]string{
			"username": "carol",
			"email":    "carol@example.com",
		})

		if w.Code != http.StatusCreated {
			t.Fatalf("ステータスコード = %d, want %d", w.Code, http.StatusCreated)
		}

		var user userResponse
		if err := json.Unmarshal(w.Body.Bytes(), &user); err != nil {
			t.Fatalf("レスポンスのパースに失敗: %v", err)
		}
		if user.ID == 0 {
			t.Error("idフィールドが設定されていない")
		}
		if user.Username != "carol" {
			t.Errorf("Username = %q, want %q", user.Username, "carol")
		}
	})

	t.Run("メールアドレス無しで作成するとemailはnullになる", func(t *testing.T) {
		t.Parallel()

		s := newTestServer(t)
		w := doRequest(t, s, http.MethodPost, "/users", map[string]string{
			"username": "dave",
		})

		if w.Code != http.StatusCreated {
			t.Fatalf("ステータスコード = %d, want %d", w.Code, http.StatusCreated)
		}

		var user userResponse
		if err := json.Unmarshal(w.Body.Bytes(), &user); err != nil {
			t.Fatalf("レスポンスのパースに失敗: %v", err)
		}
		if user.Email != nil {
			t.Errorf("Email = %v, want nil", *user.Email)
		}
	})

	t.Run("重複するユーザー名は400", func(t *testing.T) {
		t.Parallel()

		s := newTestServer(t)
		w := doRequest(t, s, http.MethodPost, "/users", map[string]string{
			"username": "alice",
		})

		if w.Code != http.StatusBadRequest {
			t.Errorf("ステータスコード = %d, want %d", w.Code, http.StatusBadRequest)
		}
	})

	t.Run("ユーザー名が無いリクエストは400", func(t *testing.T) {
		t.Parallel()

		s := newTestServer(t)
		w := doRequest(t, s, http.MethodPost, "/users", map[string]string{
			"email": "nobody@example.com",
		})

		if w.Code != http.StatusBadRequest {
			t.Errorf("ステータスコード = %d, want %d", w.Code, http.StatusBadRequest)
		}
	})
}

// TestHandleHealth はヘルスチェックエンドポイントのテスト。
func TestHandleHealth(t *testing.T) {
	t.Parallel()

	s := newTestServer(t)
	w := doRequest(t, s, http.MethodGet, "/health", nil)

	if w.Code != http.StatusOK {
		t.Fatalf("ステータスコード = %d, want %d", w.Code, http.StatusOK)
	}

	var body struct {
		Service string `json:"service"`
		Status  string `json:"status"`
		DB      struct {
			Status         string  `json:"status"`
			ResponseTimeMs float64 `json:"response_time_ms"`
		} `json:"db"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("レスポンスのパースに失敗: %v", err)
	}
	if body.Service != "users" {
		t.Errorf("service = %q, want %q", body.Service, "users")
	}
	if body.Status != "ok" {
		t.Errorf("status = %q, want %q", body.Status, "ok")
	}
	if body.DB.Status != "ok" {
		t.Errorf("db.status = %q, want %q", body.DB.Status, "ok")
	}
}
