package httpclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

// TestClientGetJSON はGETリクエストの正常系と失敗の正規化を検証する。
func TestClientGetJSON(t *testing.T) {
	t.Parallel()

	t.Run("2xxレスポンスのJSONボディを返すこと", func(t *testing.T) {
		t.Parallel()

		backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`[{"id": 1, "username": "alice"}]`))
		}))
		t.Cleanup(backend.Close)

		client := New("users", backend.URL)
		payload, err := client.GetJSON(context.Background(), "/users")
		if err != nil {
			t.Fatalf("GetJSONに失敗: %v", err)
		}

		var users []map[string]any
		if err := json.Unmarshal(payload, &users); err != nil {
			t.Fatalf("ペイロードのパースに失敗: %v", err)
		}
		if len(users) != 1 {
			t.Fatalf("ユーザー数 = %d, want 1", len(users))
		}
		if users[0]["username"] != "alice" {
			t.Errorf("username = %v, want %q", users[0]["username"], "alice")
		}
	})

	t.Run("非2xxステータスはErrUnavailableになること", func(t *testing.T) {
		t.Parallel()

		backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		t.Cleanup(backend.Close)

		client := New("users", backend.URL)
		if _, err := client.GetJSON(context.Background(), "/users"); !errors.Is(err, ErrUnavailable) {
			t.Errorf("エラー = %v, want ErrUnavailable", err)
		}
	})

	t.Run("接続できないバックエンドはErrUnavailableになること", func(t *testing.T) {
		t.Parallel()

		// サーバーを閉じてから呼び出し、接続エラーを発生させる
		backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
		}))
		backend.Close()

		client := New("users", backend.URL)
		if _, err := client.GetJSON(context.Background(), "/users"); !errors.Is(err, ErrUnavailable) {
			t.Errorf("エラー = %v, want ErrUnavailable", err)
		}
	})

	t.Run("タイムアウトを超える応答はErrUnavailableになること", func(t *testing.T) {
		t.Parallel()

		backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			time.Sleep(200 * time.Millisecond)
			w.Write([]byte(`{}`))
		}))
		t.Cleanup(backend.Close)

		client := NewWithTimeout("orders", backend.URL, 50*time.Millisecond)
		if _, err := client.GetJSON(context.Background(), "/orders"); !errors.Is(err, ErrUnavailable) {
			t.Errorf("エラー = %v, want ErrUnavailable", err)
		}
	})

	t.Run("不正なJSONボディはErrUnavailableになること", func(t *testing.T) {
		t.Parallel()

		backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Write([]byte(`<html>not json</html>`))
		}))
		t.Cleanup(backend.Close)

		client := New("catalog", backend.URL)
		if _, err := client.GetJSON(context.Background(), "/products"); !errors.Is(err, ErrUnavailable) {
			t.Errorf("エラー = %v, want ErrUnavailable", err)
		}
	})

	t.Run("リトライせず1回の失敗で確定すること", func(t *testing.T) {
		t.Parallel()

		attempts := 0
		backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			attempts++
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		t.Cleanup(backend.Close)

		client := New("users", backend.URL)
		if _, err := client.GetJSON(context.Background(), "/users"); !errors.Is(err, ErrUnavailable) {
			t.Fatalf("エラー = %v, want ErrUnavailable", err)
		}
		if attempts != 1 {
			t.Errorf("リクエスト回数 = %d, want 1", attempts)
		}
	})
}

// TestClientPostJSON はPOSTリクエストの正常系と失敗の正規化を検証する。
func TestClientPostJSON(t *testing.T) {
	t.Parallel()

	t.Run("JSONボディを送信しレスポンスを返すこと", func(t *testing.T) {
		t.Parallel()

		var received map[string]any
		backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				t.Errorf("メソッド = %s, want POST", r.Method)
			}
			if ct := r.Header.Get("Content-Type"); ct != "application/json" {
				t.Errorf("Content-Type = %q, want %q", ct, "application/json")
			}
			if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
				t.Errorf("リクエストボディのパースに失敗: %v", err)
			}
			w.WriteHeader(http.StatusCreated)
			w.Write([]byte(`{"status": "sent"}`))
		}))
		t.Cleanup(backend.Close)

		client := New("notifications", backend.URL)
		payload, err := client.PostJSON(context.Background(), "/notify", map[string]any{
			"user_id": 1,
			"message": "Order #1 created",
		})
		if err != nil {
			t.Fatalf("PostJSONに失敗: %v", err)
		}

		if received["message"] != "Order #1 created" {
			t.Errorf("message = %v, want %q", received["message"], "Order #1 created")
		}

		var resp map[string]string
		if err := json.Unmarshal(payload, &resp); err != nil {
			t.Fatalf("ペイロードのパースに失敗: %v", err)
		}
		if resp["status"] != "sent" {
			t.Errorf("status = %q, want %q", resp["status"], "sent")
		}
	})

	t.Run("接続失敗はErrUnavailableになること", func(t *testing.T) {
		t.Parallel()

		backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {}))
		backend.Close()

		client := New("notifications", backend.URL)
		if _, err := client.PostJSON(context.Background(), "/notify", map[string]any{"user_id": 1}); !errors.Is(err, ErrUnavailable) {
			t.Errorf("エラー = %v, want ErrUnavailable", err)
		}
	})
}
