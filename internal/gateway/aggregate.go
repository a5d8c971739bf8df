package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"
)

// errUserNotFound はusersサービスの一覧に該当ユーザーが存在しないことを表す。
// バックエンド自体の障害（ErrUnavailable）とは区別する。
var errUserNotFound = errors.New("usersサービスにユーザーが見つかりません")

// resourceRequest は集約対象のリソース1件を表す。
type resourceRequest struct {
	// Name はレスポンス内でのリソースのキー名（例: "products"）。
	Name string
	// Service は取得先バックエンドの論理名（例: "catalog"）。
	Service string
	// Path は取得先のパス（例: "/products"）。
	Path string
}

// resourceResult はリソース1件の取得結果。PayloadとErrのどちらかが設定される。
type resourceResult struct {
	// Payload は取得に成功した場合のJSONペイロード。
	Payload json.RawMessage
	// Err は取得に失敗した場合のエラー。
	Err error
}

// unavailableMarker はバックエンド障害時にレスポンスへ埋め込むマーカー文字列を返す。
func unavailableMarker(service string) string {
	return fmt.Sprintf("%s_service_unavailable", service)
}

// aggregate は複数のバックエンドからリソースを並行に取得し、
// リソース名をキーとする結果マップを返す。
//
// 各取得は互いに独立しており、1つの失敗が他の取得を中断することはない。
// 戻り値のマップには要求したすべてのリソースのキーが必ず含まれるため、
// 呼び出し側はリソースごとに成功と失敗を判別できる。
// 並行実行により全体の所要時間は最も遅いバックエンド1つ分に抑えられる。
func (s *Server) aggregate(ctx context.Context, requests []resourceRequest) map[string]resourceResult {
	results := make([]resourceResult, len(requests))

	var wg sync.WaitGroup
	for i, r := range requests {
		wg.Add(1)
		// 各ゴルーチンは自分のインデックスにのみ書き込むためロック不要
		go func(i int, r resourceRequest) {
			defer wg.Done()
			payload, err := s.backends[r.Service].GetJSON(ctx, r.Path)
			results[i] = resourceResult{Payload: payload, Err: err}
		}(i, r)
	}
	wg.Wait()

	merged := make(map[string]resourceResult, len(requests))
	for i, r := range requests {
		merged[r.Name] = results[i]
	}
	return merged
}

// userRecord はusersサービスが返すユーザーオブジェクト。
// 識別子解決のためにusernameとidを持つことを前提とする。
type userRecord struct {
	// ID はユーザーの数値ID。
	ID int64 `json:"id"`
	// Username はユーザー名。
	Username string `json:"username"`
	// Email はメールアドレス。
	Email string `json:"email,omitempty"`
}

// fetchUsers はusersサービスからユーザー一覧を取得する。
// バックエンド障害と不正なペイロードはErrUnavailableとして返す。
func (s *Server) fetchUsers(ctx context.Context) ([]userRecord, error) {
	payload, err := s.backends[serviceUsers].GetJSON(ctx, "/users")
	if err != nil {
		return nil, err
	}

	var users []userRecord
	if err := json.Unmarshal(payload, &users); err != nil {
		return nil, fmt.Errorf("usersサービスのレスポンスが不正: %w", err)
	}
	return users, nil
}

// resolveUser はusersサービスの一覧からusernameに一致するユーザーを探す。
// usersサービス自体が落ちている場合はErrUnavailable、
// 一覧に該当ユーザーがいない場合はerrUserNotFoundを返す。
// 照合はユーザー名の完全一致のみ。
func (s *Server) resolveUser(ctx context.Context, username string) (*userRecord, error) {
	users, err := s.fetchUsers(ctx)
	if err != nil {
		return nil, err
	}

	for _, u := range users {
		if u.Username == username {
			return &u, nil
		}
	}
	return nil, errUserNotFound
}

// backendHealth はバックエンド1つ分のヘルス状態。
type backendHealth struct {
	// Status は "ok" または "unavailable"。
	Status string `json:"status"`
	// ResponseTimeMs は/healthの応答時間（ミリ秒）。
	ResponseTimeMs float64 `json:"response_time_ms"`
}

// checkBackends は設定済みのすべてのバックエンドの/healthを並行に呼び出し、
// サービス名をキーとする状態マップを返す。結果はキャッシュせず毎回取得する。
func (s *Server) checkBackends(ctx context.Context) map[string]backendHealth {
	names := make([]string, 0, len(s.backends))
	for name := range s.backends {
		names = append(names, name)
	}

	statuses := make([]backendHealth, len(names))

	var wg sync.WaitGroup
	for i, name := range names {
		wg.Add(1)
		go func(i int, name string) {
			defer wg.Done()
			start := time.Now()
			_, err := s.backends[name].GetJSON(ctx, "/health")
			durationMs := float64(time.Since(start).Microseconds()) / 1000

			status := "ok"
			if err != nil {
				status = "unavailable"
			}
			statuses[i] = backendHealth{
				Status:         status,
				ResponseTimeMs: math.Round(durationMs*100) / 100,
			}
		}(i, name)
	}
	wg.Wait()

	result := make(map[string]backendHealth, len(names))
	for i, name := range names {
		result[name] = statuses[i]
	}
	return result
}
