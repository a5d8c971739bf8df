package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"
)

// ErrUnavailable は接続先サービスが利用できないことを表すエラー。
// タイムアウト、接続失敗、非2xxステータス、不正なレスポンスボディの
// すべてがこのエラーに正規化される。呼び出し側はerrors.Isで判別する。
// 個々の失敗理由はログにのみ残し、エラー種別としては区別しない。
var ErrUnavailable = errors.New("サービスが利用できません")

// defaultTimeout は1回の呼び出しに適用するタイムアウト。
// 遅いバックエンド1つが集約リクエスト全体を遅らせないよう短めに設定する。
const defaultTimeout = 2 * time.Second

// Client はサービス間通信用のHTTPクライアント。
// 1つの論理バックエンドに紐付き、あらゆる失敗をErrUnavailableに正規化する。
// リトライは行わない。リトライが必要な場合は呼び出し側の責務とする。
type Client struct {
	// httpClient は内部で使用するHTTPクライアント。
	httpClient *http.Client
	// name は接続先サービスの論理名（ログと障害マーカーに使用する）。
	name string
	// baseURL は接続先サービスのベースURL。
	baseURL string
}

// New は新しいサービス間通信用HTTPクライアントを生成する。
// nameには接続先の論理名（例: "users"）、baseURLには接続先サービスの
// ベースURL（例: "http://users:8002"）を指定する。
func New(name, baseURL string) *Client {
	return NewWithTimeout(name, baseURL, defaultTimeout)
}

// NewWithTimeout はタイムアウトを指定してHTTPクライアントを生成する。
// 主にテストで短いタイムアウトを設定するために使用する。
func NewWithTimeout(name, baseURL string, timeout time.Duration) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		name:    name,
		baseURL: baseURL,
	}
}

// Name は接続先サービスの論理名を返す。
func (c *Client) Name() string {
	return c.name
}

// GetJSON は指定パスにGETリクエストを送信し、JSONレスポンスボディを返す。
// 失敗した場合はErrUnavailableを返す。
func (c *Client) GetJSON(ctx context.Context, path string) (json.RawMessage, error) {
	return c.doJSON(ctx, http.MethodGet, path, nil)
}

// PostJSON は指定パスにJSONボディでPOSTリクエストを送信し、JSONレスポンスボディを返す。
// 失敗した場合はErrUnavailableを返す。
func (c *Client) PostJSON(ctx context.Context, path string, body any) (json.RawMessage, error) {
	return c.doJSON(ctx, http.MethodPost, path, body)
}

// doJSON はJSON形式のHTTPリクエストを実行する共通処理。
// 結果にかかわらず1呼び出しにつき1行のログを出力する。
func (c *Client) doJSON(ctx context.Context, method, path string, body any) (json.RawMessage, error) {
	url := c.baseURL + path

	var bodyReader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, c.unavailable(method, url, fmt.Sprintf("リクエストボディのシリアライズに失敗: %v", err))
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return nil, c.unavailable(method, url, fmt.Sprintf("HTTPリクエストの作成に失敗: %v", err))
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, c.unavailable(method, url, fmt.Sprintf("接続に失敗: %v", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, c.unavailable(method, url, fmt.Sprintf("status=%d", resp.StatusCode))
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, c.unavailable(method, url, fmt.Sprintf("レスポンスボディの読み取りに失敗: %v", err))
	}
	if !json.Valid(respBody) {
		return nil, c.unavailable(method, url, "レスポンスボディが不正なJSON")
	}

	log.Printf("HTTP %s %s -> %d", method, url, resp.StatusCode)
	return json.RawMessage(respBody), nil
}

// unavailable は失敗理由をログに記録し、正規化済みのエラーを返す。
func (c *Client) unavailable(method, url, reason string) error {
	log.Printf("HTTP %s %s FAILED: %s", method, url, reason)
	return fmt.Errorf("%sサービス: %w", c.name, ErrUnavailable)
}
