package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// トークン検証の失敗理由。呼び出し側はerrors.Isで判別できる。
var (
	// ErrTokenInvalid は署名・アルゴリズム・ペイロードのいずれかが不正な場合のエラー。
	ErrTokenInvalid = errors.New("トークンが無効です")
	// ErrTokenExpired はトークンの有効期限が切れている場合のエラー。
	ErrTokenExpired = errors.New("トークンの有効期限が切れています")
)

// Principal は検証済みトークンから抽出した認証済みユーザーの情報。
// リクエストごとに生成され、リクエスト終了とともに破棄される。永続化しない。
type Principal struct {
	// Username はトークンのsubクレームから取得したユーザー名。
	Username string `json:"username"`
	// Role はユーザーのロール。トークンにroleクレームが無い場合は "user"。
	Role string `json:"role"`
	// UserID はユーザーの数値ID。トークンに含まれる場合のみ設定される。
	UserID *int64 `json:"user_id,omitempty"`
}

// IsAdmin はロールが厳密に "admin" かどうかを返す。
// "admin" 以外のロールはすべて一般権限として扱う（ロール階層は持たない）。
func (p *Principal) IsAdmin() bool {
	return p.Role == "admin"
}

// Claims はJWTトークンのクレーム（ペイロード）を表す。
// subとexpは必須。roleとuser_idはトークン発行側の判断で省略されることがある。
type Claims struct {
	jwt.RegisteredClaims
	// Role はユーザーのロール。
	Role string `json:"role,omitempty"`
	// UserID はユーザーの数値ID。
	UserID *int64 `json:"user_id,omitempty"`
}

// GenerateToken はユーザー名とロールから署名付きJWTトークンを生成する。
// authサービスがログイン成功後に呼び出す。秘密鍵とアルゴリズムは
// 検証側（gateway）と一致している必要がある。
func GenerateToken(secret, algorithm, username, role string, expiresIn time.Duration) (string, error) {
	method := jwt.GetSigningMethod(algorithm)
	if method == nil {
		return "", fmt.Errorf("未対応の署名アルゴリズム: %s", algorithm)
	}

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   username,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(expiresIn)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Issuer:    "shopmesh-auth",
		},
		Role: role,
	}

	token := jwt.NewWithClaims(method, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("JWTトークンの署名に失敗: %w", err)
	}
	return signed, nil
}

// VerifyToken はJWTトークンを検証してPrincipalを返す。
// 秘密鍵とアルゴリズムは呼び出し側から明示的に渡す（グローバル状態に依存しない）。
// ネットワークやディスクへのアクセスは行わず、同じ入力に対して常に同じ結果を返す。
//
// 失敗時のエラーは次の通り。
//   - ErrTokenExpired: 署名が正しくてもexpクレームが過去の場合
//   - ErrTokenInvalid: 署名不一致、アルゴリズム不一致、ペイロード不正、subクレーム欠落
func VerifyToken(secret, algorithm, tokenString string) (*Principal, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(_ *jwt.Token) (any, error) {
		return []byte(secret), nil
	},
		// 発行側と合意したアルゴリズム以外は署名が正しくても拒否する
		jwt.WithValidMethods([]string{algorithm}),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenInvalid
	}

	// subが無いトークンは身元を持たないため、匿名の有効トークンとしては扱わない
	if claims.Subject == "" {
		return nil, ErrTokenInvalid
	}

	role := claims.Role
	if role == "" {
		role = "user"
	}

	return &Principal{
		Username: claims.Subject,
		Role:     role,
		UserID:   claims.UserID,
	}, nil
}

// contextKeyPrincipal はGinコンテキストにPrincipalを格納するためのキー。
const contextKeyPrincipal = "principal"

// JWTAuth はAuthorizationヘッダーのBearerトークンを検証するGinミドルウェアを返す。
// 検証に成功した場合、コンテキストにPrincipalを設定する。
// セッションやトークンキャッシュは持たず、毎リクエスト同じヘッダーを再検証する。
func JWTAuth(secret, algorithm string) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Authorizationヘッダーが必要です",
			})
			return
		}

		tokenString, found := strings.CutPrefix(authHeader, "Bearer ")
		if !found {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Bearer トークン形式が不正です",
			})
			return
		}

		principal, err := VerifyToken(secret, algorithm, tokenString)
		if err != nil {
			message := "トークンが無効です"
			if errors.Is(err, ErrTokenExpired) {
				message = "トークンの有効期限が切れています"
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": message})
			return
		}

		c.Set(contextKeyPrincipal, principal)
		c.Next()
	}
}

// RequireAdmin はadminロールを要求するGinミドルウェアを返す。
// JWTAuthミドルウェアが事前に適用されている必要がある。
// ロールが厳密に "admin" でない認証済みユーザーには403を返す。
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		principal := GetPrincipal(c)
		if principal == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "認証情報が取得できません",
			})
			return
		}
		if !principal.IsAdmin() {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": "管理者権限が必要です",
			})
			return
		}
		c.Next()
	}
}

// GetPrincipal はGinコンテキストから認証済みユーザーの情報を取得する。
// JWTAuthミドルウェアが事前に適用されていない場合はnilを返す。
func GetPrincipal(c *gin.Context) *Principal {
	v, ok := c.Get(contextKeyPrincipal)
	if !ok {
		return nil
	}
	if p, ok := v.(*Principal); ok {
		return p
	}
	return nil
}
