// internal/auth/session.go
package auth

import (
	"crypto/ed25519"
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Signing keys for identity tokens. The gateway trusts only tokens minted by
// its own identity service; "sub" carries the stable caller identity string
// the policy evaluator receives.
var (
	privateKey ed25519.PrivateKey
	publicKey  ed25519.PublicKey

	// TokenExpireSec is how many seconds until token expiry (0 => never).
	TokenExpireSec int
)

// Init generates a fresh ed25519 key pair at runtime and reads the token
// expiry from TOKEN_EXPIRE_TIME. Suitable for dev and tests; production
// deployments load persisted keys via InitFromPath so tokens survive
// restarts.
func Init() {
	var err error
	publicKey, privateKey, err = ed25519.GenerateKey(nil)
	if err != nil {
		fmt.Printf("failed to generate ed25519 key pair: %v\n", err)
		os.Exit(1)
	}
	parseTokenExpiry()
}

// InitFromPath reads the ed25519 key pair from files.
func InitFromPath(privatePath, publicPath string) error {
	privData, err := os.ReadFile(privatePath)
	if err != nil {
		return fmt.Errorf("failed to read private key file: %w", err)
	}
	pubData, err := os.ReadFile(publicPath)
	if err != nil {
		return fmt.Errorf("failed to read public key file: %w", err)
	}
	privateKey = ed25519.PrivateKey(privData)
	publicKey = ed25519.PublicKey(pubData)
	parseTokenExpiry()
	return nil
}

func parseTokenExpiry() {
	raw := os.Getenv("TOKEN_EXPIRE_TIME")
	if raw == "" || raw == "0" || raw == "never" {
		TokenExpireSec = 0
		return
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		fmt.Printf("failed to parse TOKEN_EXPIRE_TIME: %v\n", err)
		os.Exit(1)
	}
	TokenExpireSec = int(d.Seconds())
}

// IssueToken mints a signed identity token for the given user identity.
func IssueToken(identity string) (string, error) {
	claims := jwt.MapClaims{
		"sub": identity,
	}
	if TokenExpireSec > 0 {
		claims["exp"] = time.Now().Add(time.Duration(TokenExpireSec) * time.Second).Unix()
	}
	token := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims)
	return token.SignedString(privateKey)
}

// VerifyToken checks a token and returns the caller identity it carries.
// Any failure yields an error; callers treat that as unauthenticated.
func VerifyToken(tokenString string) (string, error) {
	t, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodEd25519); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return publicKey, nil
	})
	if err != nil {
		return "", fmt.Errorf("token parse error: %w", err)
	}
	if !t.Valid {
		return "", fmt.Errorf("invalid token")
	}
	claims, ok := t.Claims.(jwt.MapClaims)
	if !ok {
		return "", fmt.Errorf("invalid token claims")
	}
	identity, ok := claims["sub"].(string)
	if !ok || identity == "" {
		return "", fmt.Errorf("token missing sub")
	}
	return identity, nil
}
