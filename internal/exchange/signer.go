package exchange

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Signer формирует заголовки аутентификации приватного API.
// Две схемы: HMAC для старого API (/info, /trade) и JWT для нового (/v1).
type Signer interface {
	Sign(method, path string, params url.Values) (map[string]string, error)
}

// HMACSigner реализует старую схему подписи Bithumb:
// HMAC-SHA512 над строкой path NUL query NUL nonce,
// секретный ключ декодируется из base64, подпись кодируется в base64.
type HMACSigner struct {
	accessKey string
	secret    []byte

	mu        sync.Mutex
	lastNonce int64
	now       func() time.Time
}

// NewHMACSigner создает подписанта старой схемы.
// Пустые ключи и некорректный base64-секрет отсекаются до первого запроса.
func NewHMACSigner(accessKey, secretKey string) (*HMACSigner, error) {
	if accessKey == "" || secretKey == "" {
		return nil, ErrNoCredentials
	}
	secret, err := base64.StdEncoding.DecodeString(secretKey)
	if err != nil {
		return nil, &SigningError{Err: fmt.Errorf("секретный ключ не является base64: %w", err)}
	}
	return &HMACSigner{
		accessKey: accessKey,
		secret:    secret,
		now:       time.Now,
	}, nil
}

// Sign возвращает заголовки Api-Key, Api-Sign и Api-Nonce
func (s *HMACSigner) Sign(method, path string, params url.Values) (map[string]string, error) {
	nonce := s.nextNonce()
	return map[string]string{
		"Api-Key":   s.accessKey,
		"Api-Sign":  s.signature(path, params, nonce),
		"Api-Nonce": nonce,
	}, nil
}

// nextNonce возвращает неубывающий миллисекундный nonce.
// При нескольких вызовах в одну миллисекунду значение сдвигается вперед,
// чтобы подпись никогда не переиспользовалась между запросами.
func (s *HMACSigner) nextNonce() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := s.now().UnixMilli()
	if n <= s.lastNonce {
		n = s.lastNonce + 1
	}
	s.lastNonce = n
	return strconv.FormatInt(n, 10)
}

// signature детерминирована относительно path, params и nonce
func (s *HMACSigner) signature(path string, params url.Values, nonce string) string {
	msg := make([]byte, 0, len(path)+len(nonce)+64)
	msg = append(msg, path...)
	msg = append(msg, 0x00)
	msg = append(msg, params.Encode()...)
	msg = append(msg, 0x00)
	msg = append(msg, nonce...)

	mac := hmac.New(sha512.New, s.secret)
	mac.Write(msg)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// JWTSigner реализует схему подписи нового API Bithumb:
// SHA512-хеш отсортированной строки запроса внутри JWT-токена (HS256).
type JWTSigner struct {
	accessKey string
	secretKey string

	now     func() time.Time
	newUUID func() string
}

// NewJWTSigner создает подписанта новой схемы
func NewJWTSigner(accessKey, secretKey string) (*JWTSigner, error) {
	if accessKey == "" || secretKey == "" {
		return nil, ErrNoCredentials
	}
	return &JWTSigner{
		accessKey: accessKey,
		secretKey: secretKey,
		now:       time.Now,
		newUUID:   func() string { return uuid.NewString() },
	}, nil
}

// Sign возвращает заголовок Authorization с Bearer-токеном.
// Nonce — свежий uuid на каждый вызов, повтор подписи исключен.
func (s *JWTSigner) Sign(method, path string, params url.Values) (map[string]string, error) {
	claims := jwt.MapClaims{
		"access_key": s.accessKey,
		"nonce":      s.newUUID(),
		"timestamp":  s.now().UnixMilli(),
	}

	if len(params) > 0 {
		h := sha512.New()
		h.Write([]byte(params.Encode()))
		claims["query_hash"] = hex.EncodeToString(h.Sum(nil))
		claims["query_hash_alg"] = "SHA512"
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.secretKey))
	if err != nil {
		return nil, &SigningError{Err: err}
	}

	return map[string]string{
		"Authorization": "Bearer " + token,
	}, nil
}
