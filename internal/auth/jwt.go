package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"streetwear-store/internal/config"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token has expired")
	ErrMissingToken = errors.New("authorization token required")
)

// RoleAdmin обозначает роль сотрудника бэк-офиса.
const RoleAdmin = "admin"

// Claims описывает токен внешнего провайдера идентификации.
type Claims struct {
	UserID string `json:"user_id"`
	Role   string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// Identity описывает пользователя текущего запроса.
type Identity struct {
	UserID string
	Role   string
}

// IsAdmin сообщает, есть ли у пользователя доступ к бэк-офису.
func (i Identity) IsAdmin() bool {
	return i.Role == RoleAdmin
}

// JWTService проверяет HS256-токены с общим секретом.
type JWTService struct {
	secret []byte
	issuer string
}

// NewJWTService создаёт сервис. Пустой секрет отключает проверку: все запросы анонимны.
func NewJWTService(cfg *config.AuthConfig) *JWTService {
	return &JWTService{secret: []byte(cfg.JWTSecret), issuer: cfg.Issuer}
}

// Enabled сообщает, настроен ли секрет.
func (j *JWTService) Enabled() bool {
	return len(j.secret) > 0
}

// GenerateToken выпускает токен; используется в тестах и локальной разработке.
func (j *JWTService) GenerateToken(userID, role string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID: userID,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    j.issuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(j.secret)
}

// ValidateToken разбирает и проверяет токен.
func (j *JWTService) ValidateToken(tokenString string) (*Claims, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if j.issuer != "" {
		opts = append(opts, jwt.WithIssuer(j.issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return j.secret, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.UserID == "" {
		claims.UserID = claims.Subject
	}
	if claims.UserID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// ExtractTokenFromHeader достаёт bearer-токен из заголовка Authorization.
func ExtractTokenFromHeader(authHeader string) (string, error) {
	if authHeader == "" {
		return "", ErrMissingToken
	}
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", ErrInvalidToken
	}
	token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	if token == "" {
		return "", ErrMissingToken
	}
	return token, nil
}

type contextKey string

const identityKey contextKey = "identity"

// WithIdentity кладёт пользователя в контекст.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// FromContext возвращает пользователя запроса; ok=false для анонима.
func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey).(Identity)
	return id, ok && id.UserID != ""
}

// UserID возвращает ID пользователя или пустую строку.
func UserID(ctx context.Context) string {
	id, _ := FromContext(ctx)
	return id.UserID
}

// OptionalAuth пропускает анонимов, но отклоняет присланный невалидный токен.
func (j *JWTService) OptionalAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" || !j.Enabled() {
			next.ServeHTTP(w, r)
			return
		}

		claims, err := j.parseHeader(header)
		if err != nil {
			writeUnauthorized(w, err)
			return
		}

		ctx := WithIdentity(r.Context(), Identity{UserID: claims.UserID, Role: claims.Role})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireAuth требует валидный токен.
func (j *JWTService) RequireAuth(next http.Handler) http.Handler {
	return j.OptionalAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := FromContext(r.Context()); !ok {
			writeUnauthorized(w, ErrMissingToken)
			return
		}
		next.ServeHTTP(w, r)
	}))
}

// RequireAdmin требует токен с ролью admin.
func (j *JWTService) RequireAdmin(next http.Handler) http.Handler {
	return j.RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, _ := FromContext(r.Context())
		if !id.IsAdmin() {
			writeJSONError(w, http.StatusForbidden, "admin role required")
			return
		}
		next.ServeHTTP(w, r)
	}))
}

func (j *JWTService) parseHeader(header string) (*Claims, error) {
	token, err := ExtractTokenFromHeader(header)
	if err != nil {
		return nil, err
	}
	return j.ValidateToken(token)
}

func writeUnauthorized(w http.ResponseWriter, err error) {
	writeJSONError(w, http.StatusUnauthorized, err.Error())
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":   http.StatusText(status),
		"message": message,
	})
}
