package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	apiKeyScheme = "ea"

	ScopeOutreachWrite = "outreach:write"
)

var (
	ErrAPIKeyMalformed = errors.New("malformed api key")
	ErrAPIKeyUnknown   = errors.New("unknown api key")
	ErrAPIKeyRevoked   = errors.New("api key revoked")
)

// APIKey authenticates server-to-server callers of the external API.
// Only the bcrypt hash of the full key is persisted.
type APIKey struct {
	ID         uuid.UUID      `gorm:"type:uuid;primaryKey"`
	Name       string         `gorm:"type:text;not null"`
	Prefix     string         `gorm:"type:text;uniqueIndex;not null"`
	KeyHash    string         `gorm:"type:text;not null"`
	Scopes     pq.StringArray `gorm:"type:text[];not null;default:'{}'"`
	LastUsedAt *time.Time     `gorm:"type:timestamptz"`
	RevokedAt  *time.Time     `gorm:"type:timestamptz"`
	CreatedAt  time.Time      `gorm:"not null;default:now()"`
}

func (k *APIKey) BeforeCreate(*gorm.DB) error {
	if k.ID == uuid.Nil {
		k.ID = uuid.New()
	}
	return nil
}

func (k *APIKey) HasScope(scope string) bool {
	return slices.Contains([]string(k.Scopes), scope)
}

// GenerateAPIKey returns the plaintext key (shown once), its lookup prefix
// and the hash to store.
func GenerateAPIKey() (plain, prefix, hash string, err error) {
	p := make([]byte, 5)
	if _, err = rand.Read(p); err != nil {
		return "", "", "", err
	}
	s := make([]byte, 32)
	if _, err = rand.Read(s); err != nil {
		return "", "", "", err
	}

	prefix = hex.EncodeToString(p)
	plain = apiKeyScheme + "_" + prefix + "_" + base64.RawURLEncoding.EncodeToString(s)
	hash, err = HashPassword(plain)
	if err != nil {
		return "", "", "", err
	}
	return plain, prefix, hash, nil
}

// ParseAPIKey extracts the lookup prefix of an "ea_<prefix>_<secret>" key.
func ParseAPIKey(key string) (string, error) {
	parts := strings.SplitN(key, "_", 3)
	if len(parts) != 3 || parts[0] != apiKeyScheme || len(parts[1]) != 10 || parts[2] == "" {
		return "", ErrAPIKeyMalformed
	}
	return parts[1], nil
}

type APIKeyFinder interface {
	FindByPrefix(ctx context.Context, prefix string) (*APIKey, error)
	Touch(ctx context.Context, id uuid.UUID, at time.Time) error
}

type APIKeyRepo struct {
	DB *gorm.DB
}

func (r *APIKeyRepo) Create(ctx context.Context, k *APIKey) error {
	return r.DB.WithContext(ctx).Create(k).Error
}

func (r *APIKeyRepo) FindByPrefix(ctx context.Context, prefix string) (*APIKey, error) {
	var k APIKey
	err := r.DB.WithContext(ctx).Where("prefix = ?", prefix).First(&k).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrAPIKeyUnknown
	}
	if err != nil {
		return nil, err
	}
	return &k, nil
}

func (r *APIKeyRepo) Touch(ctx context.Context, id uuid.UUID, at time.Time) error {
	return r.DB.WithContext(ctx).Model(&APIKey{}).Where("id = ?", id).Update("last_used_at", at).Error
}

// Authenticate resolves a plaintext key to its stored record.
func Authenticate(ctx context.Context, finder APIKeyFinder, plain string) (*APIKey, error) {
	prefix, err := ParseAPIKey(plain)
	if err != nil {
		return nil, err
	}
	k, err := finder.FindByPrefix(ctx, prefix)
	if err != nil {
		return nil, err
	}
	if !ComparePassword(k.KeyHash, plain) {
		return nil, ErrAPIKeyUnknown
	}
	if k.RevokedAt != nil {
		return nil, ErrAPIKeyRevoked
	}
	return k, nil
}

func APIKeyFromContext(ctx context.Context) (*APIKey, bool) {
	k, ok := ctx.Value(apiKeyKey).(*APIKey)
	return k, ok
}

func RequireAPIKey(finder APIKeyFinder, scope string, log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			plain, ok := BearerToken(r)
			if !ok {
				writeAuthError(w, http.StatusUnauthorized, "missing api key")
				return
			}

			k, err := Authenticate(r.Context(), finder, plain)
			switch {
			case err == nil:
			case errors.Is(err, ErrAPIKeyMalformed), errors.Is(err, ErrAPIKeyUnknown), errors.Is(err, ErrAPIKeyRevoked):
				writeAuthError(w, http.StatusUnauthorized, err.Error())
				return
			default:
				log.Error("api key lookup failed", zap.Error(err))
				writeAuthError(w, http.StatusInternalServerError, "server error")
				return
			}

			if !k.HasScope(scope) {
				writeAuthError(w, http.StatusForbidden, "missing scope "+scope)
				return
			}

			if err := finder.Touch(r.Context(), k.ID, time.Now()); err != nil {
				log.Warn("api key touch failed", zap.String("api_key_id", k.ID.String()), zap.Error(err))
			}

			ctx := context.WithValue(r.Context(), apiKeyKey, k)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func writeAuthError(w http.ResponseWriter, status int, msg string) {
	code := "unauthorized"
	switch status {
	case http.StatusForbidden:
		code = "forbidden"
	case http.StatusInternalServerError:
		code = "internal_error"
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"code": code, "message": msg})
}
