package middlewares

import (
	"errors"
	"strings"
	"time"

	"labbilling-backend/config"
	"labbilling-backend/database"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v4"
)

const (
	authHeader   = "Authorization"
	bearerPrefix = "Bearer "

	localSubject = "subject"
	localSchema  = "schema"
)

// Claims is the JWT payload: subject is the caller, schema the tenant.
type Claims struct {
	Schema string `json:"schema"`
	jwt.RegisteredClaims
}

// Auth verifies and issues HS256 bearer tokens.
type Auth struct {
	secret []byte
	ttl    time.Duration
}

func NewAuth(cfg config.AuthConfig) *Auth {
	ttl := cfg.TokenTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Auth{secret: []byte(cfg.JWTSecret), ttl: ttl}
}

// Authenticate validates the bearer token and stores subject and schema in
// the request locals.
func (a *Auth) Authenticate() fiber.Handler {
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))

	return func(c *fiber.Ctx) error {
		h := c.Get(authHeader)
		if len(h) < len(bearerPrefix) || !strings.EqualFold(h[:len(bearerPrefix)], bearerPrefix) {
			return fiber.NewError(fiber.StatusUnauthorized, "missing/invalid Authorization header")
		}
		raw := strings.TrimSpace(h[len(bearerPrefix):])
		if raw == "" {
			return fiber.NewError(fiber.StatusUnauthorized, "invalid bearer token")
		}

		var claims Claims
		token, err := parser.ParseWithClaims(raw, &claims, func(t *jwt.Token) (interface{}, error) {
			if t.Method != jwt.SigningMethodHS256 {
				return nil, errors.New("unexpected signing method")
			}
			return a.secret, nil
		})
		if err != nil || !token.Valid {
			return fiber.NewError(fiber.StatusUnauthorized, "invalid or expired token")
		}
		if strings.TrimSpace(claims.Subject) == "" || strings.TrimSpace(claims.Schema) == "" {
			return fiber.NewError(fiber.StatusUnauthorized, "token missing subject/schema")
		}
		if database.ValidateSchemaName(claims.Schema) != nil {
			return fiber.NewError(fiber.StatusUnauthorized, "token carries an invalid schema")
		}

		c.Locals(localSubject, claims.Subject)
		c.Locals(localSchema, claims.Schema)
		return c.Next()
	}
}

// GenerateJWT signs a token for subject scoped to tenant schema.
func (a *Auth) GenerateJWT(subject, schema string) (string, error) {
	if err := database.ValidateSchemaName(schema); err != nil {
		return "", err
	}
	now := time.Now()
	claims := &Claims{
		Schema: schema,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(now.Add(a.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(a.secret)
}

// Schema returns the tenant schema set by Authenticate.
func Schema(c *fiber.Ctx) string {
	s, _ := c.Locals(localSchema).(string)
	return s
}

// Subject returns the caller set by Authenticate.
func Subject(c *fiber.Ctx) string {
	s, _ := c.Locals(localSubject).(string)
	return s
}
