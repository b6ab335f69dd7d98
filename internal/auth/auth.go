package auth

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	echojwt "github.com/labstack/echo-jwt/v4"
	"github.com/labstack/echo/v4"

	"shop-service/internal/entity"
)

const contextKey = "user"

// JwtCustomClaims are the claims carried by access tokens issued by the user service.
type JwtCustomClaims struct {
	UserID int64  `json:"user_id"`
	Email  string `json:"email"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// Principal is the authenticated caller handed to every service operation.
type Principal struct {
	UserID int64
	Email  string
	Role   string
}

// System acts on behalf of background workers, never on behalf of a customer.
var System = Principal{Email: "system", Role: entity.RoleAdmin}

func (p Principal) IsAdmin() bool {
	return p.Role == entity.RoleAdmin
}

func (p Principal) IsSystem() bool {
	return p == System
}

// CanAccessOrder reports whether p may read or act on order: admins may touch any order,
// customers only their own.
func CanAccessOrder(p Principal, order *entity.Order) bool {
	if order == nil {
		return false
	}
	if p.IsAdmin() {
		return true
	}
	return p.UserID != 0 && p.UserID == order.UserID
}

// Middleware verifies HS256 bearer tokens. Requests for which skip returns true pass through
// without a principal.
func Middleware(secret string, skip func(c echo.Context) bool) echo.MiddlewareFunc {
	return echojwt.WithConfig(echojwt.Config{
		SigningKey:    []byte(secret),
		SigningMethod: echojwt.AlgorithmHS256,
		ContextKey:    contextKey,
		NewClaimsFunc: func(c echo.Context) jwt.Claims {
			return new(JwtCustomClaims)
		},
		Skipper: skip,
		ErrorHandler: func(c echo.Context, err error) error {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Invalid or missing token"})
		},
	})
}

// SkipPaths builds a skipper for routes that do not need a token.
func SkipPaths(paths ...string) func(c echo.Context) bool {
	return func(c echo.Context) bool {
		path := c.Request().URL.Path
		for _, p := range paths {
			if path == p || strings.HasPrefix(path, p+"/") {
				return true
			}
		}
		return false
	}
}

// PrincipalFrom reads the principal stored by Middleware.
func PrincipalFrom(c echo.Context) (Principal, bool) {
	token, ok := c.Get(contextKey).(*jwt.Token)
	if !ok || token == nil {
		return Principal{}, false
	}
	claims, ok := token.Claims.(*JwtCustomClaims)
	if !ok || claims.UserID == 0 {
		return Principal{}, false
	}
	role := claims.Role
	if role == "" {
		role = entity.RoleUser
	}
	return Principal{UserID: claims.UserID, Email: claims.Email, Role: role}, true
}

// RequireAdmin rejects callers without the admin role.
func RequireAdmin(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		p, ok := PrincipalFrom(c)
		if !ok {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Invalid or missing token"})
		}
		if !p.IsAdmin() {
			return c.JSON(http.StatusForbidden, map[string]string{"error": "Admin role required"})
		}
		return next(c)
	}
}

// SignToken issues a token in the format Middleware accepts. Token issuance belongs to the
// user service; this exists for tooling and tests.
func SignToken(secret string, p Principal, ttl time.Duration) (string, error) {
	if secret == "" {
		return "", errors.New("empty signing secret")
	}
	claims := &JwtCustomClaims{
		UserID: p.UserID,
		Email:  p.Email,
		Role:   p.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}
