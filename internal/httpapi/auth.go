package httpapi

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/slhventures/investorledger/pkg/ledger"
)

const authContextKey = "auth"

// Claims is the bearer token payload. Subject carries the account id.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

func (server *Server) authMiddleware() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		header := ctx.GetHeader("Authorization")
		token, found := strings.CutPrefix(header, "Bearer ")
		if !found || token == "" {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse("unauthorized", "missing bearer token"))
			return
		}
		claims := &Claims{}
		parsed, err := jwt.ParseWithClaims(token, claims, func(token *jwt.Token) (any, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
			}
			return []byte(server.cfg.SigningKey), nil
		}, jwt.WithIssuer(server.cfg.Issuer))
		if err != nil || !parsed.Valid || claims.Subject == "" {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse("unauthorized", "invalid bearer token"))
			return
		}
		role := ledger.RoleMember
		if claims.Role == string(ledger.RoleAdmin) {
			role = ledger.RoleAdmin
		}
		ctx.Set(authContextKey, ledger.Authorization{Subject: claims.Subject, Role: role})
		ctx.Next()
	}
}

func getAuthorization(ctx *gin.Context) (ledger.Authorization, bool) {
	value, ok := ctx.Get(authContextKey)
	if !ok {
		return ledger.Authorization{}, false
	}
	authorization, ok := value.(ledger.Authorization)
	return authorization, ok
}

// canActFor allows an account to read or move its own funds and admins to act
// for anyone.
func canActFor(authorization ledger.Authorization, accountID ledger.AccountID) bool {
	if authorization.Role == ledger.RoleAdmin {
		return true
	}
	return authorization.Subject == accountID.String()
}
