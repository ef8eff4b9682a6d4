package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// Chaves de contexto preenchidas pelo middleware de autenticação.
const (
	CtxUserID   = "userID"
	CtxTenantID = "tenantID"
)

// Auth valida o JWT do portador e injeta usuário e tenant no contexto.
// Todo escopo de dados da API parte do tenant resolvido aqui.
func Auth(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" || !strings.HasPrefix(header, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "token ausente"})
			return
		}
		tokenString := strings.TrimPrefix(header, "Bearer ")

		token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, jwt.ErrSignatureInvalid
			}
			return []byte(secret), nil
		})
		if err != nil || !token.Valid {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "token inválido"})
			return
		}

		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "token inválido"})
			return
		}

		tenant, _ := claims["tenant"].(string)
		if tenant == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "token sem tenant"})
			return
		}
		c.Set(CtxTenantID, tenant)

		if sub, ok := claims["sub"].(string); ok {
			c.Set(CtxUserID, sub)
		}

		c.Next()
	}
}

// TenantID retorna o tenant autenticado da requisição.
func TenantID(c *gin.Context) string {
	return c.GetString(CtxTenantID)
}

// UserID retorna o usuário autenticado da requisição, se houver.
func UserID(c *gin.Context) string {
	return c.GetString(CtxUserID)
}
