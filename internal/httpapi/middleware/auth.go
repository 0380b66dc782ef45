package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const SubjectKey = "auth_subject"

// AuthRequired validates a Bearer HS256 token and stores its subject (the
// calling service identity) in the context.
func AuthRequired(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.GetHeader("Authorization")
		if !strings.HasPrefix(h, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"code": 40101, "message": "missing bearer token", "data": nil,
			})
			return
		}
		raw := strings.TrimPrefix(h, "Bearer ")

		token, err := jwt.Parse(raw, func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, jwt.ErrSignatureInvalid
			}
			return []byte(secret), nil
		})
		if err != nil || !token.Valid {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"code": 40102, "message": "invalid token", "data": nil,
			})
			return
		}

		sub := ""
		if claims, ok := token.Claims.(jwt.MapClaims); ok {
			sub, _ = claims["sub"].(string)
		}
		c.Set(SubjectKey, sub)
		c.Next()
	}
}
