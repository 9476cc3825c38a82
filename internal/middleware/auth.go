package middleware

import (
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v3"
	"github.com/golang-jwt/jwt/v5"
	"go.mongodb.org/mongo-driver/v2/bson"
)

const (
	localUserID    = "userID"
	localUserEmail = "userEmail"
)

// Claims is the token shape issued by the platform gateway.
type Claims struct {
	jwt.RegisteredClaims
	Id    string `json:"id"`
	Email string `json:"email"`
}

// RequireIdentity resolves the caller. Behind the gateway the identity
// arrives in X-User-ID/X-User-Email headers; direct callers present a
// Bearer token instead. Requests with neither are rejected.
func RequireIdentity(jwtSecret string) fiber.Handler {
	secret := []byte(jwtSecret)

	return func(c fiber.Ctx) error {
		userHex := c.Get("X-User-ID")
		email := c.Get("X-User-Email")

		if userHex == "" {
			claims, err := verifyBearer(c, secret)
			if err != nil {
				return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
					"error": "missing or invalid credentials",
				})
			}
			userHex = claims.Id
			email = claims.Email
		}

		userID, err := bson.ObjectIDFromHex(userHex)
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "malformed user id",
			})
		}

		c.Locals(localUserID, userID)
		c.Locals(localUserEmail, email)
		return c.Next()
	}
}

func verifyBearer(c fiber.Ctx, secret []byte) (*Claims, error) {
	header := c.Get("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		return nil, fmt.Errorf("no bearer token")
	}
	tokenString := strings.TrimPrefix(header, "Bearer ")

	token, err := jwt.ParseWithClaims(
		tokenString,
		&Claims{},
		func(token *jwt.Token) (any, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return secret, nil
		},
	)
	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}
	return claims, nil
}

// UserID returns the caller's id set by RequireIdentity.
func UserID(c fiber.Ctx) bson.ObjectID {
	if id, ok := c.Locals(localUserID).(bson.ObjectID); ok {
		return id
	}
	return bson.NilObjectID
}

// UserEmail returns the caller's email, which may be empty.
func UserEmail(c fiber.Ctx) string {
	if email, ok := c.Locals(localUserEmail).(string); ok {
		return email
	}
	return ""
}
