package middleware

// identity.go provides the actor extraction helper shared by the
// allocation handlers. Every hold and confirmation records who
// triggered it; when no token is present or the claim is missing,
// "system" is recorded so automated callers remain attributable.

import "github.com/labstack/echo/v4"

// ActorID extracts the authenticated actor identifier placed in
// the context by JWTAuth. It returns "system" when the request is
// unauthenticated or the claim has an unexpected shape.
func ActorID(c echo.Context) string {
	if v, ok := c.Get("actor_id").(string); ok && v != "" {
		return v
	}
	return "system"
}
