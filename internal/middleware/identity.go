package middleware

import "github.com/labstack/echo/v4"

// UserID returns the authenticated user's ID set by JWTAuth, or "" when
// the request is anonymous.
func UserID(c echo.Context) string {
	s, _ := c.Get("user_id").(string)
	return s
}

// Role returns the authenticated user's role, or "".
func Role(c echo.Context) string {
	s, _ := c.Get("role").(string)
	return s
}

func userOrAnon(c echo.Context) string {
	if id := UserID(c); id != "" {
		return id
	}
	return "anon"
}
