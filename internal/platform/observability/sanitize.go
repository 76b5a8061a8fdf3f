package observability

import "strings"

// Log field limits. Anything longer is a sign of abuse rather than data.
const (
	maxRouteLength  = 160
	maxMethodLength = 8
	maxUserIDLength = 64
)

func stripControl(value string, limit int) string {
	cleaned := strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7f {
			return -1
		}
		return r
	}, value)
	if len(cleaned) > limit {
		cleaned = cleaned[:limit]
	}
	return cleaned
}

// SanitizeRoute bounds a route pattern before it reaches log output.
func SanitizeRoute(route string) string {
	if route == "" {
		return "/"
	}
	return stripControl(route, maxRouteLength)
}

// SanitizeMethod bounds an HTTP method string for logging.
func SanitizeMethod(method string) string {
	return stripControl(method, maxMethodLength)
}

// SanitizeUserID bounds a user identifier so logs never carry arbitrary data.
func SanitizeUserID(uid string) string {
	return stripControl(uid, maxUserIDLength)
}
