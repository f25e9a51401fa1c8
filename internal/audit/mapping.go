package audit

import (
	"strings"

	"canny/backend/internal/audit/domain"
)

// ActionResource holds action and resource derived from an HTTP route.
type ActionResource struct {
	Action   string
	Resource string
}

// Route overrides for routes whose name does not start with a verb.
var routeOverrides = map[string]ActionResource{
	"/api/plaid/exchange-public-for-access-token": {Action: "item_linked", Resource: "aggregator_item"},
	"/api/plaid/oauth-redirect":                   {Action: "oauth_redirect", Resource: "aggregator_item"},
	"/api/auth/create-account":                    {Action: domain.ActionAccountCreated, Resource: "user"},
	"/api/auth/login":                             {Action: domain.ActionLogin, Resource: "session"},
	"/api/auth/logout":                            {Action: domain.ActionLogout, Resource: "session"},
}

// ParseRoute returns action and resource for an HTTP method and route pattern
// (e.g. POST /api/plaid/get-link-token). The last path segment is read as
// "<verb>-<resource words>": get-link-token -> get / link_token.
// Without a leading verb the HTTP method decides the action.
func ParseRoute(method, route string) ActionResource {
	route = strings.TrimRight(route, "/")
	if ar, ok := routeOverrides[route]; ok {
		return ar
	}
	slash := strings.LastIndex(route, "/")
	if slash < 0 || slash == len(route)-1 {
		return ActionResource{Action: "unknown", Resource: "unknown"}
	}
	words := strings.Split(strings.ToLower(route[slash+1:]), "-")
	if action, ok := verbToAction(words[0]); ok && len(words) > 1 {
		return ActionResource{Action: action, Resource: strings.Join(words[1:], "_")}
	}
	return ActionResource{Action: methodToAction(method), Resource: strings.Join(words, "_")}
}

func verbToAction(verb string) (string, bool) {
	switch verb {
	case "get", "fetch", "read":
		return "get", true
	case "list":
		return "list", true
	case "create", "new":
		return "create", true
	case "update", "set":
		return "update", true
	case "delete", "remove":
		return "delete", true
	case "exchange":
		return "exchange", true
	}
	return "", false
}

func methodToAction(method string) string {
	switch strings.ToUpper(method) {
	case "GET", "HEAD":
		return "get"
	case "POST":
		return "create"
	case "PUT", "PATCH":
		return "update"
	case "DELETE":
		return "delete"
	default:
		return strings.ToLower(method)
	}
}
