package audit

import "strings"

// ActionResource holds action and resource derived from an HTTP route.
type ActionResource struct {
	Action   string
	Resource string
}

// Auth routes whose audit rows are written by the orchestrator itself, with richer metadata.
var selfAudited = map[string]bool{
	"POST /auth/callback": true,
	"POST /auth/refresh":  true,
	"POST /auth/logout":   true,

	"DELETE /auth/sessions/:id": true,
}

// ParseRoute maps a method and gin route template (e.g. DELETE /auth/sessions/:id) to an action and
// resource. Resource is the last static segment, singularized; action follows the HTTP verb,
// with "get" becoming "list" for collection routes.
func ParseRoute(method, fullPath string) ActionResource {
	segments := strings.Split(strings.Trim(fullPath, "/"), "/")
	resource := ""
	hasParam := false
	for _, s := range segments {
		switch {
		case s == "":
		case strings.HasPrefix(s, ":"), strings.HasPrefix(s, "*"):
			hasParam = true
		default:
			resource = s
			hasParam = false
		}
	}
	if resource == "" {
		return ActionResource{Action: "unknown", Resource: "unknown"}
	}
	resource = strings.TrimSuffix(resource, "s")
	return ActionResource{Action: methodToAction(strings.ToUpper(method), hasParam, fullPath), Resource: resource}
}

// SelfAudited reports whether the handler for the route records its own audit entry.
func SelfAudited(method, fullPath string) bool {
	return selfAudited[strings.ToUpper(method)+" "+fullPath]
}

func methodToAction(method string, hasParam bool, fullPath string) string {
	switch method {
	case "GET":
		if !hasParam && strings.HasSuffix(fullPath, "s") {
			return "list"
		}
		return "get"
	case "POST":
		return "create"
	case "PUT", "PATCH":
		return "update"
	case "DELETE":
		if strings.Contains(fullPath, "session") {
			return "revoke"
		}
		return "delete"
	default:
		return strings.ToLower(method)
	}
}
