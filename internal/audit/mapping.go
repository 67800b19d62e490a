package audit

import (
	"net/http"
	"strings"
)

// Actions and resources recorded by the HTTP handlers and the audit middleware.
const (
	ActionLogin        = "login"
	ActionLoginFailure = "login_failure"
	ActionLogout       = "logout"
	ActionRevokeAll    = "revoke_all"
	ActionLink         = "link"
	ActionTestPush     = "test_push"
	ActionVerify       = "verify"

	ResourceSession = "session"
	ResourceDevice  = "device"
	ResourceTOTP    = "totp"
)

// ActionResource holds action and resource derived from an HTTP route.
type ActionResource struct {
	Action   string
	Resource string
}

var routeOverrides = map[string]ActionResource{
	"POST /user/login":              {ActionLogin, ResourceSession},
	"POST /user/logout":             {ActionLogout, ResourceSession},
	"DELETE /user/sessions":         {ActionRevokeAll, ResourceSession},
	"DELETE /users/{id}/sessions":   {ActionRevokeAll, ResourceSession},
	"POST /user/devices/telegram":   {ActionLink, ResourceDevice},
	"POST /user/devices/test":       {ActionTestPush, ResourceDevice},
	"POST /users/{id}/devices/test": {ActionTestPush, ResourceDevice},
}

// ParseRoute returns action and resource for a request method and mux path template
// (e.g. DELETE /user/devices/{id} -> delete device).
// Action is get, create, update or delete by method; a literal segment after a path variable
// (POST /user/totp/{id}/verify) becomes the action instead. Resource is the last literal
// segment before any variable, singularised.
func ParseRoute(method, template string) ActionResource {
	template = stripPatterns(template)
	if ar, ok := routeOverrides[method+" "+template]; ok {
		return ar
	}
	var literals []string
	var afterVar string
	seenVar := false
	for _, seg := range strings.Split(strings.Trim(template, "/"), "/") {
		switch {
		case seg == "":
		case strings.HasPrefix(seg, "{"):
			seenVar = true
		case seenVar:
			afterVar = seg
		default:
			literals = append(literals, seg)
		}
	}
	resource := "unknown"
	if n := len(literals); n > 0 && !(n == 1 && isUserPrefix(literals[0])) {
		resource = singular(literals[n-1])
	}
	action := methodToAction(method)
	if afterVar != "" {
		action = strings.ToLower(afterVar)
	}
	return ActionResource{Action: action, Resource: resource}
}

// stripPatterns turns {id:[0-9]+} into {id}.
func stripPatterns(template string) string {
	segs := strings.Split(template, "/")
	for i, seg := range segs {
		if strings.HasPrefix(seg, "{") && strings.HasSuffix(seg, "}") {
			if name, _, found := strings.Cut(seg, ":"); found {
				segs[i] = name + "}"
			}
		}
	}
	return strings.Join(segs, "/")
}

func isUserPrefix(s string) bool {
	return s == "user" || s == "users"
}

func singular(s string) string {
	s = strings.ToLower(s)
	if strings.HasSuffix(s, "ss") {
		return s
	}
	return strings.TrimSuffix(s, "s")
}

func methodToAction(method string) string {
	switch method {
	case http.MethodGet, http.MethodHead:
		return "get"
	case http.MethodPost:
		return "create"
	case http.MethodPut, http.MethodPatch:
		return "update"
	case http.MethodDelete:
		return "delete"
	default:
		return strings.ToLower(method)
	}
}
