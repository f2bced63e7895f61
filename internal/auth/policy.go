package auth

import (
	"net/http"
	"strings"
)

// Policy determines required roles by request.
type Policy struct {
	ExemptPaths    map[string]struct{}
	ExemptPrefixes []string
}

// NewDefaultPolicy builds a default policy with exemptions.
func NewDefaultPolicy(exemptPaths []string, exemptPrefixes []string) Policy {
	set := make(map[string]struct{}, len(exemptPaths))
	for _, path := range exemptPaths {
		set[path] = struct{}{}
	}
	return Policy{ExemptPaths: set, ExemptPrefixes: exemptPrefixes}
}

// IsExempt returns true when a request should skip auth/RBAC.
func (p Policy) IsExempt(r *http.Request) bool {
	if r == nil {
		return true
	}
	if _, ok := p.ExemptPaths[r.URL.Path]; ok {
		return true
	}
	for _, prefix := range p.ExemptPrefixes {
		if strings.HasPrefix(r.URL.Path, prefix) {
			return true
		}
	}
	return false
}

// RequiredRole resolves required role for the request. Mutating settlement
// and meter endpoints need a landlord; reads need a viewer.
func (p Policy) RequiredRole(r *http.Request) (Role, bool) {
	if r == nil {
		return "", false
	}
	path := r.URL.Path
	method := r.Method

	switch {
	case path == "/api/v1/settlements/calculate":
		return RoleLandlord, true
	case strings.HasPrefix(path, "/api/v1/settlements/") && strings.HasSuffix(path, "/finalize") && method == http.MethodPost:
		return RoleLandlord, true
	case strings.HasPrefix(path, "/api/v1/settlements/") && strings.HasSuffix(path, "/void") && method == http.MethodPost:
		return RoleLandlord, true
	case strings.HasPrefix(path, "/api/v1/settlements"):
		return RoleViewer, true
	case strings.HasPrefix(path, "/api/v1/meters/") && strings.HasSuffix(path, "/exchange") && method == http.MethodPost:
		return RoleLandlord, true
	case strings.HasPrefix(path, "/api/v1/meters/"):
		return RoleViewer, true
	case strings.HasPrefix(path, "/api/v1/ledger"):
		return RoleViewer, true
	default:
		return RoleViewer, true
	}
}
