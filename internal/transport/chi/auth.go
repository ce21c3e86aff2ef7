package chi

import (
	"net/http"
	"strings"
)

// Access is the level a gateway key grants.
type Access int

// Access levels, mirroring the engine's search and admin keys.
const (
	AccessNone Access = iota
	AccessSearch
	AccessAdmin
)

// KeyRing maps bearer tokens to access levels. The zero value disables auth.
type KeyRing struct {
	keys map[string]Access
}

// NewKeyRing builds a key ring. Empty keys are ignored; a key listed in both
// sets keeps admin access.
func NewKeyRing(adminKeys, searchKeys []string) KeyRing {
	keys := make(map[string]Access, len(adminKeys)+len(searchKeys))
	for _, k := range searchKeys {
		if k != "" {
			keys[k] = AccessSearch
		}
	}
	for _, k := range adminKeys {
		if k != "" {
			keys[k] = AccessAdmin
		}
	}
	return KeyRing{keys: keys}
}

// Enabled reports whether any key is configured.
func (k KeyRing) Enabled() bool { return len(k.keys) > 0 }

// Access returns the level granted to token.
func (k KeyRing) Access(token string) Access { return k.keys[token] }

// exemptPaths are routes that bypass authentication (health, metrics).
var exemptPaths = map[string]struct{}{
	"/health":  {},
	"/metrics": {},
}

// requiredAccess classifies a request: reads and searches need a search key,
// everything that writes to the engine needs an admin key.
func requiredAccess(r *http.Request) Access {
	if r.Method == http.MethodGet || r.Method == http.MethodHead {
		return AccessSearch
	}
	path := strings.TrimSuffix(r.URL.Path, "/")
	if r.Method == http.MethodPost && (strings.HasSuffix(path, "/search") || path == "/v1/multi-search") {
		return AccessSearch
	}
	return AccessAdmin
}

// BearerAuthMiddleware validates Bearer tokens against keys. Unknown tokens get
// 401; search keys used on write routes get 403. A key ring without keys
// passes everything through.
func BearerAuthMiddleware(keys KeyRing) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !keys.Enabled() {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := exemptPaths[r.URL.Path]; ok {
				next.ServeHTTP(w, r)
				return
			}

			auth := r.Header.Get("Authorization")
			if auth == "" {
				writeError(w, http.StatusUnauthorized, ErrorCodeUnauthorized, "missing authorization header")
				return
			}

			const bearerPrefix = "Bearer "
			if !strings.HasPrefix(auth, bearerPrefix) {
				writeError(w, http.StatusUnauthorized,
					ErrorCodeUnauthorized, "authorization header must use Bearer scheme")
				return
			}

			granted := keys.Access(auth[len(bearerPrefix):])
			switch {
			case granted == AccessNone:
				writeError(w, http.StatusUnauthorized, ErrorCodeUnauthorized, "invalid api key")
				return
			case granted < requiredAccess(r):
				writeError(w, http.StatusForbidden, ErrorCodeForbidden, "search key cannot modify indexes")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
