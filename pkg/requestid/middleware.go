package requestid

import (
	"net/http"
	"regexp"

	"github.com/google/uuid"
)

const Header = "X-Request-ID"

// Inbound ids are reused only when short and made of URL-safe characters;
// anything else is replaced so it cannot pollute logs.
var validID = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,128}$`)

// Middleware reuses a valid inbound X-Request-ID or mints a time-ordered
// UUID, stores it in the request context and echoes it in the response.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(Header)
		if !validID.MatchString(id) {
			id = newID()
		}
		w.Header().Set(Header, id)
		next.ServeHTTP(w, r.WithContext(WithContext(r.Context(), id)))
	})
}

func newID() string {
	if id, err := uuid.NewV7(); err == nil {
		return id.String()
	}
	return uuid.NewString()
}
