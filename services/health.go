// storefront/services/health.go

package services

import (
	"context"
	"fmt"
	"net/http"
)

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) bool
}

// healthHandler answers "ok" while the cart store pings.
func healthHandler(store Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !store.Ping(r.Context()) {
			w.WriteHeader(http.StatusServiceUnavailable)
			fmt.Fprint(w, "cart store unavailable")
			return
		}
		fmt.Fprint(w, "ok")
	}
}
