package chi

import (
	"net/http"

	"github.com/go-chi/cors"
)

// CORSMiddleware answers cross-origin requests for the browser frontend.
// Every OPTIONS request, preflight or not, gets a JSON acknowledgement and
// never reaches the routes.
func CORSMiddleware(allowedOrigins []string) func(http.Handler) http.Handler {
	c := cors.Handler(cors.Options{
		AllowedOrigins:     allowedOrigins,
		AllowedMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:     []string{"*"},
		ExposedHeaders:     []string{"X-Request-ID"},
		AllowCredentials:   true,
		OptionsPassthrough: true,
		MaxAge:             300,
	})
	return func(next http.Handler) http.Handler {
		return c(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodOptions {
				writeJSON(w, http.StatusOK, messageResponse{Message: "CORS preflight handled"})
				return
			}
			next.ServeHTTP(w, r)
		}))
	}
}
