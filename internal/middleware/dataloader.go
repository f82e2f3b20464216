package middleware

import (
	"net/http"

	"github.com/rpattn/pawlog/internal/recordloader"
	"github.com/rpattn/pawlog/internal/repository"
)

// DataLoaderMiddleware attaches a record summary loader to the request context
func DataLoaderMiddleware(repo repository.HealthRecordRepository) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			loader := recordloader.NewSummaryLoader(repo)
			next.ServeHTTP(w, r.WithContext(recordloader.WithLoader(r.Context(), loader)))
		})
	}
}
