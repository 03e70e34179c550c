package server

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"
)

// JSONHandler serves the value returned by fn as JSON on GET requests.
// It is read-only: any other method is rejected.
func JSONHandler[T any](fn func() T, log *zap.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			w.Header().Set("Allow", "GET, HEAD")
			http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
			return
		}

		body, err := json.Marshal(fn())
		if err != nil {
			log.With(zap.Error(err)).Error("failed to encode response")
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)

		if r.Method == http.MethodGet {
			_, _ = w.Write(body)
		}
	})
}
