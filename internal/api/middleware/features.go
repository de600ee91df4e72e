// features.go — передача флагов функций развёртывания обработчикам через контекст.
package middleware

import (
	"net/http"

	"github.com/bigkaa/mediagate/internal/features"
)

// Features помещает флаги в контекст каждого запроса.
// Обработчики читают их через features.FromContext.
func Features(flags features.Flags) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(features.WithFlags(r.Context(), flags)))
		})
	}
}
