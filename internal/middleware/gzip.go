package middleware

import (
	"log"
	"net/http"

	"github.com/klauspost/compress/gzhttp"
)

// Gzip compresses responses for clients that accept it. Small bodies are
// sent uncompressed.
func Gzip() func(http.Handler) http.Handler {
	wrap, err := gzhttp.NewWrapper(gzhttp.MinSize(512))
	if err != nil {
		log.Printf("Gzip disabled: %v", err)
		return func(next http.Handler) http.Handler { return next }
	}
	return func(next http.Handler) http.Handler {
		return wrap(next)
	}
}
