package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ignite/pulse/internal/pkg/apierr"
)

func urlParam(r *http.Request, key string) string {
	return chi.URLParam(r, key)
}

func apierrKind(err error) string {
	if kind := apierr.KindOf(err); kind != nil {
		return kind.Error()
	}
	return ""
}
