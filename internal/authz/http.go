package authz

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/projecthub/projecthub/internal/platform/httpx"
)

const maxBodyBytes = 1 << 20

// TokenSource extracts the session token from a request.
type TokenSource func(r *http.Request) string

// IDSource locates the guarded resource id in a request.
type IDSource interface {
	Name() string
	ResourceID(r *http.Request) (string, error)
}

type pathParam string

// PathParam reads the id from a chi route parameter.
func PathParam(name string) IDSource { return pathParam(name) }

func (p pathParam) Name() string { return string(p) }

func (p pathParam) ResourceID(r *http.Request) (string, error) {
	return chi.URLParam(r, string(p)), nil
}

type bodyField string

// BodyField reads the id from a top-level field of a JSON request body. The
// body is restored so the handler can decode it again.
func BodyField(name string) IDSource { return bodyField(name) }

func (b bodyField) Name() string { return string(b) }

func (b bodyField) ResourceID(r *http.Request) (string, error) {
	if r.Body == nil || r.Body == http.NoBody {
		return "", nil
	}
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return "", err
	}
	_ = r.Body.Close()
	r.Body = io.NopCloser(bytes.NewReader(raw))

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return "", nil
	}
	value, ok := fields[string(b)]
	if !ok {
		return "", nil
	}
	dec := json.NewDecoder(bytes.NewReader(value))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return "", nil
	}
	switch t := v.(type) {
	case json.Number:
		return t.String(), nil
	case string:
		return t, nil
	default:
		return "", nil
	}
}

// HandlerFunc is a guarded HTTP handler. It writes its own success response;
// a returned error is rendered as a problem document by the guard.
type HandlerFunc[R any] func(w http.ResponseWriter, r *http.Request, call *Call[R]) error

// HTTP adapts fn into an http.HandlerFunc protected by the guard.
func (g *Guard[R]) HTTP(fn HandlerFunc[R]) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := ""
		if g.deps.Tokens != nil {
			token = g.deps.Tokens(r)
		}
		readID := func() (string, error) { return g.ids.ResourceID(r) }
		err := g.run(r.Context(), token, readID, func(ctx context.Context, call *Call[R]) error {
			return fn(w, r.WithContext(ctx), call)
		})
		if err == nil {
			return
		}
		if !isClientError(err) {
			g.deps.Logger.ErrorContext(r.Context(), "guarded handler failed",
				slog.String("kind", g.kind.Name),
				slog.String("path", r.URL.Path),
				slog.Any("error", err))
		}
		httpx.RespondError(w, err)
	}
}

func isClientError(err error) bool {
	for _, target := range []error{httpx.ErrNotFound, httpx.ErrDuplicate, httpx.ErrValidation, httpx.ErrForbidden, httpx.ErrUnauthorized} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
