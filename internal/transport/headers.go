package transport

import (
	"context"
	"net/http"
)

const (
	headerAuthorization = "Authorization"
	bearerPrefix        = "Bearer "
)

// AuthorizationValue returns "Bearer <token>" when the store holds a
// credential. Without one there is no value at all, never an empty bearer.
func AuthorizationValue(ctx context.Context, store TokenSource) (string, bool) {
	if store == nil {
		return "", false
	}
	token, ok := store.Get(ctx)
	if !ok || token == "" {
		return "", false
	}
	return bearerPrefix + token, true
}

// attachCredential copies the operation's extra headers into dst, then sets
// Authorization from the store or removes it.
func attachCredential(ctx context.Context, dst, extra http.Header, store TokenSource) {
	for key, values := range extra {
		for _, v := range values {
			dst.Add(key, v)
		}
	}
	dst.Del(headerAuthorization)
	if value, ok := AuthorizationValue(ctx, store); ok {
		dst.Set(headerAuthorization, value)
	}
}
