package handlers

import (
	"context"
	"errors"

	"github.com/aerugo/aerugo"
	"github.com/aerugo/aerugo/registry/api/errcode"
	"github.com/aerugo/aerugo/registry/api/v2"
	"github.com/opencontainers/go-digest"
)

var errDigestNotAvailable = errors.New("digest not available in request context")

// Context should contain the request specific context for use in across
// handlers. Resources that don't need to be shared across handlers should
// not be on this object.
type Context struct {
	// App points to the application structure that created this context.
	*App
	context.Context

	// Repository is the repository for the current request. All requests
	// should be scoped to a single repository. This field may be nil.
	Repository aerugo.Repository

	// Errors is a collection of errors encountered during the request to be
	// returned to the client API. If errors are added to the collection, the
	// handler *must not* start the response via http.ResponseWriter.
	Errors errcode.Errors

	urlBuilder *v2.URLBuilder
}

// Value overrides context.Context.Value to ensure that calls are routed to
// correct context.
func (ctx *Context) Value(key interface{}) interface{} {
	return ctx.Context.Value(key)
}

func getName(ctx *Context) string {
	return getVar(ctx, "name")
}

func getReference(ctx *Context) string {
	return getVar(ctx, "reference")
}

func getUploadUUID(ctx *Context) string {
	return getVar(ctx, "uuid")
}

func getDigest(ctx *Context) (digest.Digest, error) {
	dgst := getVar(ctx, "digest")
	if dgst == "" {
		return "", errDigestNotAvailable
	}
	return digest.Parse(dgst)
}

type muxVarsKey struct{}

func withVars(ctx context.Context, vars map[string]string) context.Context {
	return context.WithValue(ctx, muxVarsKey{}, vars)
}

func getVar(ctx *Context, name string) string {
	if vars, ok := ctx.Context.Value(muxVarsKey{}).(map[string]string); ok {
		return vars[name]
	}
	return ""
}
