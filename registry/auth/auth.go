// Package auth defines a standard interface for request access controllers.
//
// An access controller has a single Authorized method that checks whether a
// request may perform a set of actions on registry resources. Controllers
// register themselves by name with a constructor taking an options map, and
// the configured controller is selected at startup:
//
//	options := map[string]interface{}{"realm": "registry", "path": "/etc/htpasswd"}
//	controller, _ := auth.GetAccessController("htpasswd", options)
package auth

import (
	"context"
	"fmt"
	"net/http"
)

// UserInfo carries information about an authenticated client.
type UserInfo struct {
	Name string
}

// Resource describes a registry resource by type and name.
type Resource struct {
	Type string
	Name string
}

// Access describes a requested action on a resource.
type Access struct {
	Resource
	Action string
}

// Grant is the result of a successful authorization.
type Grant struct {
	User UserInfo
}

// Challenge is a special error type used to indicate that the client must
// authenticate to access the resource. The handler lets the error write its
// WWW-Authenticate header before responding with 401.
type Challenge interface {
	error

	// SetHeaders prepares the challenge response headers on w.
	SetHeaders(r *http.Request, w http.ResponseWriter)
}

// AccessController controls access to registry resources.
type AccessController interface {
	// Authorized reports whether the request is allowed to perform the
	// given accesses. A nil error grants access; an error implementing
	// Challenge asks the client to authenticate, any other error denies.
	Authorized(r *http.Request, access ...Access) (*Grant, error)
}

// InitFunc is the type of an AccessController factory and is used to
// register constructors for the different backends.
type InitFunc func(options map[string]interface{}) (AccessController, error)

var accessControllers = make(map[string]InitFunc)

// Register associates an InitFunc with the given backend name. It is meant
// to be called from backend package init functions and panics on a
// duplicate name.
func Register(name string, initFunc InitFunc) {
	if _, exists := accessControllers[name]; exists {
		panic(fmt.Sprintf("auth: backend already registered: %s", name))
	}
	accessControllers[name] = initFunc
}

// GetAccessController constructs an AccessController with the given options
// using the named backend.
func GetAccessController(name string, options map[string]interface{}) (AccessController, error) {
	initFunc, exists := accessControllers[name]
	if !exists {
		return nil, fmt.Errorf("auth: no access controller registered with name: %s", name)
	}
	return initFunc(options)
}

type userKey struct{}

// WithUser returns a context carrying the authorized user info.
func WithUser(ctx context.Context, user UserInfo) context.Context {
	return context.WithValue(ctx, userKey{}, user)
}

// GetUserName returns the authorized user name, or "" when the context
// carries none.
func GetUserName(ctx context.Context) string {
	if user, ok := ctx.Value(userKey{}).(UserInfo); ok {
		return user.Name
	}
	return ""
}
