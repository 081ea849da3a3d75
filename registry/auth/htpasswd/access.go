// Package htpasswd provides an authentication scheme that checks client
// credentials against a bcrypt htpasswd file named in the configuration.
//
// This scheme MUST be used under TLS, as a simple token-replay attack is
// possible otherwise.
package htpasswd

import (
	"errors"
	"fmt"
	"net/http"
	"os"

	"github.com/aerugo/aerugo/registry/auth"
)

var (
	// ErrAuthenticationFailure is returned when the provided credentials
	// are missing or not valid.
	ErrAuthenticationFailure = errors.New("authentication failure")
)

type accessController struct {
	realm    string
	htpasswd *htpasswd
}

var _ auth.AccessController = (*accessController)(nil)

func newAccessController(options map[string]interface{}) (auth.AccessController, error) {
	realm, present := options["realm"]
	if _, ok := realm.(string); !present || !ok {
		return nil, fmt.Errorf(`"realm" must be set for htpasswd access controller`)
	}

	path, present := options["path"]
	if _, ok := path.(string); !present || !ok {
		return nil, fmt.Errorf(`"path" must be set for htpasswd access controller`)
	}

	f, err := os.Open(path.(string))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	h, err := newHTPasswd(f)
	if err != nil {
		return nil, err
	}

	return &accessController{realm: realm.(string), htpasswd: h}, nil
}

func (ac *accessController) Authorized(r *http.Request, access ...auth.Access) (*auth.Grant, error) {
	username, password, ok := r.BasicAuth()
	if !ok {
		return nil, &challenge{realm: ac.realm, err: ErrAuthenticationFailure}
	}

	if err := ac.htpasswd.authenticateUser(username, password); err != nil {
		return nil, &challenge{realm: ac.realm, err: err}
	}

	return &auth.Grant{User: auth.UserInfo{Name: username}}, nil
}

type challenge struct {
	realm string
	err   error
}

var _ auth.Challenge = (*challenge)(nil)

func (ch *challenge) SetHeaders(r *http.Request, w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", fmt.Sprintf("Basic realm=%q", ch.realm))
}

func (ch *challenge) Error() string {
	return fmt.Sprintf("basic authentication challenge for realm %q: %s", ch.realm, ch.err)
}

func init() {
	auth.Register("htpasswd", newAccessController)
}
