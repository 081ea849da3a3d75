// Package none implements an access controller that grants every request.
// It is the default when no auth section is configured.
package none

import (
	"net/http"

	"github.com/aerugo/aerugo/registry/auth"
)

type accessController struct{}

var _ auth.AccessController = accessController{}

func (accessController) Authorized(r *http.Request, access ...auth.Access) (*auth.Grant, error) {
	return &auth.Grant{User: auth.UserInfo{Name: "anonymous"}}, nil
}

func init() {
	auth.Register("none", func(options map[string]interface{}) (auth.AccessController, error) {
		return accessController{}, nil
	})
}
