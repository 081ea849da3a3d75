package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/aerugo/aerugo/internal/dcontext"
)

// maxManifestBodySize bounds manifest payloads accepted over the API.
const maxManifestBodySize = 4 * 1024 * 1024

// serveJSON marshals v and sets the content-type header to
// 'application/json'. If a different status code is required, call
// ResponseWriter.WriteHeader before this function.
func serveJSON(w http.ResponseWriter, v interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	return json.NewEncoder(w).Encode(v)
}

// copyFullPayload reads the request body into a buffer, failing when the
// client disconnects mid-body so truncated content is never processed as if
// complete.
func copyFullPayload(ctx context.Context, r *http.Request, limit int64) ([]byte, error) {
	body := io.LimitReader(r.Body, limit+1)

	p, err := io.ReadAll(body)
	if err != nil {
		dcontext.GetLogger(ctx).Errorf("error reading request body: %v", err)
		return nil, err
	}
	if int64(len(p)) > limit {
		return nil, errors.New("request body too large")
	}
	return p, nil
}
