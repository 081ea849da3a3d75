package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"

	"github.com/aerugo/aerugo"
	"github.com/aerugo/aerugo/registry/api/errcode"
	"github.com/gorilla/handlers"
)

// tagsDispatcher constructs the tags handler api endpoint.
func tagsDispatcher(ctx *Context, r *http.Request) http.Handler {
	tagsHandler := &tagsHandler{
		Context: ctx,
	}

	return handlers.MethodHandler{
		http.MethodGet: http.HandlerFunc(tagsHandler.GetTags),
	}
}

// tagsHandler handles requests for lists of tags under a repository name.
type tagsHandler struct {
	*Context
}

type tagsAPIResponse struct {
	Name string   `json:"name"`
	Tags []string `json:"tags"`
}

// GetTags returns a json list of tags for a specific image name, optionally
// paginated via the n and last query parameters.
func (th *tagsHandler) GetTags(w http.ResponseWriter, r *http.Request) {
	tagService := th.Repository.Tags(th)
	tags, err := tagService.All(th)
	if err != nil {
		switch {
		case errors.As(err, &aerugo.ErrRepositoryUnknown{}):
			th.Errors = append(th.Errors, errcode.ErrorCodeNameUnknown.WithDetail(map[string]string{"name": th.Repository.Named().Name()}))
		default:
			th.Errors = append(th.Errors, errcode.ErrorCodeUnknown.WithDetail(err))
		}
		return
	}

	sort.Strings(tags)

	filled, moreEntries, err := paginate(tags, r)
	if err != nil {
		th.Errors = append(th.Errors, errcode.ErrorCodePaginationNumberInvalid.WithDetail(err.Error()))
		return
	}

	if moreEntries && len(filled) > 0 {
		lastEntry := filled[len(filled)-1]
		v := url.Values{
			"n":    []string{fmt.Sprint(len(filled))},
			"last": []string{lastEntry},
		}
		tagsURL, err := th.urlBuilder.BuildTagsURL(th.Repository.Named())
		if err != nil {
			th.Errors = append(th.Errors, errcode.ErrorCodeUnknown.WithDetail(err))
			return
		}
		w.Header().Set("Link", "<"+tagsURL+"?"+v.Encode()+`>; rel="next"`)
	}

	serveJSON(w, tagsAPIResponse{
		Name: th.Repository.Named().Name(),
		Tags: filled,
	})
}

// paginate applies the n and last query parameters to a sorted list,
// reporting whether entries remain past the returned window.
func paginate(entries []string, r *http.Request) ([]string, bool, error) {
	q := r.URL.Query()

	start := 0
	if last := q.Get("last"); last != "" {
		start = sort.SearchStrings(entries, last)
		if start < len(entries) && entries[start] == last {
			start++
		}
	}
	entries = entries[start:]

	if nStr := q.Get("n"); nStr != "" {
		n, err := strconv.Atoi(nStr)
		if err != nil || n < 0 {
			return nil, false, fmt.Errorf("n must be a non-negative integer")
		}
		if n < len(entries) {
			return entries[:n], true, nil
		}
	}

	return entries, false, nil
}
