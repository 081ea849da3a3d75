package handlers

import (
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/aerugo/aerugo/registry/api/errcode"
	"github.com/gorilla/handlers"
)

const defaultReturnedEntries = 100
const maximumReturnedEntries = 1000

func catalogDispatcher(ctx *Context, r *http.Request) http.Handler {
	catalogHandler := &catalogHandler{
		Context: ctx,
	}

	return handlers.MethodHandler{
		http.MethodGet: http.HandlerFunc(catalogHandler.GetCatalog),
	}
}

type catalogHandler struct {
	*Context
}

type catalogAPIResponse struct {
	Repositories []string `json:"repositories"`
}

// GetCatalog serves the lexicographically sorted repository list, paginated
// via the n and last query parameters with a Link header pointing at the
// next page.
func (ch *catalogHandler) GetCatalog(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	lastEntry := q.Get("last")

	entries := defaultReturnedEntries
	if nStr := q.Get("n"); nStr != "" {
		n, err := strconv.Atoi(nStr)
		if err != nil || n < 0 {
			ch.Errors = append(ch.Errors, errcode.ErrorCodePaginationNumberInvalid.WithDetail(map[string]string{"n": nStr}))
			return
		}
		entries = n
	}
	if entries > maximumReturnedEntries {
		entries = maximumReturnedEntries
	}

	repos := make([]string, entries)
	filled, err := ch.registry.Repositories(ch, repos, lastEntry)

	moreEntries := true
	if err == io.EOF || entries == 0 {
		moreEntries = false
	} else if err != nil {
		ch.Errors = append(ch.Errors, errcode.ErrorCodeUnknown.WithDetail(err))
		return
	}

	if moreEntries && filled > 0 {
		lastEntry = repos[filled-1]
		v := url.Values{
			"n":    []string{fmt.Sprint(entries)},
			"last": []string{lastEntry},
		}
		catalogURL, err := ch.urlBuilder.BuildCatalogURL(v)
		if err != nil {
			ch.Errors = append(ch.Errors, errcode.ErrorCodeUnknown.WithDetail(err))
			return
		}
		w.Header().Set("Link", "<"+catalogURL+`>; rel="next"`)
	}

	serveJSON(w, catalogAPIResponse{
		Repositories: repos[:filled],
	})
}
