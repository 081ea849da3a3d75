package handlers

import (
	"net/http"

	"github.com/gorilla/handlers"
)

func cacheHealthDispatcher(ctx *Context, r *http.Request) http.Handler {
	cacheHealthHandler := &cacheHealthHandler{
		Context: ctx,
	}

	return handlers.MethodHandler{
		http.MethodGet: http.HandlerFunc(cacheHealthHandler.GetCacheHealth),
	}
}

type cacheHealthHandler struct {
	*Context
}

type cacheHealthAPIResponse struct {
	CacheStats interface{} `json:"cache_stats"`
}

// GetCacheHealth reports cache tier statistics: entry counts and hit rates
// for the in-process tier, plus shared tier reachability.
func (chh *cacheHealthHandler) GetCacheHealth(w http.ResponseWriter, r *http.Request) {
	serveJSON(w, cacheHealthAPIResponse{
		CacheStats: chh.cache.Stats(chh),
	})
}
