package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/aerugo/aerugo"
	"github.com/aerugo/aerugo/configuration"
	"github.com/aerugo/aerugo/internal/dcontext"
	"github.com/aerugo/aerugo/registry/api/errcode"
	"github.com/aerugo/aerugo/registry/api/v2"
	"github.com/aerugo/aerugo/registry/auth"
	"github.com/aerugo/aerugo/registry/storage"
	"github.com/aerugo/aerugo/registry/storage/cache"
	"github.com/aerugo/aerugo/registry/storage/cache/memory"
	rediscache "github.com/aerugo/aerugo/registry/storage/cache/redis"
	storagedriver "github.com/aerugo/aerugo/registry/storage/driver"
	"github.com/aerugo/aerugo/registry/storage/driver/factory"
	"github.com/distribution/reference"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/redis/go-redis/v9"
)

// App is a global registry application object. Shared resources can be
// placed on this object that will be accessible from all requests.
type App struct {
	context.Context

	Config *configuration.Configuration

	// InstanceID is a unique id assigned to the application on each
	// creation, identifying restarts in the logs.
	InstanceID string

	router           *mux.Router
	driver           storagedriver.StorageDriver
	registry         aerugo.Namespace
	cache            *cache.Service
	accessController auth.AccessController
	redisClient      redis.UniversalClient
}

// NewApp takes a configuration and returns a configured app, ready to serve
// requests. The app only implements ServeHTTP and can be wrapped in other
// handlers accordingly.
func NewApp(ctx context.Context, config *configuration.Configuration) (*App, error) {
	app := &App{
		Context:    ctx,
		Config:     config,
		InstanceID: uuid.NewString(),
		router:     v2.RouterWithPrefix(config.HTTP.Prefix),
	}

	app.register(v2.RouteNameBase, func(ctx *Context, r *http.Request) http.Handler {
		return http.HandlerFunc(apiBase)
	})
	app.register(v2.RouteNameManifest, manifestDispatcher)
	app.register(v2.RouteNameTags, tagsDispatcher)
	app.register(v2.RouteNameBlob, blobDispatcher)
	app.register(v2.RouteNameBlobUpload, blobUploadDispatcher)
	app.register(v2.RouteNameBlobUploadChunk, blobUploadDispatcher)
	app.register(v2.RouteNameCatalog, catalogDispatcher)
	app.register(v2.RouteNameCacheHealth, cacheHealthDispatcher)

	driver, err := factory.Create(config.Storage.Type(), config.Storage.Parameters())
	if err != nil {
		return nil, fmt.Errorf("configuring storage driver %q: %w", config.Storage.Type(), err)
	}
	app.driver = driver

	registry, err := storage.NewRegistry(ctx, driver,
		storage.ManifestReferenceValidation(config.Validation.Manifests.RequireReferences),
		storage.UploadSessionTTL(config.Uploads.SessionTTL),
	)
	if err != nil {
		return nil, fmt.Errorf("configuring registry: %w", err)
	}

	app.cache = app.configureCache(ctx, config)
	app.registry = cache.WrapRegistry(registry, app.cache)

	authType := config.Auth.Type()
	if authType != "" {
		accessController, err := auth.GetAccessController(authType, config.Auth.Parameters())
		if err != nil {
			return nil, fmt.Errorf("configuring authorization (%s): %w", authType, err)
		}
		app.accessController = accessController
	}

	return app, nil
}

func (app *App) configureCache(ctx context.Context, config *configuration.Configuration) *cache.Service {
	local := memory.NewCache(config.Cache.Memory.Size)

	var shared cache.Tier
	if config.Cache.Redis.Enabled {
		app.redisClient = redis.NewClient(&redis.Options{
			Addr:     config.Cache.Redis.Addr,
			Password: config.Cache.Redis.Password,
			DB:       config.Cache.Redis.DB,
		})
		shared = rediscache.NewTier(app.redisClient)
		dcontext.GetLogger(ctx).Infof("redis cache tier configured at %s", config.Cache.Redis.Addr)
	}

	ttls := cache.DefaultTTLs()
	if v := config.Cache.TTL.Manifest; v > 0 {
		ttls.Manifest = v
	}
	if v := config.Cache.TTL.Tags; v > 0 {
		ttls.Tags = v
	}
	if v := config.Cache.TTL.Catalog; v > 0 {
		ttls.Catalog = v
	}
	if v := config.Cache.TTL.BlobMeta; v > 0 {
		ttls.BlobMeta = v
	}

	return cache.NewService(local, shared, ttls)
}

// Close releases resources held by the app, such as the redis client.
func (app *App) Close() error {
	if app.redisClient != nil {
		return app.redisClient.Close()
	}
	return nil
}

// register a handler with the application, by route name. The handler will
// be passed through the application filters and context will be constructed
// at request time.
func (app *App) register(routeName string, dispatch dispatchFunc) {
	app.router.GetRoute(routeName).Handler(app.dispatcher(dispatch))
}

func (app *App) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close() // ensure that request body is always closed.

	w.Header().Add("Docker-Distribution-API-Version", "registry/2.0")
	app.router.ServeHTTP(w, r)
}

// dispatchFunc takes a context and request and returns a constructed
// handler for the route. The dispatcher will use this to dynamically create
// request specific handlers for each endpoint without creating a new router
// for each request.
type dispatchFunc func(ctx *Context, r *http.Request) http.Handler

// dispatcher returns a handler that constructs a request specific context
// and handler, using the dispatch factory function.
func (app *App) dispatcher(dispatch dispatchFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := app.context(w, r)

		if err := app.authorized(w, r, ctx); err != nil {
			dcontext.GetLogger(ctx).Warnf("error authorizing context: %v", err)
			return
		}

		if app.nameRequired(r) {
			named, err := reference.WithName(getName(ctx))
			if err != nil {
				dcontext.GetLogger(ctx).Errorf("error parsing repository name: %v", err)
				ctx.Errors = append(ctx.Errors, errcode.ErrorCodeNameInvalid.WithDetail(err))
				errcode.ServeJSON(w, ctx.Errors)
				return
			}

			repository, err := app.registry.Repository(ctx, named)
			if err != nil {
				dcontext.GetLogger(ctx).Errorf("error resolving repository: %v", err)
				switch {
				case errors.As(err, &aerugo.ErrRepositoryUnknown{}):
					ctx.Errors = append(ctx.Errors, errcode.ErrorCodeNameUnknown.WithDetail(err))
				case errors.As(err, &aerugo.ErrRepositoryNameInvalid{}):
					ctx.Errors = append(ctx.Errors, errcode.ErrorCodeNameInvalid.WithDetail(err))
				default:
					ctx.Errors = append(ctx.Errors, errcode.ErrorCodeUnknown.WithDetail(err))
				}
				errcode.ServeJSON(w, ctx.Errors)
				return
			}

			ctx.Repository = repository
		}

		dispatch(ctx, r).ServeHTTP(w, r)

		// Automated error response handling here. Handlers may return their
		// own errors if they need different behavior (such as range errors
		// for layer upload).
		if ctx.Errors.Len() > 0 {
			if err := errcode.ServeJSON(w, ctx.Errors); err != nil {
				dcontext.GetLogger(ctx).Errorf("error serving error json: %v (from %v)", err, ctx.Errors)
			}
		}
	})
}

// context constructs the context object for the application. This only be
// called once per request.
func (app *App) context(w http.ResponseWriter, r *http.Request) *Context {
	ctx := dcontext.WithRequest(app.Context, r)
	ctx = withVars(ctx, mux.Vars(r))

	return &Context{
		App:        app,
		Context:    ctx,
		urlBuilder: v2.NewURLBuilderFromRequest(r, app.Config.HTTP.Prefix),
	}
}

// authorized checks if the request can proceed with access to the requested
// repository. If it succeeds, the context may access the requested
// repository. An error will be returned if access is not available.
func (app *App) authorized(w http.ResponseWriter, r *http.Request, ctx *Context) error {
	if app.accessController == nil {
		return nil // access controller is not enabled.
	}

	repo := getName(ctx)

	var accessRecords []auth.Access
	if repo != "" {
		accessRecords = appendAccessRecords(accessRecords, r.Method, repo)
	} else if route := mux.CurrentRoute(r); route != nil && route.GetName() == v2.RouteNameCatalog {
		accessRecords = append(accessRecords, auth.Access{
			Resource: auth.Resource{Type: "registry", Name: "catalog"},
			Action:   "*",
		})
	}

	grant, err := app.accessController.Authorized(r, accessRecords...)
	if err != nil {
		var challenge auth.Challenge
		if errors.As(err, &challenge) {
			challenge.SetHeaders(r, w)
			errcode.ServeJSON(w, errcode.ErrorCodeUnauthorized.WithDetail(accessRecords))
			return err
		}

		dcontext.GetLogger(ctx).Errorf("error checking authorization: %v", err)
		errcode.ServeJSON(w, errcode.ErrorCodeDenied)
		return err
	}

	ctx.Context = auth.WithUser(ctx.Context, grant.User)
	return nil
}

// nameRequired returns true if the route requires a name.
func (app *App) nameRequired(r *http.Request) bool {
	route := mux.CurrentRoute(r)
	if route == nil {
		return true
	}
	switch route.GetName() {
	case v2.RouteNameBase, v2.RouteNameCatalog, v2.RouteNameCacheHealth:
		return false
	}
	return true
}

// apiBase implements a simple yes-man for doing overall checks against the
// api. This can support auth roundtrips to support docker login.
func apiBase(w http.ResponseWriter, r *http.Request) {
	const emptyJSON = "{}"

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Length", fmt.Sprint(len(emptyJSON)))
	fmt.Fprint(w, emptyJSON)
}

// appendAccessRecords checks the method and adds the appropriate Access
// records to the records list.
func appendAccessRecords(records []auth.Access, method string, repo string) []auth.Access {
	resource := auth.Resource{
		Type: "repository",
		Name: repo,
	}

	switch method {
	case http.MethodGet, http.MethodHead:
		records = append(records, auth.Access{Resource: resource, Action: "pull"})
	case http.MethodPost, http.MethodPut, http.MethodPatch:
		records = append(records,
			auth.Access{Resource: resource, Action: "pull"},
			auth.Access{Resource: resource, Action: "push"})
	case http.MethodDelete:
		records = append(records, auth.Access{Resource: resource, Action: "delete"})
	}
	return records
}
