package server

import (
	"net/http"

	"github.com/klauspost/compress/gzhttp"

	"github.com/watzon/syncstore/internal/auth"
	"github.com/watzon/syncstore/internal/metrics"
	"github.com/watzon/syncstore/internal/server/handlers"
)

type Router struct {
	server      *Server
	mux         *http.ServeMux
	middlewares []Middleware
}

func NewRouter(srv *Server) *Router {
	r := &Router{
		server: srv,
		mux:    http.NewServeMux(),
	}

	r.setupMiddleware()
	r.setupRoutes()

	return r
}

func (r *Router) setupMiddleware() {
	cfg := r.server.cfg

	r.Use(RecoveryMiddleware)
	r.Use(RequestIDMiddleware)
	r.Use(MetricsMiddleware)
	r.Use(LoggingMiddleware)
	r.Use(MaxBodySizeMiddleware(cfg.Server.MaxBodySize))
	r.Use(TimeoutContextMiddleware(cfg.Server.WriteTimeout))

	if cfg.Server.Compression {
		r.Use(func(next http.Handler) http.Handler {
			return gzhttp.GzipHandler(next)
		})
	}

	r.Use(auth.Middleware(r.server.jwt, cfg.Auth.PublicPaths))
	// Decryption needs the authenticated user's key material, so the HPKE
	// wrapper sits inside the auth layer.
	r.Use(HPKEMiddleware(r.server.users))
}

func (r *Router) Use(mw Middleware) {
	r.middlewares = append(r.middlewares, mw)
}

func (r *Router) setupRoutes() {
	h := handlers.New(r.server.svc, r.server.users, r.server.jwt, r.server.cfg, r.server.bruteForce)

	healthHandlers := handlers.NewHealthHandlers(r.server.manager, Version)
	r.mux.HandleFunc("GET /health", healthHandlers.Health)
	r.mux.HandleFunc("GET /health/live", healthHandlers.Liveness)
	r.mux.HandleFunc("GET /health/ready", healthHandlers.Readiness)
	r.mux.Handle("GET /metrics", metrics.Handler())

	// The credential endpoints sit behind per-address token buckets; the
	// login handler additionally consults the brute-force protector.
	r.mux.Handle("POST /auth/register", r.server.registerLimiter.Wrap(http.HandlerFunc(h.Register)))
	r.mux.Handle("POST /auth/login", r.server.loginLimiter.Wrap(http.HandlerFunc(h.Login)))

	r.mux.HandleFunc("GET /user/me", h.Me)
	r.mux.HandleFunc("PATCH /user/me", h.UpdateMe)
	r.mux.HandleFunc("POST /user/friends", h.AddFriend)
	r.mux.HandleFunc("GET /user/friends", h.ListFriends)

	r.mux.HandleFunc("POST /data/{namespace}/{collection}", h.CreateItem)
	r.mux.HandleFunc("GET /data/{namespace}/{collection}", h.ListItems)
	r.mux.HandleFunc("GET /data/{namespace}/{collection}/{id}", h.GetItem)
	r.mux.HandleFunc("PUT /data/{namespace}/{collection}/{id}", h.UpdateItem)
	r.mux.HandleFunc("DELETE /data/{namespace}/{collection}/{id}", h.DeleteItem)
	r.mux.HandleFunc("POST /data/{namespace}/{collection}/batch-delete", h.BatchDeleteItems)
	r.mux.HandleFunc("GET /data/{namespace}/{collection}/unique/{value}", h.GetItemByUnique)
	r.mux.HandleFunc("GET /data/{namespace}/{collection}/children/{parent_id}", h.ListChildren)
	r.mux.HandleFunc("GET /data/{namespace}/{collection}/inspect/{field}/{value}", h.ListByInspect)

	r.mux.HandleFunc("GET /acl/grants", h.ListGrants)
	r.mux.HandleFunc("GET /acl/{namespace}/{collection}/{id}", h.GetACL)
	r.mux.HandleFunc("PUT /acl/{namespace}/{collection}/{id}", h.ReplaceACL)
	r.mux.HandleFunc("POST /acl/{namespace}/{collection}/{id}/grants", h.GrantACL)
	r.mux.HandleFunc("DELETE /acl/{namespace}/{collection}/{id}", h.DeleteACL)
}

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	handler := http.Handler(r.mux)

	for i := len(r.middlewares) - 1; i >= 0; i-- {
		handler = r.middlewares[i](handler)
	}

	handler.ServeHTTP(w, req)
}
