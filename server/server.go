package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	logging "github.com/ipfs/go-log/v2"

	"github.com/rqzrqh/stackflow_hub/hub"
	"github.com/rqzrqh/stackflow_hub/reconciler"
)

var log = logging.Logger("server")

const maxBodySize = 1 << 20

type Server struct {
	hub    *hub.Hub
	rec    *reconciler.Reconciler
	secret string
	router *mux.Router
	srv    *http.Server
}

// NewServer wires the HTTP routes. Event ingestion is refused unless
// chainhookSecret is set.
func NewServer(h *hub.Hub, rec *reconciler.Reconciler, chainhookSecret string) *Server {
	s := &Server{
		hub:    h,
		rec:    rec,
		secret: chainhookSecret,
		router: mux.NewRouter(),
	}

	r := s.router
	r.HandleFunc("/deposit", s.instrument("deposit", s.handleDeposit)).Methods(http.MethodPost)
	r.HandleFunc("/withdraw", s.instrument("withdraw", s.handleWithdraw)).Methods(http.MethodPost)
	r.HandleFunc("/transfer", s.instrument("transfer", s.handleTransfer)).Methods(http.MethodPost)
	r.HandleFunc("/close", s.instrument("close", s.handleClose)).Methods(http.MethodPost)
	r.HandleFunc("/reveal", s.instrument("reveal", s.handleReveal)).Methods(http.MethodPost)
	r.HandleFunc("/channels", s.instrument("channels", s.handleChannels)).Methods(http.MethodGet)
	r.HandleFunc("/events", s.authorize(s.handleEvents)).Methods(http.MethodPost)
	r.HandleFunc("/events/{event}", s.authorize(s.handleEvents)).Methods(http.MethodPost)
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)

	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, errorBody{Error: "Method not allowed"})
	})
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "Not found"})
	})

	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Start(addr string) {
	s.srv = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Infow("http server listening", "addr", addr)
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Errorw("http server stopped", "err", err)
		}
	}()
}

func (s *Server) Stop() {
	if s.srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.srv.Shutdown(ctx); err != nil {
		log.Warnw("http server shutdown", "err", err)
	}
}
