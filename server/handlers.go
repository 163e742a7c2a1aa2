package server

import (
	"crypto/subtle"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/rqzrqh/stackflow_hub/hub"
	"github.com/rqzrqh/stackflow_hub/metrics"
	"github.com/rqzrqh/stackflow_hub/reconciler"
	"github.com/rqzrqh/stackflow_hub/util"
)

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (s *Server) instrument(action string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		start := time.Now()
		id := uuid.New().String()
		w.Header().Set("X-Request-Id", id)

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next(rec, req)

		metrics.RecordRequest(req.Context(), action, strconv.Itoa(rec.status), start)
		log.Debugw("request", "id", id, "action", action, "status", rec.status, "duration", time.Since(start).String())
	}
}

func (s *Server) authorize(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		token := util.TokenFromHeaders(req.Header)
		if s.secret == "" || subtle.ConstantTimeCompare([]byte(token), []byte(s.secret)) != 1 {
			log.Warnw("unauthorized event delivery", "security", "bad-chainhook-secret", "remote", req.RemoteAddr)
			writeJSON(w, http.StatusUnauthorized, errorBody{Error: "Unauthorized"})
			return
		}
		next(w, req)
	}
}

func (s *Server) handleDeposit(w http.ResponseWriter, req *http.Request) {
	var body hub.DepositRequest
	if !decodeBody(w, req, &body) {
		return
	}
	res, err := s.hub.Deposit(req.Context(), &body)
	respond(w, res, err)
}

func (s *Server) handleWithdraw(w http.ResponseWriter, req *http.Request) {
	var body hub.WithdrawRequest
	if !decodeBody(w, req, &body) {
		return
	}
	res, err := s.hub.Withdraw(req.Context(), &body)
	respond(w, res, err)
}

func (s *Server) handleTransfer(w http.ResponseWriter, req *http.Request) {
	var body hub.TransferRequest
	if !decodeBody(w, req, &body) {
		return
	}
	res, err := s.hub.Transfer(req.Context(), &body)
	respond(w, res, err)
}

func (s *Server) handleClose(w http.ResponseWriter, req *http.Request) {
	var body hub.CloseRequest
	if !decodeBody(w, req, &body) {
		return
	}
	res, err := s.hub.Close(req.Context(), &body)
	respond(w, res, err)
}

func (s *Server) handleReveal(w http.ResponseWriter, req *http.Request) {
	var body hub.RevealRequest
	if !decodeBody(w, req, &body) {
		return
	}
	if err := s.hub.Reveal(req.Context(), &body); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, messageBody{Message: "Secret accepted"})
}

func (s *Server) handleChannels(w http.ResponseWriter, req *http.Request) {
	q := req.URL.Query()
	limit := 0
	if l := q.Get("limit"); l != "" {
		var err error
		if limit, err = strconv.Atoi(l); err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "limit: invalid number"})
			return
		}
	}
	page, err := s.hub.Channels(req.Context(), q.Get("principal"), q.Get("cursor"), limit)
	respond(w, page, err)
}

type eventsResponse struct {
	Message string `json:"message"`
	*reconciler.Report
}

func (s *Server) handleEvents(w http.ResponseWriter, req *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, req.Body, 16*maxBodySize))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "Invalid payload structure"})
		return
	}

	delivery, err := reconciler.DecodeChainhook(body)
	if err != nil {
		log.Warnw("rejected chainhook payload", "remote", req.RemoteAddr, "err", err)
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
		return
	}
	if delivery.Rollbacks > 0 {
		log.Warnw("chainhook rollback not applied", "blocks", delivery.Rollbacks)
	}

	if name, ok := mux.Vars(req)["event"]; ok {
		kind, err := reconciler.ParseKind(name)
		if err != nil {
			writeJSON(w, http.StatusNotFound, errorBody{Error: err.Error()})
			return
		}
		delivery.Only(kind)
	}

	rep, err := s.rec.IngestDelivery(req.Context(), delivery)
	if err != nil {
		log.Errorw("event ingestion failed", "err", err)
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "Error processing event"})
		return
	}
	writeJSON(w, http.StatusOK, eventsResponse{Message: "Event processed successfully", Report: rep})
}

func (s *Server) handleHealth(w http.ResponseWriter, req *http.Request) {
	writeJSON(w, http.StatusOK, messageBody{Message: "ok"})
}
