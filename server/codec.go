package server

import (
	"encoding/json"
	"net/http"

	"golang.org/x/xerrors"

	"github.com/rqzrqh/stackflow_hub/channel"
	"github.com/rqzrqh/stackflow_hub/hub"
)

type errorBody struct {
	Error string `json:"error"`
}

type messageBody struct {
	Message string `json:"message"`
}

type conflictBody struct {
	Error    string         `json:"error"`
	Reason   string         `json:"reason"`
	Expected channel.Values `json:"expected"`
	Received channel.Values `json:"received"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warnw("write response", "err", err)
	}
}

func decodeBody(w http.ResponseWriter, req *http.Request, v interface{}) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, req.Body, maxBodySize))
	if err := dec.Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid request body: " + err.Error()})
		return false
	}
	return true
}

func respond(w http.ResponseWriter, v interface{}, err error) {
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func writeError(w http.ResponseWriter, err error) {
	var verr *channel.ValidationError
	var rerr *hub.RequestError

	switch {
	case xerrors.As(err, &verr):
		writeJSON(w, http.StatusConflict, conflictBody{
			Error:    verr.Message,
			Reason:   string(verr.Reason),
			Expected: verr.Expected,
			Received: verr.Received,
		})
	case xerrors.Is(err, hub.ErrSecretMismatch):
		writeJSON(w, http.StatusConflict, conflictBody{Error: err.Error(), Reason: "secret-mismatch"})
	case xerrors.Is(err, hub.ErrPendingTransfer):
		writeJSON(w, http.StatusConflict, conflictBody{Error: err.Error(), Reason: "pending-transfer"})
	case xerrors.Is(err, hub.ErrChannelNotFound), xerrors.Is(err, hub.ErrNoPending):
		writeJSON(w, http.StatusNotFound, errorBody{Error: err.Error()})
	case xerrors.Is(err, hub.ErrInvalidSignature):
		writeJSON(w, http.StatusForbidden, errorBody{Error: err.Error()})
	case xerrors.As(err, &rerr), xerrors.Is(err, hub.ErrUnsupportedPrincipal):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
	default:
		log.Errorw("request failed", "err", err)
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal server error"})
	}
}
