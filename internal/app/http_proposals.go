package app

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"mybeatfi/api/internal/negotiation"
)

// handleProposals serves /api/proposals and everything below it.
func (s *HTTPServer) handleProposals(w http.ResponseWriter, r *http.Request, session Session, parts []string) {
	if len(parts) == 0 {
		switch r.Method {
		case http.MethodGet:
			query := r.URL.Query()
			items, err := s.service.ListProposals(r.Context(), session, ListProposalsInput{
				Scope:  query.Get("scope"),
				Status: query.Get("status"),
				Query:  query.Get("q"),
			})
			if err != nil {
				writeServiceError(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"proposals": items})
			return
		case http.MethodPost:
			var body CreateProposalInput
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			created, err := s.service.CreateProposal(r.Context(), session, body)
			if err != nil {
				writeServiceError(w, r, err)
				return
			}
			writeJSON(w, http.StatusCreated, created)
			return
		}
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}

	proposalID := parts[0]
	if len(parts) == 1 && r.Method == http.MethodGet {
		payload, err := s.service.GetProposal(r.Context(), session, proposalID)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, payload)
		return
	}
	if len(parts) != 2 {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}

	action := parts[1]
	if r.Method == http.MethodGet {
		switch action {
		case "negotiations":
			items, err := s.service.ListMessages(r.Context(), session, proposalID)
			if err != nil {
				writeServiceError(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"messages": items})
			return
		case "agreement":
			s.handleAgreement(w, r, session, proposalID)
			return
		}
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}
	if r.Method != http.MethodPost {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}

	var (
		payload map[string]any
		err     error
		status  = http.StatusOK
	)
	switch action {
	case "negotiations":
		var body MessageInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		payload, err = s.service.SendMessage(r.Context(), session, proposalID, body)
		status = http.StatusCreated
	case "accept-negotiation":
		var body negotiation.Decision
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		payload, err = s.service.AcceptNegotiation(r.Context(), session, proposalID, body)
	case "decline-negotiation":
		payload, err = s.service.DeclineNegotiation(r.Context(), session, proposalID)
	case "respond":
		var body struct {
			Action string `json:"action"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		payload, err = s.service.Respond(r.Context(), session, proposalID, body.Action)
	case "finalize":
		payload, err = s.service.FinalizeAndPay(r.Context(), session, proposalID)
	case "confirm-payment":
		var body struct {
			Reference string `json:"reference"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		payload, err = s.service.ConfirmPayment(r.Context(), session, proposalID, body.Reference)
	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, status, payload)
}

// handleAgreement returns a presigned link when storage is configured and
// the PDF itself otherwise.
func (s *HTTPServer) handleAgreement(w http.ResponseWriter, r *http.Request, session Session, proposalID string) {
	doc, err := s.service.Agreement(r.Context(), session, proposalID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if doc.URL != "" {
		writeJSON(w, http.StatusOK, map[string]any{"url": doc.URL, "filename": doc.Filename})
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", doc.Filename))
	w.Header().Set("Content-Length", strconv.Itoa(len(doc.Data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(doc.Data)
}

// handleProposalEvents streams realtime events until the client goes away.
func (s *HTTPServer) handleProposalEvents(w http.ResponseWriter, r *http.Request, session Session, proposalID string) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "SERVER_ERROR", "Streaming unsupported", nil)
		return
	}
	sub, err := s.service.SubscribeProposal(r.Context(), session, proposalID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	defer sub.Close()

	header := w.Header()
	header.Set("Content-Type", "text/event-stream")
	header.Set("Connection", "keep-alive")
	header.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, ": connected\n\n")
	flusher.Flush()

	ticker := time.NewTicker(s.pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		case event, ok := <-sub.Events():
			if !ok {
				return
			}
			data, err := json.Marshal(event)
			if err != nil {
				log.Printf("realtime: encode %s: %v", event.Type, err)
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Type, data)
			flusher.Flush()
		}
	}
}
