package app

import (
	"net/http"
	"strconv"

	"mybeatfi/api/internal/catalog"
)

// handleCatalog serves the schema-driven taxonomy editor.
func (s *HTTPServer) handleCatalog(w http.ResponseWriter, r *http.Request, session Session, parts []string) {
	ctx := r.Context()
	if len(parts) == 0 {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"entities": s.service.CatalogEntities()})
		return
	}

	entity := parts[0]
	var (
		payload any
		err     error
		status  = http.StatusOK
	)
	switch {
	case len(parts) == 1 && r.Method == http.MethodGet:
		payload, err = s.service.ListTaxonomy(ctx, session, entity)
	case len(parts) == 1 && r.Method == http.MethodPost:
		var body catalog.TaxonomyInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		payload, err = s.service.CreateTaxonomy(ctx, session, entity, body)
		status = http.StatusCreated
	case len(parts) == 2 && r.Method == http.MethodPut:
		var body catalog.TaxonomyInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		payload, err = s.service.UpdateTaxonomy(ctx, session, entity, parts[1], body)
	case len(parts) == 2 && r.Method == http.MethodDelete:
		err = s.service.DeleteTaxonomy(ctx, session, entity, parts[1])
		payload = map[string]any{"ok": true}
	case len(parts) == 3 && parts[2] == "children" && r.Method == http.MethodPost:
		var body catalog.TaxonomyInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		payload, err = s.service.CreateTaxonomyChild(ctx, session, entity, parts[1], body)
		status = http.StatusCreated
	case len(parts) == 4 && parts[2] == "children" && r.Method == http.MethodPut:
		var body catalog.TaxonomyInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		payload, err = s.service.UpdateTaxonomyChild(ctx, session, entity, parts[1], parts[3], body)
	case len(parts) == 4 && parts[2] == "children" && r.Method == http.MethodDelete:
		err = s.service.DeleteTaxonomyChild(ctx, session, entity, parts[1], parts[3])
		payload = map[string]any{"ok": true}
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

func (s *HTTPServer) handleDiscounts(w http.ResponseWriter, r *http.Request, session Session, parts []string) {
	ctx := r.Context()
	var (
		payload any
		err     error
		status  = http.StatusOK
	)
	switch {
	case len(parts) == 0 && r.Method == http.MethodGet:
		var items []map[string]any
		items, err = s.service.ListDiscounts(ctx, session)
		payload = map[string]any{"discounts": items}
	case len(parts) == 0 && r.Method == http.MethodPost:
		var body catalog.DiscountInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		payload, err = s.service.CreateDiscount(ctx, session, body)
		status = http.StatusCreated
	case len(parts) == 1 && r.Method == http.MethodPut:
		var body catalog.DiscountInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		payload, err = s.service.UpdateDiscount(ctx, session, parts[0], body)
	case len(parts) == 1 && r.Method == http.MethodDelete:
		err = s.service.DeleteDiscount(ctx, session, parts[0])
		payload = map[string]any{"ok": true}
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

func (s *HTTPServer) handleCustomSync(w http.ResponseWriter, r *http.Request, session Session, parts []string) {
	ctx := r.Context()
	var (
		payload any
		err     error
		status  = http.StatusOK
	)
	switch {
	case len(parts) == 0 && r.Method == http.MethodGet:
		var items []map[string]any
		items, err = s.service.ListCustomSyncRequests(ctx, session)
		payload = map[string]any{"requests": items}
	case len(parts) == 0 && r.Method == http.MethodPost:
		var body CreateCustomSyncInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		payload, err = s.service.CreateCustomSyncRequest(ctx, session, body)
		status = http.StatusCreated
	case len(parts) == 1 && r.Method == http.MethodGet:
		payload, err = s.service.GetCustomSyncRequest(ctx, session, parts[0])
	case len(parts) == 2 && parts[1] == "submissions" && r.Method == http.MethodPost:
		var body SubmitTrackInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		payload, err = s.service.SubmitTrack(ctx, session, parts[0], body)
		status = http.StatusCreated
	case len(parts) == 2 && parts[1] == "select" && r.Method == http.MethodPost:
		var body SelectSubmissionInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		payload, err = s.service.SelectSubmission(ctx, session, parts[0], body)
		status = http.StatusCreated
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

func (s *HTTPServer) handleSearch(w http.ResponseWriter, r *http.Request, session Session) {
	query := r.URL.Query()
	limit, _ := strconv.Atoi(query.Get("limit"))
	offset, _ := strconv.Atoi(query.Get("offset"))
	resp, err := s.service.Search(r.Context(), session, query.Get("q"), query.Get("type"), limit, offset)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}
