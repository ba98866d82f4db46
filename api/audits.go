package api

import (
	"net/http"

	"github.com/warp/folio-engine/folio"
)

// =============================================================================
// NIGHT AUDIT
//   GET  /api/audits   Recorded runs, latest business date first
//   POST /api/audits   Close a business date (default: yesterday)
// =============================================================================

func (h *Handler) ListAudits(w http.ResponseWriter, r *http.Request) {
	runs := h.Audit.Runs()
	out := make([]AuditRunDTO, len(runs))
	for i, run := range runs {
		out[i] = toAuditRunDTO(run)
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) RunAudit(w http.ResponseWriter, r *http.Request) {
	var req AuditRequest
	if !h.bindOptional(w, r, &req) {
		return
	}
	if req.BusinessDate.IsZero() {
		req.BusinessDate = folio.Today(h.Clock).AddDays(-1)
	}

	run, err := h.Audit.Run(r.Context(), req.BusinessDate)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toAuditRunDTO(run))
}
