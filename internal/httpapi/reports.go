package httpapi

import (
	"net/http"

	"cafepos/backend/internal/domain"
	"cafepos/backend/internal/export"
)

func (a *API) handleCreateReport(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateDailyReportRequest
	if !readJSON(w, r, &req) {
		return
	}
	report, err := a.service.CreateDailyReport(r.Context(), req)
	respond(w, http.StatusCreated, report, err)
}

func (a *API) handleGetReport(w http.ResponseWriter, r *http.Request) {
	report, err := a.service.GetDailyReport(r.Context(), r.PathValue("id"))
	respond(w, http.StatusOK, report, err)
}

func (a *API) handleReportByDate(w http.ResponseWriter, r *http.Request) {
	report, err := a.service.GetDailyReportByDate(r.Context(), r.URL.Query().Get("date"))
	respond(w, http.StatusOK, report, err)
}

func (a *API) handleUpdateReport(w http.ResponseWriter, r *http.Request) {
	var req domain.UpdateDailyReportRequest
	if !readJSON(w, r, &req) {
		return
	}
	report, err := a.service.UpdateDailyReportActuals(r.Context(), r.PathValue("id"), req)
	respond(w, http.StatusOK, report, err)
}

func (a *API) handleReportTransition(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var (
		report domain.DailyReport
		err    error
	)
	switch r.PathValue("action") {
	case "regenerate":
		report, err = a.service.RegenerateDailyReport(r.Context(), id)
	case "submit":
		report, err = a.service.SubmitDailyReport(r.Context(), id)
	case "resubmit":
		report, err = a.service.ResubmitDailyReport(r.Context(), id)
	case "approve":
		report, err = a.service.ApproveDailyReport(r.Context(), id)
	case "close":
		report, err = a.service.CloseDailyReport(r.Context(), id)
	case "dispute":
		var req domain.DisputeDailyReportRequest
		if !readJSON(w, r, &req) {
			return
		}
		report, err = a.service.DisputeDailyReport(r.Context(), id, req)
	default:
		http.NotFound(w, r)
		return
	}
	respond(w, http.StatusOK, report, err)
}

func (a *API) handleExportReport(w http.ResponseWriter, r *http.Request) {
	data, filename, err := a.service.ExportDailyReport(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeFile(w, export.ContentType, filename, data)
}
