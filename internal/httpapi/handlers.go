package httpapi

import (
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/zavaops/ticketflow/constants"
	"github.com/zavaops/ticketflow/internal/common"
	"github.com/zavaops/ticketflow/internal/model"
	"github.com/zavaops/ticketflow/internal/pipeline"
	"github.com/zavaops/ticketflow/internal/store"
)

func (a *App) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// createTicket accepts a multipart form with the invoice document under
// "file" plus the optional submission fields, creates the ticket, and
// queues extraction.
func (a *App) createTicket(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, constants.MaxUploadBytes+1<<20)
	if err := r.ParseMultipartForm(8 << 20); err != nil {
		writeError(w, common.NewAppError("INVALID_UPLOAD", "parse multipart form", common.ErrInvalidInput))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, common.NewAppError("INVALID_UPLOAD", "missing file field", common.ErrInvalidInput))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, common.NewAppError("INVALID_UPLOAD", "read attachment", common.ErrInvalidInput))
		return
	}

	raw := &model.RawTicketData{
		Title:               r.FormValue("title"),
		Description:         r.FormValue("description"),
		Priority:            constants.Priority(r.FormValue("priority")),
		Submitter:           r.FormValue("submitter"),
		SubmitterName:       r.FormValue("submitterName"),
		SubmitterDepartment: r.FormValue("submitterDepartment"),
		ExtractionMethod:    r.FormValue("extractionMethod"),
	}
	if tags := r.FormValue("tags"); tags != "" {
		for _, tag := range strings.Split(tags, ",") {
			if tag = strings.TrimSpace(tag); tag != "" {
				raw.Tags = append(raw.Tags, tag)
			}
		}
	}

	v := common.NewValidator().
		Field("title", raw.Title, common.MaxLength(200)).
		Field("description", raw.Description, common.MaxLength(4000)).
		Field("priority", string(raw.Priority),
			common.OneOf(string(constants.PriorityNormal), string(constants.PriorityHigh),
				string(constants.PriorityUrgent)))
	if err := v.Error(); err != nil {
		writeError(w, err)
		return
	}

	t, err := a.Ingest.IngestBytes(r.Context(), header.Filename, header.Header.Get("Content-Type"), data, raw)
	if err != nil {
		writeError(w, err)
		return
	}

	resp := map[string]any{
		"ticketId":         t.TicketID,
		"status":           t.Status,
		"message":          "Ticket " + t.TicketID + " created successfully.",
		"extractionQueued": true,
	}
	if len(t.Attachments) > 0 {
		resp["attachment"] = t.Attachments[0]
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (a *App) listTickets(w http.ResponseWriter, r *http.Request) {
	opts := store.ListOptions{
		Status: r.URL.Query().Get("status"),
	}
	if page, err := strconv.Atoi(r.URL.Query().Get("page")); err == nil {
		opts.Page = page
	}
	if size, err := strconv.Atoi(r.URL.Query().Get("pageSize")); err == nil {
		opts.PageSize = size
	}

	list, err := a.Store.List(r.Context(), opts)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (a *App) getTicket(w http.ResponseWriter, r *http.Request) {
	t, err := a.Store.Get(r.Context(), chi.URLParam(r, "ticketID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (a *App) deleteTicket(w http.ResponseWriter, r *http.Request) {
	ticketID := chi.URLParam(r, "ticketID")
	if err := a.Store.Delete(r.Context(), ticketID); err != nil {
		writeError(w, err)
		return
	}
	a.Logger.Info("http.ticket.deleted", "ticket_id", ticketID)
	w.WriteHeader(http.StatusNoContent)
}

// triggerStage queues one stage run. Stage guards are checked up front so
// the caller gets a synchronous 409 instead of a silent background failure.
func (a *App) triggerStage(stage pipeline.Stage) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ticketID := chi.URLParam(r, "ticketID")
		t, err := a.Store.Get(r.Context(), ticketID)
		if err != nil {
			writeError(w, err)
			return
		}
		if !pipeline.CanRun(stage, t.Status) {
			writeError(w, common.NewAppError("CONFLICT",
				"ticket status '"+string(t.Status)+"' does not allow stage "+stage.String(),
				common.ErrConflict))
			return
		}
		if err := a.Dispatcher.Submit(ticketID, stage); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]string{
			"ticketId":       ticketID,
			"message":        "Stage " + stage.String() + " queued for ticket " + ticketID + ".",
			"previousStatus": string(t.Status),
		})
	}
}

// stageResults serves one stage sub-record alongside the current status.
// Extraction responses also carry the raw submission and attachments since
// the intake view renders them together.
func (a *App) stageResults(stage pipeline.Stage) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ticketID := chi.URLParam(r, "ticketID")
		t, err := a.Store.Get(r.Context(), ticketID)
		if err != nil {
			writeError(w, err)
			return
		}

		resp := map[string]any{
			"ticketId": t.TicketID,
			"status":   t.Status,
		}
		switch stage {
		case pipeline.StageExtract:
			resp["raw"] = t.Raw
			resp["attachments"] = t.Attachments
			resp["extraction"] = t.Extraction
		case pipeline.StageStandardize:
			resp["aiProcessing"] = t.AIProcessing
		case pipeline.StageInvoice:
			resp["invoiceProcessing"] = t.InvoiceProcessing
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// reprocessTicket resets the ticket to its ingested state and queues the
// pipeline from the top.
func (a *App) reprocessTicket(w http.ResponseWriter, r *http.Request) {
	ticketID := chi.URLParam(r, "ticketID")

	empty := ""
	if _, err := a.Store.Update(r.Context(), ticketID, &model.TicketPatch{
		Status: model.StatusPtr(constants.StatusIngested),
		Extraction: &model.ExtractionPatch{
			Status:       model.StagePtr(constants.StageStatusPending),
			ErrorMessage: &empty,
		},
		AIProcessing: &model.AIProcessingPatch{
			Status:       model.StagePtr(constants.StageStatusPending),
			ErrorMessage: &empty,
		},
		InvoiceProcessing: &model.InvoiceProcessingPatch{
			Status:       model.StagePtr(constants.StageStatusPending),
			ErrorMessage: &empty,
		},
	}); err != nil {
		writeError(w, err)
		return
	}

	if err := a.Dispatcher.Submit(ticketID, pipeline.StageExtract); err != nil {
		writeError(w, err)
		return
	}
	a.Logger.Info("http.ticket.reprocess", "ticket_id", ticketID)
	writeJSON(w, http.StatusAccepted, map[string]string{
		"ticketId": ticketID,
		"message":  "Ticket " + ticketID + " queued for reprocessing.",
	})
}

func (a *App) dashboard(w http.ResponseWriter, r *http.Request) {
	m, err := a.Metrics.Dashboard(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (a *App) codeMappings(w http.ResponseWriter, r *http.Request) {
	mappingType := r.URL.Query().Get("type")
	if mappingType == "" {
		writeJSON(w, http.StatusOK, a.Mappings)
		return
	}

	var table any
	switch mappingType {
	case "vendor_codes":
		table = a.Mappings.Vendors
	case "product_codes":
		table = a.Mappings.Products
	case "department_codes":
		table = a.Mappings.Departments
	case "action_codes":
		table = a.Mappings.Actions
	default:
		writeError(w, common.NewAppError("UNKNOWN_MAPPING_TYPE",
			"unknown mapping type '"+mappingType+"'", common.ErrInvalidInput))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"mappingType": mappingType,
		"mappings":    table,
	})
}

func (a *App) exportTickets(w http.ResponseWriter, r *http.Request) {
	status := constants.TicketStatus(r.URL.Query().Get("status"))
	data, err := a.Export.TicketsXLSX(r.Context(), status)
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="tickets.xlsx"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
