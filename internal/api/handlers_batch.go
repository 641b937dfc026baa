/**
 * @description
 * This file contains the HTTP handlers for batch payout jobs: creation,
 * inspection, execution (JSON body or uploaded CSV) and compensation.
 *
 * @dependencies
 * - encoding/json, log, net/http: Standard Go libraries.
 * - internal/app, internal/domain: For service logic and models.
 */

package api

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"

	"github.com/transfa/ledger-service/internal/app"
	"github.com/transfa/ledger-service/internal/domain"
)

// maxPayoutUploadBytes caps the in-memory portion of a multipart CSV upload.
const maxPayoutUploadBytes = 10 << 20

// CreateBatchHandler registers a new payout job in PENDING state.
func (h *LedgerHandlers) CreateBatchHandler(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := h.authenticatedOwnerID(w, r)
	if !ok {
		return
	}

	var req domain.CreateBatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
		return
	}

	batch, err := h.service.CreateBatch(r.Context(), req, ownerID)
	if err != nil {
		h.writeServiceError(w, "create_batch", err)
		return
	}

	log.Printf("level=info component=api endpoint=create_batch outcome=created batch_id=%s owner_id=%s", batch.ID, ownerID)
	h.writeJSON(w, http.StatusCreated, batch)
}

// ListBatchesHandler returns the authenticated user's payout jobs, newest first.
func (h *LedgerHandlers) ListBatchesHandler(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := h.authenticatedOwnerID(w, r)
	if !ok {
		return
	}

	batches, err := h.service.ListBatches(r.Context(), ownerID)
	if err != nil {
		h.writeServiceError(w, "list_batches", err)
		return
	}
	h.writeJSON(w, http.StatusOK, batches)
}

// GetBatchHandler returns a single payout job by id. Only the submitting user
// can view it.
func (h *LedgerHandlers) GetBatchHandler(w http.ResponseWriter, r *http.Request) {
	batchID, ok := h.pathUUID(w, r, "batchID", "batch ID")
	if !ok {
		return
	}

	batch, ok := h.requireBatchOwner(w, r, "get_batch", batchID)
	if !ok {
		return
	}
	h.writeJSON(w, http.StatusOK, batch)
}

// GetBatchRowsHandler returns the persisted rows of a payout job in row order.
func (h *LedgerHandlers) GetBatchRowsHandler(w http.ResponseWriter, r *http.Request) {
	batchID, ok := h.pathUUID(w, r, "batchID", "batch ID")
	if !ok {
		return
	}
	if _, ok := h.requireBatchOwner(w, r, "get_batch_rows", batchID); !ok {
		return
	}

	rows, err := h.service.GetBatchRows(r.Context(), batchID)
	if err != nil {
		h.writeServiceError(w, "get_batch_rows", err)
		return
	}
	h.writeJSON(w, http.StatusOK, rows)
}

// ExecuteBatchHandler runs a payout job with rows supplied as JSON. An empty
// rows array resumes a previously interrupted run against the persisted rows.
func (h *LedgerHandlers) ExecuteBatchHandler(w http.ResponseWriter, r *http.Request) {
	batchID, ok := h.pathUUID(w, r, "batchID", "batch ID")
	if !ok {
		return
	}
	if _, ok := h.requireBatchOwner(w, r, "execute_batch", batchID); !ok {
		return
	}

	var req struct {
		Rows []domain.PayoutRow `json:"rows"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
		return
	}

	summary, err := h.service.ExecuteBatch(r.Context(), batchID, req.Rows)
	if err != nil {
		h.writeServiceError(w, "execute_batch", err)
		return
	}

	log.Printf("level=info component=api endpoint=execute_batch batch_id=%s status=%s success=%d failed=%d",
		batchID, summary.FinalStatus, summary.Success, summary.Failed)
	h.writeJSON(w, http.StatusOK, summary)
}

// ExecuteBatchCSVHandler runs a payout job with rows supplied as an uploaded
// CSV file under the multipart form field "file".
func (h *LedgerHandlers) ExecuteBatchCSVHandler(w http.ResponseWriter, r *http.Request) {
	batchID, ok := h.pathUUID(w, r, "batchID", "batch ID")
	if !ok {
		return
	}
	if _, ok := h.requireBatchOwner(w, r, "execute_batch_csv", batchID); !ok {
		return
	}

	if err := r.ParseMultipartForm(maxPayoutUploadBytes); err != nil {
		h.writeError(w, http.StatusBadRequest, "Expected a multipart form upload")
		return
	}
	file, _, err := r.FormFile("file")
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Missing form file \"file\"")
		return
	}
	defer file.Close()

	rows, err := app.ParsePayoutRows(file)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid payout file: %v", err))
		return
	}

	summary, err := h.service.ExecuteBatch(r.Context(), batchID, rows)
	if err != nil {
		h.writeServiceError(w, "execute_batch_csv", err)
		return
	}

	log.Printf("level=info component=api endpoint=execute_batch_csv batch_id=%s status=%s success=%d failed=%d",
		batchID, summary.FinalStatus, summary.Success, summary.Failed)
	h.writeJSON(w, http.StatusOK, summary)
}

// CompensateBatchHandler reverses rows of a finished payout job. With no
// indices in the body, every row is considered.
func (h *LedgerHandlers) CompensateBatchHandler(w http.ResponseWriter, r *http.Request) {
	batchID, ok := h.pathUUID(w, r, "batchID", "batch ID")
	if !ok {
		return
	}
	if _, ok := h.requireBatchOwner(w, r, "compensate_batch", batchID); !ok {
		return
	}

	var req domain.CompensationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
		return
	}

	results, err := h.service.CompensateBatch(r.Context(), batchID, req.RowIndices)
	if err != nil {
		h.writeServiceError(w, "compensate_batch", err)
		return
	}

	log.Printf("level=info component=api endpoint=compensate_batch batch_id=%s results=%d", batchID, len(results))
	h.writeJSON(w, http.StatusOK, results)
}
