package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"vidconv/internal/domain"
)

type statusResponse struct {
	ID       string         `json:"id"`
	State    string         `json:"state"`
	Progress int            `json:"progress"`
	Result   *statusResult  `json:"result,omitempty"`
	Error    string         `json:"error,omitempty"`
}

type statusResult struct {
	DownloadURL string `json:"download_url"`
}

// Status answers a poll for one job id. The download URL is present only
// when the job completed and its artifact is still retrievable.
func (a *App) Status(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "job id required")
		return
	}

	st, err := a.Service.Query(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			a.error(w, http.StatusNotFound, "not_found", "job not found")
			return
		}
		a.Logger.Error().Err(err).Str("job_id", id).Msg("api: status query failed")
		a.error(w, http.StatusInternalServerError, "internal", "status lookup failed")
		return
	}

	resp := statusResponse{
		ID:       st.ID,
		State:    string(st.State),
		Progress: st.Progress,
		Error:    st.Error,
	}
	if st.DownloadURL != "" {
		resp.Result = &statusResult{DownloadURL: st.DownloadURL}
	}
	a.json(w, http.StatusOK, resp)
}
