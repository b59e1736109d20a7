package handlers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"tryon/internal/domain"
)

type historyItem struct {
	domain.HistoryRecord
	ResultURL     string `json:"result_url,omitempty"`
	BeforeURL     string `json:"before_url,omitempty"`
	ComparisonURL string `json:"comparison_url,omitempty"`
	VideoURL      string `json:"video_url,omitempty"`
}

type historyPage struct {
	Items      []historyItem `json:"items"`
	Page       int           `json:"page"`
	PerPage    int           `json:"per_page"`
	Total      int           `json:"total"`
	TotalPages int           `json:"total_pages"`
}

func (a *App) item(rec domain.HistoryRecord) historyItem {
	return historyItem{
		HistoryRecord: rec,
		ResultURL:     a.publicURL(rec.ResultImagePath),
		BeforeURL:     a.publicURL(rec.UserImagePath),
		ComparisonURL: a.publicURL(rec.ComparisonImagePath),
		VideoURL:      a.publicURL(rec.VideoPath),
	}
}

func (a *App) HistoryList(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))
	page, perPage, _ = domain.NormalizePage(page, perPage)

	records, total, err := a.History.List(r.Context(), page, perPage)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	items := make([]historyItem, 0, len(records))
	for _, rec := range records {
		items = append(items, a.item(rec))
	}
	a.json(w, http.StatusOK, historyPage{
		Items:      items,
		Page:       page,
		PerPage:    perPage,
		Total:      total,
		TotalPages: (total + perPage - 1) / perPage,
	})
}

func (a *App) HistoryGet(w http.ResponseWriter, r *http.Request) {
	rec, err := a.History.Get(r.Context(), chi.URLParam(r, "job_id"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, a.item(rec))
}

func (a *App) HistoryDelete(w http.ResponseWriter, r *http.Request) {
	if err := a.History.Delete(r.Context(), chi.URLParam(r, "job_id")); err != nil {
		a.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
