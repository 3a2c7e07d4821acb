package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/imgscout/internal/imagesearch"
	"github.com/JakeFAU/imgscout/internal/saver"
)

const maxHistoryLimit = 100

type createSearchRequest struct {
	Query string `json:"query"`
}

type searchResponse struct {
	imagesearch.Search
	Message string `json:"message,omitempty"`
	Hint    string `json:"hint,omitempty"`
}

type saveResponse struct {
	Filename string `json:"filename"`
	URI      string `json:"uri"`
	Position int    `json:"position"`
	Bytes    int    `json:"bytes"`
}

func newSearchResponse(search imagesearch.Search) searchResponse {
	resp := searchResponse{Search: search}
	if search.Empty() {
		resp.Message = imagesearch.NoImagesMessage
		resp.Hint = imagesearch.NoImagesHint
	}
	return resp
}

func (s *Server) createSearch(w http.ResponseWriter, r *http.Request) {
	var req createSearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	search, err := s.searcher.Search(r.Context(), req.Query)
	if err != nil {
		if errors.Is(err, imagesearch.ErrEmptyQuery) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.logger.Error("search failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "search failed")
		return
	}
	if search.Err != nil {
		writeJSON(w, http.StatusBadGateway, map[string]string{
			"id":    search.ID,
			"error": search.Err.Error(),
		})
		return
	}
	s.searches.put(search)
	writeJSON(w, http.StatusCreated, newSearchResponse(search))
}

func (s *Server) getSearch(w http.ResponseWriter, r *http.Request) {
	search, ok := s.lookup(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, newSearchResponse(search))
}

func (s *Server) getScreenshot(w http.ResponseWriter, r *http.Request) {
	search, ok := s.lookup(w, r)
	if !ok {
		return
	}
	if len(search.Screenshot) == 0 {
		writeError(w, http.StatusNotFound, "no screenshot captured")
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(search.Screenshot)
}

func (s *Server) getImage(w http.ResponseWriter, r *http.Request) {
	search, outcome, ok := s.fetchOutcome(w, r)
	if !ok {
		return
	}
	data, err := saver.EncodeJPEG(outcome.Image, s.quality)
	if err != nil {
		s.logger.Error("encode image", zap.String("search_id", search.ID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "encode image failed")
		return
	}
	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("X-Source-URL", outcome.URL)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (s *Server) saveImage(w http.ResponseWriter, r *http.Request) {
	search, outcome, ok := s.fetchOutcome(w, r)
	if !ok {
		return
	}
	saved, err := s.searcher.Save(r.Context(), search, outcome)
	if err != nil {
		s.logger.Error("save image", zap.String("search_id", search.ID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "save failed")
		return
	}
	writeJSON(w, http.StatusCreated, saveResponse{
		Filename: saved.Filename,
		URI:      saved.URI,
		Position: saved.Position,
		Bytes:    saved.Bytes,
	})
}

func (s *Server) listHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, http.StatusNotFound, "history is disabled")
		return
	}
	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxHistoryLimit)
	}
	records, err := s.history.Recent(r.Context(), limit)
	if err != nil {
		s.logger.Error("list history", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list history")
		return
	}
	if records == nil {
		records = []imagesearch.SearchRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"searches": records})
}

func (s *Server) lookup(w http.ResponseWriter, r *http.Request) (imagesearch.Search, bool) {
	search, err := s.searches.get(chi.URLParam(r, "search_id"))
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return imagesearch.Search{}, false
	}
	return search, true
}

func (s *Server) fetchOutcome(w http.ResponseWriter, r *http.Request) (imagesearch.Search, imagesearch.Outcome, bool) {
	search, ok := s.lookup(w, r)
	if !ok {
		return imagesearch.Search{}, imagesearch.Outcome{}, false
	}
	position, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "index must be an integer")
		return imagesearch.Search{}, imagesearch.Outcome{}, false
	}
	outcome, err := s.searcher.FetchAt(r.Context(), search, position)
	if err != nil {
		var fe *imagesearch.FetchError
		switch {
		case errors.Is(err, imagesearch.ErrIndexOutOfRange):
			writeError(w, http.StatusNotFound, err.Error())
		case errors.As(err, &fe):
			s.logger.Warn("image fetch failed",
				zap.String("search_id", search.ID),
				zap.Int("index", position),
				zap.Error(err),
			)
			writeError(w, http.StatusBadGateway, fe.Error())
		default:
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return imagesearch.Search{}, imagesearch.Outcome{}, false
	}
	return search, outcome, true
}
