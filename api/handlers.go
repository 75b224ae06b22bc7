package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/quailyquaily/emotionbank/internal/jsonutil"
	"github.com/quailyquaily/emotionbank/memory"
)

const defaultMaxUploadBytes = 32 << 20

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	maxBytes := s.MaxUploadBytes
	if maxBytes <= 0 {
		maxBytes = defaultMaxUploadBytes
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	if err := r.ParseMultipartForm(maxBytes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form: "+err.Error())
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "image file is required")
		return
	}
	defer file.Close()
	imageData, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "read image: "+err.Error())
		return
	}

	in := memory.UploadInput{
		Caption: strings.TrimSpace(r.FormValue("caption")),
		Content: strings.TrimSpace(r.FormValue("content")),
		// emotional_tags arrives as a JSON array from the API client and as
		// a comma-separated list from the gallery form; accept both.
		EmotionalTags: jsonutil.StringList(r.FormValue("emotional_tags")),
		Image:         imageData,
		Filename:      header.Filename,
	}

	record, err := s.pipeline.Upload(r.Context(), in)
	if err != nil {
		s.writePipelineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, record)
}

func (s *Server) handleRetrieve(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	opt := memory.RetrieveOptions{
		Query:   strings.TrimSpace(q.Get("query")),
		Emotion: strings.TrimSpace(q.Get("emotion")),
	}
	if raw := strings.TrimSpace(q.Get("similar_to_id")); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			writeError(w, http.StatusBadRequest, "similar_to_id must be a positive integer")
			return
		}
		opt.SimilarToID = id
	}
	if raw := strings.TrimSpace(q.Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		opt.Limit = n
	}

	records, err := s.pipeline.Retrieve(r.Context(), opt)
	if err != nil {
		s.writePipelineError(w, err)
		return
	}
	if records == nil {
		records = []memory.Record{}
	}
	writeJSON(w, http.StatusOK, records)
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	userInput := strings.TrimSpace(r.URL.Query().Get("user_input"))
	if userInput == "" && r.Method == http.MethodPost {
		var body struct {
			UserInput string `json:"user_input"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err == nil {
			userInput = strings.TrimSpace(body.UserInput)
		}
	}
	if userInput == "" {
		writeError(w, http.StatusBadRequest, "user_input is required")
		return
	}

	resp, err := s.companion.Respond(r.Context(), userInput)
	if err != nil {
		s.writePipelineError(w, err)
		return
	}

	ids := make([]int64, 0, len(resp.RelatedMemories))
	for _, m := range resp.RelatedMemories {
		ids = append(ids, m.ID)
	}
	if err := s.pipeline.AppendChat(r.Context(), userInput, resp.Message, resp.DetectedEmotion, ids); err != nil {
		// History is best-effort; the turn already succeeded.
		s.logger.Warn("failed to append chat history", "error", err)
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) writePipelineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, memory.ErrValidation):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, memory.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, memory.ErrAnalysis):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		s.logger.Error("request failed", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
