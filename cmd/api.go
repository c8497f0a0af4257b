package main

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/civicsight/civicsight/internal/model"
	"github.com/civicsight/civicsight/internal/store"
)

// uploadMeta is the optional JSON blob attached to an upload. The mobile
// client embeds the capture coordinates here.
type uploadMeta struct {
	Location *struct {
		Latitude  float64 `json:"latitude"`
		Longitude float64 `json:"longitude"`
	} `json:"location"`
}

// uploadRecord tracks an uploaded photo until it is processed. Uploads are
// transient; only processed reports are persisted.
type uploadRecord struct {
	Ref        string
	Lat        float64
	Lon        float64
	HasGPS     bool
	UploadedAt time.Time
}

type apiServer struct {
	env       *pipelineEnv
	maxUpload int64

	mu      sync.Mutex
	uploads map[string]uploadRecord
}

func newAPIServer(env *pipelineEnv, maxUpload int64) *apiServer {
	return &apiServer{
		env:       env,
		maxUpload: maxUpload,
		uploads:   make(map[string]uploadRecord),
	}
}

func (s *apiServer) router() http.Handler {
	router := chi.NewRouter()
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"*"},
	}))
	router.Use(chimiddleware.Recoverer)

	router.Get("/health", s.handleHealth)
	router.Route("/api/v1", func(r chi.Router) {
		r.Post("/upload", s.handleUpload)
		r.Post("/process", s.handleProcess)
		r.Get("/results/{id}", s.handleResults)
		r.Get("/history", s.handleHistory)
	})

	return router
}

func (s *apiServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "OK",
		"service":   "civicsight",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *apiServer) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)
	if err := r.ParseMultipartForm(s.maxUpload); err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "upload too large")
		return
	}

	file, header, err := r.FormFile("image")
	if err != nil {
		writeError(w, http.StatusBadRequest, "image file is required")
		return
	}
	defer file.Close()

	contentType := header.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "image/") {
		writeError(w, http.StatusBadRequest, "only image uploads are accepted")
		return
	}

	metaRaw := r.FormValue("metadata")
	if metaRaw == "" {
		metaRaw = "{}"
	}
	var meta uploadMeta
	if err := json.Unmarshal([]byte(metaRaw), &meta); err != nil {
		meta = uploadMeta{}
	}

	ref, err := s.env.Images.Save(file, header.Filename)
	if err != nil {
		zap.L().Error("save upload", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not store upload")
		return
	}

	rec := uploadRecord{Ref: ref, UploadedAt: time.Now().UTC()}
	if meta.Location != nil {
		rec.Lat = meta.Location.Latitude
		rec.Lon = meta.Location.Longitude
		rec.HasGPS = true
	}

	id := uuid.New().String()
	s.mu.Lock()
	s.uploads[id] = rec
	s.mu.Unlock()

	zap.L().Info("photo uploaded",
		zap.String("upload_id", id),
		zap.String("ref", ref),
		zap.Bool("has_gps", rec.HasGPS))

	writeJSON(w, http.StatusCreated, map[string]any{
		"success": true,
		"message": "Image uploaded successfully",
		"data": map[string]any{
			"id":               id,
			"filename":         ref,
			"originalName":     header.Filename,
			"path":             s.env.Images.Path(ref),
			"size":             header.Size,
			"type":             contentType,
			"uploadedAt":       rec.UploadedAt.Format(time.RFC3339),
			"metadata":         json.RawMessage(metaRaw),
			"processingStatus": "pending",
		},
	})
}

func (s *apiServer) handleProcess(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ImageID   string   `json:"imageId"`
		Latitude  *float64 `json:"latitude"`
		Longitude *float64 `json:"longitude"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ImageID == "" {
		writeError(w, http.StatusBadRequest, "imageId is required")
		return
	}

	s.mu.Lock()
	rec, ok := s.uploads[req.ImageID]
	if ok {
		delete(s.uploads, req.ImageID)
	}
	s.mu.Unlock()
	if !ok {
		writeError(w, http.StatusNotFound, "unknown imageId")
		return
	}

	lat, lon := rec.Lat, rec.Lon
	if req.Latitude != nil && req.Longitude != nil {
		lat, lon = *req.Latitude, *req.Longitude
	} else if !rec.HasGPS {
		writeError(w, http.StatusBadRequest, "no coordinates for this upload")
		return
	}

	report, err := s.env.Orchestrator.Process(r.Context(), rec.Ref, lat, lon)
	if err != nil {
		zap.L().Error("process upload", zap.String("image_id", req.ImageID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "processing failed")
		return
	}

	writeJSON(w, http.StatusOK, report.Summarize())
}

func (s *apiServer) handleResults(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	report, err := s.env.Store.GetReport(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusNotFound, "report not found")
		return
	}
	writeJSON(w, http.StatusOK, report.Summarize())
}

func (s *apiServer) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 50)
	offset := queryInt(r, "offset", 0)

	filter := store.ReportFilter{Limit: limit, Offset: offset}
	reports, err := s.env.Store.ListReports(r.Context(), filter)
	if err != nil {
		zap.L().Error("list reports", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not list reports")
		return
	}
	total, err := s.env.Store.CountReports(r.Context(), store.ReportFilter{})
	if err != nil {
		zap.L().Error("count reports", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not list reports")
		return
	}

	summaries := make([]model.Summary, 0, len(reports))
	for i := range reports {
		summaries = append(summaries, reports[i].Summarize())
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"data":   summaries,
		"total":  total,
		"limit":  limit,
		"offset": offset,
	})
}

func queryInt(r *http.Request, key string, def int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return def
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("write response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"success": false, "error": msg})
}
