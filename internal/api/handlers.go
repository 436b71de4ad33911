package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/gorilla/mux"
	"github.com/raaihank/snapvault/internal/cache"
	"github.com/raaihank/snapvault/internal/pipeline"
	"github.com/raaihank/snapvault/internal/progress"
	"github.com/raaihank/snapvault/internal/recordings"
	"github.com/raaihank/snapvault/internal/region"
	"github.com/raaihank/snapvault/internal/storage"
	"github.com/raaihank/snapvault/internal/websocket"
	"go.uber.org/zap"
)

const (
	defaultUserID       = "local"
	multipartMemory     = 32 << 20
	finishStatusTimeout = 5 * time.Second
)

// DisplaySize is the size of the surface the user drew blur zones on
type DisplaySize struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// ProcessRequest is the body of POST /api/process
type ProcessRequest struct {
	Filename  string          `json:"filename"`
	BlurZones []region.Region `json:"blurZones"`
	ClientID  string          `json:"clientId"`
	SocketID  string          `json:"socketId"`
	Display   *DisplaySize    `json:"display,omitempty"`
}

// ProcessResponse is returned once a recording has been processed
type ProcessResponse struct {
	Success      bool                   `json:"success"`
	ProcessedURL string                 `json:"processedUrl"`
	Detections   int                    `json:"detections"`
	RecordingID  int64                  `json:"recordingId"`
	JobID        string                 `json:"jobId"`
	Degradations []pipeline.Degradation `json:"degradations,omitempty"`
}

func userID(r *http.Request) string {
	if id := r.Header.Get("X-User-ID"); id != "" {
		return id
	}
	return defaultUserID
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	log := s.logger.WithRequestID(getRequestID(r.Context()))

	if s.config.Server.MaxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, s.config.Server.MaxUploadBytes)
	}
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		writeError(w, http.StatusBadRequest, "No file uploaded")
		return
	}
	file, header, err := r.FormFile("video")
	if err != nil {
		writeError(w, http.StatusBadRequest, "No file uploaded")
		return
	}
	defer file.Close()

	path, err := s.deps.Locator.SaveUpload(header.Filename, file)
	if errors.Is(err, storage.ErrInvalidName) {
		writeError(w, http.StatusBadRequest, "invalid file name")
		return
	}
	if err != nil {
		log.Error("Failed to save upload", zap.String("filename", header.Filename), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to save upload")
		return
	}

	if s.deps.Metrics != nil {
		s.deps.Metrics.UploadsTotal.Inc()
	}
	log.Info("Recording uploaded",
		zap.String("filename", filepath.Base(path)),
		zap.Int64("size", header.Size))

	writeJSON(w, http.StatusOK, map[string]any{"success": true, "filename": filepath.Base(path)})
}

func (s *Server) handleProcess(w http.ResponseWriter, r *http.Request) {
	var req ProcessRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Filename == "" {
		writeError(w, http.StatusBadRequest, "filename is required")
		return
	}
	if req.ClientID == "" {
		req.ClientID = req.SocketID
	}

	rawPath, err := s.deps.Locator.RawPath(req.Filename)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid file name")
		return
	}
	if _, err := os.Stat(rawPath); err != nil {
		writeError(w, http.StatusNotFound, "File not found")
		return
	}

	jobID := pipeline.NewRunID()
	user := userID(r)
	log := s.logger.WithRequestID(getRequestID(r.Context())).WithRunID(jobID)

	zones, err := s.displayToSource(r.Context(), rawPath, req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	base := cache.JobStatus{
		ID:        jobID,
		UserID:    user,
		Filename:  req.Filename,
		StartedAt: time.Now(),
	}
	sinks := progress.Multi{s.deps.Jobs.Sink(base)}
	if req.ClientID != "" {
		sinks = append(sinks, s.deps.Hub.JobSink(req.ClientID, jobID))
	} else {
		sinks = append(sinks, progress.Func(func(e progress.Event) {
			log.Debug("Processing progress", zap.String("status", e.Message), zap.Int("progress", e.Percent))
		}))
	}

	res, err := s.deps.Pipeline.RunWithID(r.Context(), jobID, rawPath, zones, sinks)
	if err != nil {
		log.Error("Pipeline failed", zap.String("filename", req.Filename), zap.Error(err))
		s.failJob(req.ClientID, base, err)
		status := http.StatusInternalServerError
		if errors.Is(err, pipeline.ErrInvalidInput) {
			status = http.StatusBadRequest
		}
		writeError(w, status, err.Error())
		return
	}

	generated := filepath.Base(res.OutputPath)
	processedURL := "/processed/" + generated
	recordingID, err := s.deps.Recordings.Insert(r.Context(), recordings.Recording{
		UserID:        user,
		OriginalName:  req.Filename,
		GeneratedName: generated,
		ProcessedURL:  processedURL,
		Detections:    res.DetectionCount,
		Blurred:       len(zones),
		Duration:      res.DurationSeconds,
	}, res.Findings)
	if err != nil {
		log.Error("Failed to record processed recording", zap.Error(err))
		s.failJob(req.ClientID, base, err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if req.ClientID != "" {
		s.deps.Hub.SendTo(req.ClientID, websocket.Event{
			Type:  websocket.EventTypeComplete,
			JobID: jobID,
			Data: websocket.CompleteEvent{
				ProcessedURL: processedURL,
				Detections:   res.DetectionCount,
				RecordingID:  recordingID,
			},
		})
	}

	final := base
	final.State = cache.JobCompleted
	final.Message = "Complete!"
	final.Progress = 100
	final.ProcessedURL = processedURL
	final.Detections = res.DetectionCount
	final.RecordingID = recordingID
	s.finishJob(final)

	log.Info("Recording processed",
		zap.String("filename", req.Filename),
		zap.Int("detections", res.DetectionCount),
		zap.Int("manual_regions", res.ManualRegions),
		zap.Int("degradations", len(res.Degradations)),
		zap.Duration("elapsed", res.Elapsed))

	writeJSON(w, http.StatusOK, ProcessResponse{
		Success:      true,
		ProcessedURL: processedURL,
		Detections:   res.DetectionCount,
		RecordingID:  recordingID,
		JobID:        jobID,
		Degradations: res.Degradations,
	})
}

// displayToSource maps zones drawn on a scaled preview into source pixels.
// Zones are passed through when no display size was sent or the recording
// cannot be probed.
func (s *Server) displayToSource(ctx context.Context, rawPath string, req ProcessRequest) ([]region.Region, error) {
	if req.Display == nil || len(req.BlurZones) == 0 || s.deps.Prober == nil {
		return req.BlurZones, nil
	}
	if req.Display.Width <= 0 || req.Display.Height <= 0 {
		return nil, fmt.Errorf("invalid display size %dx%d", req.Display.Width, req.Display.Height)
	}

	probe, err := s.deps.Prober.Probe(ctx, rawPath)
	if err != nil {
		s.logger.Warn("Cannot probe recording, using blur zones as drawn", zap.Error(err))
		return req.BlurZones, nil
	}
	width, height := probe.Dimensions()
	if width <= 0 || height <= 0 {
		return req.BlurZones, nil
	}

	zones := make([]region.Region, 0, len(req.BlurZones))
	for _, z := range req.BlurZones {
		scaled, err := z.Scale(req.Display.Width, req.Display.Height, width, height)
		if err != nil {
			return nil, err
		}
		zones = append(zones, scaled)
	}
	return zones, nil
}

func (s *Server) failJob(clientID string, base cache.JobStatus, err error) {
	if clientID != "" {
		s.deps.Hub.SendTo(clientID, websocket.Event{
			Type:  websocket.EventTypeError,
			JobID: base.ID,
			Data:  websocket.ErrorEvent{Error: err.Error()},
		})
	}
	final := base
	final.State = cache.JobFailed
	final.Error = err.Error()
	s.finishJob(final)
}

// finishJob records the terminal status even if the request was cancelled
func (s *Server) finishJob(status cache.JobStatus) {
	ctx, cancel := context.WithTimeout(context.Background(), finishStatusTimeout)
	defer cancel()
	s.deps.Jobs.Finish(ctx, status)
}

func (s *Server) handleJob(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	status, ok, err := s.deps.Jobs.Get(r.Context(), id)
	if err != nil {
		s.logger.Error("Job lookup failed", zap.String("job_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "job lookup failed")
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "job": status})
}

func (s *Server) handleRecordings(w http.ResponseWriter, r *http.Request) {
	list, err := s.deps.Recordings.ListByUser(r.Context(), userID(r))
	if err != nil {
		s.logger.Error("Failed to list recordings", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list recordings")
		return
	}
	if list == nil {
		list = []recordings.Recording{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "recordings": list})
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	stats, err := s.deps.Recordings.Stats(r.Context(), userID(r))
	if err != nil {
		s.logger.Error("Failed to compute dashboard stats", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load dashboard")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "stats": stats})
}

func (s *Server) handleSnapUpload(w http.ResponseWriter, r *http.Request) {
	if s.config.Server.MaxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, s.config.Server.MaxUploadBytes)
	}
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		writeError(w, http.StatusBadRequest, "No file")
		return
	}
	file, header, err := r.FormFile("snap")
	if err != nil {
		writeError(w, http.StatusBadRequest, "No file")
		return
	}
	defer file.Close()

	path, err := s.deps.Locator.SaveSnap(header.Filename, file)
	if errors.Is(err, storage.ErrInvalidName) {
		writeError(w, http.StatusBadRequest, "invalid file name")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	name := filepath.Base(path)
	if _, err := s.deps.Recordings.InsertSnap(r.Context(), recordings.Snap{UserID: userID(r), Filename: name}); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "url": "/processed/" + name})
}
