package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"
	"net"
	"net/http"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/lehigh-university-libraries/medocr/internal/pipeline"
	"github.com/lehigh-university-libraries/medocr/internal/utils"
	"github.com/lehigh-university-libraries/medocr/pkg/assembler"
	"github.com/lehigh-university-libraries/medocr/pkg/export"
	"github.com/lehigh-university-libraries/medocr/pkg/providers"
)

const maxUploadSize = 32 << 20

// job states
const (
	jobQueued  = "queued"
	jobRunning = "running"
	jobDone    = "done"
	jobFailed  = "failed"
)

// job modes
const (
	modePipeline = "pipeline"
	modeVLM      = "vlm"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the OCR job HTTP service",
	Long: `Start an HTTP service that accepts scanned forms and runs them through the
pipeline, or through a vision-language model with mode=vlm, one at a time.

  POST /api/jobs                      upload an image (multipart field "file")
  GET  /api/jobs                      job history
  GET  /api/jobs/{id}                 one job with its result
  GET  /api/jobs/{id}/export?format=  result as txt, json, yaml, csv or hocr`,
	RunE: runServe,
}

func init() {
	RootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("port", "8888", "Port to run the web server on")
	serveCmd.Flags().String("host", "localhost", "Host to bind the web server to")
	addPipelineFlags(serveCmd, "config")
}

// Job is one uploaded image and, once finished, its result
type Job struct {
	ID        string             `json:"id"`
	Filename  string             `json:"filename"`
	Mode      string             `json:"mode"`
	Size      int64              `json:"size"`
	SizeHuman string             `json:"size_human"`
	Status    string             `json:"status"`
	Text      string             `json:"text,omitempty"`
	Error     string             `json:"error,omitempty"`
	Document  *pipeline.Document `json:"document,omitempty"`
	CreatedAt time.Time          `json:"created_at"`
	Finished  *time.Time         `json:"finished_at,omitempty"`

	data []byte
}

// page is the exportable form of a finished job
func (j *Job) page() export.Page {
	if j.Document != nil {
		return j.Document.Page()
	}
	p := export.Page{Source: j.Filename}
	for _, l := range strings.Split(j.Text, "\n") {
		if l = strings.TrimSpace(l); l != "" {
			p.Lines = append(p.Lines, assembler.Line{Text: l})
		}
	}
	return p
}

// vlmFunc transcribes a whole page
type vlmFunc func(ctx context.Context, name string, data []byte) (string, error)

// jobServer keeps the job history in memory and feeds uploads to a single
// worker
type jobServer struct {
	pipeline *pipeline.Pipeline
	vlm      vlmFunc

	mu    sync.Mutex
	jobs  map[string]*Job
	order []string
	seq   int
	queue chan *Job
}

func newJobServer(p *pipeline.Pipeline, vlm vlmFunc) *jobServer {
	return &jobServer{
		pipeline: p,
		vlm:      vlm,
		jobs:     make(map[string]*Job),
		queue:    make(chan *Job, 64),
	}
}

func (s *jobServer) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/jobs", s.handleCreate)
	mux.HandleFunc("GET /api/jobs", s.handleList)
	mux.HandleFunc("GET /api/jobs/{id}", s.handleGet)
	mux.HandleFunc("GET /api/jobs/{id}/export", s.handleExport)
	return mux
}

// work processes queued jobs until ctx is done
func (s *jobServer) work(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case j := <-s.queue:
			s.process(ctx, j)
		}
	}
}

func (s *jobServer) process(ctx context.Context, j *Job) {
	s.update(j, func(j *Job) { j.Status = jobRunning })
	slog.Info("Processing job", "id", j.ID, "file", j.Filename, "mode", j.Mode)

	var (
		doc  *pipeline.Document
		text string
		err  error
	)
	switch j.Mode {
	case modeVLM:
		if s.vlm == nil {
			err = errors.New("no vision-language provider configured")
			break
		}
		text, err = s.vlm(ctx, j.Filename, j.data)
	default:
		var img image.Image
		img, err = pipeline.DecodeImage(bytes.NewReader(j.data))
		if err != nil {
			break
		}
		var d pipeline.Document
		if d, err = s.pipeline.RunImage(ctx, j.Filename, img); err == nil {
			doc = &d
		}
	}

	now := time.Now()
	s.update(j, func(j *Job) {
		j.Finished = &now
		j.data = nil
		if err != nil {
			msg := utils.MaskSensitiveData(err.Error())
			j.Status = jobFailed
			j.Error = msg
			j.Text = "[ERROR] " + msg
			return
		}
		j.Status = jobDone
		j.Document = doc
		if doc != nil {
			text = doc.Text()
		}
		j.Text = text
	})

	if err != nil {
		slog.Error("Job failed", "id", j.ID, "err", utils.MaskSensitiveError(err))
		return
	}
	slog.Info("Job finished", "id", j.ID, "duration", now.Sub(j.CreatedAt))
}

func (s *jobServer) update(j *Job, fn func(*Job)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(j)
}

func (s *jobServer) snapshot(id string) (Job, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return Job{}, false
	}
	return *j, true
}

func (s *jobServer) handleCreate(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	file, header, err := r.FormFile("file")
	if err != nil {
		respondWithError(w, "Failed to read file: "+err.Error(), http.StatusBadRequest)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		respondWithError(w, "Failed to read file: "+err.Error(), http.StatusBadRequest)
		return
	}
	if len(data) == 0 {
		respondWithError(w, "Uploaded file is empty", http.StatusBadRequest)
		return
	}
	if !pipeline.IsSupportedImage(header.Filename) {
		respondWithError(w, fmt.Sprintf("Unsupported image type %q", filepath.Ext(header.Filename)), http.StatusUnsupportedMediaType)
		return
	}

	mode := r.FormValue("mode")
	switch mode {
	case "":
		mode = modePipeline
	case modePipeline, modeVLM:
	default:
		respondWithError(w, fmt.Sprintf("Unknown mode %q", mode), http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	s.seq++
	j := &Job{
		ID:        fmt.Sprintf("job_%d", s.seq),
		Filename:  header.Filename,
		Mode:      mode,
		Size:      int64(len(data)),
		SizeHuman: utils.HumanSize(int64(len(data))),
		Status:    jobQueued,
		CreatedAt: time.Now(),
		data:      data,
	}
	s.jobs[j.ID] = j
	s.order = append(s.order, j.ID)
	resp := *j
	s.mu.Unlock()

	select {
	case s.queue <- j:
	default:
		s.update(j, func(j *Job) {
			j.Status = jobFailed
			j.Error = "job queue is full"
			j.Text = "[ERROR] job queue is full"
			j.data = nil
		})
		respondWithError(w, "Job queue is full", http.StatusServiceUnavailable)
		return
	}

	slog.Info("Job queued", "id", j.ID, "file", j.Filename, "size", j.SizeHuman)
	w.Header().Set("Location", "/api/jobs/"+j.ID)
	respondWithJSON(w, http.StatusAccepted, resp)
}

func (s *jobServer) handleList(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	list := make([]Job, 0, len(s.order))
	for _, id := range s.order {
		j := *s.jobs[id]
		// documents are only returned per job
		j.Document = nil
		list = append(list, j)
	}
	s.mu.Unlock()
	respondWithJSON(w, http.StatusOK, list)
}

func (s *jobServer) handleGet(w http.ResponseWriter, r *http.Request) {
	j, ok := s.snapshot(r.PathValue("id"))
	if !ok {
		respondWithError(w, "Job not found", http.StatusNotFound)
		return
	}
	respondWithJSON(w, http.StatusOK, j)
}

func (s *jobServer) handleExport(w http.ResponseWriter, r *http.Request) {
	j, ok := s.snapshot(r.PathValue("id"))
	if !ok {
		respondWithError(w, "Job not found", http.StatusNotFound)
		return
	}
	if j.Status != jobDone {
		respondWithError(w, fmt.Sprintf("Job is %s", j.Status), http.StatusConflict)
		return
	}

	format := r.URL.Query().Get("format")
	if format == "" {
		format = "txt"
	}
	ct, err := export.ContentType(format)
	if err != nil {
		respondWithError(w, err.Error(), http.StatusBadRequest)
		return
	}

	var buf bytes.Buffer
	if err := export.Write(&buf, format, j.page()); err != nil {
		respondWithError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	name := strings.TrimSuffix(j.Filename, filepath.Ext(j.Filename)) + export.Extension(format)
	w.Header().Set("Content-Type", ct)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	_, _ = w.Write(buf.Bytes())
}

func respondWithJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "err", err)
	}
}

func respondWithError(w http.ResponseWriter, message string, statusCode int) {
	respondWithJSON(w, statusCode, map[string]string{
		"error": utils.MaskSensitiveData(message),
	})
}

// checkServeConfig rejects settings no upload could succeed with. Uploads
// have no path on disk, so the file detector has no sidecar to fall back to.
func checkServeConfig(cfg pipeline.Config, boxes string) error {
	if cfg.Detector == pipeline.DetectorFile && boxes == "" {
		return errors.New("the file detector needs --boxes when serving uploads")
	}
	return nil
}

func runServe(cmd *cobra.Command, args []string) error {
	host, _ := cmd.Flags().GetString("host")
	port, _ := cmd.Flags().GetString("port")

	cfg, err := pipelineConfig(cmd, "config")
	if err != nil {
		return err
	}
	boxes, _ := cmd.Flags().GetString("boxes")
	if err := checkServeConfig(cfg, boxes); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	eng, err := buildEngine(ctx, cmd, cfg)
	if err != nil {
		return err
	}
	defer eng.Close()

	var vlm vlmFunc
	if p, err := newRegistry().Get(cfg.Provider); err == nil {
		pcfg := providerConfig(cmd, cfg.Provider)
		pcfg.Prompt = providers.PagePrompt
		if err := p.ValidateConfig(pcfg); err != nil {
			slog.Warn("Whole-page transcription disabled", "provider", cfg.Provider, "err", err)
		} else {
			vlm = func(ctx context.Context, name string, data []byte) (string, error) {
				return extractPage(ctx, p, pcfg, name, data)
			}
		}
	}

	s := newJobServer(eng.pipeline, vlm)
	go s.work(ctx)

	addr := net.JoinHostPort(host, port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
		defer done()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Warn("Server shutdown failed", "err", err)
		}
	}()

	slog.Info("OCR job service available", "url", fmt.Sprintf("http://%s", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
