// Package server exposes validation over HTTP and keeps generated reports
// as downloadable artifacts.
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"example.com/bmffgate/internal/bmff"
	"example.com/bmffgate/internal/common"
	"example.com/bmffgate/internal/config"
	"example.com/bmffgate/internal/report"
	"example.com/bmffgate/internal/rules"
	"example.com/bmffgate/internal/tree"
)

// Server coordinates HTTP handlers and manages temporary artifacts produced by
// validation requests.
type Server struct {
	artifacts  *ArtifactStore
	workDir    string
	uploadsDir string
	opts       Options
	sem        chan struct{}
	log        *zap.Logger
}

// Artifact represents a file generated or stored by the daemon.
type Artifact struct {
	ID          string
	Path        string
	Name        string
	ContentType string
	Size        int64
	Kind        string
	SHA256      string
}

// ArtifactRef is the public representation returned in API responses.
type ArtifactRef struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	ContentType string `json:"contentType,omitempty"`
	Size        int64  `json:"size,omitempty"`
	Kind        string `json:"kind,omitempty"`
	SHA256      string `json:"sha256,omitempty"`
}

// ArtifactStore keeps track of generated artifacts for later download.
type ArtifactStore struct {
	mu      sync.RWMutex
	entries map[string]Artifact
}

// NewServer constructs a Server rooted at a temporary workspace directory.
func NewServer(opts Options) (*Server, error) {
	opts.applyDefaults()
	if _, err := config.FindPreset(opts.PresetsFile, opts.DefaultPreset); err != nil {
		return nil, err
	}
	storageDir := opts.StorageDir
	if storageDir == "" {
		storageDir = os.TempDir()
	}
	if err := os.MkdirAll(storageDir, 0o755); err != nil {
		return nil, err
	}
	workDir, err := os.MkdirTemp(storageDir, "bmffd-")
	if err != nil {
		return nil, err
	}
	uploadsDir := filepath.Join(workDir, "uploads")
	if err := os.MkdirAll(uploadsDir, 0o755); err != nil {
		os.RemoveAll(workDir)
		return nil, err
	}
	return &Server{
		artifacts:  &ArtifactStore{entries: make(map[string]Artifact)},
		workDir:    workDir,
		uploadsDir: uploadsDir,
		opts:       opts,
		sem:        make(chan struct{}, opts.Concurrency),
		log:        opts.Logger.Named("server"),
	}, nil
}

// Close removes any temporary state associated with the server.
func (s *Server) Close() error {
	if s == nil || s.workDir == "" {
		return nil
	}
	return os.RemoveAll(s.workDir)
}

func (s *Server) tempPath(pattern string) (string, error) {
	f, err := os.CreateTemp(s.workDir, pattern)
	if err != nil {
		return "", err
	}
	name := f.Name()
	f.Close()
	return name, nil
}

func (s *Server) addArtifact(path, displayName, contentType, kind, digest string) (Artifact, error) {
	if path == "" {
		return Artifact{}, errors.New("empty path")
	}
	info, err := os.Stat(path)
	if err != nil {
		return Artifact{}, err
	}
	art := Artifact{
		ID:          uuid.NewString(),
		Path:        path,
		Name:        displayName,
		ContentType: contentType,
		Size:        info.Size(),
		Kind:        kind,
		SHA256:      digest,
	}
	if art.Name == "" {
		art.Name = filepath.Base(path)
	}
	if art.ContentType == "" {
		art.ContentType = guessContentType(art.Name)
	}
	s.artifacts.mu.Lock()
	s.artifacts.entries[art.ID] = art
	s.artifacts.mu.Unlock()
	return art, nil
}

func (s *Server) getArtifact(id string) (Artifact, bool) {
	s.artifacts.mu.RLock()
	art, ok := s.artifacts.entries[id]
	s.artifacts.mu.RUnlock()
	return art, ok
}

// input is the file a validate request operates on. Request bodies are
// spooled to disk and removed by cleanup; uploaded artifacts are kept.
type input struct {
	path    string
	name    string
	digest  string
	size    int64
	cleanup func()
}

func (s *Server) requestInput(w http.ResponseWriter, r *http.Request) (input, error) {
	if id := r.URL.Query().Get("artifact"); id != "" {
		art, ok := s.getArtifact(id)
		if !ok {
			return input{}, fmt.Errorf("unknown artifact %q", id)
		}
		return input{path: art.Path, name: art.Name, digest: art.SHA256, size: art.Size, cleanup: func() {}}, nil
	}
	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxUpload)
	var src io.Reader = r.Body
	name := r.URL.Query().Get("name")
	if mt, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type")); mt == "multipart/form-data" {
		file, fh, err := r.FormFile("file")
		if err != nil {
			return input{}, fmt.Errorf("multipart field file: %w", err)
		}
		defer file.Close()
		src = file
		name = fh.Filename
	}
	if name == "" {
		name = "upload.mp4"
	}
	sp, err := common.Spool(s.uploadsDir, "validate-*"+filepath.Ext(name), src)
	if err != nil {
		return input{}, err
	}
	if sp.Size == 0 {
		os.Remove(sp.Path)
		return input{}, errors.New("empty upload")
	}
	return input{
		path:    sp.Path,
		name:    filepath.Base(name),
		digest:  sp.SHA256,
		size:    sp.Size,
		cleanup: func() { os.Remove(sp.Path) },
	}, nil
}

func (s *Server) acquire(r *http.Request) error {
	select {
	case s.sem <- struct{}{}:
		return nil
	case <-r.Context().Done():
		return r.Context().Err()
	}
}

func (s *Server) release() { <-s.sem }

// handleValidate streams one NDJSON line per issue while the file is walked,
// then the end-of-stream issues, a summary line and, with report=true, an
// artifacts line naming the JSON and PDF reports.
func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	q := r.URL.Query()
	presetID := q.Get("preset")
	if presetID == "" {
		presetID = s.opts.DefaultPreset
	}
	preset, err := config.FindPreset(s.opts.PresetsFile, presetID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	lang := report.NegotiateLanguage(r.Header.Get("Accept-Language"))
	if v := q.Get("lang"); v != "" {
		if lang, err = report.ParseLanguage(v); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
	}
	in, err := s.requestInput(w, r)
	if err != nil {
		http.Error(w, fmt.Sprintf("input: %v", err), http.StatusBadRequest)
		return
	}
	defer in.cleanup()
	if err := s.acquire(r); err != nil {
		return
	}
	defer s.release()

	log := s.log.With(zap.String("file", in.name), zap.String("preset", preset.ID))
	w.Header().Set("Content-Type", "application/x-ndjson")
	out := NewNDJSONWriter(w)
	streamed := 0
	observer := rules.ObserverFunc(func(ev bmff.Event, issues []rules.Issue) {
		for _, is := range issues {
			streamed++
			if !preset.Enabled(is.RuleID) {
				continue
			}
			h := ev.Header
			_ = out.Issue(rules.Finding{Issue: is, Header: h, Box: h.Identifier(), Start: h.Start, End: h.End, Depth: ev.Depth})
		}
	})
	opts := rules.RunOptions{FilePath: in.name, Observer: observer, Logger: log, MaxDepth: s.opts.MaxDepth}
	if s.opts.ResearchLog != nil {
		opts.Recorder = rules.ResearchLogRecorder(s.opts.ResearchLog)
	}
	res, err := rules.ValidateFile(r.Context(), in.path, opts)
	if err != nil {
		log.Warn("validation failed", zap.Error(err))
		_ = out.Error(err)
		return
	}
	for _, f := range res.Findings[streamed:] {
		if preset.Enabled(f.RuleID) {
			_ = out.Issue(f)
		}
	}
	sum := tree.FromResult(res.Filter(preset.Enabled)).Summary()
	_ = out.Summary(in.name, res.Boxes, sum)
	if q.Get("report") != "true" {
		return
	}
	refs, err := s.writeReports(in, res, preset, lang)
	if err != nil {
		log.Warn("report failed", zap.Error(err))
		_ = out.Error(err)
		return
	}
	_ = out.Object(struct {
		Type      string        `json:"type"`
		Artifacts []ArtifactRef `json:"artifacts"`
	}{"artifacts", refs})
}

func (s *Server) writeReports(in input, res *rules.Result, preset config.Preset, lang report.Language) ([]ArtifactRef, error) {
	digest, size := in.digest, in.size
	if digest == "" {
		var err error
		if digest, size, err = common.Sha256OfFile(in.path); err != nil {
			return nil, err
		}
	}
	rep := report.New(res, report.Options{
		File:    in.name,
		SHA256:  digest,
		Size:    size,
		Preset:  preset.ID,
		Enabled: preset.Enabled,
	})
	jsonPath, err := s.tempPath("report-*.json")
	if err != nil {
		return nil, err
	}
	if err := report.SaveJSON(rep, jsonPath); err != nil {
		return nil, err
	}
	pdfPath, err := s.tempPath("report-*.pdf")
	if err != nil {
		return nil, err
	}
	if err := report.SavePDF(rep, pdfPath, report.PDFOptions{Lang: lang, QRSize: s.opts.QRSize}); err != nil {
		return nil, err
	}
	jsonArt, err := s.addArtifact(jsonPath, "validation_report.json", "application/json", "report", "")
	if err != nil {
		return nil, err
	}
	pdfArt, err := s.addArtifact(pdfPath, "validation_report.pdf", "application/pdf", "report", "")
	if err != nil {
		return nil, err
	}
	return []ArtifactRef{toRef(jsonArt), toRef(pdfArt)}, nil
}

func (s *Server) handleRules(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, rules.Catalog())
}

func (s *Server) handlePresets(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	presets, err := config.Presets(s.opts.PresetsFile)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, presets)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "artifacts": len(s.listArtifacts())})
}

func (s *Server) handleArtifactDownload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/artifacts/")
	if id == "" {
		http.NotFound(w, r)
		return
	}
	art, ok := s.getArtifact(id)
	if !ok {
		http.NotFound(w, r)
		return
	}
	f, err := os.Open(art.Path)
	if err != nil {
		http.Error(w, fmt.Sprintf("open artifact: %v", err), http.StatusInternalServerError)
		return
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		http.Error(w, fmt.Sprintf("stat artifact: %v", err), http.StatusInternalServerError)
		return
	}
	if art.ContentType != "" {
		w.Header().Set("Content-Type", art.ContentType)
	}
	w.Header().Set("Content-Length", fmt.Sprintf("%d", info.Size()))
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", art.Name))
	io.Copy(w, f)
}

func toRef(art Artifact) ArtifactRef {
	return ArtifactRef{
		ID:          art.ID,
		Name:        art.Name,
		ContentType: art.ContentType,
		Size:        art.Size,
		Kind:        art.Kind,
		SHA256:      art.SHA256,
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func guessContentType(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".json":
		return "application/json"
	case ".ndjson":
		return "application/x-ndjson"
	case ".pdf":
		return "application/pdf"
	case ".mp4", ".m4s", ".m4v":
		return "video/mp4"
	case ".m4a":
		return "audio/mp4"
	case ".mov":
		return "video/quicktime"
	default:
		return "application/octet-stream"
	}
}

func (s *Server) listArtifacts() []ArtifactRef {
	s.artifacts.mu.RLock()
	refs := make([]ArtifactRef, 0, len(s.artifacts.entries))
	for _, art := range s.artifacts.entries {
		refs = append(refs, toRef(art))
	}
	s.artifacts.mu.RUnlock()
	sort.Slice(refs, func(i, j int) bool { return refs[i].ID < refs[j].ID })
	return refs
}
