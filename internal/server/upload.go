package server

import (
	"fmt"
	"mime/multipart"
	"net/http"
	"path/filepath"

	"go.uber.org/zap"

	"example.com/bmffgate/internal/common"
)

// handleUpload keeps every file of a multipart request as an artifact. The
// response carries each file's id and SHA-256 so clients can validate it
// later with ?artifact=<id>.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxUpload)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		http.Error(w, fmt.Sprintf("parse multipart: %v", err), http.StatusBadRequest)
		return
	}
	defer r.MultipartForm.RemoveAll()
	var refs []ArtifactRef
	for _, files := range r.MultipartForm.File {
		for _, fh := range files {
			ref, err := s.storeUpload(fh)
			if err != nil {
				http.Error(w, fmt.Sprintf("store %s: %v", fh.Filename, err), http.StatusBadRequest)
				return
			}
			refs = append(refs, ref)
		}
	}
	if len(refs) == 0 {
		http.Error(w, "no files uploaded", http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Files []ArtifactRef `json:"files"`
	}{Files: refs})
}

func (s *Server) storeUpload(fh *multipart.FileHeader) (ArtifactRef, error) {
	src, err := fh.Open()
	if err != nil {
		return ArtifactRef{}, err
	}
	defer src.Close()
	sp, err := common.Spool(s.uploadsDir, "upload-*"+filepath.Ext(fh.Filename), src)
	if err != nil {
		return ArtifactRef{}, err
	}
	art, err := s.addArtifact(sp.Path, filepath.Base(fh.Filename), guessContentType(fh.Filename), "upload", sp.SHA256)
	if err != nil {
		return ArtifactRef{}, err
	}
	s.log.Info("stored upload", zap.String("id", art.ID), zap.String("name", art.Name), zap.Int64("size", sp.Size))
	return toRef(art), nil
}
