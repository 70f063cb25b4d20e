package api

import (
	"errors"
	"io/fs"
	"math"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/place2dxf/internal/failure"
	"github.com/sells-group/place2dxf/internal/model"
)

var errFileMissing = failure.NotFound("api: files", "file not found")

type dwgResponse struct {
	Status      string `json:"status"`
	DownloadURL string `json:"download_url"`
}

// parseBuffer reads the optional buffer parameter; 0 means "use default".
func parseBuffer(raw string) (float64, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, true
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || v <= 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

func (s *Server) handleDWG(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	place := strings.TrimSpace(q.Get("place"))
	if place == "" {
		writeError(w, http.StatusBadRequest, "missing ?place")
		return
	}
	buffer, ok := parseBuffer(q.Get("buffer"))
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid ?buffer")
		return
	}

	res, err := s.runner.Run(r.Context(), model.PlaceQuery{Place: place, Buffer: buffer})
	if err != nil {
		zap.L().Error("api: drawing generation failed",
			zap.String("request_id", RequestIDFrom(r.Context())),
			zap.String("place", place),
			zap.Error(err),
		)
		status := failure.HTTPStatus(err)
		if status == http.StatusNotFound {
			// A geocoder miss is a failed run, not a missing resource.
			status = http.StatusInternalServerError
		}
		writeError(w, status, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, dwgResponse{
		Status:      "ok",
		DownloadURL: "/files/" + url.PathEscape(res.FileName),
	})
}

// plainName reports whether name is a bare file name inside a directory.
func plainName(name string) bool {
	if name == "" || name == "." || name == ".." {
		return false
	}
	return !strings.ContainsAny(name, `/\`) && filepath.Base(name) == name
}

func (s *Server) handleFile(w http.ResponseWriter, r *http.Request) {
	name := chiParam(r, "name")
	if !plainName(name) {
		writeMissing(w)
		return
	}

	f, err := os.Open(filepath.Join(s.opts.OutputDir, name))
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			zap.L().Warn("api: open drawing", zap.String("name", name), zap.Error(err))
		}
		writeMissing(w)
		return
	}
	defer f.Close() //nolint:errcheck

	info, err := f.Stat()
	if err != nil || info.IsDir() {
		writeMissing(w)
		return
	}

	w.Header().Set("Content-Type", "application/dxf")
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": name}))
	http.ServeContent(w, r, name, info.ModTime(), f)
}

func writeMissing(w http.ResponseWriter) {
	writeError(w, failure.HTTPStatus(errFileMissing), "file not found")
}
