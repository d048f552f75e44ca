package http

import (
	"errors"
	"io"
	"mime"
	"net/http"
	"strconv"

	"rupee/internal/extractor"
	"rupee/internal/services"
)

type extractRequest struct {
	Transcript string `json:"transcript"`
	Text       string `json:"text"`
}

// handleExtract accepts a multipart bill image in field "file", or a JSON
// body carrying a voice transcript or pasted extractor output.
// ?preview=true reports the candidates without writing them.
func (s *Server) handleExtract(w http.ResponseWriter, r *http.Request) {
	preview, _ := strconv.ParseBool(r.URL.Query().Get("preview"))

	src, err := s.extractSource(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	report, err := s.api.Extract(r.Context(), src, preview)
	if err != nil {
		writeError(w, r, err)
		return
	}
	status := http.StatusOK
	if !preview && len(report.Outcomes) > 0 {
		status = http.StatusCreated
	}
	writeJSON(w, status, extractOf(preview, report))
}

func (s *Server) extractSource(w http.ResponseWriter, r *http.Request) (services.ExtractSource, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "multipart/form-data" {
		var req extractRequest
		if err := DecodeJSON(r, &req); err != nil {
			return services.ExtractSource{}, err
		}
		return services.ExtractSource{Transcript: sanitizeInput(req.Transcript), Text: req.Text}, nil
	}

	r.Body = http.MaxBytesReader(w, r.Body, extractor.MaxImageBytes+64<<10)
	file, header, err := r.FormFile("file")
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			return services.ExtractSource{}, extractor.ErrTooLarge
		}
		return services.ExtractSource{}, extractor.ErrEmptyInput
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return services.ExtractSource{}, err
	}
	return services.ExtractSource{
		Image:       data,
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
	}, nil
}
