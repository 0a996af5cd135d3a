package web

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"

	"github.com/vbonduro/photographies/internal/mediastore"
	"github.com/vbonduro/photographies/internal/service"
)

const (
	maxFilesPerRequest = 20
	multipartMemory    = 32 << 20
	multipartOverhead  = 1 << 20
)

// allowedImageTypes is the set of MIME types accepted for uploaded photos.
// net/http.DetectContentType handles JPEG and PNG via magic-byte sniffing.
// WebP is detected separately because the WHATWG sniff spec (and therefore
// the stdlib) does not include a WebP signature.
var allowedImageTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
}

// isWebP reports whether data is a WebP image (RIFF container with "WEBP" at
// offset 8).
func isWebP(data []byte) bool {
	return len(data) >= 12 &&
		string(data[0:4]) == "RIFF" &&
		string(data[8:12]) == "WEBP"
}

// allowedImageMIME returns the detected MIME type and true if the data is an
// accepted image format, or ("", false) otherwise.
func allowedImageMIME(data []byte) (string, bool) {
	if isWebP(data) {
		return "image/webp", true
	}
	mime := http.DetectContentType(data)
	if allowedImageTypes[mime] {
		return mime, true
	}
	return "", false
}

// requestError is a rejection decided before the service is called.
type requestError struct {
	status  int
	message string
}

func unprocessable(format string, args ...any) *requestError {
	return &requestError{status: http.StatusUnprocessableEntity, message: fmt.Sprintf(format, args...)}
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	uploads, rerr := s.readImages(w, r, "image")
	if rerr != nil {
		writeError(w, rerr.status, rerr.message)
		return
	}

	p, err := s.service.UploadPhotography(r.Context(), uploads[0])
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, p, msgUploaded)
}

func (s *Server) handleUploadMultiple(w http.ResponseWriter, r *http.Request) {
	uploads, rerr := s.readImages(w, r, "images", "images[]")
	if rerr != nil {
		writeError(w, rerr.status, rerr.message)
		return
	}

	ps, err := s.service.UploadPhotographies(r.Context(), uploads)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, ps, msgUploadedMany)
}

// readImages parses the multipart form and returns the files sent under any of
// fields, each checked for size and image type.
func (s *Server) readImages(w http.ResponseWriter, r *http.Request, fields ...string) ([]service.Upload, *requestError) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes*maxFilesPerRequest+multipartOverhead)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			return nil, unprocessable("Request body too large")
		case errors.Is(err, http.ErrNotMultipart):
			return nil, unprocessable(msgFileRequired)
		default:
			return nil, &requestError{status: http.StatusBadRequest, message: "Invalid multipart form"}
		}
	}
	defer func() {
		if err := r.MultipartForm.RemoveAll(); err != nil {
			s.logger.Warn("failed to remove multipart temp files", "error", err)
		}
	}()

	var headers []*multipart.FileHeader
	for _, field := range fields {
		headers = append(headers, r.MultipartForm.File[field]...)
	}
	if len(headers) == 0 {
		return nil, unprocessable(msgFileRequired)
	}
	if len(headers) > maxFilesPerRequest {
		return nil, unprocessable("Too many files (at most %d per request)", maxFilesPerRequest)
	}

	uploads := make([]service.Upload, 0, len(headers))
	for _, h := range headers {
		up, rerr := s.readImage(h)
		if rerr != nil {
			return nil, rerr
		}
		uploads = append(uploads, up)
	}
	return uploads, nil
}

func (s *Server) readImage(h *multipart.FileHeader) (service.Upload, *requestError) {
	tooBig := unprocessable("File size must be less than %d MB", s.maxUploadMB)
	if h.Size > s.maxUploadBytes {
		return service.Upload{}, tooBig
	}

	file, err := h.Open()
	if err != nil {
		s.logger.Error("open upload failed", "filename", h.Filename, "error", err)
		return service.Upload{}, &requestError{status: http.StatusInternalServerError, message: msgInternal}
	}
	defer closeWithLog(file, "upload file", s.logger)

	data, err := io.ReadAll(io.LimitReader(file, s.maxUploadBytes+1))
	if err != nil {
		s.logger.Error("read upload failed", "filename", h.Filename, "error", err)
		return service.Upload{}, &requestError{status: http.StatusInternalServerError, message: msgInternal}
	}
	if int64(len(data)) > s.maxUploadBytes {
		return service.Upload{}, tooBig
	}
	if _, ok := allowedImageMIME(data); !ok {
		return service.Upload{}, unprocessable(msgUnsupportedImage)
	}
	return service.Upload{Filename: h.Filename, Data: data}, nil
}

func (s *Server) handleGetMedia(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	reader, mimeType, err := s.media.Get(r.Context(), key)
	if err != nil {
		if !errors.Is(err, mediastore.ErrNotFound) {
			s.logger.Warn("get media failed", "key", key, "error", err)
		}
		writeError(w, http.StatusNotFound, "Media not found")
		return
	}
	defer closeWithLog(reader, "media reader", s.logger)

	w.Header().Set("Content-Type", mimeType)
	w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	if _, err := io.Copy(w, reader); err != nil {
		s.logger.Error("write media failed", "key", key, "error", err)
	}
}

// closeWithLog closes c and logs any error, using label to identify the resource.
func closeWithLog(c io.Closer, label string, logger *slog.Logger) {
	if err := c.Close(); err != nil {
		logger.Error("failed to close resource", "label", label, "error", err)
	}
}
