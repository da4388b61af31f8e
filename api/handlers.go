package api

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/c360studio/civicreport/llm"
	"github.com/c360studio/civicreport/report"
	"github.com/c360studio/civicreport/storage"
)

// maxUploadSize bounds image and report request bodies.
const maxUploadSize = 16 << 20

type signupRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type describeRequest struct {
	Text string `json:"text"`
}

// submitReportRequest carries the photo inline. The server never reads a
// client-named path; uploads are written under the upload directory.
type submitReportRequest struct {
	// Photo is the image (base64 in JSON); PhotoName only picks its extension.
	Photo     []byte `json:"photo"`
	PhotoName string `json:"photo_name"`

	Latitude           *float64 `json:"latitude"`
	Longitude          *float64 `json:"longitude"`
	Description        string   `json:"description"`
	Category           string   `json:"category"`
	AutoClassify       bool     `json:"auto_classify"`
	EnhanceDescription bool     `json:"enhance_description"`
}

func (h *Handler) healthz(w http.ResponseWriter, _ *http.Request) {
	writeMessage(w, http.StatusOK, "ok")
}

func (h *Handler) signup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		return
	}

	profile, err := h.accounts.Signup(r.Context(), req.Email, req.Password, req.Name)
	if err != nil {
		h.writeMappedError(r, w, "signup", err)
		return
	}
	writeSuccess(w, http.StatusCreated, profile)
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		return
	}

	session, err := h.accounts.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		h.writeMappedError(r, w, "login", err)
		return
	}
	writeSuccess(w, http.StatusOK, session)
}

func (h *Handler) describe(w http.ResponseWriter, r *http.Request) {
	if h.describer == nil {
		writeError(w, http.StatusServiceUnavailable, "AI_DISABLED", "description generation is not configured")
		return
	}

	var req describeRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		return
	}

	text, err := h.describer.Generate(r.Context(), req.Text)
	if err != nil {
		h.writeMappedError(r, w, "describe", err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]string{"description": text})
}

func (h *Handler) classify(w http.ResponseWriter, r *http.Request) {
	if h.classifier == nil {
		writeError(w, http.StatusServiceUnavailable, "AI_DISABLED", "image classification is not configured")
		return
	}

	mimeType, err := imageMimeType(r.Header.Get("Content-Type"))
	if err != nil {
		writeError(w, http.StatusUnsupportedMediaType, "UNSUPPORTED_MEDIA_TYPE", err.Error())
		return
	}

	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxUploadSize))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE", "image is too large")
		return
	}

	result, err := h.classifier.Classify(r.Context(), data, mimeType)
	if err != nil {
		h.writeMappedError(r, w, "classify", err)
		return
	}
	writeSuccess(w, http.StatusOK, result)
}

func (h *Handler) submitReport(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)

	var req submitReportRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		return
	}

	var photoPath string
	if len(req.Photo) > 0 {
		saved, err := h.saveUpload(req.Photo, req.PhotoName)
		if err != nil {
			h.writeMappedError(r, w, "save_photo", err)
			return
		}
		photoPath = saved
	}

	receipt, err := h.reports.Submit(r.Context(), report.Submission{
		UserID:             userIDFromContext(r.Context()),
		PhotoPath:          photoPath,
		Latitude:           req.Latitude,
		Longitude:          req.Longitude,
		Description:        req.Description,
		Category:           req.Category,
		AutoClassify:       req.AutoClassify,
		EnhanceDescription: req.EnhanceDescription,
	})
	if err != nil {
		h.writeMappedError(r, w, "submit_report", err)
		return
	}
	writeSuccess(w, http.StatusCreated, receipt)
}

func (h *Handler) listReports(w http.ResponseWriter, r *http.Request) {
	reports, err := h.reader.ListReportsByUser(r.Context(), userIDFromContext(r.Context()))
	if err != nil {
		h.writeMappedError(r, w, "list_reports", err)
		return
	}
	writeSuccess(w, http.StatusOK, reports)
}

func (h *Handler) getReport(w http.ResponseWriter, r *http.Request) {
	rep, err := h.reader.GetReport(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeMappedError(r, w, "get_report", err)
		return
	}
	// Other users' reports are reported as missing.
	if rep.UserID != userIDFromContext(r.Context()) {
		h.writeMappedError(r, w, "get_report", storage.ErrNotFound)
		return
	}
	writeSuccess(w, http.StatusOK, rep)
}

func (h *Handler) dashboard(w http.ResponseWriter, r *http.Request) {
	d, err := h.reports.Dashboard(r.Context(), userIDFromContext(r.Context()))
	if err != nil {
		h.writeMappedError(r, w, "dashboard", err)
		return
	}
	writeSuccess(w, http.StatusOK, d)
}

// saveUpload writes an uploaded photo under the upload directory.
func (h *Handler) saveUpload(data []byte, name string) (string, error) {
	if h.uploadDir == "" {
		return "", errors.New("photo uploads are not configured")
	}
	if err := os.MkdirAll(h.uploadDir, 0755); err != nil {
		return "", fmt.Errorf("create upload dir: %w", err)
	}

	ext := ".jpg"
	if llm.MimeTypeForPath(name) == "image/png" {
		ext = ".png"
	}

	path := filepath.Join(h.uploadDir, uuid.NewString()+ext)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("write photo: %w", err)
	}
	return path, nil
}

// imageMimeType accepts PNG and JPEG bodies. A missing type is treated as JPEG.
func imageMimeType(contentType string) (string, error) {
	if strings.TrimSpace(contentType) == "" {
		return "image/jpeg", nil
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return "", fmt.Errorf("invalid content type: %w", err)
	}
	switch mediaType {
	case "image/png", "image/jpeg":
		return mediaType, nil
	case "image/jpg":
		return "image/jpeg", nil
	}
	return "", fmt.Errorf("unsupported content type %q", mediaType)
}
