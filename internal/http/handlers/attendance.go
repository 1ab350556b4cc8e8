package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/presqr/server/internal/attendance"
	"github.com/presqr/server/internal/model"
	"github.com/skip2/go-qrcode"
)

const (
	defaultQRSize = 256
	minQRSize     = 128
	maxQRSize     = 1024
)

// AttendanceService is the protocol surface the handlers call
type AttendanceService interface {
	GenerateOrReuseSession(ctx context.Context, courseID, lecturerID uuid.UUID) (model.AttendanceSession, error)
	RecordScan(ctx context.Context, rawToken string, studentID uuid.UUID) (model.Scan, error)
	CourseSessions(ctx context.Context, courseID uuid.UUID) ([]model.SessionDetail, error)
	Session(ctx context.Context, id uuid.UUID) (model.AttendanceSession, error)
}

// AttendanceHandler handles the attendance endpoints
type AttendanceHandler struct {
	svc      AttendanceService
	validate *validator.Validate
}

// NewAttendanceHandler creates a new attendance handler
func NewAttendanceHandler(svc AttendanceService) *AttendanceHandler {
	v := validator.New()
	// Body IDs accept the same forms as path IDs
	_ = v.RegisterValidation("anyuuid", func(fl validator.FieldLevel) bool {
		_, err := uuid.Parse(fl.Field().String())
		return err == nil
	})
	return &AttendanceHandler{
		svc:      svc,
		validate: v,
	}
}

// generateQRRequest is the request body for POST /api/attendance/generate-qr
type generateQRRequest struct {
	CourseID   string `json:"courseId" validate:"required,anyuuid"`
	LecturerID string `json:"lecturerId" validate:"required,anyuuid"`
}

type generateQRResponse struct {
	QRData      string `json:"qrData"`
	SessionID   string `json:"sessionId"`
	GeneratedAt string `json:"generatedAt"`
	ExpiresAt   string `json:"expiresAt"`
}

// scanRequest is the request body for POST /api/attendance/scan
type scanRequest struct {
	QRData    string `json:"qrData" validate:"required"`
	StudentID string `json:"studentId" validate:"required,anyuuid"`
}

type studentResponse struct {
	ID        string `json:"_id"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	IDNumber  string `json:"idNumber"`
}

type scanResponse struct {
	StudentID studentResponse `json:"studentId"`
	ScannedAt string          `json:"scannedAt"`
}

type sessionResponse struct {
	ID          string         `json:"_id"`
	CourseID    string         `json:"courseId"`
	LecturerID  string         `json:"lecturerId"`
	QRCodeData  string         `json:"qrCodeData"`
	GeneratedAt string         `json:"generatedAt"`
	ExpiresAt   string         `json:"expiresAt"`
	ScannedBy   []scanResponse `json:"scannedBy"`
}

// HandleGenerateQR handles POST /api/attendance/generate-qr
func (h *AttendanceHandler) HandleGenerateQR(w http.ResponseWriter, r *http.Request) {
	var req generateQRRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		respondWithError(w, http.StatusBadRequest, "courseId and lecturerId must be valid IDs")
		return
	}

	session, err := h.svc.GenerateOrReuseSession(r.Context(), uuid.MustParse(req.CourseID), uuid.MustParse(req.LecturerID))
	if err != nil {
		switch {
		case errors.Is(err, attendance.ErrNotFound):
			respondWithError(w, http.StatusNotFound, "Course not found")
		case errors.Is(err, attendance.ErrUnauthorized):
			respondWithError(w, http.StatusForbidden, "Unauthorized to generate QR for this course")
		default:
			log.Printf("Failed to generate session for course %s: %v", req.CourseID, err)
			respondWithError(w, http.StatusInternalServerError, "Server error")
		}
		return
	}

	respondWithJSON(w, http.StatusOK, generateQRResponse{
		QRData:      session.Token,
		SessionID:   session.ID.String(),
		GeneratedAt: formatTime(session.GeneratedAt),
		ExpiresAt:   formatTime(session.ExpiresAt),
	})
}

// HandleScan handles POST /api/attendance/scan
func (h *AttendanceHandler) HandleScan(w http.ResponseWriter, r *http.Request) {
	var req scanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		respondWithError(w, http.StatusBadRequest, "qrData and a valid studentId are required")
		return
	}

	_, err := h.svc.RecordScan(r.Context(), req.QRData, uuid.MustParse(req.StudentID))
	if err != nil {
		switch {
		case errors.Is(err, attendance.ErrMalformedToken):
			respondWithError(w, http.StatusBadRequest, "Invalid QR code")
		case errors.Is(err, attendance.ErrSessionExpired):
			respondWithError(w, http.StatusBadRequest, "QR code has expired")
		case errors.Is(err, attendance.ErrDuplicateScan):
			respondWithError(w, http.StatusBadRequest, "You have already scanned this QR code")
		case errors.Is(err, attendance.ErrNotFound):
			respondWithError(w, http.StatusNotFound, "Attendance record not found")
		default:
			log.Printf("Failed to record scan for student %s: %v", req.StudentID, err)
			respondWithError(w, http.StatusInternalServerError, "Server error")
		}
		return
	}

	respondWithJSON(w, http.StatusOK, messageResponse{Message: "Attendance recorded successfully"})
}

// HandleCourseAttendance handles GET /api/attendance/course/{courseId}
func (h *AttendanceHandler) HandleCourseAttendance(w http.ResponseWriter, r *http.Request) {
	courseID, err := uuid.Parse(chi.URLParam(r, "courseId"))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid course ID")
		return
	}

	sessions, err := h.svc.CourseSessions(r.Context(), courseID)
	if err != nil {
		log.Printf("Failed to list sessions for course %s: %v", courseID, err)
		respondWithError(w, http.StatusInternalServerError, "Server error")
		return
	}

	out := make([]sessionResponse, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, toSessionResponse(s))
	}
	respondWithJSON(w, http.StatusOK, out)
}

// HandleSessionQR handles GET /api/attendance/sessions/{sessionId}/qr.png
func (h *AttendanceHandler) HandleSessionQR(w http.ResponseWriter, r *http.Request) {
	sessionID, err := uuid.Parse(chi.URLParam(r, "sessionId"))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid session ID")
		return
	}

	size := defaultQRSize
	if raw := r.URL.Query().Get("size"); raw != "" {
		size, err = strconv.Atoi(raw)
		if err != nil || size < minQRSize || size > maxQRSize {
			respondWithError(w, http.StatusBadRequest, "size must be between 128 and 1024")
			return
		}
	}

	session, err := h.svc.Session(r.Context(), sessionID)
	if err != nil {
		if errors.Is(err, attendance.ErrNotFound) {
			respondWithError(w, http.StatusNotFound, "Attendance record not found")
			return
		}
		log.Printf("Failed to load session %s: %v", sessionID, err)
		respondWithError(w, http.StatusInternalServerError, "Server error")
		return
	}

	png, err := qrcode.Encode(session.Token, qrcode.Medium, size)
	if err != nil {
		log.Printf("Failed to render QR for session %s: %v", sessionID, err)
		respondWithError(w, http.StatusInternalServerError, "Server error")
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(png)
}

func toSessionResponse(s model.SessionDetail) sessionResponse {
	resp := sessionResponse{
		ID:          s.ID.String(),
		CourseID:    s.CourseID.String(),
		LecturerID:  s.LecturerID.String(),
		QRCodeData:  s.Token,
		GeneratedAt: formatTime(s.GeneratedAt),
		ExpiresAt:   formatTime(s.ExpiresAt),
		ScannedBy:   make([]scanResponse, 0, len(s.Scans)),
	}
	for _, sc := range s.Scans {
		resp.ScannedBy = append(resp.ScannedBy, scanResponse{
			StudentID: studentResponse{
				ID:        sc.Student.ID.String(),
				FirstName: sc.Student.FirstName,
				LastName:  sc.Student.LastName,
				IDNumber:  sc.Student.IDNumber,
			},
			ScannedAt: formatTime(sc.ScannedAt),
		})
	}
	return resp
}
