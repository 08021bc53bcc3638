// Package handler exposes the HTTP surface: student registration and
// listing, attendance queries, recognition, and CSV export.
package handler

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"rollcall/internal/attendance"
	"rollcall/internal/cloudinary"
	"rollcall/internal/export"
	"rollcall/internal/faceclient"
	"rollcall/internal/matcher"
	"rollcall/internal/model"
	"rollcall/internal/queue"
	"rollcall/internal/recognize"
	"rollcall/internal/roster"
)

// Handler carries the services the routes need.
type Handler struct {
	students roster.Repository
	tracker  *attendance.Service
	pipeline *recognize.Service
	queue    queue.Queue
	face     *faceclient.Client
	cloud    *cloudinary.Client // nil when not configured
	log      zerolog.Logger
}

// New creates a handler.
func New(students roster.Repository, tracker *attendance.Service, pipeline *recognize.Service, q queue.Queue, face *faceclient.Client, cloud *cloudinary.Client, log zerolog.Logger) *Handler {
	return &Handler{
		students: students,
		tracker:  tracker,
		pipeline: pipeline,
		queue:    q,
		face:     face,
		cloud:    cloud,
		log:      log,
	}
}

// Routes registers the API under /api.
func (h *Handler) Routes(r gin.IRouter) {
	api := r.Group("/api")

	api.GET("/students", h.ListStudents)
	api.POST("/students/register", h.RegisterStudent)
	api.POST("/students/:id/descriptors", h.AppendDescriptors)
	api.POST("/students/:id/photo", h.EnrollPhoto)
	api.DELETE("/students/:id", h.DeleteStudent)

	api.GET("/attendance", h.ListAttendance)
	api.GET("/attendance/export", h.ExportAttendance)
	api.POST("/attendance", h.MarkAttendance)
	api.POST("/attendance/recognize", h.Recognize)
	api.DELETE("/attendance/:id", h.DeleteRecord)
	api.DELETE("/attendance", h.ClearAttendance)

	api.POST("/session/reset", h.ResetSession)
}

// ---------- Students ----------

func (h *Handler) ListStudents(c *gin.Context) {
	students, err := h.students.List(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if students == nil {
		students = []model.Student{}
	}
	c.JSON(http.StatusOK, students)
}

type registerRequest struct {
	StudentID       string             `json:"studentId" binding:"required"`
	FirstName       string             `json:"firstName" binding:"required"`
	LastName        string             `json:"lastName" binding:"required"`
	Email           string             `json:"email"`
	PhoneNumber     string             `json:"phoneNumber"`
	Course          string             `json:"course"`
	FaceDescriptors []model.Descriptor `json:"faceDescriptors" binding:"required"`
	PhotoData       string             `json:"photoData"` // base64 data URL, optional
}

// RegisterStudent validates the enrollment payload and persists the
// student. Nothing is persisted when validation fails.
func (h *Handler) RegisterStudent(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	s := model.Student{
		StudentID:       req.StudentID,
		FirstName:       req.FirstName,
		LastName:        req.LastName,
		Email:           req.Email,
		PhoneNumber:     req.PhoneNumber,
		Course:          req.Course,
		FaceDescriptors: req.FaceDescriptors,
	}
	if err := s.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	// Photo upload failures do not block registration; the descriptors are
	// what matters, a profile photo can be re-uploaded later.
	if req.PhotoData != "" && h.cloud != nil {
		if result, err := h.cloud.UploadBase64(req.PhotoData); err != nil {
			h.log.Warn().Err(err).Str("student_id", req.StudentID).Msg("photo upload failed")
		} else {
			s.PhotoURL = result.SecureURL
		}
	}

	if err := h.students.Create(c.Request.Context(), &s); err != nil {
		if errors.Is(err, roster.ErrDuplicateStudentID) {
			c.JSON(http.StatusConflict, gin.H{"error": "a student with this ID already exists"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	h.pipeline.InvalidateIndex()
	c.JSON(http.StatusCreated, s)
}

type descriptorsRequest struct {
	FaceDescriptors []model.Descriptor `json:"faceDescriptors" binding:"required"`
}

// AppendDescriptors stores additional re-enrollment captures.
func (h *Handler) AppendDescriptors(c *gin.Context) {
	var req descriptorsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	for _, d := range req.FaceDescriptors {
		if err := d.Validate(model.DescriptorDim); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	err := h.students.AppendDescriptors(c.Request.Context(), c.Param("id"), req.FaceDescriptors)
	if err != nil {
		if errors.Is(err, roster.ErrStudentNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "student not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	h.pipeline.InvalidateIndex()
	c.Status(http.StatusNoContent)
}

type enrollPhotoRequest struct {
	ImageURL string `json:"imageUrl"`
}

// EnrollPhoto enrolls a reference descriptor from a photo instead of a
// browser-extracted embedding: the image must contain exactly one face.
// Accepts either a multipart "file" (uploaded to Cloudinary first, so the
// extraction service can fetch it) or a JSON body with an already hosted
// imageUrl.
func (h *Handler) EnrollPhoto(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")

	if _, err := h.students.Get(ctx, id); err != nil {
		if errors.Is(err, roster.ErrStudentNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "student not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	imageURL, ok := h.photoURL(c)
	if !ok {
		return
	}

	if err := h.face.Init(ctx); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "face extraction not ready"})
		return
	}
	face, err := h.face.DetectSingle(ctx, imageURL)
	if err != nil {
		switch {
		case errors.Is(err, faceclient.ErrNoFaceDetected):
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "no face detected in photo"})
		case errors.Is(err, faceclient.ErrMultipleFacesDetected):
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "photo must contain exactly one face"})
		default:
			c.JSON(http.StatusBadGateway, gin.H{"error": "face extraction failed"})
		}
		return
	}

	if err := h.students.AppendDescriptors(ctx, id, []model.Descriptor{face.Embedding}); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	h.pipeline.InvalidateIndex()
	c.JSON(http.StatusCreated, gin.H{"imageUrl": imageURL})
}

// photoURL resolves the enrollment image: a multipart file is pushed to
// Cloudinary, a JSON imageUrl is used as-is. Writes the error response and
// returns ok=false when neither is usable.
func (h *Handler) photoURL(c *gin.Context) (string, bool) {
	if file, header, err := c.Request.FormFile("file"); err == nil {
		defer file.Close()
		if h.cloud == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "image storage not configured"})
			return "", false
		}
		data, err := io.ReadAll(file)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "read file failed"})
			return "", false
		}
		result, err := h.cloud.UploadBytes(data, header.Filename)
		if err != nil {
			h.log.Warn().Err(err).Msg("photo upload failed")
			c.JSON(http.StatusBadGateway, gin.H{"error": "image upload failed"})
			return "", false
		}
		return result.SecureURL, true
	}

	var req enrollPhotoRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.ImageURL == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "provide a file upload or imageUrl"})
		return "", false
	}
	return req.ImageURL, true
}

// DeleteStudent removes the student and all of their attendance records.
func (h *Handler) DeleteStudent(c *gin.Context) {
	err := h.tracker.DeleteStudent(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, roster.ErrStudentNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "student not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	h.pipeline.InvalidateIndex()
	c.Status(http.StatusNoContent)
}

// ---------- Attendance ----------

func (h *Handler) ListAttendance(c *gin.Context) {
	ctx := c.Request.Context()
	var (
		records []model.AttendanceRecord
		err     error
	)
	switch {
	case c.Query("date") != "":
		records, err = h.tracker.ListByDate(ctx, c.Query("date"))
	case c.Query("studentId") != "":
		records, err = h.tracker.ListByStudent(ctx, c.Query("studentId"))
	default:
		records, err = h.tracker.List(ctx)
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if records == nil {
		records = []model.AttendanceRecord{}
	}
	c.JSON(http.StatusOK, records)
}

// ExportAttendance streams the selected day's records as CSV.
func (h *Handler) ExportAttendance(c *gin.Context) {
	ctx := c.Request.Context()
	date := c.Query("date")

	var (
		records []model.AttendanceRecord
		err     error
	)
	if date != "" {
		records, err = h.tracker.ListByDate(ctx, date)
	} else {
		records, err = h.tracker.List(ctx)
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	students, err := h.students.List(ctx)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.Header("Content-Type", "text/csv; charset=utf-8")
	c.Header("Content-Disposition", `attachment; filename="`+export.Filename(date)+`"`)
	if err := export.WriteCSV(c.Writer, records, students); err != nil {
		h.log.Error().Err(err).Msg("csv export failed")
	}
}

type markRequest struct {
	StudentID string `json:"studentId" binding:"required"`
}

// MarkAttendance marks a student present manually, without recognition.
func (h *Handler) MarkAttendance(c *gin.Context) {
	var req markRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()
	if _, err := h.students.Get(ctx, req.StudentID); err != nil {
		if errors.Is(err, roster.ErrStudentNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "student not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	rec, created, err := h.tracker.Mark(ctx, req.StudentID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	c.JSON(status, gin.H{"created": created, "record": rec})
}

type recognizeRequest struct {
	Embedding model.Descriptor `json:"embedding"`
	ImageURL  string           `json:"imageUrl"`
}

// Recognize accepts either a browser-extracted embedding (matched and
// marked synchronously) or an image URL (queued for the worker).
func (h *Handler) Recognize(c *gin.Context) {
	var req recognizeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	switch {
	case len(req.Embedding) > 0:
		out, err := h.pipeline.Observe(c.Request.Context(), req.Embedding)
		if err != nil {
			if errors.Is(err, matcher.ErrEmptyRoster) {
				c.JSON(http.StatusOK, gin.H{"matched": false, "reason": "no students enrolled"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, out)

	case req.ImageURL != "":
		if err := h.queue.Publish(c.Request.Context(), queue.RecognizeMessage(req.ImageURL)); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "queue publish failed"})
			return
		}
		c.JSON(http.StatusAccepted, gin.H{"queued": true})

	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "provide embedding or imageUrl"})
	}
}

// DeleteRecord removes one attendance record.
func (h *Handler) DeleteRecord(c *gin.Context) {
	if err := h.tracker.DeleteRecord(c.Request.Context(), c.Param("id")); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

// ClearAttendance removes every attendance record.
func (h *Handler) ClearAttendance(c *gin.Context) {
	if err := h.tracker.Clear(c.Request.Context()); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

// ResetSession clears the notification suppression state when the
// attendance view closes or reopens.
func (h *Handler) ResetSession(c *gin.Context) {
	h.pipeline.ResetSession()
	c.Status(http.StatusNoContent)
}
