package handlers

import (
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"alerts-service/apperrors"
	"alerts-service/models"
	"alerts-service/proofs"
	"alerts-service/proofstore"
	"alerts-service/service"

	"github.com/gin-gonic/gin"
)

// rawUpload pairs an accepted multipart file with its declared MIME type.
type rawUpload struct {
	header   *multipart.FileHeader
	mimeType string
}

// acceptUpload is the strict acceptance filter: exact MIME allow-list and
// the per-file size cap. It runs before any file reaches the processor.
func (h *Handlers) acceptUpload(header *multipart.FileHeader) (rawUpload, error) {
	mimeType := header.Header.Get("Content-Type")
	if !proofstore.Accepted(mimeType) {
		return rawUpload{}, &apperrors.UnsupportedMediaError{MimeType: mimeType}
	}
	if header.Size > h.cfg.MaxUploadBytes {
		return rawUpload{}, apperrors.Validation("file %s exceeds the %d MB limit",
			header.Filename, h.cfg.MaxUploadBytes/(1024*1024))
	}
	return rawUpload{header: header, mimeType: mimeType}, nil
}

func readUploads(uploads []rawUpload) ([]proofs.RawFile, error) {
	files := make([]proofs.RawFile, 0, len(uploads))
	for _, upload := range uploads {
		f, err := upload.header.Open()
		if err != nil {
			return nil, fmt.Errorf("failed to open upload %s: %w", upload.header.Filename, err)
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to read upload %s: %w", upload.header.Filename, err)
		}
		files = append(files, proofs.RawFile{
			OriginalName: upload.header.Filename,
			MimeType:     upload.mimeType,
			Data:         data,
		})
	}
	return files, nil
}

// parseMultipartAlert extracts alert fields and attached files from a
// multipart creation request.
func (h *Handlers) parseMultipartAlert(c *gin.Context) (*models.CreateAlertRequest, []rawUpload, error) {
	form, err := c.MultipartForm()
	if err != nil {
		return nil, nil, apperrors.Validation("invalid multipart form")
	}

	req := &models.CreateAlertRequest{
		ServiceID:   c.PostForm("serviceId"),
		Category:    c.PostForm("category"),
		Title:       c.PostForm("title"),
		Description: c.PostForm("description"),
		Priority:    c.PostForm("priority"),
		Address:     c.PostForm("address"),
	}
	if anon := c.PostForm("isAnonymous"); anon != "" {
		req.IsAnonymous = anon
	}
	coords, err := service.ParseCoordinatesField(c.PostForm("coordinates"))
	if err != nil {
		return nil, nil, err
	}
	req.Coordinates = coords

	headers := form.File["files"]
	if len(headers) > h.cfg.MaxUploadFiles {
		return nil, nil, apperrors.Validation("too many files: limit is %d", h.cfg.MaxUploadFiles)
	}
	uploads := make([]rawUpload, 0, len(headers))
	for _, header := range headers {
		upload, err := h.acceptUpload(header)
		if err != nil {
			return nil, nil, err
		}
		uploads = append(uploads, upload)
	}
	return req, uploads, nil
}

// UploadProof handles POST /api/v3/alerts/upload: one file in, one processed
// proof record out.
func (h *Handlers) UploadProof(c *gin.Context) {
	header, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "file is required"})
		return
	}
	upload, err := h.acceptUpload(header)
	if err != nil {
		respondError(c, err)
		return
	}
	files, err := readUploads([]rawUpload{upload})
	if err != nil {
		respondError(c, err)
		return
	}
	processed, err := h.svc.ProcessUploads(c.Request.Context(), files)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "file processed",
		"data":    processed[0],
	})
}

// UploadProofs handles POST /api/v3/alerts/uploads: up to MaxUploadFiles
// files, processed in submission order.
func (h *Handlers) UploadProofs(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "invalid multipart form"})
		return
	}
	headers := form.File["files"]
	if len(headers) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "files are required"})
		return
	}
	if len(headers) > h.cfg.MaxUploadFiles {
		c.JSON(http.StatusBadRequest, gin.H{"success": false,
			"message": fmt.Sprintf("too many files: limit is %d", h.cfg.MaxUploadFiles)})
		return
	}

	uploads := make([]rawUpload, 0, len(headers))
	for _, header := range headers {
		upload, err := h.acceptUpload(header)
		if err != nil {
			respondError(c, err)
			return
		}
		uploads = append(uploads, upload)
	}
	files, err := readUploads(uploads)
	if err != nil {
		respondError(c, err)
		return
	}
	processed, err := h.svc.ProcessUploads(c.Request.Context(), files)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "files processed",
		"data":    processed,
	})
}

// DeleteUpload handles DELETE /api/v3/alerts/upload.
func (h *Handlers) DeleteUpload(c *gin.Context) {
	var req models.DeleteUploadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "invalid json body"})
		return
	}
	deleted, err := h.svc.DeleteUpload(req.URL)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": gin.H{"deleted": deleted}})
}
