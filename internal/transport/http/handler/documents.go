package handler

import (
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"bizadmin-backend/internal/app"
	"bizadmin-backend/internal/logging"
	"bizadmin-backend/internal/model"
	"bizadmin-backend/internal/repository"
	"bizadmin-backend/internal/storage"
	"bizadmin-backend/internal/transport/http/middleware"
	"bizadmin-backend/internal/transport/http/response"
)

// multipart fields besides the file
const formOverheadBytes = 1 << 20

type DocumentHandler struct {
	ledger         *app.LedgerService
	query          *app.TemplateQueryService
	archive        *app.ArchiveService
	maxUploadBytes int64
	logger         logrus.FieldLogger
}

type BulkDownloadRequest struct {
	VersionIDs  []uint `json:"version_ids"`
	TemplateIDs []uint `json:"template_ids"`
}

func NewDocumentHandler(ledger *app.LedgerService, query *app.TemplateQueryService, archive *app.ArchiveService, maxUploadBytes int64, logger logrus.FieldLogger) *DocumentHandler {
	if logger == nil {
		logger = logging.Discard()
	}
	return &DocumentHandler{
		ledger:         ledger,
		query:          query,
		archive:        archive,
		maxUploadBytes: maxUploadBytes,
		logger:         logger,
	}
}

func (h *DocumentHandler) Upload(c *gin.Context) {
	userID, _ := middleware.UserID(c)
	if h.maxUploadBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadBytes+formOverheadBytes)
	}

	fileHeader, err := c.FormFile("upload_file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "upload_file is too large")
			return
		}
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "upload_file is required")
		return
	}
	if h.maxUploadBytes > 0 && fileHeader.Size > h.maxUploadBytes {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "upload_file is too large")
		return
	}

	firmID, err := strconv.ParseUint(strings.TrimSpace(c.PostForm("firm")), 10, 64)
	if err != nil || firmID == 0 {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "firm must be a positive integer")
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "read upload_file failed")
		return
	}
	defer file.Close()

	result, err := h.ledger.Upload(c.Request.Context(), app.UploadInput{
		Title:    c.PostForm("title"),
		Category: c.PostForm("category"),
		FirmID:   uint(firmID),
		FileName: fileHeader.Filename,
		File:     file,
		Notes:    c.PostForm("notes"),
		ActorID:  userID,
	})
	if err != nil {
		h.writeError(c, err, "upload template failed")
		return
	}

	ctx := c.Request.Context()
	response.Created(c, result.Message(), gin.H{
		"template": h.query.Project(ctx, result.Template),
		"version":  h.query.ProjectVersion(ctx, result.Version),
	})
}

func (h *DocumentHandler) List(c *gin.Context) {
	filter := repository.TemplateFilter{
		Category: strings.TrimSpace(c.Query("category")),
		Search:   c.Query("search"),
	}
	if raw := strings.TrimSpace(c.Query("firm")); raw != "" {
		firmID, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "firm must be an integer")
			return
		}
		filter.FirmID = uint(firmID)
	}

	templates, err := h.query.List(c.Request.Context(), filter)
	if err != nil {
		h.writeError(c, err, "list templates failed")
		return
	}
	response.OK(c, templates)
}

func (h *DocumentHandler) Get(c *gin.Context) {
	templateID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	template, err := h.query.Get(c.Request.Context(), templateID)
	if err != nil {
		h.writeError(c, err, "get template failed")
		return
	}
	response.OK(c, template)
}

func (h *DocumentHandler) DownloadVersion(c *gin.Context) {
	templateID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	versionID, ok := parseIDParam(c, "version_id")
	if !ok {
		return
	}
	version, err := h.ledger.ResolveVersion(c.Request.Context(), versionID, templateID)
	if err != nil {
		h.writeError(c, err, "download version failed")
		return
	}
	h.serve(c, version)
}

func (h *DocumentHandler) DownloadPublished(c *gin.Context) {
	templateID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	version, err := h.ledger.ResolvePublished(c.Request.Context(), templateID)
	if err != nil {
		h.writeError(c, err, "download published version failed")
		return
	}
	h.serve(c, version)
}

func (h *DocumentHandler) DownloadVersionDirect(c *gin.Context) {
	raw := strings.TrimSpace(c.Query("version_id"))
	if raw == "" {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "version_id is required")
		return
	}
	versionID, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "version_id must be an integer")
		return
	}
	version, err := h.ledger.ResolveVersion(c.Request.Context(), uint(versionID), 0)
	if err != nil {
		h.writeError(c, err, "download version failed")
		return
	}
	h.serve(c, version)
}

func (h *DocumentHandler) BulkDownload(c *gin.Context) {
	var req BulkDownloadRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}

	archive, err := h.archive.Build(c.Request.Context(), app.ArchiveRequest{
		VersionIDs:  req.VersionIDs,
		TemplateIDs: req.TemplateIDs,
	})
	if err != nil {
		h.writeError(c, err, "build archive failed")
		return
	}

	c.Header("Content-Disposition", `attachment; filename="`+archive.Name+`"`)
	c.Header("Content-Length", strconv.Itoa(len(archive.Data)))
	c.Data(http.StatusOK, "application/zip", archive.Data)
}

func (h *DocumentHandler) serve(c *gin.Context, version *model.DocumentVersion) {
	download, err := h.ledger.Download(c.Request.Context(), version)
	if err != nil {
		h.writeError(c, err, "download failed")
		return
	}
	body, err := download.Blob.Open()
	if err != nil {
		logging.LogError(h.logger, "handler", "DocumentHandler.serve", "open blob", download.Blob.Key(), err)
		response.Error(c, http.StatusInternalServerError, response.CodeStorageUnavailable, "file is unavailable")
		return
	}
	defer body.Close()

	c.DataFromReader(http.StatusOK, download.Blob.Size(), download.ContentType, body, map[string]string{
		"Content-Disposition": `attachment; filename="` + url.PathEscape(download.FileName) + `"`,
	})
}

func (h *DocumentHandler) writeError(c *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, app.ErrUnsupportedFileType):
		response.Error(c, http.StatusBadRequest, response.CodeUnsupportedFileType, "Invalid file type. Only PDF and DOCX are allowed.")
	case errors.Is(err, app.ErrInvalidInput):
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, err.Error())
	case errors.Is(err, app.ErrNoSelection):
		response.Error(c, http.StatusBadRequest, response.CodeNoSelection, "Please provide either version_ids or template_ids")
	case errors.Is(err, app.ErrEmptyArchive):
		response.Error(c, http.StatusBadRequest, response.CodeEmptyArchive, "No files found to download")
	case errors.Is(err, app.ErrTemplateNotFound):
		response.Error(c, http.StatusNotFound, response.CodeNotFound, "Template not found")
	case errors.Is(err, app.ErrNoPublishedVersion):
		response.Error(c, http.StatusNotFound, response.CodeNotFound, "No published version found for this template")
	case errors.Is(err, app.ErrVersionNotFound):
		response.Error(c, http.StatusNotFound, response.CodeNotFound, "Version not found")
	case errors.Is(err, app.ErrTransactionConflict):
		response.Error(c, http.StatusConflict, response.CodeConflict, "the template was changed concurrently, please retry")
	case errors.Is(err, app.ErrStorageFailure):
		logging.LogError(h.logger, "handler", "DocumentHandler", fallback, c.Request.URL.Path, err)
		status := http.StatusInternalServerError
		if storage.IsCircuitOpen(err) {
			status = http.StatusServiceUnavailable
		}
		response.Error(c, status, response.CodeStorageUnavailable, "document storage is unavailable")
	default:
		logging.LogError(h.logger, "handler", "DocumentHandler", fallback, c.Request.URL.Path, err)
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, fallback)
	}
	_ = c.Error(err)
}

func parseIDParam(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, name+" must be a positive integer")
		return 0, false
	}
	return uint(id), true
}
