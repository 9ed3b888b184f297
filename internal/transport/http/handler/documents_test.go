package handler

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"bizadmin-backend/internal/app"
	"bizadmin-backend/internal/model"
	"bizadmin-backend/internal/pkg/jwtutil"
	"bizadmin-backend/internal/repository"
	"bizadmin-backend/internal/storage"
	"bizadmin-backend/internal/transport/http/middleware"
	"bizadmin-backend/internal/transport/http/response"
)

const testSecret = "handler-test-secret"

type documentsFixture struct {
	db     *gorm.DB
	router *gin.Engine
	ledger *app.LedgerService
	firm   *model.Firm
	user   *model.User
	token  string
}

func newDocumentsFixture(t *testing.T) *documentsFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := "file:" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(model.AllModels()...))

	blobs, err := storage.NewLocal(t.TempDir(), "/media/")
	require.NoError(t, err)

	f := &documentsFixture{
		db:   db,
		firm: &model.Firm{FirmName: "Acme Infra"},
		user: &model.User{Username: "owner", Email: "owner@example.com", PasswordHash: "x", IsSuperuser: true},
	}
	require.NoError(t, db.Create(f.firm).Error)
	require.NoError(t, db.Create(f.user).Error)

	store := repository.NewStore(db)
	f.ledger = app.NewLedgerService(store, blobs, app.LedgerOptions{})
	query := app.NewTemplateQueryService(store.Templates(), blobs, nil, nil)
	archive := app.NewArchiveService(f.ledger, blobs, 2, nil, nil)
	h := NewDocumentHandler(f.ledger, query, archive, 1<<20, nil)

	f.router = gin.New()
	templates := f.router.Group("/api/v1/documents/templates", middleware.AuthJWT(testSecret))
	templates.GET("", h.List)
	templates.POST("/upload-template", h.Upload)
	templates.GET("/download-version", h.DownloadVersionDirect)
	templates.POST("/bulk-download", h.BulkDownload)
	templates.GET("/:id", h.Get)
	templates.GET("/:id/download-version/:version_id", h.DownloadVersion)
	templates.GET("/:id/download-published", h.DownloadPublished)

	f.token, err = jwtutil.GenerateToken(testSecret, time.Hour, f.user.ID, f.user.Username)
	require.NoError(t, err)
	return f
}

func (f *documentsFixture) do(t *testing.T, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	req.Header.Set("Authorization", "Bearer "+f.token)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func (f *documentsFixture) uploadRequest(t *testing.T, fields map[string]string, fileName, body string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	if fileName != "" {
		part, err := w.CreateFormFile("upload_file", fileName)
		require.NoError(t, err)
		_, err = part.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/documents/templates/upload-template", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func (f *documentsFixture) seed(t *testing.T, title, fileName, body string) *app.UploadResult {
	t.Helper()
	res, err := f.ledger.Upload(context.Background(), app.UploadInput{
		Title:    title,
		Category: "Contracts",
		FirmID:   f.firm.ID,
		FileName: fileName,
		File:     strings.NewReader(body),
		ActorID:  f.user.ID,
	})
	require.NoError(t, err)
	return res
}

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return env
}

func TestUploadCreatesThenVersions(t *testing.T) {
	f := newDocumentsFixture(t)
	fields := map[string]string{
		"title":    "Service Agreement",
		"category": "Contracts",
		"firm":     strconv.Itoa(int(f.firm.ID)),
		"notes":    "initial draft",
	}

	rec := f.do(t, f.uploadRequest(t, fields, "agreement.pdf", "%PDF-1.4 v1"))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	env := decodeEnvelope(t, rec)
	assert.Equal(t, "Template created successfully with version 1.", env.Message)

	var payload struct {
		Template app.TemplateView `json:"template"`
		Version  app.VersionView  `json:"version"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &payload))
	assert.Equal(t, "Service Agreement", payload.Template.Title)
	assert.Equal(t, "Acme Infra", payload.Template.FirmName)
	assert.EqualValues(t, 1, payload.Version.VersionNumber)
	assert.True(t, payload.Version.IsPublished)
	require.NotNil(t, payload.Version.CreatedByUsername)
	assert.Equal(t, "owner", *payload.Version.CreatedByUsername)

	rec = f.do(t, f.uploadRequest(t, fields, "agreement-v2.docx", "PK docx"))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	env = decodeEnvelope(t, rec)
	assert.Equal(t, "Template versioned successfully. New version 2 created and published.", env.Message)
}

func TestUploadRejectsBadRequests(t *testing.T) {
	f := newDocumentsFixture(t)
	firm := strconv.Itoa(int(f.firm.ID))

	cases := []struct {
		name     string
		fields   map[string]string
		fileName string
		status   int
		code     int
	}{
		{"unsupported type", map[string]string{"title": "Plan", "firm": firm}, "plan.txt", http.StatusBadRequest, response.CodeUnsupportedFileType},
		{"missing file", map[string]string{"title": "Plan", "firm": firm}, "", http.StatusBadRequest, response.CodeBadRequest},
		{"missing title", map[string]string{"firm": firm}, "plan.pdf", http.StatusBadRequest, response.CodeBadRequest},
		{"bad firm", map[string]string{"title": "Plan", "firm": "abc"}, "plan.pdf", http.StatusBadRequest, response.CodeBadRequest},
		{"unknown firm", map[string]string{"title": "Plan", "firm": "999"}, "plan.pdf", http.StatusBadRequest, response.CodeBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := f.do(t, f.uploadRequest(t, tc.fields, tc.fileName, "%PDF"))
			assert.Equal(t, tc.status, rec.Code, rec.Body.String())
			assert.Equal(t, tc.code, decodeEnvelope(t, rec).Code)
		})
	}

	var count int64
	require.NoError(t, f.db.Model(&model.DocumentTemplate{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestUploadTooLarge(t *testing.T) {
	f := newDocumentsFixture(t)
	fields := map[string]string{"title": "Huge", "firm": strconv.Itoa(int(f.firm.ID))}
	rec := f.do(t, f.uploadRequest(t, fields, "huge.pdf", strings.Repeat("x", 3<<20)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRoutesRequireToken(t *testing.T) {
	f := newDocumentsFixture(t)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/documents/templates", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestListAndGet(t *testing.T) {
	f := newDocumentsFixture(t)
	res := f.seed(t, "Service Agreement", "agreement.pdf", "%PDF-1.4")
	f.seed(t, "NDA", "nda.docx", "PK")

	rec := f.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/documents/templates?search=agree", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var list []app.TemplateView
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, rec).Data, &list))
	require.Len(t, list, 1)
	assert.Equal(t, "Service Agreement", list[0].Title)

	rec = f.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/documents/templates?firm=x", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/documents/templates/"+strconv.Itoa(int(res.Template.ID)), nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var view app.TemplateView
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, rec).Data, &view))
	require.NotNil(t, view.PublishedVersion)
	assert.Equal(t, res.Version.ID, view.PublishedVersion.ID)

	rec = f.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/documents/templates/9999", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Template not found", decodeEnvelope(t, rec).Message)
}

func TestDownloadEndpoints(t *testing.T) {
	f := newDocumentsFixture(t)
	first := f.seed(t, "Service Agreement", "agreement.pdf", "%PDF-1.4 v1")
	second := f.seed(t, "Service Agreement", "agreement.pdf", "%PDF-1.4 v2")
	templateID := strconv.Itoa(int(first.Template.ID))

	rec := f.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/documents/templates/"+templateID+"/download-published", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "%PDF-1.4 v2", rec.Body.String())
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="Service%20Agreement_v2.pdf"`, rec.Header().Get("Content-Disposition"))

	path := "/api/v1/documents/templates/" + templateID + "/download-version/" + strconv.Itoa(int(first.Version.ID))
	rec = f.do(t, httptest.NewRequest(http.MethodGet, path, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "%PDF-1.4 v1", rec.Body.String())

	rec = f.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/documents/templates/download-version?version_id="+strconv.Itoa(int(second.Version.ID)), nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "%PDF-1.4 v2", rec.Body.String())
}

func TestDownloadErrors(t *testing.T) {
	f := newDocumentsFixture(t)
	res := f.seed(t, "Service Agreement", "agreement.pdf", "%PDF-1.4")
	other := f.seed(t, "NDA", "nda.pdf", "%PDF-1.4")
	templateID := strconv.Itoa(int(res.Template.ID))

	cases := []struct {
		name    string
		path    string
		status  int
		message string
	}{
		{"missing version id", "/api/v1/documents/templates/download-version", http.StatusBadRequest, "version_id is required"},
		{"non integer version id", "/api/v1/documents/templates/download-version?version_id=abc", http.StatusBadRequest, "version_id must be an integer"},
		{"unknown version", "/api/v1/documents/templates/download-version?version_id=9999", http.StatusNotFound, "Version not found"},
		{"version of another template", "/api/v1/documents/templates/" + templateID + "/download-version/" + strconv.Itoa(int(other.Version.ID)), http.StatusNotFound, "Version not found"},
		{"unknown template", "/api/v1/documents/templates/9999/download-published", http.StatusNotFound, "Template not found"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := f.do(t, httptest.NewRequest(http.MethodGet, tc.path, nil))
			assert.Equal(t, tc.status, rec.Code)
			assert.Equal(t, tc.message, decodeEnvelope(t, rec).Message)
		})
	}

	require.NoError(t, f.db.Model(&model.DocumentVersion{}).
		Where("template_id = ?", res.Template.ID).
		Update("is_published", false).Error)
	rec := f.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/documents/templates/"+templateID+"/download-published", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "No published version found for this template", decodeEnvelope(t, rec).Message)
}

func TestBulkDownload(t *testing.T) {
	f := newDocumentsFixture(t)
	a := f.seed(t, "Service Agreement", "agreement.pdf", "%PDF-1.4 a")
	b := f.seed(t, "NDA", "nda.docx", "PK b")

	body := `{"version_ids":[` + strconv.Itoa(int(a.Version.ID)) + `],"template_ids":[` + strconv.Itoa(int(b.Template.ID)) + `,9999]}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/documents/templates/bulk-download", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := f.do(t, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "application/zip", rec.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="documents.zip"`, rec.Header().Get("Content-Disposition"))
	assert.Equal(t, strconv.Itoa(rec.Body.Len()), rec.Header().Get("Content-Length"))

	zr, err := zip.NewReader(bytes.NewReader(rec.Body.Bytes()), int64(rec.Body.Len()))
	require.NoError(t, err)
	var names []string
	for _, file := range zr.File {
		names = append(names, file.Name)
	}
	assert.Equal(t, []string{"Service Agreement_v1.pdf", "NDA_v1.docx"}, names)
}

func TestBulkDownloadErrors(t *testing.T) {
	f := newDocumentsFixture(t)

	cases := []struct {
		name    string
		body    string
		code    int
		message string
	}{
		{"empty body", "", response.CodeNoSelection, "Please provide either version_ids or template_ids"},
		{"empty lists", `{"version_ids":[],"template_ids":[]}`, response.CodeNoSelection, "Please provide either version_ids or template_ids"},
		{"nothing resolvable", `{"version_ids":[41,42]}`, response.CodeEmptyArchive, "No files found to download"},
		{"malformed", `{"version_ids":"x"}`, response.CodeBadRequest, "invalid request payload"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/v1/documents/templates/bulk-download", strings.NewReader(tc.body))
			req.Header.Set("Content-Type", "application/json")
			rec := f.do(t, req)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			env := decodeEnvelope(t, rec)
			assert.Equal(t, tc.code, env.Code)
			assert.Equal(t, tc.message, env.Message)
		})
	}
}
