package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bizadmin-backend/internal/storage"
)

func TestStorageOutcomeLabels(t *testing.T) {
	m := New()
	m.ObserveStorage(storage.KindLocal, "open", nil)
	m.ObserveStorage(storage.KindLocal, "open", storage.ErrObjectNotFound)
	m.ObserveStorage(storage.KindLocal, "open", errors.New("disk"))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.storageOpsTotal.WithLabelValues("local", "open", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.storageOpsTotal.WithLabelValues("local", "open", "not_found")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.storageOpsTotal.WithLabelValues("local", "open", "error")))
}

func TestHandlerExposesRegistry(t *testing.T) {
	m := New()
	m.ObserveArchiveEntry("added")
	m.ObserveJob("generate-amc-billing", "success", time.Second)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "bizadmin_documents_archive_entries_total")
	assert.Contains(t, string(body), "bizadmin_jobs_runs_total")
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveUpload("created")
	m.ObserveHTTP("GET", "/x", 200, time.Millisecond)
	m.ObserveStorage(storage.KindS3, "write", nil)
}
