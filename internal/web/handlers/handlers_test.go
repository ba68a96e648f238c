package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/kozaktomas/facegate/internal/backend"
	"github.com/kozaktomas/facegate/internal/engine"
	"github.com/kozaktomas/facegate/internal/store"
	"github.com/kozaktomas/facegate/internal/vote"
)

// fakeEngine answers with canned results and records the calls.
type fakeEngine struct {
	enrollRes   engine.EnrollResult
	enrollErr   error
	identifyRes engine.IdentifyResult
	identifyErr error
	deleteRes   engine.DeleteStats
	deleteErr   error
	rekeyRes    engine.DeleteStats
	rekeyErr    error
	statusRes   engine.Status

	gotIdentity int64
	gotNewKey   int64
	gotFrames   int
}

func (f *fakeEngine) Enroll(_ context.Context, identity int64, frames [][]byte) (engine.EnrollResult, error) {
	f.gotIdentity = identity
	f.gotFrames = len(frames)
	return f.enrollRes, f.enrollErr
}

func (f *fakeEngine) Identify(_ context.Context, frames [][]byte) (engine.IdentifyResult, error) {
	f.gotFrames = len(frames)
	return f.identifyRes, f.identifyErr
}

func (f *fakeEngine) Delete(_ context.Context, identity int64) (engine.DeleteStats, error) {
	f.gotIdentity = identity
	return f.deleteRes, f.deleteErr
}

func (f *fakeEngine) Rekey(_ context.Context, oldKey, newKey int64) (engine.DeleteStats, error) {
	f.gotIdentity = oldKey
	f.gotNewKey = newKey
	return f.rekeyRes, f.rekeyErr
}

func (f *fakeEngine) Status(context.Context) (engine.Status, error) {
	return f.statusRes, nil
}

func testRouter(eng DecisionEngine) *chi.Mux {
	r := chi.NewRouter()
	r.Post("/enroll", NewEnrollHandler(eng).Enroll)
	r.Post("/identify", NewIdentifyHandler(eng).Identify)
	r.Delete("/identities/{id}", NewIdentitiesHandler(eng).Delete)
	r.Put("/identities/{id}/key", NewIdentitiesHandler(eng).Rekey)
	r.Get("/status", NewStatusHandler(eng).Status)
	r.Get("/health", HealthCheck)
	return r
}

// multipartBody builds a multipart request body with frame files and
// optional form fields.
func multipartBody(t *testing.T, fields map[string]string, frameCount int) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			t.Fatal(err)
		}
	}
	for i := 0; i < frameCount; i++ {
		fw, err := w.CreateFormFile("frames", "frame.jpg")
		if err != nil {
			t.Fatal(err)
		}
		fw.Write([]byte{0xFF, 0xD8, 0xFF, 0xE0})
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	return &buf, w.FormDataContentType()
}

func TestEnroll(t *testing.T) {
	eng := &fakeEngine{
		enrollRes: engine.EnrollResult{Identity: 42, Accepted: 6, Synthesized: 14, Total: 20, Embeddings: 20},
	}
	router := testRouter(eng)

	body, ctype := multipartBody(t, map[string]string{"identity": "42"}, 6)
	req := httptest.NewRequest(http.MethodPost, "/enroll", body)
	req.Header.Set("Content-Type", ctype)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if eng.gotIdentity != 42 || eng.gotFrames != 6 {
		t.Errorf("engine called with identity=%d frames=%d", eng.gotIdentity, eng.gotFrames)
	}

	var resp enrollResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if !resp.Enrolled || resp.Total != 20 {
		t.Errorf("unexpected response %+v", resp)
	}
}

func TestEnrollQualityRollback(t *testing.T) {
	eng := &fakeEngine{enrollErr: engine.ErrInsufficientQuality}
	router := testRouter(eng)

	body, ctype := multipartBody(t, map[string]string{"identity": "9"}, 3)
	req := httptest.NewRequest(http.MethodPost, "/enroll", body)
	req.Header.Set("Content-Type", ctype)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"enrolled":false`) {
		t.Errorf("response must signal rollback: %s", rec.Body.String())
	}
}

func TestEnrollEmbeddingYieldRollback(t *testing.T) {
	eng := &fakeEngine{enrollErr: backend.ErrInsufficientEmbeddings}
	router := testRouter(eng)

	body, ctype := multipartBody(t, map[string]string{"identity": "9"}, 6)
	req := httptest.NewRequest(http.MethodPost, "/enroll", body)
	req.Header.Set("Content-Type", ctype)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"enrolled":false`) {
		t.Errorf("response must signal rollback: %s", rec.Body.String())
	}
}

func TestEnrollValidation(t *testing.T) {
	router := testRouter(&fakeEngine{})

	// Missing identity field.
	body, ctype := multipartBody(t, nil, 2)
	req := httptest.NewRequest(http.MethodPost, "/enroll", body)
	req.Header.Set("Content-Type", ctype)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for missing identity, got %d", rec.Code)
	}

	// No frames.
	body, ctype = multipartBody(t, map[string]string{"identity": "1"}, 0)
	req = httptest.NewRequest(http.MethodPost, "/enroll", body)
	req.Header.Set("Content-Type", ctype)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for empty batch, got %d", rec.Code)
	}
}

func TestIdentifyFound(t *testing.T) {
	eng := &fakeEngine{
		identifyRes: engine.IdentifyResult{
			AttemptID: "a-1",
			Backend:   "embedding",
			Name:      "Jan Novak",
			Decision: vote.Decision{
				Found: true, Identity: 42, Confidence: 87,
				Processed: 4, Votes: 4, Share: 1.0,
			},
		},
	}
	router := testRouter(eng)

	body, ctype := multipartBody(t, nil, 5)
	req := httptest.NewRequest(http.MethodPost, "/identify", body)
	req.Header.Set("Content-Type", ctype)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp identifyResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if !resp.Found || resp.Identity != 42 || resp.Confidence != 87 {
		t.Errorf("unexpected response %+v", resp)
	}
	if resp.Backend != "embedding" || resp.Name != "Jan Novak" {
		t.Errorf("unexpected response %+v", resp)
	}
}

func TestIdentifyModelUnavailable(t *testing.T) {
	eng := &fakeEngine{identifyErr: engine.ErrModelUnavailable}
	router := testRouter(eng)

	body, ctype := multipartBody(t, nil, 2)
	req := httptest.NewRequest(http.MethodPost, "/identify", body)
	req.Header.Set("Content-Type", ctype)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}

func TestDeleteIdentity(t *testing.T) {
	eng := &fakeEngine{deleteRes: engine.DeleteStats{Samples: 20, Embeddings: 20}}
	router := testRouter(eng)

	req := httptest.NewRequest(http.MethodDelete, "/identities/42", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if eng.gotIdentity != 42 {
		t.Errorf("engine called with identity %d", eng.gotIdentity)
	}
}

func TestDeleteIdentityInvalidID(t *testing.T) {
	router := testRouter(&fakeEngine{})

	req := httptest.NewRequest(http.MethodDelete, "/identities/zero", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestRekey(t *testing.T) {
	eng := &fakeEngine{rekeyRes: engine.DeleteStats{Samples: 20}}
	router := testRouter(eng)

	req := httptest.NewRequest(http.MethodPut, "/identities/42/key",
		strings.NewReader(`{"new_key": 99}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if eng.gotIdentity != 42 || eng.gotNewKey != 99 {
		t.Errorf("engine called with old=%d new=%d", eng.gotIdentity, eng.gotNewKey)
	}
}

func TestRekeyConflict(t *testing.T) {
	eng := &fakeEngine{rekeyErr: store.ErrRekeyConflict}
	router := testRouter(eng)

	req := httptest.NewRequest(http.MethodPut, "/identities/42/key",
		strings.NewReader(`{"new_key": 99}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestRekeySameKeyRejected(t *testing.T) {
	router := testRouter(&fakeEngine{})

	req := httptest.NewRequest(http.MethodPut, "/identities/42/key",
		strings.NewReader(`{"new_key": 42}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestStatus(t *testing.T) {
	eng := &fakeEngine{statusRes: engine.Status{
		State: "trained", Identities: 3, Samples: 60, ActiveBackend: "embedding",
	}}
	router := testRouter(eng)

	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var st engine.Status
	if err := json.Unmarshal(rec.Body.Bytes(), &st); err != nil {
		t.Fatal(err)
	}
	if st.State != "trained" || st.Identities != 3 {
		t.Errorf("unexpected status %+v", st)
	}
}

func TestHealthCheck(t *testing.T) {
	router := testRouter(&fakeEngine{})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "ok") {
		t.Errorf("unexpected body %s", rec.Body.String())
	}
}
