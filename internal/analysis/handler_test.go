package analysis

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"research-backend/internal/documents"
)

func setupAnalysisRouter(t *testing.T) (*gin.Engine, *fixture) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	f := newFixture(t, newStubReasoner())
	r := gin.New()
	NewHandler(f.svc, f.sessions).RegisterRoutes(r.Group("/api/v1"))
	return r, f
}

func doRequest(r *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	return resp
}

func TestAnalyzeSync(t *testing.T) {
	router, f := setupAnalysisRouter(t)
	doc := f.create(t, frameworkPaper())

	resp := doRequest(router, http.MethodPost, "/api/v1/documents/"+doc.ID+"/analyze", "")
	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", resp.Code, resp.Body.String())
	}
	var out AnalysisResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if out.Document.AnalysisStatus != documents.StatusCompleted {
		t.Fatalf("expected completed, got %s", out.Document.AnalysisStatus)
	}
	if out.Classification == nil || out.Classification.Type != "conceptual_framework" {
		t.Fatalf("unexpected classification %+v", out.Classification)
	}
	if out.Session == nil || out.Session.MethodUsed != "chain" {
		t.Fatalf("unexpected session %+v", out.Session)
	}
	if len(out.Insights) != 9 || len(out.Tags) != 11 {
		t.Fatalf("expected 9 insights and 11 tags, got %d and %d", len(out.Insights), len(out.Tags))
	}

	again := doRequest(router, http.MethodPost, "/api/v1/documents/"+doc.ID+"/analyze", "")
	if again.Code != http.StatusConflict {
		t.Fatalf("expected status 409 for completed document, got %d", again.Code)
	}
	if !strings.Contains(again.Body.String(), "already_analyzed") {
		t.Fatalf("expected already_analyzed code, got %s", again.Body.String())
	}

	forced := doRequest(router, http.MethodPost, "/api/v1/documents/"+doc.ID+"/analyze", `{"reanalyze":true}`)
	if forced.Code != http.StatusOK {
		t.Fatalf("expected status 200 for re-analysis, got %d", forced.Code)
	}
}

func TestAnalyzeAsyncQueuesMessage(t *testing.T) {
	router, f := setupAnalysisRouter(t)
	doc := f.create(t, frameworkPaper())

	resp := doRequest(router, http.MethodPost, "/api/v1/documents/"+doc.ID+"/analyze?async=true", "")
	if resp.Code != http.StatusAccepted {
		t.Fatalf("expected status 202, got %d: %s", resp.Code, resp.Body.String())
	}
	if len(f.queue.messages) != 1 || f.queue.messages[0].DocumentID != doc.ID {
		t.Fatalf("expected one queued message for %s, got %+v", doc.ID, f.queue.messages)
	}
	if f.reasoner.total() != 0 {
		t.Fatalf("async request must not analyze inline")
	}

	f.svc.Queue = nil
	unavailable := doRequest(router, http.MethodPost, "/api/v1/documents/"+doc.ID+"/analyze", `{"async":true}`)
	if unavailable.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503 without a queue, got %d", unavailable.Code)
	}
}

func TestAnalyzeErrors(t *testing.T) {
	router, f := setupAnalysisRouter(t)

	missing := doRequest(router, http.MethodPost, "/api/v1/documents/missing/analyze", "")
	if missing.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", missing.Code)
	}

	bad := doRequest(router, http.MethodPost, "/api/v1/documents/missing/analyze", `{"reanalyze":`)
	if bad.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400 for malformed body, got %d", bad.Code)
	}

	doc := f.create(t, frameworkPaper())
	if err := f.docs.UpdateStatus(t.Context(), doc.ID, documents.StatusInProgress); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	busy := doRequest(router, http.MethodPost, "/api/v1/documents/"+doc.ID+"/analyze", "")
	if busy.Code != http.StatusConflict || !strings.Contains(busy.Body.String(), "analysis_in_progress") {
		t.Fatalf("expected analysis_in_progress conflict, got %d: %s", busy.Code, busy.Body.String())
	}
}

func TestAnalysisStatusIsThrottled(t *testing.T) {
	router, f := setupAnalysisRouter(t)
	doc := f.create(t, frameworkPaper())
	if _, err := f.svc.Analyze(t.Context(), doc.ID, Options{}); err != nil {
		t.Fatalf("Analyze: %v", err)
	}

	first := doRequest(router, http.MethodGet, "/api/v1/documents/"+doc.ID+"/analysis", "")
	if first.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", first.Code)
	}
	var body struct {
		Document      documents.DocumentResponse `json:"document"`
		LatestSession map[string]any             `json:"latestSession"`
	}
	if err := json.NewDecoder(first.Body).Decode(&body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body.Document.AnalysisStatus != documents.StatusCompleted || body.LatestSession["status"] != "completed" {
		t.Fatalf("unexpected status body %+v", body)
	}

	second := doRequest(router, http.MethodGet, "/api/v1/documents/"+doc.ID+"/analysis", "")
	if second.Code != http.StatusTooManyRequests {
		t.Fatalf("expected status 429, got %d", second.Code)
	}
	if second.Header().Get("Retry-After") != "1" {
		t.Fatalf("expected Retry-After 1, got %q", second.Header().Get("Retry-After"))
	}
}

func TestAnalyzePendingEndpoint(t *testing.T) {
	router, f := setupAnalysisRouter(t)
	f.create(t, frameworkPaper())
	f.create(t, noisePaper())

	resp := doRequest(router, http.MethodPost, "/api/v1/analyze/pending", `{"limit":5}`)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", resp.Code, resp.Body.String())
	}
	var summary BatchSummary
	if err := json.NewDecoder(resp.Body).Decode(&summary); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if summary.Total != 2 || summary.ByStatus[documents.StatusCompleted] != 1 || summary.ByStatus[documents.StatusFailed] != 1 {
		t.Fatalf("unexpected summary %+v", summary)
	}

	negative := doRequest(router, http.MethodPost, "/api/v1/analyze/pending", `{"limit":-1}`)
	if negative.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", negative.Code)
	}
}
