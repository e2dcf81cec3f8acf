package tags

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestHandlerListsTagsAndDocumentLinks(t *testing.T) {
	gin.SetMode(gin.TestMode)
	repo := NewMemoryRepo()
	tag := seedTag(repo, "t1", "sparse-attention", CategoryConcept)
	seedTag(repo, "t2", "nlp", CategoryDomain)
	if err := repo.LinkDocument(context.Background(), "doc-1", tag.ID, 0.8, SourceAutomatic); err != nil {
		t.Fatalf("LinkDocument: %v", err)
	}

	r := gin.New()
	NewHandler(&Service{Repo: repo}).RegisterRoutes(r.Group("/api/v1"))

	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/v1/tags?category=concept", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	var list struct {
		Items []TagResponse `json:"items"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(list.Items) != 1 || list.Items[0].Name != "sparse-attention" {
		t.Fatalf("unexpected tags: %+v", list.Items)
	}

	resp = httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/v1/documents/doc-1/tags", nil))
	var links struct {
		Items []LinkResponse `json:"items"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&links); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(links.Items) != 1 || links.Items[0].Confidence != 0.8 || links.Items[0].Source != SourceAutomatic {
		t.Fatalf("unexpected links: %+v", links.Items)
	}

	resp = httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/v1/tags?category=opinion", nil))
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
}
