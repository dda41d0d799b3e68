package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/pverne/scanledger/internal/domain"
	"github.com/pverne/scanledger/internal/services"
)

func artifactRouter(h *Handlers) *gin.Engine {
	r := gin.New()
	r.GET("/scans/unlisted", h.UnlistedScans)
	r.GET("/scans/:id/artifact", h.GetArtifact)
	r.POST("/scans/:id/artifact", h.MergeArtifact)
	r.DELETE("/scans/:id/artifact", h.InvalidateArtifact)
	r.GET("/sessions/:id/activity", h.SessionActivity)
	return r
}

func TestGetArtifact(t *testing.T) {
	gin.SetMode(gin.TestMode)
	scanID := uuid.NewString()

	title := "Alpine village"
	cache := stubCache{lookup: func(_ context.Context, id string) (*domain.ScanArtifact, error) {
		if id != scanID {
			return nil, services.ErrNotFound
		}
		return &domain.ScanArtifact{ScanID: id, Title: &title}, nil
	}}
	h := newTestHandlers(t, stubPipeline{}, cache, stubScans{}, stubActivity{}, stubListings{})
	r := artifactRouter(h)

	t.Run("hit", func(t *testing.T) {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/scans/"+scanID+"/artifact", nil))
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d: %s", w.Code, w.Body.String())
		}
		var art domain.ScanArtifact
		if err := json.Unmarshal(w.Body.Bytes(), &art); err != nil {
			t.Fatalf("json: %v", err)
		}
		if art.Title == nil || *art.Title != title {
			t.Fatalf("artifact = %+v", art)
		}
	})

	t.Run("miss is 404", func(t *testing.T) {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/scans/"+uuid.NewString()+"/artifact", nil))
		if w.Code != http.StatusNotFound {
			t.Fatalf("status = %d", w.Code)
		}
	})

	t.Run("non-uuid id is 400", func(t *testing.T) {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/scans/not-a-uuid/artifact", nil))
		if w.Code != http.StatusBadRequest {
			t.Fatalf("status = %d", w.Code)
		}
	})
}

func TestMergeArtifact(t *testing.T) {
	gin.SetMode(gin.TestMode)
	scanID := uuid.NewString()

	var gotPatch domain.ArtifactPatch
	cache := stubCache{merge: func(_ context.Context, _ string, patch domain.ArtifactPatch) error {
		gotPatch = patch
		return nil
	}}
	h := newTestHandlers(t, stubPipeline{}, cache, stubScans{}, stubActivity{}, stubListings{})
	r := artifactRouter(h)

	body := `{"title":"Harbor view","price":8.5,"derived_paths":["/out/a.jpg"],"processed":true}`
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/scans/"+scanID+"/artifact", bytes.NewBufferString(body))
	r.ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	if gotPatch.Title == nil || *gotPatch.Title != "Harbor view" {
		t.Fatalf("Title = %v", gotPatch.Title)
	}
	if gotPatch.Price == nil || *gotPatch.Price != 8.5 {
		t.Fatalf("Price = %v", gotPatch.Price)
	}
	if gotPatch.DerivedPaths == nil || len(*gotPatch.DerivedPaths) != 1 {
		t.Fatalf("DerivedPaths = %v", gotPatch.DerivedPaths)
	}
	if gotPatch.ProcessedAt == nil {
		t.Fatal("processed=true did not set ProcessedAt")
	}

	t.Run("invalid body", func(t *testing.T) {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/scans/"+scanID+"/artifact", bytes.NewBufferString("{"))
		r.ServeHTTP(w, req)
		if w.Code != http.StatusBadRequest {
			t.Fatalf("status = %d", w.Code)
		}
	})
}

func TestInvalidateArtifact(t *testing.T) {
	gin.SetMode(gin.TestMode)
	scanID := uuid.NewString()

	cache := stubCache{invalidate: func(_ context.Context, id string) error {
		if id != scanID {
			return services.ErrNotFound
		}
		return nil
	}}
	h := newTestHandlers(t, stubPipeline{}, cache, stubScans{}, stubActivity{}, stubListings{})
	r := artifactRouter(h)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/scans/"+scanID+"/artifact", nil))
	if w.Code != http.StatusNoContent {
		t.Fatalf("status = %d", w.Code)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/scans/"+uuid.NewString()+"/artifact", nil))
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestUnlistedScans(t *testing.T) {
	gin.SetMode(gin.TestMode)

	scans := stubScans{unlisted: func(_ context.Context) ([]domain.Scan, error) {
		return []domain.Scan{{ID: "scan-1"}, {ID: "scan-2"}}, nil
	}}
	h := newTestHandlers(t, stubPipeline{}, stubCache{}, scans, stubActivity{}, stubListings{})
	r := artifactRouter(h)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/scans/unlisted", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	var resp struct {
		Scans []domain.Scan `json:"scans"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("json: %v", err)
	}
	if len(resp.Scans) != 2 {
		t.Fatalf("scans = %+v", resp.Scans)
	}
}

func TestSessionActivity(t *testing.T) {
	gin.SetMode(gin.TestMode)

	activity := stubActivity{history: func(_ context.Context, sid string) ([]domain.ActivityRecord, error) {
		if sid != "S1" {
			return nil, nil
		}
		return []domain.ActivityRecord{
			{SessionID: "S1", Action: domain.ActionUploaded},
			{SessionID: "S1", Action: domain.ActionProcessed},
		}, nil
	}}
	h := newTestHandlers(t, stubPipeline{}, stubCache{}, stubScans{}, activity, stubListings{})
	r := artifactRouter(h)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/sessions/S1/activity", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	var resp struct {
		Activity []domain.ActivityRecord `json:"activity"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("json: %v", err)
	}
	if len(resp.Activity) != 2 || resp.Activity[0].Action != domain.ActionUploaded {
		t.Fatalf("activity = %+v", resp.Activity)
	}
}
