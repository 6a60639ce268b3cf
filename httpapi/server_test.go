package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mdzesseis/treelog"
)

type fakeReader struct {
	branches map[string]treelog.BranchData
	byTag    map[string][]string
}

func (f *fakeReader) GetBranches(ctx context.Context, ids []string) (map[string]treelog.BranchData, error) {
	out := make(map[string]treelog.BranchData, len(ids))
	for _, id := range ids {
		if bd, ok := f.branches[id]; ok {
			out[id] = bd
		}
	}
	return out, nil
}

func (f *fakeReader) GetBranchIDs(ctx context.Context) ([]string, error) {
	ids := make([]string, 0, len(f.branches))
	for id := range f.branches {
		ids = append(ids, id)
	}
	return ids, nil
}

func (f *fakeReader) BranchIDsByTag(ctx context.Context, tag string) ([]string, error) {
	return f.byTag[tag], nil
}

func TestHandleGetBranch(t *testing.T) {
	reader := &fakeReader{branches: map[string]treelog.BranchData{
		"abc": {ID: "abc", Messages: []treelog.LogEntry{{Message: "hi"}}},
	}}
	srv := NewServer(reader, nil)

	req := httptest.NewRequest(http.MethodGet, "/branches/abc", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var got treelog.BranchData
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if got.ID != "abc" {
		t.Errorf("expected branch id abc, got %s", got.ID)
	}
}

func TestHandleGetBranchNotFound(t *testing.T) {
	srv := NewServer(&fakeReader{branches: map[string]treelog.BranchData{}}, nil)

	req := httptest.NewRequest(http.MethodGet, "/branches/missing", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestHandleListBranchesByTag(t *testing.T) {
	reader := &fakeReader{
		branches: map[string]treelog.BranchData{"a": {ID: "a"}, "b": {ID: "b"}},
		byTag:    map[string][]string{"prod": {"a"}},
	}
	srv := NewServer(reader, nil)

	req := httptest.NewRequest(http.MethodGet, "/branches?tag=prod", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var ids []string
	if err := json.Unmarshal(rec.Body.Bytes(), &ids); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if len(ids) != 1 || ids[0] != "a" {
		t.Errorf("expected [a], got %v", ids)
	}
}

func TestHandleListBranchesTagUnsupported(t *testing.T) {
	srv := NewServer(&unsupportedTagReader{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/branches?tag=prod", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotImplemented {
		t.Fatalf("expected 501, got %d", rec.Code)
	}
}

type unsupportedTagReader struct{}

func (unsupportedTagReader) GetBranches(ctx context.Context, ids []string) (map[string]treelog.BranchData, error) {
	return nil, nil
}
func (unsupportedTagReader) GetBranchIDs(ctx context.Context) ([]string, error) { return nil, nil }
