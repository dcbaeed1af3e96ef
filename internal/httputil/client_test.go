package httputil

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestPostJSON_Success(t *testing.T) {
	mock := NewMockHTTPClient()
	mock.AddResponse(http.StatusOK, `{"label": "Normal"}`)

	var out struct {
		Label string `json:"label"`
	}
	err := PostJSON(context.Background(), mock, "http://model/classify", map[string][]float64{"samples": {1, 2}}, &out)
	if err != nil {
		t.Fatalf("PostJSON failed: %v", err)
	}
	if out.Label != "Normal" {
		t.Errorf("label = %q, want Normal", out.Label)
	}
	if mock.RequestCount() != 1 {
		t.Fatalf("RequestCount = %d, want 1", mock.RequestCount())
	}
	if got := string(mock.Body(0)); got != `{"samples":[1,2]}` {
		t.Errorf("request body = %s", got)
	}
	if ct := mock.Requests[0].Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("content-type = %q", ct)
	}
}

func TestPostJSON_Status(t *testing.T) {
	mock := NewMockHTTPClient()
	mock.AddResponse(http.StatusBadGateway, "model offline")

	err := PostJSON(context.Background(), mock, "http://model/classify", nil, nil)
	if err == nil || !strings.Contains(err.Error(), "502") || !strings.Contains(err.Error(), "model offline") {
		t.Fatalf("expected status error, got %v", err)
	}
}

func TestPostJSON_TransportError(t *testing.T) {
	want := errors.New("connection refused")
	mock := NewMockHTTPClient().AddErrorResponse(want)

	err := PostJSON(context.Background(), mock, "http://model/classify", nil, nil)
	if !errors.Is(err, want) {
		t.Fatalf("expected %v, got %v", want, err)
	}
}

func TestPostJSON_RealClient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s", r.Method)
		}
		WriteJSONOK(w, map[string]string{"label": "Irregular"})
	}))
	defer srv.Close()

	var out map[string]string
	if err := PostJSON(context.Background(), srv.Client(), srv.URL, struct{}{}, &out); err != nil {
		t.Fatalf("PostJSON failed: %v", err)
	}
	if out["label"] != "Irregular" {
		t.Errorf("label = %q", out["label"])
	}
}
