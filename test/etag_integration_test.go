package test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	gateway "github.com/scimforge/gateway"
	"github.com/scimforge/gateway/config"
)

func newETagTestHandler(t *testing.T) http.Handler {
	t.Helper()
	cfg := &config.Config{
		Gateway: config.GatewayConfig{BaseURL: "http://localhost:8080", Port: 8080},
		Store:   config.StoreConfig{Driver: "memory"},
		Endpoints: []config.EndpointConfig{
			{Name: "memory", DisplayName: "Memory Tenant"},
		},
		Observability: config.ObservabilityConfig{Level: "info", BufferSize: 100},
	}
	gw := gateway.New(cfg)
	if err := gw.Initialize(); err != nil {
		t.Fatalf("Failed to initialize gateway: %v", err)
	}
	return gw.Handler()
}

func TestETagIntegration(t *testing.T) {
	handler := newETagTestHandler(t)

	tests := []struct {
		name       string
		setup      func(t *testing.T) (resourceID, etag string)
		method     string
		getPath    func(resourceID string) string
		getBody    func() []byte
		setHeaders func(req *http.Request, etag string)
		wantStatus int
		verify     func(t *testing.T, w *httptest.ResponseRecorder, originalETag string)
	}{
		{
			name: "GET returns ETag header and version",
			setup: func(t *testing.T) (string, string) {
				userJSON := []byte(`{"userName":"testuser","active":true}`)
				req := httptest.NewRequest(http.MethodPost, "/memory/Users", bytes.NewReader(userJSON))
				w := httptest.NewRecorder()
				handler.ServeHTTP(w, req)

				if w.Code != http.StatusCreated {
					t.Fatalf("Setup failed: expected 201, got %d", w.Code)
				}

				var created map[string]any
				json.Unmarshal(w.Body.Bytes(), &created)
				return created["id"].(string), ""
			},
			method:     http.MethodGet,
			getPath:    func(id string) string { return "/memory/Users/" + id },
			getBody:    func() []byte { return nil },
			setHeaders: func(req *http.Request, etag string) {},
			wantStatus: http.StatusOK,
			verify: func(t *testing.T, w *httptest.ResponseRecorder, _ string) {
				etag := w.Header().Get("ETag")
				if etag == "" {
					t.Error("Expected ETag header to be present")
				}

				var retrieved map[string]any
				json.Unmarshal(w.Body.Bytes(), &retrieved)
				meta, _ := retrieved["meta"].(map[string]any)
				if meta == nil || meta["version"] == "" || meta["version"] == nil {
					t.Error("Expected meta.version to be set")
				}
			},
		},
		{
			name: "If-None-Match returns 304 when not modified",
			setup: func(t *testing.T) (string, string) {
				userJSON := []byte(`{"userName":"etag-test-user","active":true}`)
				req := httptest.NewRequest(http.MethodPost, "/memory/Users", bytes.NewReader(userJSON))
				w := httptest.NewRecorder()
				handler.ServeHTTP(w, req)

				var created map[string]any
				json.Unmarshal(w.Body.Bytes(), &created)
				return created["id"].(string), w.Header().Get("ETag")
			},
			method:  http.MethodGet,
			getPath: func(id string) string { return "/memory/Users/" + id },
			getBody: func() []byte { return nil },
			setHeaders: func(req *http.Request, etag string) {
				req.Header.Set("If-None-Match", etag)
			},
			wantStatus: http.StatusNotModified,
			verify: func(t *testing.T, w *httptest.ResponseRecorder, _ string) {
				if w.Body.Len() > 0 {
					t.Error("Expected empty body for 304 response")
				}
			},
		},
		{
			name: "If-Match succeeds when ETag matches (PATCH)",
			setup: func(t *testing.T) (string, string) {
				userJSON := []byte(`{"userName":"match-test-user","active":true}`)
				req := httptest.NewRequest(http.MethodPost, "/memory/Users", bytes.NewReader(userJSON))
				w := httptest.NewRecorder()
				handler.ServeHTTP(w, req)

				var created map[string]any
				json.Unmarshal(w.Body.Bytes(), &created)
				return created["id"].(string), w.Header().Get("ETag")
			},
			method:  http.MethodPatch,
			getPath: func(id string) string { return "/memory/Users/" + id },
			getBody: func() []byte {
				return []byte(`{
					"schemas": ["urn:ietf:params:scim:api:messages:2.0:PatchOp"],
					"Operations": [{"op": "replace", "path": "active", "value": false}]
				}`)
			},
			setHeaders: func(req *http.Request, etag string) {
				req.Header.Set("If-Match", etag)
			},
			wantStatus: http.StatusOK,
			verify: func(t *testing.T, w *httptest.ResponseRecorder, originalETag string) {
				newETag := w.Header().Get("ETag")
				if newETag == originalETag {
					t.Error("Expected ETag to change after modification")
				}
			},
		},
		{
			name: "If-Match fails when ETag mismatches",
			setup: func(t *testing.T) (string, string) {
				userJSON := []byte(`{"userName":"mismatch-test-user","active":true}`)
				req := httptest.NewRequest(http.MethodPost, "/memory/Users", bytes.NewReader(userJSON))
				w := httptest.NewRecorder()
				handler.ServeHTTP(w, req)

				var created map[string]any
				json.Unmarshal(w.Body.Bytes(), &created)
				return created["id"].(string), `W/"wrong-etag"`
			},
			method:  http.MethodPatch,
			getPath: func(id string) string { return "/memory/Users/" + id },
			getBody: func() []byte {
				return []byte(`{
					"schemas": ["urn:ietf:params:scim:api:messages:2.0:PatchOp"],
					"Operations": [{"op": "replace", "path": "active", "value": false}]
				}`)
			},
			setHeaders: func(req *http.Request, etag string) {
				req.Header.Set("If-Match", etag)
			},
			wantStatus: http.StatusPreconditionFailed,
			verify:     func(t *testing.T, w *httptest.ResponseRecorder, _ string) {},
		},
		{
			name: "DELETE with If-Match succeeds",
			setup: func(t *testing.T) (string, string) {
				userJSON := []byte(`{"userName":"delete-test-user","active":true}`)
				req := httptest.NewRequest(http.MethodPost, "/memory/Users", bytes.NewReader(userJSON))
				w := httptest.NewRecorder()
				handler.ServeHTTP(w, req)

				var created map[string]any
				json.Unmarshal(w.Body.Bytes(), &created)
				return created["id"].(string), w.Header().Get("ETag")
			},
			method:  http.MethodDelete,
			getPath: func(id string) string { return "/memory/Users/" + id },
			getBody: func() []byte { return nil },
			setHeaders: func(req *http.Request, etag string) {
				req.Header.Set("If-Match", etag)
			},
			wantStatus: http.StatusNoContent,
			verify:     func(t *testing.T, w *httptest.ResponseRecorder, _ string) {},
		},
		{
			name: "PUT with If-Match succeeds",
			setup: func(t *testing.T) (string, string) {
				userJSON := []byte(`{"userName":"put-test-user","active":true}`)
				req := httptest.NewRequest(http.MethodPost, "/memory/Users", bytes.NewReader(userJSON))
				w := httptest.NewRecorder()
				handler.ServeHTTP(w, req)

				var created map[string]any
				json.Unmarshal(w.Body.Bytes(), &created)
				return created["id"].(string), w.Header().Get("ETag")
			},
			method:  http.MethodPut,
			getPath: func(id string) string { return "/memory/Users/" + id },
			getBody: func() []byte {
				return []byte(`{"schemas":["urn:ietf:params:scim:schemas:core:2.0:User"],"userName":"put-test-user-updated","active":false}`)
			},
			setHeaders: func(req *http.Request, etag string) {
				req.Header.Set("If-Match", etag)
			},
			wantStatus: http.StatusOK,
			verify: func(t *testing.T, w *httptest.ResponseRecorder, originalETag string) {
				newETag := w.Header().Get("ETag")
				if newETag == originalETag {
					t.Error("Expected ETag to change after PUT")
				}
			},
		},
		{
			name: "Groups also support ETags",
			setup: func(t *testing.T) (string, string) {
				return "", "" // No setup needed, will create in test
			},
			method:  http.MethodPost,
			getPath: func(id string) string { return "/memory/Groups" },
			getBody: func() []byte {
				return []byte(`{"schemas":["urn:ietf:params:scim:schemas:core:2.0:Group"],"displayName":"test-group"}`)
			},
			setHeaders: func(req *http.Request, etag string) {},
			wantStatus: http.StatusCreated,
			verify: func(t *testing.T, w *httptest.ResponseRecorder, _ string) {
				etag := w.Header().Get("ETag")
				if etag == "" {
					t.Error("Expected ETag header to be present for Groups")
				}

				var created map[string]any
				json.Unmarshal(w.Body.Bytes(), &created)
				meta, _ := created["meta"].(map[string]any)
				if meta == nil || meta["version"] == "" || meta["version"] == nil {
					t.Error("Expected meta.version to be set for Groups")
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resourceID, etag := tt.setup(t)

			path := tt.getPath(resourceID)
			body := tt.getBody()
			var req *http.Request
			if body != nil {
				req = httptest.NewRequest(tt.method, path, bytes.NewReader(body))
			} else {
				req = httptest.NewRequest(tt.method, path, nil)
			}
			tt.setHeaders(req, etag)
			w := httptest.NewRecorder()

			handler.ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Errorf("Expected status %d, got %d: %s", tt.wantStatus, w.Code, w.Body.String())
			}

			tt.verify(t, w, etag)
		})
	}
}
