package bluefox

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

type recordedRequest struct {
	Method string
	Path   string
	Body   map[string]interface{}
}

type fakePanel struct {
	mu       sync.Mutex
	requests []recordedRequest
	handler  func(w http.ResponseWriter, r *http.Request)
}

func (p *fakePanel) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rec := recordedRequest{Method: r.Method, Path: r.URL.Path}
	if r.Method != http.MethodGet {
		json.NewDecoder(r.Body).Decode(&rec.Body)
	}

	p.mu.Lock()
	p.requests = append(p.requests, rec)
	p.mu.Unlock()

	p.handler(w, r)
}

func (p *fakePanel) recorded() []recordedRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]recordedRequest{}, p.requests...)
}

func setupPanel(t *testing.T, handler func(w http.ResponseWriter, r *http.Request)) (*Client, *fakePanel) {
	t.Helper()

	panel := &fakePanel{handler: handler}
	server := httptest.NewServer(panel)
	t.Cleanup(server.Close)

	client, err := New("test-token", WithBaseURL(server.URL+"/api"))
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	return client, panel
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func serverPayloadFor(id, name string) map[string]interface{} {
	return map[string]interface{}{
		"object": "server",
		"attributes": map[string]interface{}{
			"identifier": id,
			"name":       name,
			"uuid":       "1a7ce997-259b-452e-8b4e-cecc464142ca",
			"node":       "node-1",
			"sftp_details": map[string]interface{}{
				"ip":   "10.0.0.5",
				"port": 2022,
			},
			"limits": map[string]interface{}{
				"memory": 1024,
				"swap":   0,
				"disk":   5120,
				"io":     500,
				"cpu":    200,
			},
		},
	}
}

func TestNewRequiresToken(t *testing.T) {
	_, err := New("")
	if !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("Expected ErrInvalidArgument, got %v", err)
	}

	client, err := New("token")
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	if client == nil {
		t.Fatal("Expected non-nil client")
	}
}

func TestGetServer(t *testing.T) {
	client, panel := setupPanel(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-token" {
			t.Errorf("Expected bearer token, got %q", got)
		}
		respondJSON(w, http.StatusOK, serverPayloadFor("abc123", "Survival"))
	})

	server, err := client.GetServer(context.Background(), "abc123")
	if err != nil {
		t.Fatalf("GetServer() error: %v", err)
	}

	if server.ID != "abc123" {
		t.Errorf("Expected id abc123, got %s", server.ID)
	}
	if server.Name != "Survival" {
		t.Errorf("Expected name Survival, got %s", server.Name)
	}
	if server.SFTP.Port != 2022 {
		t.Errorf("Expected sftp port 2022, got %d", server.SFTP.Port)
	}
	if server.Limits == nil || server.Limits.Memory != 1024 {
		t.Errorf("Expected memory limit 1024, got %+v", server.Limits)
	}

	reqs := panel.recorded()
	if len(reqs) != 1 || reqs[0].Path != "/api/client/servers/abc123" {
		t.Errorf("Expected one request to /api/client/servers/abc123, got %+v", reqs)
	}
}

func TestGetServerInvalidID(t *testing.T) {
	client, panel := setupPanel(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("Unexpected request")
	})

	_, err := client.GetServer(context.Background(), "")
	if !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("Expected ErrInvalidArgument, got %v", err)
	}
	if len(panel.recorded()) != 0 {
		t.Error("Expected no requests")
	}
}

func TestGetServerRemoteError(t *testing.T) {
	client, _ := setupPanel(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	_, err := client.GetServer(context.Background(), "missing")
	var httpErr *HTTPError
	if !errors.As(err, &httpErr) {
		t.Fatalf("Expected *HTTPError, got %v", err)
	}
	if httpErr.StatusCode != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", httpErr.StatusCode)
	}
}

func TestHasServer(t *testing.T) {
	tests := []struct {
		name    string
		handler func(w http.ResponseWriter, r *http.Request)
		want    bool
	}{
		{
			name: "present",
			handler: func(w http.ResponseWriter, r *http.Request) {
				respondJSON(w, http.StatusOK, serverPayloadFor("abc", "A"))
			},
			want: true,
		},
		{
			name: "remote error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusInternalServerError)
			},
			want: false,
		},
		{
			name: "no identifier",
			handler: func(w http.ResponseWriter, r *http.Request) {
				respondJSON(w, http.StatusOK, map[string]interface{}{
					"attributes": map[string]interface{}{"name": "A"},
				})
			},
			want: false,
		},
		{
			name: "not json",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte("<html></html>"))
			},
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, _ := setupPanel(t, tt.handler)

			got, err := client.HasServer(context.Background(), "abc")
			if err != nil {
				t.Fatalf("HasServer() error: %v", err)
			}
			if got != tt.want {
				t.Errorf("Expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestHasServerTransportError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	client, err := New("token", WithBaseURL(url))
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	got, err := client.HasServer(context.Background(), "abc")
	if err != nil {
		t.Fatalf("HasServer() error: %v", err)
	}
	if got {
		t.Error("Expected false for unreachable panel")
	}
}

func TestHasServerInvalidID(t *testing.T) {
	client, _ := setupPanel(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("Unexpected request")
	})

	_, err := client.HasServer(context.Background(), "")
	if !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("Expected ErrInvalidArgument, got %v", err)
	}
}

func TestListServers(t *testing.T) {
	client, panel := setupPanel(t, func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]interface{}{
			"object": "list",
			"data": []interface{}{
				serverPayloadFor("a", "Alpha"),
				serverPayloadFor("b", "Beta"),
				map[string]interface{}{
					"object":     "allocation",
					"attributes": map[string]interface{}{"identifier": "c"},
				},
			},
		})
	})

	servers, err := client.ListServers(context.Background())
	if err != nil {
		t.Fatalf("ListServers() error: %v", err)
	}

	if len(servers) != 3 {
		t.Fatalf("Expected 3 servers, got %d", len(servers))
	}
	if servers[0].ID != "a" || servers[1].ID != "b" {
		t.Errorf("Unexpected order: %s, %s", servers[0].ID, servers[1].ID)
	}
	if servers[2].Type != "allocation" {
		t.Errorf("Expected entries to keep their object tag, got %s", servers[2].Type)
	}

	reqs := panel.recorded()
	if len(reqs) != 1 || reqs[0].Path != "/api/client" {
		t.Errorf("Expected one request to /api/client, got %+v", reqs)
	}
}

func TestListServersEmpty(t *testing.T) {
	tests := []struct {
		name    string
		handler func(w http.ResponseWriter, r *http.Request)
	}{
		{
			name: "no data field",
			handler: func(w http.ResponseWriter, r *http.Request) {
				respondJSON(w, http.StatusOK, map[string]interface{}{"object": "list"})
			},
		},
		{
			name: "empty data",
			handler: func(w http.ResponseWriter, r *http.Request) {
				respondJSON(w, http.StatusOK, map[string]interface{}{"data": []interface{}{}})
			},
		},
		{
			name: "empty body",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, _ := setupPanel(t, tt.handler)

			servers, err := client.ListServers(context.Background())
			if err != nil {
				t.Fatalf("ListServers() error: %v", err)
			}
			if servers == nil || len(servers) != 0 {
				t.Errorf("Expected empty non-nil slice, got %v", servers)
			}
		})
	}
}

func TestMe(t *testing.T) {
	client, panel := setupPanel(t, func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]interface{}{
			"object": "user",
			"attributes": map[string]interface{}{
				"id":         7,
				"admin":      true,
				"username":   "fox",
				"email":      "fox@example.com",
				"first_name": "Blue",
				"last_name":  "Fox",
			},
		})
	})

	account, err := client.Me(context.Background())
	if err != nil {
		t.Fatalf("Me() error: %v", err)
	}

	want := Account{ID: 7, Admin: true, Username: "fox", Email: "fox@example.com", FirstName: "Blue", LastName: "Fox"}
	if *account != want {
		t.Errorf("Expected %+v, got %+v", want, *account)
	}

	reqs := panel.recorded()
	if len(reqs) != 1 || reqs[0].Path != "/api/client/account" {
		t.Errorf("Expected one request to /api/client/account, got %+v", reqs)
	}
}

func TestMeMissingFields(t *testing.T) {
	client, _ := setupPanel(t, func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]interface{}{
			"attributes": map[string]interface{}{"username": "fox"},
		})
	})

	account, err := client.Me(context.Background())
	if err != nil {
		t.Fatalf("Me() error: %v", err)
	}
	if account.Username != "fox" {
		t.Errorf("Expected username fox, got %s", account.Username)
	}
	if account.ID != 0 || account.Admin || account.Email != "" {
		t.Errorf("Expected zero defaults, got %+v", account)
	}
}

func TestWithRegisterer(t *testing.T) {
	reg := prometheus.NewRegistry()

	panel := &fakePanel{handler: func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]interface{}{"data": []interface{}{}})
	}}
	server := httptest.NewServer(panel)
	defer server.Close()

	client, err := New("token", WithBaseURL(server.URL), WithRegisterer(reg))
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	if _, err := client.ListServers(context.Background()); err != nil {
		t.Fatalf("ListServers() error: %v", err)
	}

	count, err := testutil.GatherAndCount(reg, "bluefox_client_requests_total")
	if err != nil {
		t.Fatalf("GatherAndCount() error: %v", err)
	}
	if count != 1 {
		t.Errorf("Expected 1 request series, got %d", count)
	}
}
