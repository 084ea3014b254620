// Package paneltest provides an in-memory panel API for tests.
package paneltest

import (
	"encoding/json"
	"log"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
)

type Action struct {
	Method string
	Path   string
	Body   map[string]string
}

type Panel struct {
	Token string

	mu      sync.Mutex
	servers map[string]map[string]interface{}
	account map[string]interface{}
	actions []Action
	states  map[string]string
}

func New(token string) *Panel {
	return &Panel{
		Token:   token,
		servers: make(map[string]map[string]interface{}),
		states:  make(map[string]string),
		account: map[string]interface{}{
			"id":         1,
			"admin":      false,
			"username":   "panel-user",
			"email":      "user@example.com",
			"first_name": "Panel",
			"last_name":  "User",
		},
	}
}

// Start serves the panel under /api on a new httptest server. The returned
// URL is the API base URL.
func (p *Panel) Start() (*httptest.Server, string) {
	mux := http.NewServeMux()
	p.RegisterRoutes(mux)
	server := httptest.NewServer(mux)
	return server, server.URL + "/api"
}

func (p *Panel) AddServer(identifier, name string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.servers[identifier] = map[string]interface{}{
		"identifier":      identifier,
		"name":            name,
		"node":            "node-1",
		"sftp_details":    map[string]interface{}{"ip": "127.0.0.1", "port": 2022},
		"limits":          map[string]interface{}{"memory": 1024, "swap": 0, "disk": 4096, "io": 500, "cpu": 100},
		"feature_limits":  map[string]interface{}{"databases": 1, "allocations": 1, "backups": 1},
		"is_suspended":    false,
		"is_installing":   false,
		"is_transferring": false,
	}
}

func (p *Panel) RemoveServer(identifier string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.servers, identifier)
}

func (p *Panel) Actions() []Action {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Action{}, p.actions...)
}

// State returns the last power signal received for a server.
func (p *Panel) State(identifier string) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.states[identifier]
}

func (p *Panel) Name(identifier string) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if s, ok := p.servers[identifier]; ok {
		name, _ := s["name"].(string)
		return name
	}
	return ""
}

func (p *Panel) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/client", p.auth(p.handleList))
	mux.HandleFunc("GET /api/client/account", p.auth(p.handleAccount))
	mux.HandleFunc("GET /api/client/servers/{id}", p.auth(p.handleServer))
	mux.HandleFunc("POST /api/client/servers/{id}/power", p.auth(p.handlePower))
	mux.HandleFunc("POST /api/client/servers/{id}/settings/rename", p.auth(p.handleRename))
	mux.HandleFunc("POST /api/client/servers/{id}/settings/reinstall", p.auth(p.handleReinstall))
	mux.HandleFunc("POST /api/client/servers/{id}/command", p.auth(p.handleCommand))
	mux.HandleFunc("DELETE /api/application/servers/{id}", p.auth(p.handleDelete))
	mux.HandleFunc("DELETE /api/application/servers/{id}/force", p.auth(p.handleDelete))
}

func (p *Panel) auth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer "+p.Token {
			respondError(w, http.StatusUnauthorized, "Unauthenticated.")
			return
		}
		next(w, r)
	}
}

func (p *Panel) record(r *http.Request, body map[string]string) {
	p.actions = append(p.actions, Action{Method: r.Method, Path: r.URL.Path, Body: body})
}

func serverObject(attrs map[string]interface{}) map[string]interface{} {
	return map[string]interface{}{
		"object":     "server",
		"attributes": attrs,
		"meta": map[string]interface{}{
			"is_server_owner":  true,
			"user_permissions": []string{"*"},
		},
	}
}

func (p *Panel) handleList(w http.ResponseWriter, r *http.Request) {
	p.mu.Lock()
	ids := make([]string, 0, len(p.servers))
	for id := range p.servers {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	data := make([]interface{}, 0, len(ids))
	for _, id := range ids {
		data = append(data, serverObject(p.servers[id]))
	}
	p.mu.Unlock()

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"object": "list",
		"data":   data,
	})
}

func (p *Panel) handleAccount(w http.ResponseWriter, r *http.Request) {
	p.mu.Lock()
	defer p.mu.Unlock()

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"object":     "user",
		"attributes": p.account,
	})
}

// lookup must be called with p.mu held.
func (p *Panel) lookup(w http.ResponseWriter, r *http.Request) (map[string]interface{}, bool) {
	s, ok := p.servers[r.PathValue("id")]
	if !ok {
		respondError(w, http.StatusNotFound, "The requested resource could not be found on the server.")
	}
	return s, ok
}

func (p *Panel) handleServer(w http.ResponseWriter, r *http.Request) {
	p.mu.Lock()
	defer p.mu.Unlock()

	s, ok := p.lookup(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, serverObject(s))
}

func decodeBody(w http.ResponseWriter, r *http.Request) (map[string]string, bool) {
	body := map[string]string{}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON payload")
		return nil, false
	}
	return body, true
}

func (p *Panel) handlePower(w http.ResponseWriter, r *http.Request) {
	body, ok := decodeBody(w, r)
	if !ok {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.lookup(w, r); !ok {
		return
	}
	switch body["signal"] {
	case "start", "stop", "restart", "kill":
	default:
		respondError(w, http.StatusUnprocessableEntity, "The selected signal is invalid.")
		return
	}

	p.record(r, body)
	p.states[r.PathValue("id")] = body["signal"]
	w.WriteHeader(http.StatusNoContent)
}

func (p *Panel) handleRename(w http.ResponseWriter, r *http.Request) {
	body, ok := decodeBody(w, r)
	if !ok {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	s, ok := p.lookup(w, r)
	if !ok {
		return
	}
	if body["name"] == "" {
		respondError(w, http.StatusUnprocessableEntity, "The name field is required.")
		return
	}

	p.record(r, body)
	s["name"] = body["name"]
	w.WriteHeader(http.StatusNoContent)
}

func (p *Panel) handleReinstall(w http.ResponseWriter, r *http.Request) {
	p.mu.Lock()
	defer p.mu.Unlock()

	s, ok := p.lookup(w, r)
	if !ok {
		return
	}

	p.record(r, nil)
	s["is_installing"] = true
	w.WriteHeader(http.StatusAccepted)
}

func (p *Panel) handleCommand(w http.ResponseWriter, r *http.Request) {
	body, ok := decodeBody(w, r)
	if !ok {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.lookup(w, r); !ok {
		return
	}

	p.record(r, body)
	w.WriteHeader(http.StatusNoContent)
}

func (p *Panel) handleDelete(w http.ResponseWriter, r *http.Request) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.lookup(w, r); !ok {
		return
	}

	p.record(r, nil)
	delete(p.servers, r.PathValue("id"))
	w.WriteHeader(http.StatusNoContent)
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("Error encoding JSON response: %v", err)
	}
}

func respondError(w http.ResponseWriter, status int, detail string) {
	respondJSON(w, status, map[string]interface{}{
		"errors": []map[string]interface{}{
			{"code": http.StatusText(status), "status": status, "detail": detail},
		},
	})
}
