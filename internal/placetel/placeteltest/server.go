// Package placeteltest serves a fake recordings API for tests.
package placeteltest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"

	"github.com/gorilla/mux"

	"github.com/peeteer1245/placetel-recording-downloader/internal/config"
)

type Recording struct {
	ID        int64  `json:"id"`
	Time      string `json:"time"`
	Direction string `json:"direction"`
	From      string `json:"from"`
	To        string `json:"to"`
	File      string `json:"file"`
}

type Request struct {
	Method string
	Path   string
	Query  string
	Auth   string
}

type Server struct {
	*httptest.Server

	mu            sync.Mutex
	pages         [][]Recording
	pageStatus    map[int]int
	fileStatus    map[int64]int
	truncated     map[int64]bool
	deleteStatus  map[int64]int
	rawPage       map[int]string
	requests      []Request
	deleted       []int64
	expectedToken string
}

// NewServer serves pages in order: page n of the list endpoint returns
// pages[n-1] and every later page is an empty array.
func NewServer(pages ...[]Recording) *Server {
	s := &Server{
		pages:        pages,
		pageStatus:   make(map[int]int),
		fileStatus:   make(map[int64]int),
		truncated:    make(map[int64]bool),
		deleteStatus: make(map[int64]int),
		rawPage:      make(map[int]string),
	}

	r := mux.NewRouter()
	r.Use(s.recordRequest)
	r.HandleFunc("/v2/recordings", s.handleList).Methods(http.MethodGet)
	r.HandleFunc("/v2/recordings/{id:[0-9]+}", s.handleGet).Methods(http.MethodGet)
	r.HandleFunc("/v2/recordings/{id:[0-9]+}", s.handleDelete).Methods(http.MethodDelete)
	r.HandleFunc("/files/{id:[0-9]+}.mp3", s.handleFile).Methods(http.MethodGet)

	s.Server = httptest.NewServer(r)
	return s
}

// Apply points the URL templates of cfg at this server.
func (s *Server) Apply(cfg *config.Config) {
	cfg.ListPageURL = s.URL + "/v2/recordings?order=asc&page={page}"
	cfg.GetRecordingURL = s.URL + "/v2/recordings/{id}"
	cfg.DeleteRecordingURL = s.URL + "/v2/recordings/{id}"
}

func (s *Server) RequireToken(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.expectedToken = token
}

func (s *Server) FailPage(page, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pageStatus[page] = status
}

// RawPage replaces the body of a list page verbatim.
func (s *Server) RawPage(page int, body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rawPage[page] = body
}

func (s *Server) FailFile(id int64, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fileStatus[id] = status
}

// TruncateFile announces a longer body than it sends for the file of id,
// so the client sees the connection drop mid-download.
func (s *Server) TruncateFile(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.truncated[id] = true
}

func (s *Server) SetDeleteStatus(id int64, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleteStatus[id] = status
}

func (s *Server) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Request, len(s.requests))
	copy(out, s.requests)
	return out
}

func (s *Server) RequestCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

func (s *Server) Deleted() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]int64, len(s.deleted))
	copy(out, s.deleted)
	return out
}

func FileBody(id int64) string {
	return fmt.Sprintf("audio-%d", id)
}

func (s *Server) recordRequest(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.requests = append(s.requests, Request{
			Method: r.Method,
			Path:   r.URL.Path,
			Query:  r.URL.RawQuery,
			Auth:   r.Header.Get("Authorization"),
		})
		token := s.expectedToken
		s.mu.Unlock()

		if token != "" && r.Header.Get("Authorization") != token {
			http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	page, err := strconv.Atoi(r.URL.Query().Get("page"))
	if err != nil || page < 1 {
		http.Error(w, "bad page", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	status, failing := s.pageStatus[page]
	raw, isRaw := s.rawPage[page]
	var items []Recording
	if page <= len(s.pages) {
		items = s.withFileURLs(s.pages[page-1])
	}
	s.mu.Unlock()

	if failing {
		http.Error(w, "page unavailable", status)
		return
	}
	if isRaw {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(raw))
		return
	}
	if items == nil {
		items = []Recording{}
	}
	writeJSON(w, items)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, page := range s.pages {
		for _, rec := range s.withFileURLs(page) {
			if rec.ID == id {
				writeJSON(w, rec)
				return
			}
		}
	}
	http.Error(w, `{"error":"not found"}`, http.StatusNotFound)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)

	s.mu.Lock()
	status, ok := s.deleteStatus[id]
	if !ok {
		status = http.StatusNoContent
	}
	if status == http.StatusOK || status == http.StatusNoContent {
		s.deleted = append(s.deleted, id)
	}
	s.mu.Unlock()

	w.WriteHeader(status)
}

func (s *Server) handleFile(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)

	s.mu.Lock()
	status, failing := s.fileStatus[id]
	truncated := s.truncated[id]
	s.mu.Unlock()

	if failing {
		http.Error(w, "file unavailable", status)
		return
	}
	w.Header().Set("Content-Type", "audio/mpeg")
	if truncated {
		w.Header().Set("Content-Length", "1000")
	}
	_, _ = w.Write([]byte(FileBody(id)))
}

// withFileURLs must be called with s.mu held.
func (s *Server) withFileURLs(page []Recording) []Recording {
	out := make([]Recording, len(page))
	for i, rec := range page {
		if rec.File == "" {
			rec.File = fmt.Sprintf("%s/files/%d.mp3", s.URL, rec.ID)
		}
		out[i] = rec
	}
	return out
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
