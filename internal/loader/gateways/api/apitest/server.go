// Package apitest provides an in-memory fake of the blocklist backend API for tests.
package apitest

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/haukened/blocklist-loader/internal/loader/domain"
)

// Call records one request the fake received.
type Call struct {
	Method string
	Path   string
	Query  string
	Body   string
}

// FailFunc returns a status code to force for a request, or 0 to serve it.
type FailFunc func(r *http.Request, body []byte) int

// period is one open-or-closed interval of a domain in a blocklist.
type period struct {
	start int // version sequence where the domain (re)appeared
	end   int // version sequence where it was last present; 0 while open
}

// Server is a fake backend. Versions are listed newest first.
type Server struct {
	*httptest.Server

	mu         sync.Mutex
	token      string
	pageSize   int
	now        func() time.Time
	fail       FailFunc
	calls      []Call
	blocklists []domain.Blocklist
	versions   []domain.Version
	seq        map[uuid.UUID]int
	nextSeq    int
	periods    map[uuid.UUID]map[domain.Domain][]*period
}

// New starts a fake backend that requires token on every request.
func New(token string) *Server {
	s := &Server{
		token:    token,
		pageSize: 2,
		now:      func() time.Time { return time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC) },
		seq:      make(map[uuid.UUID]int),
		periods:  make(map[uuid.UUID]map[domain.Domain][]*period),
	}
	s.Server = httptest.NewServer(s.routes())
	return s
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(s.record)
	r.Use(s.auth)

	r.Get("/blocklists", s.listBlocklists)
	r.Get("/blocklists/{id}", s.getBlocklist)
	r.Get("/blocklists/{id}/versions", s.listVersions)
	r.Post("/blocklists/{blocklistID}/versions/{versionID}/entries", s.openPeriod)
	r.Put("/blocklists/{blocklistID}/versions/{versionID}/entries", s.closePeriod)

	r.Post("/versions", s.createVersion)
	r.Put("/versions", s.updateVersion)
	r.Delete("/versions/{id}", s.deleteVersion)
	r.Put("/versions/{id}/entries", s.bulkCreate)
	r.Get("/versions/{id}/entries", s.getEntries)
	return r
}

// SetPageSize changes the catalog page size.
func (s *Server) SetPageSize(n int) {
	s.mu.Lock()
	s.pageSize = n
	s.mu.Unlock()
}

// SetFailure installs a failure hook; nil clears it.
func (s *Server) SetFailure(fn FailFunc) {
	s.mu.Lock()
	s.fail = fn
	s.mu.Unlock()
}

// AddBlocklist registers a catalog entry and returns it with an id assigned.
func (s *Server) AddBlocklist(b domain.Blocklist) domain.Blocklist {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	s.blocklists = append(s.blocklists, b)
	if s.periods[b.ID] == nil {
		s.periods[b.ID] = make(map[domain.Domain][]*period)
	}
	return b
}

// SeedVersion stores v as-is (assigning an id when missing), bypassing the API.
func (s *Server) SeedVersion(v domain.Version, domains ...string) domain.Version {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v.ID == uuid.Nil {
		v.ID = uuid.New()
	}
	s.insertVersion(v)
	for _, d := range domains {
		s.open(v.BlocklistID, domain.Domain(d), s.seq[v.ID])
	}
	return v
}

// Versions returns a blocklist's versions in creation order.
func (s *Server) Versions(blocklistID uuid.UUID) []domain.Version {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Version
	for _, v := range s.versions {
		if v.BlocklistID == blocklistID {
			out = append(out, v)
		}
	}
	return out
}

// Domains returns the sorted domains open as of a version.
func (s *Server) Domains(versionID uuid.UUID) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.domainsAt(versionID)
}

// Calls returns a copy of the recorded requests.
func (s *Server) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.calls)
}

// CountCalls counts recorded requests matching method and a path prefix.
func (s *Server) CountCalls(method, pathPrefix string) int {
	n := 0
	for _, c := range s.Calls() {
		if c.Method == method && strings.HasPrefix(c.Path, pathPrefix) {
			n++
		}
	}
	return n
}

func (s *Server) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body := readBody(r)
		s.mu.Lock()
		s.calls = append(s.calls, Call{Method: r.Method, Path: r.URL.Path, Query: r.URL.RawQuery, Body: string(body)})
		fail := s.fail
		s.mu.Unlock()
		if fail != nil {
			if status := fail(r, body); status != 0 {
				http.Error(w, "injected failure", status)
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) auth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization-Token") != s.token {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) listBlocklists(w http.ResponseWriter, r *http.Request) {
	page, err := strconv.Atoi(r.URL.Query().Get("page"))
	if err != nil || page < 0 {
		http.Error(w, "bad page", http.StatusBadRequest)
		return
	}
	s.mu.Lock()
	from := min(page*s.pageSize, len(s.blocklists))
	to := min(from+s.pageSize, len(s.blocklists))
	items := slices.Clone(s.blocklists[from:to])
	s.mu.Unlock()
	if items == nil {
		items = []domain.Blocklist{}
	}
	writeJSON(w, http.StatusOK, items)
}

func (s *Server) getBlocklist(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, b := range s.blocklists {
		if b.ID == id {
			writeJSON(w, http.StatusOK, b)
			return
		}
	}
	http.Error(w, "blocklist not found", http.StatusNotFound)
}

func (s *Server) listVersions(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}
	s.mu.Lock()
	out := []domain.Version{}
	for i := len(s.versions) - 1; i >= 0; i-- {
		if s.versions[i].BlocklistID == id {
			out = append(out, s.versions[i])
		}
	}
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) createVersion(w http.ResponseWriter, r *http.Request) {
	var v domain.Version
	if err := json.Unmarshal(readBody(r), &v); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if (r.URL.Query().Get("historical") == "true") != v.IsHistorical() {
		http.Error(w, "historical flag does not match createdOn", http.StatusBadRequest)
		return
	}
	s.mu.Lock()
	v.ID = uuid.New()
	if v.CreatedOn == nil {
		now := s.now()
		v.CreatedOn = &now
	}
	if v.LastSeen == nil {
		v.LastSeen = v.CreatedOn
	}
	s.insertVersion(v)
	s.mu.Unlock()
	writeJSON(w, http.StatusCreated, v)
}

func (s *Server) updateVersion(w http.ResponseWriter, r *http.Request) {
	var v domain.Version
	if err := json.Unmarshal(readBody(r), &v); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.versions {
		if s.versions[i].ID == v.ID {
			s.versions[i] = v
			writeJSON(w, http.StatusOK, v)
			return
		}
	}
	http.Error(w, "version not found", http.StatusNotFound)
}

func (s *Server) deleteVersion(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := slices.IndexFunc(s.versions, func(v domain.Version) bool { return v.ID == id })
	if idx < 0 {
		http.Error(w, "version not found", http.StatusNotFound)
		return
	}
	v := s.versions[idx]
	seq := s.seq[id]
	s.versions = slices.Delete(s.versions, idx, idx+1)
	delete(s.seq, id)
	for d, ps := range s.periods[v.BlocklistID] {
		ps = slices.DeleteFunc(ps, func(p *period) bool { return p.start == seq })
		if len(ps) == 0 {
			delete(s.periods[v.BlocklistID], d)
			continue
		}
		s.periods[v.BlocklistID][d] = ps
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) bulkCreate(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}
	var names []string
	if err := json.Unmarshal(readBody(r), &names); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	v, found := s.version(id)
	if !found {
		http.Error(w, "version not found", http.StatusNotFound)
		return
	}
	for _, n := range names {
		s.open(v.BlocklistID, domain.Domain(n), s.seq[id])
	}
	w.WriteHeader(http.StatusCreated)
}

func (s *Server) getEntries(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}
	s.mu.Lock()
	_, found := s.version(id)
	domains := s.domainsAt(id)
	s.mu.Unlock()
	if !found {
		http.Error(w, "version not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	for _, d := range domains {
		_, _ = w.Write([]byte(d + "\n"))
	}
}

func (s *Server) openPeriod(w http.ResponseWriter, r *http.Request) {
	s.mutatePeriod(w, r, func(blocklistID uuid.UUID, d domain.Domain, seq int) {
		s.open(blocklistID, d, seq)
	})
}

func (s *Server) closePeriod(w http.ResponseWriter, r *http.Request) {
	s.mutatePeriod(w, r, func(blocklistID uuid.UUID, d domain.Domain, seq int) {
		ps := s.periods[blocklistID][d]
		for i := len(ps) - 1; i >= 0; i-- {
			if ps[i].start <= seq {
				ps[i].end = seq
				return
			}
		}
	})
}

func (s *Server) mutatePeriod(w http.ResponseWriter, r *http.Request, apply func(uuid.UUID, domain.Domain, int)) {
	blocklistID, ok := parseID(w, chi.URLParam(r, "blocklistID"))
	if !ok {
		return
	}
	versionID, ok := parseID(w, chi.URLParam(r, "versionID"))
	if !ok {
		return
	}
	var name string
	if err := json.Unmarshal(readBody(r), &name); err != nil || name == "" {
		http.Error(w, "body must be one domain", http.StatusBadRequest)
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	v, found := s.version(versionID)
	if !found || v.BlocklistID != blocklistID {
		http.Error(w, "version not found", http.StatusNotFound)
		return
	}
	apply(blocklistID, domain.Domain(name), s.seq[versionID])
	w.WriteHeader(http.StatusCreated)
}

// open starts a period unless one is already open.
func (s *Server) open(blocklistID uuid.UUID, d domain.Domain, seq int) {
	if s.periods[blocklistID] == nil {
		s.periods[blocklistID] = make(map[domain.Domain][]*period)
	}
	ps := s.periods[blocklistID][d]
	if n := len(ps); n > 0 && ps[n-1].end == 0 {
		return
	}
	s.periods[blocklistID][d] = append(ps, &period{start: seq})
}

func (s *Server) insertVersion(v domain.Version) {
	s.nextSeq++
	s.seq[v.ID] = s.nextSeq
	s.versions = append(s.versions, v)
}

func (s *Server) version(id uuid.UUID) (domain.Version, bool) {
	for _, v := range s.versions {
		if v.ID == id {
			return v, true
		}
	}
	return domain.Version{}, false
}

func (s *Server) domainsAt(versionID uuid.UUID) []string {
	v, ok := s.version(versionID)
	if !ok {
		return nil
	}
	seq := s.seq[versionID]
	var out []string
	for d, ps := range s.periods[v.BlocklistID] {
		for _, p := range ps {
			if p.start <= seq && (p.end == 0 || p.end >= seq) {
				out = append(out, string(d))
				break
			}
		}
	}
	slices.Sort(out)
	return out
}

// readBody drains the request body and replaces it so later handlers can read it again.
func readBody(r *http.Request) []byte {
	if r.Body == nil {
		return nil
	}
	raw, _ := io.ReadAll(r.Body)
	_ = r.Body.Close()
	r.Body = io.NopCloser(bytes.NewReader(raw))
	return raw
}

func parseID(w http.ResponseWriter, raw string) (uuid.UUID, bool) {
	id, err := uuid.Parse(raw)
	if err != nil {
		http.Error(w, "bad id", http.StatusBadRequest)
		return uuid.Nil, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
