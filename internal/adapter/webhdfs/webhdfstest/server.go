// Package webhdfstest provides an in-memory WebHDFS namenode for tests.
package webhdfstest

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	apiPrefix      = "/webhdfs/v1"
	datanodePrefix = "/datanode"
)

type node struct {
	dir   bool
	data  []byte
	mtime time.Time
}

// Server is a fake namenode and datanode in one httptest server
type Server struct {
	*httptest.Server

	mu        sync.Mutex
	nodes     map[string]*node
	forbidden map[string]bool
	failOps   map[string]int
	calls     map[string]int
	concats   [][]string
}

// NewServer starts a fake cluster containing only "/"
func NewServer() *Server {
	s := &Server{
		nodes:     map[string]*node{"/": {dir: true, mtime: time.Now()}},
		forbidden: map[string]bool{},
		failOps:   map[string]int{},
		calls:     map[string]int{},
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.handle))
	return s
}

// HostPort returns the host and port of the server
func (s *Server) HostPort() (string, int) {
	u, _ := url.Parse(s.URL)
	port, _ := strconv.Atoi(u.Port())
	return u.Hostname(), port
}

// PutFile stores a file, creating parent directories
func (s *Server) PutFile(p string, data []byte, mtime time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mkdirs(path.Dir(p))
	s.nodes[p] = &node{data: append([]byte{}, data...), mtime: mtime}
}

// PutDir creates a directory and its parents
func (s *Server) PutDir(p string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mkdirs(p)
}

// File returns the content of p
func (s *Server) File(p string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.nodes[p]
	if !ok || n.dir {
		return nil, false
	}
	return append([]byte{}, n.data...), true
}

// Exists reports whether p is present
func (s *Server) Exists(p string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.nodes[p]
	return ok
}

// Forbid makes every operation on p and below answer AccessControlException
func (s *Server) Forbid(p string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.forbidden[p] = true
}

// FailNext makes the next n calls of op answer 500
func (s *Server) FailNext(op string, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failOps[op] = n
}

// Calls returns how many times op reached the namenode
func (s *Server) Calls(op string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[op]
}

// Concats returns the source lists of every successful CONCAT
func (s *Server) Concats() [][]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]string{}, s.concats...)
}

func (s *Server) mkdirs(p string) {
	for cur := p; ; cur = path.Dir(cur) {
		if _, ok := s.nodes[cur]; !ok {
			s.nodes[cur] = &node{dir: true, mtime: time.Now()}
		}
		if cur == "/" {
			return
		}
	}
}

func (s *Server) isForbidden(p string) bool {
	for f := range s.forbidden {
		if p == f || strings.HasPrefix(p, f+"/") {
			return true
		}
	}
	return false
}

func (s *Server) children(p string) []string {
	var out []string
	prefix := strings.TrimSuffix(p, "/") + "/"
	for k := range s.nodes {
		if k != "/" && strings.HasPrefix(k, prefix) && !strings.Contains(k[len(prefix):], "/") {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}

func (s *Server) status(p string, n *node, suffix string) map[string]any {
	st := map[string]any{
		"accessTime":       n.mtime.UnixMilli(),
		"childrenNum":      0,
		"group":            "supergroup",
		"length":           len(n.data),
		"modificationTime": n.mtime.UnixMilli(),
		"owner":            "hdfs",
		"pathSuffix":       suffix,
		"permission":       "644",
		"replication":      3,
		"type":             "FILE",
	}
	if n.dir {
		st["type"] = "DIRECTORY"
		st["length"] = 0
		st["permission"] = "755"
		st["replication"] = 0
		st["childrenNum"] = len(s.children(p))
	}
	return st
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func remoteError(w http.ResponseWriter, code int, exception, msg string) {
	writeJSON(w, code, map[string]any{
		"RemoteException": map[string]string{
			"exception":     exception,
			"javaClassName": "org.apache.hadoop." + exception,
			"message":       msg,
		},
	})
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	op := strings.ToUpper(q.Get("op"))

	if strings.HasPrefix(r.URL.Path, datanodePrefix) {
		s.handleData(w, r, strings.TrimPrefix(r.URL.Path, datanodePrefix), op, q)
		return
	}
	if !strings.HasPrefix(r.URL.Path, apiPrefix) {
		http.NotFound(w, r)
		return
	}
	p := path.Clean("/" + strings.TrimPrefix(r.URL.Path, apiPrefix))

	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[op]++

	if s.failOps[op] > 0 {
		s.failOps[op]--
		remoteError(w, http.StatusInternalServerError, "IOException", "injected failure")
		return
	}
	if s.isForbidden(p) {
		remoteError(w, http.StatusForbidden, "AccessControlException", "Permission denied: "+p)
		return
	}

	n, exists := s.nodes[p]
	notFound := func() {
		remoteError(w, http.StatusNotFound, "FileNotFoundException", "File does not exist: "+p)
	}

	switch op {
	case "GETFILESTATUS":
		if !exists {
			notFound()
			return
		}
		writeJSON(w, 200, map[string]any{"FileStatus": s.status(p, n, "")})

	case "LISTSTATUS":
		if !exists {
			notFound()
			return
		}
		var list []map[string]any
		if n.dir {
			for _, c := range s.children(p) {
				list = append(list, s.status(c, s.nodes[c], path.Base(c)))
			}
		} else {
			list = append(list, s.status(p, n, ""))
		}
		writeJSON(w, 200, map[string]any{"FileStatuses": map[string]any{"FileStatus": list}})

	case "MKDIRS":
		if exists && !n.dir {
			remoteError(w, http.StatusForbidden, "FileAlreadyExistsException", p)
			return
		}
		s.mkdirs(p)
		writeJSON(w, 200, map[string]bool{"boolean": true})

	case "CREATE":
		if exists && q.Get("overwrite") != "true" {
			remoteError(w, http.StatusForbidden, "FileAlreadyExistsException", p)
			return
		}
		s.redirect(w, r, p)

	case "APPEND":
		if !exists {
			notFound()
			return
		}
		s.redirect(w, r, p)

	case "OPEN":
		if !exists {
			notFound()
			return
		}
		offset, _ := strconv.ParseInt(q.Get("offset"), 10, 64)
		length, _ := strconv.ParseInt(q.Get("length"), 10, 64)
		if offset >= int64(len(n.data)) && !(offset == 0 && len(n.data) == 0) {
			remoteError(w, http.StatusForbidden, "IOException",
				fmt.Sprintf("Offset=%d out of the range [0, %d]", offset, len(n.data)))
			return
		}
		end := offset + length
		if length <= 0 || end > int64(len(n.data)) {
			end = int64(len(n.data))
		}
		w.WriteHeader(200)
		w.Write(n.data[offset:end])

	case "DELETE":
		if !exists {
			writeJSON(w, 200, map[string]bool{"boolean": false})
			return
		}
		if n.dir && len(s.children(p)) > 0 && q.Get("recursive") != "true" {
			remoteError(w, http.StatusForbidden, "PathIsNotEmptyDirectoryException", p+" is non empty")
			return
		}
		for k := range s.nodes {
			if k == p || strings.HasPrefix(k, p+"/") {
				delete(s.nodes, k)
			}
		}
		writeJSON(w, 200, map[string]bool{"boolean": true})

	case "RENAME":
		dst := q.Get("destination")
		if _, taken := s.nodes[dst]; !exists || taken {
			writeJSON(w, 200, map[string]bool{"boolean": false})
			return
		}
		moved := map[string]*node{}
		for k, v := range s.nodes {
			if k == p || strings.HasPrefix(k, p+"/") {
				moved[dst+strings.TrimPrefix(k, p)] = v
				delete(s.nodes, k)
			}
		}
		for k, v := range moved {
			s.nodes[k] = v
		}
		writeJSON(w, 200, map[string]bool{"boolean": true})

	case "CONCAT":
		if !exists {
			notFound()
			return
		}
		sources := strings.Split(q.Get("sources"), ",")
		for _, src := range sources {
			if _, ok := s.nodes[src]; !ok {
				remoteError(w, http.StatusNotFound, "FileNotFoundException", "File does not exist: "+src)
				return
			}
		}
		for _, src := range sources {
			n.data = append(n.data, s.nodes[src].data...)
			delete(s.nodes, src)
		}
		n.mtime = time.Now()
		s.concats = append(s.concats, sources)
		w.WriteHeader(200)

	case "TRUNCATE":
		if !exists {
			notFound()
			return
		}
		size, _ := strconv.Atoi(q.Get("newlength"))
		if size < len(n.data) {
			n.data = n.data[:size]
		}
		writeJSON(w, 200, map[string]bool{"boolean": true})

	case "SETTIMES":
		if !exists {
			notFound()
			return
		}
		if ms, err := strconv.ParseInt(q.Get("modificationtime"), 10, 64); err == nil {
			n.mtime = time.UnixMilli(ms)
		}
		w.WriteHeader(200)

	default:
		remoteError(w, http.StatusBadRequest, "IllegalArgumentException", "Invalid value for webhdfs parameter \"op\": "+op)
	}
}

func (s *Server) redirect(w http.ResponseWriter, r *http.Request, p string) {
	u := *r.URL
	u.Scheme = "http"
	u.Host = r.Host
	u.Path = datanodePrefix + p
	w.Header().Set("Location", u.String())
	w.WriteHeader(http.StatusTemporaryRedirect)
}

func (s *Server) handleData(w http.ResponseWriter, r *http.Request, p, op string, q url.Values) {
	buf, err := io.ReadAll(r.Body)
	if err != nil {
		remoteError(w, http.StatusBadRequest, "IOException", err.Error())
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	switch op {
	case "CREATE":
		s.mkdirs(path.Dir(p))
		s.nodes[p] = &node{data: buf, mtime: time.Now()}
		w.WriteHeader(http.StatusCreated)
	case "APPEND":
		n, ok := s.nodes[p]
		if !ok {
			remoteError(w, http.StatusNotFound, "FileNotFoundException", "File does not exist: "+p)
			return
		}
		n.data = append(n.data, buf...)
		n.mtime = time.Now()
		w.WriteHeader(http.StatusOK)
	default:
		remoteError(w, http.StatusBadRequest, "IllegalArgumentException", "unexpected datanode op "+op)
	}
}
