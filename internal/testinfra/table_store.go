// Callsync - Telephony Call Mirroring for CRM Tables
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/callsync

package testinfra

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"reflect"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
)

// StoredRecord is a row held by FakeTableStore.
type StoredRecord struct {
	ID     string                 `json:"id"`
	Fields map[string]interface{} `json:"fields"`
}

// RequestCapture is one request received by a fake server.
type RequestCapture struct {
	Method string
	Path   string
	Query  url.Values
	Header http.Header
	Body   []byte
	At     time.Time
}

// FakeTableStore is an in-memory table store. Upserts honor
// performUpsert.fieldsToMergeOn: a record whose merge fields equal an
// existing row updates that row, otherwise a new row is created.
type FakeTableStore struct {
	Server *httptest.Server
	BaseID string

	mu       sync.Mutex
	tables   map[string][]*StoredRecord
	nextID   int
	captures []RequestCapture
	failures []int

	// PageSize overrides the list page size when positive.
	PageSize int
}

// NewFakeTableStore starts a fake store for baseID and closes it when t ends.
func NewFakeTableStore(t *testing.T, baseID string) *FakeTableStore {
	t.Helper()

	s := &FakeTableStore{
		BaseID: baseID,
		tables: make(map[string][]*StoredRecord),
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.handle))
	t.Cleanup(s.Server.Close)
	return s
}

// URL returns the server URL.
func (s *FakeTableStore) URL() string {
	return s.Server.URL
}

// Seed inserts a row and returns its id.
func (s *FakeTableStore) Seed(table string, fields map[string]interface{}) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insertLocked(table, fields)
}

// Records returns a copy of table's rows in insertion order.
func (s *FakeTableStore) Records(table string) []StoredRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows := s.tables[table]
	out := make([]StoredRecord, len(rows))
	for i, r := range rows {
		fields := make(map[string]interface{}, len(r.Fields))
		for k, v := range r.Fields {
			fields[k] = v
		}
		out[i] = StoredRecord{ID: r.ID, Fields: fields}
	}
	return out
}

// FailNext makes the next len(statuses) requests fail with those statuses.
func (s *FakeTableStore) FailNext(statuses ...int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = append(s.failures, statuses...)
}

// Captures returns all requests received so far.
func (s *FakeTableStore) Captures() []RequestCapture {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]RequestCapture, len(s.captures))
	copy(out, s.captures)
	return out
}

// CountMethod returns how many requests used method.
func (s *FakeTableStore) CountMethod(method string) int {
	n := 0
	for _, c := range s.Captures() {
		if c.Method == method {
			n++
		}
	}
	return n
}

func (s *FakeTableStore) handle(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)

	s.mu.Lock()
	s.captures = append(s.captures, RequestCapture{
		Method: r.Method,
		Path:   r.URL.Path,
		Query:  r.URL.Query(),
		Header: r.Header.Clone(),
		Body:   body,
		At:     time.Now(),
	})
	if len(s.failures) > 0 {
		status := s.failures[0]
		s.failures = s.failures[1:]
		s.mu.Unlock()
		writeJSON(w, status, map[string]interface{}{"error": map[string]string{"type": "INJECTED_FAILURE"}})
		return
	}
	s.mu.Unlock()

	parts := strings.SplitN(strings.TrimPrefix(r.URL.Path, "/"), "/", 2)
	if len(parts) != 2 || parts[0] != s.BaseID {
		writeJSON(w, http.StatusNotFound, map[string]interface{}{"error": map[string]string{"type": "NOT_FOUND"}})
		return
	}
	table := parts[1]

	switch r.Method {
	case http.MethodGet:
		s.list(w, r, table)
	case http.MethodPatch:
		s.upsert(w, table, body)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *FakeTableStore) list(w http.ResponseWriter, r *http.Request, table string) {
	pageSize := s.PageSize
	if pageSize <= 0 {
		pageSize, _ = strconv.Atoi(r.URL.Query().Get("pageSize"))
	}
	if pageSize <= 0 {
		pageSize = 100
	}
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	s.mu.Lock()
	rows := s.tables[table]
	end := offset + pageSize
	if end > len(rows) {
		end = len(rows)
	}
	page := make([]StoredRecord, 0, pageSize)
	if offset < len(rows) {
		for _, row := range rows[offset:end] {
			page = append(page, *row)
		}
	}
	more := end < len(rows)
	s.mu.Unlock()

	resp := map[string]interface{}{"records": page}
	if more {
		resp["offset"] = strconv.Itoa(end)
	}
	writeJSON(w, http.StatusOK, resp)
}

type upsertBody struct {
	PerformUpsert *struct {
		FieldsToMergeOn []string `json:"fieldsToMergeOn"`
	} `json:"performUpsert"`
	Records []struct {
		Fields map[string]interface{} `json:"fields"`
	} `json:"records"`
}

func (s *FakeTableStore) upsert(w http.ResponseWriter, table string, body []byte) {
	var req upsertBody
	if err := json.Unmarshal(body, &req); err != nil || req.PerformUpsert == nil || len(req.PerformUpsert.FieldsToMergeOn) == 0 {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]interface{}{"error": map[string]string{"type": "INVALID_REQUEST_BODY"}})
		return
	}
	if len(req.Records) > 10 {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]interface{}{"error": map[string]string{"type": "TOO_MANY_RECORDS"}})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var created, updated []string
	records := make([]StoredRecord, 0, len(req.Records))
	for _, in := range req.Records {
		if row := s.findLocked(table, req.PerformUpsert.FieldsToMergeOn, in.Fields); row != nil {
			for k, v := range in.Fields {
				row.Fields[k] = v
			}
			updated = append(updated, row.ID)
			records = append(records, *row)
			continue
		}
		id := s.insertLocked(table, in.Fields)
		created = append(created, id)
		records = append(records, *s.tables[table][len(s.tables[table])-1])
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"records":        records,
		"createdRecords": created,
		"updatedRecords": updated,
	})
}

func (s *FakeTableStore) findLocked(table string, mergeOn []string, fields map[string]interface{}) *StoredRecord {
	for _, row := range s.tables[table] {
		match := true
		for _, key := range mergeOn {
			if !reflect.DeepEqual(row.Fields[key], fields[key]) {
				match = false
				break
			}
		}
		if match {
			return row
		}
	}
	return nil
}

func (s *FakeTableStore) insertLocked(table string, fields map[string]interface{}) string {
	s.nextID++
	id := fmt.Sprintf("rec%05d", s.nextID)
	copied := make(map[string]interface{}, len(fields))
	for k, v := range fields {
		copied[k] = v
	}
	s.tables[table] = append(s.tables[table], &StoredRecord{ID: id, Fields: copied})
	return id
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
