// Callsync - Telephony Call Mirroring for CRM Tables
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/callsync

// Package destination writes call records to the CRM table store and reads
// its customer directory.
//
// The store speaks an Airtable-style REST dialect:
//
//	GET   {base}/{baseID}/{table}?pageSize=100&offset=...     list records
//	PATCH {base}/{baseID}/{table}                             batch upsert
//	      {"performUpsert": {"fieldsToMergeOn": ["Call ID"]}, "records": [{"fields": {...}}]}
//
// Batch writes accept at most 10 records and the store enforces a
// requests-per-second ceiling per base.
package destination

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/goccy/go-json"

	"github.com/tomtom215/callsync/internal/config"
	"github.com/tomtom215/callsync/internal/remote"
)

// MaxBatchSize is the store's per-request record limit.
const MaxBatchSize = 10

const (
	serviceName  = "table-store"
	listPageSize = 100
)

// Fields is one record's column values keyed by column name.
type Fields map[string]interface{}

// Record is a stored row.
type Record struct {
	ID     string `json:"id"`
	Fields Fields `json:"fields"`
}

// RecordPage is one page of a list request.
type RecordPage struct {
	Records []Record `json:"records"`
	Offset  string   `json:"offset,omitempty"`
}

// UpsertResult reports which rows a batch created and which it updated.
type UpsertResult struct {
	Records        []Record `json:"records"`
	CreatedRecords []string `json:"createdRecords"`
	UpdatedRecords []string `json:"updatedRecords"`
}

// Upserter writes batches keyed on merge fields.
type Upserter interface {
	UpsertRecords(ctx context.Context, table string, mergeOn []string, records []Fields) (UpsertResult, error)
}

// Lister reads a table page by page.
type Lister interface {
	ListRecords(ctx context.Context, table string, fields []string, offset string) (RecordPage, error)
}

// TableClient is the HTTP client for the table store.
type TableClient struct {
	baseURL string
	baseID  string
	token   string
	http    *http.Client
	breaker *remote.Breaker
}

// NewTableClient creates a table store client.
func NewTableClient(cfg config.DestinationConfig) *TableClient {
	return &TableClient{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		baseID:  cfg.BaseID,
		token:   cfg.APIToken,
		http:    &http.Client{Timeout: cfg.Timeout},
		breaker: remote.NewBreaker(serviceName),
	}
}

func (c *TableClient) tableURL(table string) string {
	return fmt.Sprintf("%s/%s/%s", c.baseURL, url.PathEscape(c.baseID), url.PathEscape(table))
}

func (c *TableClient) do(ctx context.Context, req *http.Request, out interface{}) error {
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")
	_, err := remote.Execute(c.breaker, func() (struct{}, error) {
		return struct{}{}, remote.Do(ctx, c.http, serviceName, req, out)
	})
	return err
}

// ListRecords implements Lister.
func (c *TableClient) ListRecords(ctx context.Context, table string, fields []string, offset string) (RecordPage, error) {
	params := url.Values{}
	params.Set("pageSize", strconv.Itoa(listPageSize))
	for _, f := range fields {
		params.Add("fields[]", f)
	}
	if offset != "" {
		params.Set("offset", offset)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.tableURL(table)+"?"+params.Encode(), http.NoBody)
	if err != nil {
		return RecordPage{}, fmt.Errorf("create request failed: %w", err)
	}

	var page RecordPage
	if err := c.do(ctx, req, &page); err != nil {
		return RecordPage{}, err
	}
	return page, nil
}

type upsertRequest struct {
	PerformUpsert struct {
		FieldsToMergeOn []string `json:"fieldsToMergeOn"`
	} `json:"performUpsert"`
	Records  []upsertRecord `json:"records"`
	Typecast bool           `json:"typecast"`
}

type upsertRecord struct {
	Fields Fields `json:"fields"`
}

// UpsertRecords implements Upserter.
func (c *TableClient) UpsertRecords(ctx context.Context, table string, mergeOn []string, records []Fields) (UpsertResult, error) {
	if len(records) > MaxBatchSize {
		return UpsertResult{}, fmt.Errorf("batch of %d records exceeds limit of %d", len(records), MaxBatchSize)
	}

	body := upsertRequest{Records: make([]upsertRecord, len(records)), Typecast: true}
	body.PerformUpsert.FieldsToMergeOn = mergeOn
	for i, r := range records {
		body.Records[i] = upsertRecord{Fields: r}
	}
	data, err := json.Marshal(body)
	if err != nil {
		return UpsertResult{}, fmt.Errorf("encode upsert: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, c.tableURL(table), bytes.NewReader(data))
	if err != nil {
		return UpsertResult{}, fmt.Errorf("create request failed: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	var result UpsertResult
	if err := c.do(ctx, req, &result); err != nil {
		return UpsertResult{}, err
	}
	return result, nil
}
