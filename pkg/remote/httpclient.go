package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/google/uuid"

	"github.com/mediasync/libsync/pkg/chunk"
	"github.com/mediasync/libsync/pkg/hlc"
	"github.com/mediasync/libsync/pkg/syncerr"
	"github.com/mediasync/libsync/pkg/syncrecord"
)

// TableRegistry resolves a table name to the syncrecord.Table that knows
// how to encode/decode that table's concrete entity kind on the wire,
// the "tagged dispatch table keyed by table name" of spec.md §9.
type TableRegistry interface {
	Table(name string) (syncrecord.Table, error)
}

// HTTPClient implements DataSource over the logical peer endpoints of
// spec.md §6, bound to plain net/http + encoding/json (the teacher
// prefers stdlib transport over a web framework throughout its own
// pkg/transport/{tcp,quic}).
type HTTPClient struct {
	baseURL    string
	httpClient *http.Client
	registry   TableRegistry
}

// NewHTTPClient creates a client for the peer at baseURL (e.g.
// "https://peer.example:8443"), using registry to encode/decode records
// per table.
func NewHTTPClient(baseURL string, httpClient *http.Client, registry TableRegistry) *HTTPClient {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &HTTPClient{baseURL: baseURL, httpClient: httpClient, registry: registry}
}

func (c *HTTPClient) RemoteNodeID(ctx context.Context) (uuid.UUID, error) {
	var resp wireNodeIDResponse
	if err := c.get(ctx, "/node-id", &resp); err != nil {
		return uuid.UUID{}, err
	}
	return resp.NodeID, nil
}

func (c *HTTPClient) Chunks(ctx context.Context, table string, afterHLC hlc.HLC) ([]chunk.Chunk, error) {
	q := url.Values{}
	q.Set("after_hlc_ts", strconv.FormatUint(afterHLC.TimestampMS, 10))
	q.Set("after_hlc_ver", strconv.FormatUint(uint64(afterHLC.Version), 10))
	q.Set("after_hlc_nid", afterHLC.NodeID.String())

	var resp wireChunksResponse
	path := fmt.Sprintf("/tables/%s/chunks?%s", url.PathEscape(table), q.Encode())
	if err := c.get(ctx, path, &resp); err != nil {
		return nil, err
	}
	return resp.Chunks, nil
}

func (c *HTTPClient) SubChunks(ctx context.Context, table string, parent chunk.Chunk, subSize int) ([]chunk.SubChunk, error) {
	reqBody := wireSubChunksRequest{ParentChunk: parent, SubChunkSize: subSize}
	var resp wireSubChunksResponse
	path := fmt.Sprintf("/tables/%s/sub-chunks", url.PathEscape(table))
	if err := c.post(ctx, path, reqBody, &resp); err != nil {
		return nil, err
	}
	return resp.SubChunks, nil
}

func (c *HTTPClient) RecordsInRange(ctx context.Context, table string, start, end hlc.HLC) ([]syncrecord.Record, error) {
	t, err := c.registry.Table(table)
	if err != nil {
		return nil, syncerr.NewMalformedInput(table, "client has no table registration", err)
	}

	q := url.Values{}
	q.Set("start_hlc_ts", strconv.FormatUint(start.TimestampMS, 10))
	q.Set("start_hlc_ver", strconv.FormatUint(uint64(start.Version), 10))
	q.Set("start_hlc_nid", start.NodeID.String())
	q.Set("end_hlc_ts", strconv.FormatUint(end.TimestampMS, 10))
	q.Set("end_hlc_ver", strconv.FormatUint(uint64(end.Version), 10))
	q.Set("end_hlc_nid", end.NodeID.String())

	var resp wireRecordsResponse
	path := fmt.Sprintf("/tables/%s/records?%s", url.PathEscape(table), q.Encode())
	if err := c.get(ctx, path, &resp); err != nil {
		return nil, err
	}

	records := make([]syncrecord.Record, len(resp.Records))
	for i, raw := range resp.Records {
		rec, err := t.DecodeWire(raw)
		if err != nil {
			return nil, syncerr.NewDataInconsistency(table, "failed to decode remote record", err)
		}
		records[i] = rec
	}
	return records, nil
}

func (c *HTTPClient) ApplyChanges(ctx context.Context, table string, ops []syncrecord.Operation, clientNodeID uuid.UUID, newLastSyncHLC hlc.HLC) (hlc.HLC, error) {
	t, err := c.registry.Table(table)
	if err != nil {
		return hlc.HLC{}, syncerr.NewMalformedInput(table, "client has no table registration", err)
	}

	wireOps, err := encodeOperations(t, ops)
	if err != nil {
		return hlc.HLC{}, syncerr.NewMalformedInput(table, "failed to encode operations for apply", err)
	}

	reqBody := wireApplyChangesPayload{Operations: wireOps, ClientNodeID: clientNodeID, NewLastSyncHLC: newLastSyncHLC}
	var resp wireApplyResponse
	path := fmt.Sprintf("/tables/%s/changes", url.PathEscape(table))
	if err := c.post(ctx, path, reqBody, &resp); err != nil {
		return hlc.HLC{}, err
	}
	return resp.HLC, nil
}

func (c *HTTPClient) LastSyncHLC(ctx context.Context, table string, localNodeID uuid.UUID) (hlc.HLC, bool, error) {
	var resp wireLastSyncResponse
	path := fmt.Sprintf("/tables/%s/last-sync-hlc/%s", url.PathEscape(table), localNodeID.String())
	if err := c.get(ctx, path, &resp); err != nil {
		return hlc.HLC{}, false, err
	}
	if resp.LastSyncHLC == nil {
		return hlc.HLC{}, false, nil
	}
	return *resp.LastSyncHLC, true, nil
}

func (c *HTTPClient) get(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return syncerr.NewTransport("", "failed to build request", err)
	}
	return c.do(req, out)
}

func (c *HTTPClient) post(ctx context.Context, path string, body, out interface{}) error {
	data, err := json.Marshal(body)
	if err != nil {
		return syncerr.NewMalformedInput("", "failed to encode request body", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return syncerr.NewTransport("", "failed to build request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *HTTPClient) do(req *http.Request, out interface{}) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return syncerr.NewTransport("", fmt.Sprintf("request to %s failed", req.URL.Path), err)
	}
	defer resp.Body.Close()

	dec := json.NewDecoder(resp.Body)
	if resp.StatusCode >= 400 {
		var errResp wireErrorResponse
		if err := dec.Decode(&errResp); err == nil && errResp.Error != "" {
			return syncerr.NewTransport("", fmt.Sprintf("peer returned %d for %s: %s", resp.StatusCode, req.URL.Path, errResp.Error), nil)
		}
		return syncerr.NewTransport("", fmt.Sprintf("peer returned %d for %s", resp.StatusCode, req.URL.Path), nil)
	}

	if out == nil {
		return nil
	}
	if err := dec.Decode(out); err != nil {
		return syncerr.NewTransport("", fmt.Sprintf("failed to decode response for %s", req.URL.Path), err)
	}
	return nil
}
