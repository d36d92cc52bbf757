package remote

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/mediasync/libsync/pkg/chunk"
	"github.com/mediasync/libsync/pkg/hlc"
	"github.com/mediasync/libsync/pkg/syncrecord"
)

// wireOperation is the JSON-on-the-wire shape of syncrecord.Operation
// (spec.md §6 ApplyChangesPayload), carrying the record as an opaque
// table-specific blob so the transport layer never needs to know the
// concrete entity struct.
type wireOperation struct {
	Kind     syncrecord.OpKind    `json:"kind"`
	UniqueID string               `json:"unique_id"`
	Record   json.RawMessage      `json:"record,omitempty"`
	Fk       syncrecord.FkPayload `json:"fk_payload,omitempty"`
}

type wireApplyChangesPayload struct {
	Operations     []wireOperation `json:"operations"`
	ClientNodeID   uuid.UUID       `json:"client_node_id"`
	NewLastSyncHLC hlc.HLC         `json:"new_last_sync_hlc"`
}

type wireChunksResponse struct {
	Chunks []chunk.Chunk `json:"chunks"`
}

type wireSubChunksRequest struct {
	ParentChunk  chunk.Chunk `json:"parent_chunk"`
	SubChunkSize int         `json:"sub_chunk_size"`
}

type wireSubChunksResponse struct {
	SubChunks []chunk.SubChunk `json:"sub_chunks"`
}

type wireRecordsResponse struct {
	Records []json.RawMessage `json:"records"`
}

type wireNodeIDResponse struct {
	NodeID uuid.UUID `json:"node_id"`
}

type wireLastSyncResponse struct {
	LastSyncHLC *hlc.HLC `json:"last_sync_hlc"`
}

type wireApplyResponse struct {
	HLC hlc.HLC `json:"hlc"`
}

type wireErrorResponse struct {
	Error string `json:"error"`
}

func encodeOperations(table syncrecord.Table, ops []syncrecord.Operation) ([]wireOperation, error) {
	out := make([]wireOperation, len(ops))
	for i, op := range ops {
		w := wireOperation{Kind: op.Kind, UniqueID: op.UniqueID, Fk: op.Fk}
		if op.Record != nil {
			data, err := table.EncodeWire(op.Record)
			if err != nil {
				return nil, fmt.Errorf("remote: encode operation %d for table %s: %w", i, table.Name(), err)
			}
			w.Record = data
		}
		out[i] = w
	}
	return out, nil
}

func decodeOperations(table syncrecord.Table, wireOps []wireOperation) ([]syncrecord.Operation, error) {
	out := make([]syncrecord.Operation, len(wireOps))
	for i, w := range wireOps {
		op := syncrecord.Operation{Kind: w.Kind, UniqueID: w.UniqueID, Fk: w.Fk}
		if len(w.Record) > 0 {
			rec, err := table.DecodeWire(w.Record)
			if err != nil {
				return nil, fmt.Errorf("remote: decode operation %d for table %s: %w", i, table.Name(), err)
			}
			op.Record = rec
		}
		out[i] = op
	}
	return out, nil
}
