// Package nodeapi provides low-level access to the state RPC API of a
// Substrate node.
package nodeapi

import (
	"bytes"
	"context"
	"fmt"

	"github.com/substrate-debug-kit/offline-election/common"
	"github.com/substrate-debug-kit/offline-election/storage"
	"github.com/substrate-debug-kit/offline-election/storage/keys"
)

// StateApiLite provides low-level access to the state and chain RPC methods
// of a node.
//
// Each method corresponds to one JSON-RPC method. The interface only
// supports the methods needed to snapshot state at a block.
type StateApiLite interface {
	// FinalizedHead is chain_getFinalizedHead.
	FinalizedHead(ctx context.Context) (common.Hash, error)
	// BlockHash is chain_getBlockHash.
	BlockHash(ctx context.Context, number uint64) (common.Hash, error)
	// Storage is state_getStorage. found is false if the key is absent.
	Storage(ctx context.Context, key keys.StorageKey, at common.Hash) (value []byte, found bool, err error)
	// StorageBatch fetches many keys in one round trip. Absent keys have a
	// nil entry; present-but-empty values are non-nil.
	StorageBatch(ctx context.Context, ks []keys.StorageKey, at common.Hash) ([][]byte, error)
	// Pairs is state_getPairs. Nodes usually only allow it for trusted callers.
	Pairs(ctx context.Context, prefix keys.StorageKey, at common.Hash) ([]storage.KeyValue, error)
	// KeysPaged is state_getKeysPaged. It returns up to count keys under
	// prefix that are strictly greater than startAfter (nil for the first page).
	KeysPaged(ctx context.Context, prefix keys.StorageKey, count uint32, startAfter keys.StorageKey, at common.Hash) ([]keys.StorageKey, error)
	// RuntimeVersion is state_getRuntimeVersion.
	RuntimeVersion(ctx context.Context, at common.Hash) (*RuntimeVersion, error)
	// Metadata is state_getMetadata.
	Metadata(ctx context.Context, at common.Hash) ([]byte, error)
	// Close releases the connection.
	Close()
}

// RuntimeVersion is a subset of the runtime version reported by the node.
type RuntimeVersion struct {
	SpecName           string `json:"specName"`
	ImplName           string `json:"implName"`
	SpecVersion        uint32 `json:"specVersion"`
	ImplVersion        uint32 `json:"implVersion"`
	TransactionVersion uint32 `json:"transactionVersion"`
}

// LegacyMetadataVersion is the last metadata version whose runtimes keep
// maps in legacy linked maps keyed by "Module Item".
const LegacyMetadataVersion = 8

var metadataMagic = []byte("meta")

// MetadataVersion reads the version byte of an encoded metadata blob.
func MetadataVersion(raw []byte) (uint8, error) {
	if len(raw) < len(metadataMagic)+1 || !bytes.Equal(raw[:len(metadataMagic)], metadataMagic) {
		return 0, fmt.Errorf("metadata: missing magic prefix")
	}
	return raw[len(metadataMagic)], nil
}

// TransportError is a failure to talk to the node. It is never retried here.
type TransportError struct {
	Method string
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("rpc %s: %v", e.Method, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
