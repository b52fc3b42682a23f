// Package remote reads chain state from a node, one block at a time.
package remote

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/substrate-debug-kit/offline-election/common"
	"github.com/substrate-debug-kit/offline-election/log"
	"github.com/substrate-debug-kit/offline-election/storage"
	"github.com/substrate-debug-kit/offline-election/storage/keys"
	"github.com/substrate-debug-kit/offline-election/storage/nodeapi"
)

// DefaultPageSize is the page size of paged enumeration. Substrate nodes cap
// state_getKeysPaged at 1000 keys.
const DefaultPageSize = 1000

// Options configures enumeration.
type Options struct {
	// Paged switches Pairs from state_getPairs to state_getKeysPaged.
	Paged bool
	// PageSize defaults to DefaultPageSize.
	PageSize uint32
	// MaxKeys caps paged enumeration. Zero means unlimited.
	MaxKeys int
}

// Client reads storage from a node.
type Client struct {
	api    nodeapi.StateApiLite
	logger *log.Logger
	opts   Options
}

func NewClient(api nodeapi.StateApiLite, logger *log.Logger, opts Options) *Client {
	if opts.PageSize == 0 {
		opts.PageSize = DefaultPageSize
	}
	return &Client{api: api, logger: logger.WithModule("remote"), opts: opts}
}

// API exposes the underlying node API.
func (c *Client) API() nodeapi.StateApiLite {
	return c.api
}

// ResolveBlock turns "" (finalized head), a block number or a block hash
// into a block hash.
func (c *Client) ResolveBlock(ctx context.Context, at string) (common.Hash, error) {
	switch {
	case at == "":
		return c.api.FinalizedHead(ctx)
	case strings.HasPrefix(at, "0x"):
		return common.HashFromHex(at)
	default:
		number, err := strconv.ParseUint(at, 10, 64)
		if err != nil {
			return common.Hash{}, fmt.Errorf("block %q is neither a hash nor a number", at)
		}
		return c.api.BlockHash(ctx, number)
	}
}

// GetPairs enumerates all entries under prefix in one request.
func (c *Client) GetPairs(ctx context.Context, prefix keys.StorageKey, at common.Hash) ([]storage.KeyValue, error) {
	pairs, err := c.api.Pairs(ctx, prefix, at)
	if err != nil {
		return nil, err
	}
	return pairs, nil
}

// GetPairsPaged enumerates entries under prefix pageSize keys at a time,
// each page starting after the last key of the previous one. It stops after
// a short page or once maxKeys (if non-zero) keys have been collected.
func (c *Client) GetPairsPaged(ctx context.Context, prefix keys.StorageKey, at common.Hash, pageSize uint32, maxKeys int) ([]storage.KeyValue, error) {
	if pageSize == 0 {
		return nil, fmt.Errorf("page size must be positive")
	}
	var (
		out       []storage.KeyValue
		lastKey   keys.StorageKey
		pageCount int
	)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		count := pageSize
		if maxKeys > 0 && maxKeys-len(out) < int(count) {
			count = uint32(maxKeys - len(out))
		}
		page, err := c.api.KeysPaged(ctx, prefix, count, lastKey, at)
		if err != nil {
			return nil, err
		}
		pageCount++
		for _, k := range page {
			if !k.HasPrefix(prefix) {
				return nil, fmt.Errorf("node returned key %s outside of prefix %s", k, prefix)
			}
			if lastKey != nil && bytes.Compare(k, lastKey) <= 0 {
				return nil, fmt.Errorf("node returned key %s out of order after %s", k, lastKey)
			}
			lastKey = k
		}

		values, err := c.api.StorageBatch(ctx, page, at)
		if err != nil {
			return nil, err
		}
		for i, k := range page {
			if values[i] == nil {
				// Listed but absent: only possible with a broken node.
				c.logger.Warn("paged key has no value", "key", k)
				continue
			}
			out = append(out, storage.KeyValue{Key: k, Value: values[i]})
		}

		if uint32(len(page)) < count || (maxKeys > 0 && len(out) >= maxKeys) {
			break
		}
	}
	c.logger.Debug("paged enumeration done", "prefix", prefix, "keys", len(out), "pages", pageCount)
	return out, nil
}

// Enumerate lists entries under prefix using the configured strategy.
func (c *Client) Enumerate(ctx context.Context, prefix keys.StorageKey, at common.Hash) ([]storage.KeyValue, error) {
	if c.opts.Paged {
		return c.GetPairsPaged(ctx, prefix, at, c.opts.PageSize, c.opts.MaxKeys)
	}
	return c.GetPairs(ctx, prefix, at)
}

// At returns a reader over live state at block `at`.
func (c *Client) At(at common.Hash) storage.Reader {
	return &blockReader{client: c, at: at}
}

type blockReader struct {
	client *Client
	at     common.Hash
}

func (r *blockReader) Get(ctx context.Context, key keys.StorageKey) ([]byte, bool, error) {
	return r.client.api.Storage(ctx, key, r.at)
}

func (r *blockReader) Pairs(ctx context.Context, prefix keys.StorageKey) ([]storage.KeyValue, error) {
	return r.client.Enumerate(ctx, prefix, r.at)
}
