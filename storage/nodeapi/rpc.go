package nodeapi

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common/hexutil"
	gethrpc "github.com/ethereum/go-ethereum/rpc"
	"golang.org/x/time/rate"

	"github.com/substrate-debug-kit/offline-election/common"
	"github.com/substrate-debug-kit/offline-election/metrics"
	"github.com/substrate-debug-kit/offline-election/storage"
	"github.com/substrate-debug-kit/offline-election/storage/keys"
)

// Maximum number of calls in one JSON-RPC batch. Substrate nodes reject
// larger batches by default.
const maxBatchSize = 256

// RPCStateApiLite implements StateApiLite over JSON-RPC (websocket or http).
type RPCStateApiLite struct {
	client  *gethrpc.Client
	limiter *rate.Limiter
	metrics *metrics.RPCMetrics // if nil, no metrics are emitted
}

var _ StateApiLite = (*RPCStateApiLite)(nil)

// Dial connects to the node at url. requestsPerSecond <= 0 disables throttling.
func Dial(ctx context.Context, url string, requestsPerSecond float64, m *metrics.RPCMetrics) (*RPCStateApiLite, error) {
	client, err := gethrpc.DialContext(ctx, url)
	if err != nil {
		return nil, &TransportError{Method: "dial", Err: fmt.Errorf("DialContext %s: %w", url, err)}
	}
	return NewRPCStateApiLite(client, requestsPerSecond, m), nil
}

// NewRPCStateApiLite wraps an existing client.
func NewRPCStateApiLite(client *gethrpc.Client, requestsPerSecond float64, m *metrics.RPCMetrics) *RPCStateApiLite {
	limiter := rate.NewLimiter(rate.Inf, 0)
	if requestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), 1)
	}
	return &RPCStateApiLite{client: client, limiter: limiter, metrics: m}
}

func (a *RPCStateApiLite) observe(method string, err error) {
	if a.metrics == nil {
		return
	}
	status := metrics.RPCStatusOK
	if err != nil {
		status = metrics.RPCStatusError
	}
	a.metrics.RequestCounter(method, status).Inc()
}

func (a *RPCStateApiLite) call(ctx context.Context, result interface{}, method string, args ...interface{}) error {
	if err := a.limiter.Wait(ctx); err != nil {
		return &TransportError{Method: method, Err: err}
	}
	if a.metrics != nil {
		timer := a.metrics.RequestTimer(method)
		defer timer.ObserveDuration()
	}
	err := a.client.CallContext(ctx, result, method, args...)
	a.observe(method, err)
	if err != nil {
		return &TransportError{Method: method, Err: err}
	}
	return nil
}

func (a *RPCStateApiLite) batchCall(ctx context.Context, label string, batch []gethrpc.BatchElem) error {
	if a.metrics != nil {
		timer := a.metrics.RequestTimer(label)
		defer timer.ObserveDuration()
	}
	err := a.client.BatchCallContext(ctx, batch)
	a.observe(label, err)
	return err
}

func optionalKey(k keys.StorageKey) interface{} {
	if len(k) == 0 {
		return nil
	}
	return hexutil.Bytes(k)
}

func (a *RPCStateApiLite) FinalizedHead(ctx context.Context) (common.Hash, error) {
	var h common.Hash
	err := a.call(ctx, &h, "chain_getFinalizedHead")
	return h, err
}

func (a *RPCStateApiLite) BlockHash(ctx context.Context, number uint64) (common.Hash, error) {
	var h *common.Hash
	if err := a.call(ctx, &h, "chain_getBlockHash", number); err != nil {
		return common.Hash{}, err
	}
	if h == nil {
		return common.Hash{}, &TransportError{Method: "chain_getBlockHash", Err: fmt.Errorf("block %d not found", number)}
	}
	return *h, nil
}

func (a *RPCStateApiLite) Storage(ctx context.Context, key keys.StorageKey, at common.Hash) ([]byte, bool, error) {
	var res *hexutil.Bytes
	if err := a.call(ctx, &res, "state_getStorage", hexutil.Bytes(key), at); err != nil {
		return nil, false, err
	}
	if res == nil {
		return nil, false, nil
	}
	return []byte(*res), true, nil
}

func (a *RPCStateApiLite) StorageBatch(ctx context.Context, ks []keys.StorageKey, at common.Hash) ([][]byte, error) {
	const method = "state_getStorage"
	out := make([][]byte, len(ks))
	for start := 0; start < len(ks); start += maxBatchSize {
		end := start + maxBatchSize
		if end > len(ks) {
			end = len(ks)
		}
		results := make([]*hexutil.Bytes, end-start)
		batch := make([]gethrpc.BatchElem, end-start)
		for i := range batch {
			batch[i] = gethrpc.BatchElem{
				Method: method,
				Args:   []interface{}{hexutil.Bytes(ks[start+i]), at},
				Result: &results[i],
			}
		}
		if err := a.limiter.Wait(ctx); err != nil {
			return nil, &TransportError{Method: method, Err: err}
		}
		err := a.batchCall(ctx, method+"_batch", batch)
		if err != nil {
			return nil, &TransportError{Method: method, Err: err}
		}
		for i, elem := range batch {
			if elem.Error != nil {
				return nil, &TransportError{Method: method, Err: fmt.Errorf("key %s: %w", ks[start+i], elem.Error)}
			}
			if results[i] != nil {
				out[start+i] = []byte(*results[i])
			}
		}
	}
	return out, nil
}

func (a *RPCStateApiLite) Pairs(ctx context.Context, prefix keys.StorageKey, at common.Hash) ([]storage.KeyValue, error) {
	var res [][2]hexutil.Bytes
	if err := a.call(ctx, &res, "state_getPairs", hexutil.Bytes(prefix), at); err != nil {
		return nil, err
	}
	out := make([]storage.KeyValue, 0, len(res))
	for _, kv := range res {
		out = append(out, storage.KeyValue{Key: keys.StorageKey(kv[0]), Value: []byte(kv[1])})
	}
	return out, nil
}

func (a *RPCStateApiLite) KeysPaged(ctx context.Context, prefix keys.StorageKey, count uint32, startAfter keys.StorageKey, at common.Hash) ([]keys.StorageKey, error) {
	var res []hexutil.Bytes
	if err := a.call(ctx, &res, "state_getKeysPaged", hexutil.Bytes(prefix), count, optionalKey(startAfter), at); err != nil {
		return nil, err
	}
	out := make([]keys.StorageKey, 0, len(res))
	for _, k := range res {
		out = append(out, keys.StorageKey(k))
	}
	return out, nil
}

func (a *RPCStateApiLite) RuntimeVersion(ctx context.Context, at common.Hash) (*RuntimeVersion, error) {
	var v RuntimeVersion
	if err := a.call(ctx, &v, "state_getRuntimeVersion", at); err != nil {
		return nil, err
	}
	return &v, nil
}

func (a *RPCStateApiLite) Metadata(ctx context.Context, at common.Hash) ([]byte, error) {
	var res hexutil.Bytes
	if err := a.call(ctx, &res, "state_getMetadata", at); err != nil {
		return nil, err
	}
	return res, nil
}

func (a *RPCStateApiLite) Close() {
	a.client.Close()
}
