// Package nodetest runs an in-process JSON-RPC node serving fixture state.
package nodetest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/ethereum/go-ethereum/common/hexutil"
	gethrpc "github.com/ethereum/go-ethereum/rpc"

	"github.com/substrate-debug-kit/offline-election/common"
	"github.com/substrate-debug-kit/offline-election/storage/nodeapi"
	"github.com/substrate-debug-kit/offline-election/storage/testutil"
)

// ErrUnsafe is returned by state_getPairs when RefusePairs is set.
var ErrUnsafe = errors.New("RPC call is unsafe to be called externally")

// FakeNode serves State at block Head.
type FakeNode struct {
	State   *testutil.MemoryState
	Head    common.Hash
	Version nodeapi.RuntimeVersion
	// MetadataVersion follows the "meta" magic in state_getMetadata.
	MetadataVersion uint8

	// RefusePairs makes state_getPairs fail like a public node does.
	RefusePairs bool
	// BeforeKeysPaged, if set, runs before every state_getKeysPaged call.
	BeforeKeysPaged func()

	PairsCalls     atomic.Int64
	KeysPagedCalls atomic.Int64
	StorageCalls   atomic.Int64

	server *gethrpc.Server
}

func New(state *testutil.MemoryState, specName string) *FakeNode {
	var head common.Hash
	head[0], head[31] = 0xaa, 0x01
	n := &FakeNode{
		State:   state,
		Head:    head,
		Version: nodeapi.RuntimeVersion{SpecName: specName, ImplName: specName + "-node", SpecVersion: 9000},

		MetadataVersion: 14,
	}
	n.server = gethrpc.NewServer()
	if err := n.server.RegisterName("chain", &chainService{n}); err != nil {
		panic(err)
	}
	if err := n.server.RegisterName("state", &stateService{n}); err != nil {
		panic(err)
	}
	return n
}

// Dial connects a StateApiLite to the node. It is closed when the test ends.
func (n *FakeNode) Dial(t *testing.T) *nodeapi.RPCStateApiLite {
	api := nodeapi.NewRPCStateApiLite(gethrpc.DialInProc(n.server), 0, nil)
	t.Cleanup(api.Close)
	return api
}

func (n *FakeNode) checkAt(at *common.Hash) error {
	if at != nil && *at != n.Head {
		return fmt.Errorf("unknown block %s", at)
	}
	return nil
}

type chainService struct {
	n *FakeNode
}

func (s *chainService) GetFinalizedHead() (common.Hash, error) {
	return s.n.Head, nil
}

func (s *chainService) GetBlockHash(number uint64) (*common.Hash, error) {
	if number != 1 {
		return nil, nil
	}
	return &s.n.Head, nil
}

type stateService struct {
	n *FakeNode
}

func (s *stateService) GetStorage(key hexutil.Bytes, at *common.Hash) (*hexutil.Bytes, error) {
	s.n.StorageCalls.Add(1)
	if err := s.n.checkAt(at); err != nil {
		return nil, err
	}
	v, found, _ := s.n.State.Get(context.Background(), []byte(key))
	if !found {
		return nil, nil
	}
	b := hexutil.Bytes(v)
	return &b, nil
}

func (s *stateService) GetPairs(prefix hexutil.Bytes, at *common.Hash) ([][2]hexutil.Bytes, error) {
	s.n.PairsCalls.Add(1)
	if s.n.RefusePairs {
		return nil, ErrUnsafe
	}
	if err := s.n.checkAt(at); err != nil {
		return nil, err
	}
	pairs, _ := s.n.State.Pairs(context.Background(), []byte(prefix))
	out := make([][2]hexutil.Bytes, 0, len(pairs))
	for _, kv := range pairs {
		out = append(out, [2]hexutil.Bytes{hexutil.Bytes(kv.Key), hexutil.Bytes(kv.Value)})
	}
	return out, nil
}

func (s *stateService) GetKeysPaged(prefix hexutil.Bytes, count uint32, start *hexutil.Bytes, at *common.Hash) ([]hexutil.Bytes, error) {
	s.n.KeysPagedCalls.Add(1)
	if hook := s.n.BeforeKeysPaged; hook != nil {
		hook()
	}
	if err := s.n.checkAt(at); err != nil {
		return nil, err
	}
	pairs, _ := s.n.State.Pairs(context.Background(), []byte(prefix))
	out := []hexutil.Bytes{}
	for _, kv := range pairs {
		if uint32(len(out)) == count {
			break
		}
		if start != nil && bytes.Compare(kv.Key, *start) <= 0 {
			continue
		}
		out = append(out, hexutil.Bytes(kv.Key))
	}
	return out, nil
}

func (s *stateService) GetRuntimeVersion(at *common.Hash) (*nodeapi.RuntimeVersion, error) {
	if err := s.n.checkAt(at); err != nil {
		return nil, err
	}
	return &s.n.Version, nil
}

func (s *stateService) GetMetadata(at *common.Hash) (hexutil.Bytes, error) {
	if err := s.n.checkAt(at); err != nil {
		return nil, err
	}
	// Only the prefix: the body is never decoded.
	return hexutil.Bytes{0x6d, 0x65, 0x74, 0x61, s.n.MetadataVersion}, nil
}
