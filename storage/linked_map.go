package storage

import (
	"context"
	"fmt"

	"github.com/substrate-debug-kit/offline-election/storage/keys"
	"github.com/substrate-debug-kit/offline-election/storage/scale"
)

// LinkedMapIterator walks a legacy linked map, where the map stores a head
// key and every entry stores (value, previous key, next key). It only keeps
// the next key to fetch, so it cannot be rewound; create a new iterator to
// restart from the head.
type LinkedMapIterator[K, V any] struct {
	r           Reader
	module      string
	item        string
	encodeKey   func(K) []byte
	decodeKey   Decoder[K]
	decodeValue Decoder[V]

	next    *K
	started bool
}

type linkedEntry[K, V any] struct {
	value    V
	previous *K
	next     *K
}

func NewLinkedMapIterator[K, V any](r Reader, module, item string, encodeKey func(K) []byte, decodeKey Decoder[K], decodeValue Decoder[V]) *LinkedMapIterator[K, V] {
	return &LinkedMapIterator[K, V]{
		r:           r,
		module:      module,
		item:        item,
		encodeKey:   encodeKey,
		decodeKey:   decodeKey,
		decodeValue: decodeValue,
	}
}

// Next fetches the next entry. ok is false once the list is exhausted.
func (it *LinkedMapIterator[K, V]) Next(ctx context.Context) (key K, value V, ok bool, err error) {
	if !it.started {
		it.started = true
		headKey := keys.LinkedMapHeadKey(it.module, it.item)
		head, found, err := ReadStrict(ctx, it.r, headKey, it.decodeKey)
		if err != nil {
			return key, value, false, fmt.Errorf("linked map %s %s head: %w", it.module, it.item, err)
		}
		if found {
			it.next = &head
		}
	}
	if it.next == nil {
		return key, value, false, nil
	}

	key = *it.next
	entryKey := keys.LegacyMapKey(it.module, it.item, it.encodeKey(key))
	entry, found, err := ReadStrict(ctx, it.r, entryKey, it.decodeEntry)
	if err != nil {
		return key, value, false, fmt.Errorf("linked map %s %s entry: %w", it.module, it.item, err)
	}
	if !found {
		return key, value, false, fmt.Errorf("linked map %s %s: dangling link to %s", it.module, it.item, entryKey)
	}
	it.next = entry.next
	return key, entry.value, true, nil
}

func (it *LinkedMapIterator[K, V]) decodeEntry(d *scale.Decoder) (linkedEntry[K, V], error) {
	var e linkedEntry[K, V]
	var err error
	if e.value, err = it.decodeValue(d); err != nil {
		return e, err
	}
	if e.previous, err = it.optionalKey(d); err != nil {
		return e, fmt.Errorf("previous: %w", err)
	}
	if e.next, err = it.optionalKey(d); err != nil {
		return e, fmt.Errorf("next: %w", err)
	}
	return e, nil
}

func (it *LinkedMapIterator[K, V]) optionalKey(d *scale.Decoder) (*K, error) {
	var k K
	some, err := d.Option(func(d *scale.Decoder) (err error) {
		k, err = it.decodeKey(d)
		return
	})
	if err != nil || !some {
		return nil, err
	}
	return &k, nil
}

// CollectLinkedMap drains a fresh iterator over the linked map.
func CollectLinkedMap[K, V any](ctx context.Context, it *LinkedMapIterator[K, V]) ([]MapEntry[K, V], error) {
	var out []MapEntry[K, V]
	for {
		k, v, ok, err := it.Next(ctx)
		if err != nil {
			return out, err
		}
		if !ok {
			return out, nil
		}
		out = append(out, MapEntry[K, V]{Key: k, Value: v})
	}
}
