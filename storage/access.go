package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/hashicorp/go-multierror"

	"github.com/substrate-debug-kit/offline-election/storage/keys"
	"github.com/substrate-debug-kit/offline-election/storage/scale"
)

// Decoder decodes one SCALE value.
type Decoder[T any] func(*scale.Decoder) (T, error)

// MapEntry is one decoded storage map entry.
type MapEntry[K, V any] struct {
	Key   K
	Value V
}

// Read fetches and decodes the value at key. Absent and undecodable values
// both result in found == false; only errors from the reader are returned.
func Read[T any](ctx context.Context, r Reader, key keys.StorageKey, decode Decoder[T]) (value T, found bool, err error) {
	value, found, err = ReadStrict(ctx, r, key, decode)
	var decodeErr *DecodeError
	if errors.As(err, &decodeErr) {
		var zero T
		return zero, false, nil
	}
	return value, found, err
}

// ReadStrict is like Read, but a value that cannot be decoded is a *DecodeError.
func ReadStrict[T any](ctx context.Context, r Reader, key keys.StorageKey, decode Decoder[T]) (T, bool, error) {
	var zero T
	raw, found, err := r.Get(ctx, key)
	if err != nil {
		return zero, false, err
	}
	if !found {
		return zero, false, nil
	}
	v, err := scale.Decode(raw, decode)
	if err != nil {
		return zero, false, &DecodeError{Key: key, Err: err}
	}
	return v, true, nil
}

// ReadOr is like ReadStrict but returns def when the value is absent.
func ReadOr[T any](ctx context.Context, r Reader, key keys.StorageKey, decode Decoder[T], def T) (T, error) {
	v, found, err := ReadStrict(ctx, r, key, decode)
	if err != nil {
		return def, err
	}
	if !found {
		return def, nil
	}
	return v, nil
}

// EnumerateMap lists every entry of a storage map, recovering each key from
// the concat-hashed storage key. Entries that fail to decode are skipped and
// reported together as a multierror of *DecodeError; the remaining entries
// are still returned.
func EnumerateMap[K, V any](ctx context.Context, r Reader, m MapItem, decodeKey Decoder[K], decodeValue Decoder[V]) ([]MapEntry[K, V], error) {
	return enumerate(ctx, r, m.Prefix(), m.Hasher, decodeKey, decodeValue)
}

// EnumerateDoubleMap lists every entry of a double map under a fixed first key.
func EnumerateDoubleMap[K, V any](ctx context.Context, r Reader, m DoubleMapItem, k1 []byte, decodeKey Decoder[K], decodeValue Decoder[V]) ([]MapEntry[K, V], error) {
	return enumerate(ctx, r, m.Prefix(k1), m.Hasher2, decodeKey, decodeValue)
}

// MapKeys lists the decoded keys of a storage map.
func MapKeys[K any](ctx context.Context, r Reader, m MapItem, decodeKey Decoder[K]) ([]K, error) {
	entries, err := EnumerateMap(ctx, r, m, decodeKey, skipValue)
	out := make([]K, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Key)
	}
	return out, err
}

func skipValue(d *scale.Decoder) (struct{}, error) {
	_, err := d.Fixed(d.Remaining())
	return struct{}{}, err
}

func enumerate[K, V any](ctx context.Context, r Reader, prefix keys.StorageKey, hasher keys.Hasher, decodeKey Decoder[K], decodeValue Decoder[V]) ([]MapEntry[K, V], error) {
	pairs, err := r.Pairs(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("pairs under %s: %w", prefix, err)
	}

	var errs *multierror.Error
	entries := make([]MapEntry[K, V], 0, len(pairs))
	for _, kv := range pairs {
		rawKey, err := keys.MapSubKey(kv.Key, prefix, hasher)
		if err != nil {
			errs = multierror.Append(errs, &DecodeError{Key: kv.Key, Err: err})
			continue
		}
		k, err := scale.Decode(rawKey, decodeKey)
		if err != nil {
			errs = multierror.Append(errs, &DecodeError{Key: kv.Key, Err: fmt.Errorf("key: %w", err)})
			continue
		}
		v, err := scale.Decode(kv.Value, decodeValue)
		if err != nil {
			errs = multierror.Append(errs, &DecodeError{Key: kv.Key, Err: fmt.Errorf("value: %w", err)})
			continue
		}
		entries = append(entries, MapEntry[K, V]{Key: k, Value: v})
	}
	return entries, errs.ErrorOrNil()
}
