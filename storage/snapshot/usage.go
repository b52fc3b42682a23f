package snapshot

import (
	"bytes"
	"sort"

	"github.com/substrate-debug-kit/offline-election/storage/keys"
)

// ModuleUsage is the storage footprint of one module in a snapshot.
type ModuleUsage struct {
	Module     string
	Prefix     keys.StorageKey
	Keys       int
	KeyBytes   int
	ValueBytes int
}

func (u ModuleUsage) Bytes() int {
	return u.KeyBytes + u.ValueBytes
}

// Usage groups the snapshot's entries by module prefix. Prefixes are named
// after the first matching entry of `known`; unmatched ones keep an empty
// Module. Keys shorter than a module prefix are grouped together. The result
// is sorted by total size, largest first.
func Usage(snap *Snapshot, known []string) []ModuleUsage {
	names := make(map[string]string, len(known))
	for _, m := range known {
		p := string(keys.ModulePrefix(m))
		if _, ok := names[p]; !ok {
			names[p] = m
		}
	}

	byPrefix := map[string]*ModuleUsage{}
	snap.data.Scan(func(k string, v []byte) bool {
		p := k
		if len(p) > keys.ModulePrefixLen {
			p = p[:keys.ModulePrefixLen]
		}
		u, ok := byPrefix[p]
		if !ok {
			u = &ModuleUsage{Module: names[p], Prefix: keys.StorageKey(p)}
			byPrefix[p] = u
		}
		u.Keys++
		u.KeyBytes += len(k)
		u.ValueBytes += len(v)
		return true
	})

	out := make([]ModuleUsage, 0, len(byPrefix))
	for _, u := range byPrefix {
		out = append(out, *u)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Bytes() != out[j].Bytes() {
			return out[i].Bytes() > out[j].Bytes()
		}
		return bytes.Compare(out[i].Prefix, out[j].Prefix) < 0
	})
	return out
}
