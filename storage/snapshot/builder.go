package snapshot

import (
	"context"
	"fmt"
	"slices"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/substrate-debug-kit/offline-election/cache/kvstore"
	"github.com/substrate-debug-kit/offline-election/common"
	"github.com/substrate-debug-kit/offline-election/log"
	"github.com/substrate-debug-kit/offline-election/metrics"
	"github.com/substrate-debug-kit/offline-election/storage"
	"github.com/substrate-debug-kit/offline-election/storage/keys"
	"github.com/substrate-debug-kit/offline-election/storage/remote"
)

// DefaultParallelism is the number of modules scraped concurrently.
const DefaultParallelism = 4

// Builder assembles a Snapshot from a node, optionally through the on-disk
// snapshot cache. Configure it with the setter methods, then call Build.
type Builder struct {
	client  *remote.Client
	logger  *log.Logger
	metrics *metrics.StorageMetrics

	at          string
	chain       string
	modules     []string
	injections  []storage.KeyValue
	parallelism int

	cache   kvstore.KVStore
	policy  CachePolicy
	persist bool

	onModule func(module string, keys int)
}

func NewBuilder(client *remote.Client, logger *log.Logger) *Builder {
	return &Builder{
		client:      client,
		logger:      logger.WithModule("snapshot"),
		parallelism: DefaultParallelism,
	}
}

// At selects the block: a hash, a number, or "" for the finalized head.
func (b *Builder) At(at string) *Builder {
	b.at = at
	return b
}

// Chain skips chain detection and uses the given spec name.
func (b *Builder) Chain(specName string) *Builder {
	b.chain = specName
	return b
}

// Module adds modules to scrape. Without any module, the whole state is
// scraped.
func (b *Builder) Module(modules ...string) *Builder {
	b.modules = append(b.modules, modules...)
	return b
}

// Inject adds raw entries applied after scraping. Injections are never
// persisted to the cache.
func (b *Builder) Inject(kvs ...storage.KeyValue) *Builder {
	b.injections = append(b.injections, kvs...)
	return b
}

// Cache enables the snapshot cache. With persist, freshly scraped snapshots
// are written back.
func (b *Builder) Cache(store kvstore.KVStore, policy CachePolicy, persist bool) *Builder {
	b.cache = store
	b.policy = policy
	b.persist = persist
	return b
}

func (b *Builder) Parallelism(n int) *Builder {
	if n > 0 {
		b.parallelism = n
	}
	return b
}

func (b *Builder) Metrics(m *metrics.StorageMetrics) *Builder {
	b.metrics = m
	return b
}

// OnModuleDone registers a callback invoked after each module is scraped.
// It may be called concurrently.
func (b *Builder) OnModuleDone(fn func(module string, keys int)) *Builder {
	b.onModule = fn
	return b
}

// ModuleCount is the number of scrape units Build will fetch on a cache miss.
func (b *Builder) ModuleCount() int {
	if len(b.modules) == 0 {
		return 1
	}
	return len(common.Dedup(b.modules))
}

// Build resolves the block and chain, then loads the snapshot from the cache
// or scrapes it from the node. A cancelled context or a transport failure
// aborts the build and discards partial data.
func (b *Builder) Build(ctx context.Context) (*Snapshot, error) {
	start := time.Now()
	at, err := b.client.ResolveBlock(ctx, b.at)
	if err != nil {
		return nil, fmt.Errorf("resolving block: %w", err)
	}
	chain := b.chain
	if chain == "" {
		version, err := b.client.API().RuntimeVersion(ctx, at)
		if err != nil {
			return nil, fmt.Errorf("detecting chain: %w", err)
		}
		chain = version.SpecName
	}
	modules := common.Dedup(b.modules)
	slices.Sort(modules)
	logger := b.logger.With("chain", chain, "at", at)

	key := cacheKey(chain, at, modules)
	policy := kvstore.Policy{
		Read:  b.policy == CacheUseIfPresent,
		Write: b.policy != CacheDisabled && b.persist,
	}
	scrape := func() (*record, error) {
		pairs, err := b.scrape(ctx, logger, at, modules)
		if err != nil {
			return nil, err
		}
		return newRecord(chain, at, modules, pairs), nil
	}
	rec, hit, err := kvstore.GetFromCacheOrCall(b.cache, policy, key, scrape)
	if err != nil {
		return nil, err
	}
	if hit {
		if verr := rec.validate(chain, at, modules); verr != nil {
			logger.Warn("discarding cached snapshot", "err", verr)
			rec, _, err = kvstore.GetFromCacheOrCall(b.cache, kvstore.Policy{Write: policy.Write}, key, scrape)
			if err != nil {
				return nil, err
			}
			hit = false
		}
	}

	snap := rec.snapshot(at)
	if err := snap.Inject(b.injections...); err != nil {
		return nil, err
	}
	logger.Since("snapshot ready", start, "keys", snap.Len(), "cached", hit, "injected", len(b.injections))
	return snap, nil
}

func (b *Builder) scrape(ctx context.Context, logger *log.Logger, at common.Hash, modules []string) ([]storage.KeyValue, error) {
	units := modules
	if len(units) == 0 {
		units = []string{""}
	}
	results := make([][]storage.KeyValue, len(units))

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(b.parallelism)
	for i, module := range units {
		i, module := i, module
		group.Go(func() error {
			var prefix keys.StorageKey
			if module != "" {
				prefix = keys.ModulePrefix(module)
			}
			pairs, err := b.client.Enumerate(groupCtx, prefix, at)
			if err != nil {
				if module == "" {
					return fmt.Errorf("scraping state: %w", err)
				}
				return fmt.Errorf("scraping module %s: %w", module, err)
			}
			if len(pairs) == 0 && module != "" {
				logger.Warn("module has no storage at this block", "module", module)
			}
			results[i] = pairs
			if b.metrics != nil {
				b.metrics.ScrapedKeys(module).Add(float64(len(pairs)))
			}
			if b.onModule != nil {
				b.onModule(module, len(pairs))
			}
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var out []storage.KeyValue
	for _, pairs := range results {
		out = append(out, pairs...)
	}
	return out, nil
}
