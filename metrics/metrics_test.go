package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestRegisterOnceReusesCollectors(t *testing.T) {
	a := NewDefaultRPCMetrics()
	b := NewDefaultRPCMetrics()

	before := testutil.ToFloat64(b.RequestCounter("state_getStorage", RPCStatusOK))
	a.RequestCounter("state_getStorage", RPCStatusOK).Inc()
	require.Equal(t, before+1, testutil.ToFloat64(b.RequestCounter("state_getStorage", RPCStatusOK)))
}

func TestStorageMetrics(t *testing.T) {
	m := NewDefaultStorageMetrics()
	before := testutil.ToFloat64(m.ScrapedKeys(""))
	m.ScrapedKeys("").Add(3)
	require.Equal(t, before+3, testutil.ToFloat64(m.ScrapedKeys("all")))

	hits := testutil.ToFloat64(m.LocalCacheReads("snapshot", CacheReadStatusHit))
	m.LocalCacheReads("snapshot", CacheReadStatusHit).Inc()
	require.Equal(t, hits+1, testutil.ToFloat64(m.LocalCacheReads("snapshot", CacheReadStatusHit)))
}

func TestElectionMetrics(t *testing.T) {
	m := NewDefaultElectionMetrics()
	before := testutil.ToFloat64(m.Runs("seq-phragmen", "scored", true))
	m.Runs("seq-phragmen", "scored", true).Inc()
	require.Equal(t, before+1, testutil.ToFloat64(m.Runs("seq-phragmen", "scored", true)))

	m.StageTimer("seq-phragmen", "elected").ObserveDuration()
	require.Equal(t, 1, testutil.CollectAndCount(m.stageLatencies, "election_stage_latencies"))
}
