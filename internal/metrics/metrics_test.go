package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/mixsync/internal/change"
	"github.com/roach88/mixsync/internal/wire"
)

func TestPrometheus_Counters(t *testing.T) {
	reg := prometheus.NewRegistry()
	p := NewPrometheus(reg)

	p.Sent(wire.DataCreate)
	p.Sent(wire.DataCreate)
	p.Skipped(change.KindUpdate)
	p.Applied(wire.DataRename)
	p.Discarded(wire.DataUpdate, change.ErrCodeDecoding)
	p.Relayed(wire.DataRemove, 3)
	p.PeerConnected()
	p.PeerConnected()
	p.PeerDisconnected()

	assert.Equal(t, 2.0, testutil.ToFloat64(p.sent.WithLabelValues("DATA_CREATE")))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.skipped.WithLabelValues("update")))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.applied.WithLabelValues("DATA_RENAME")))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.discarded.WithLabelValues("DATA_UPDATE", "DECODING_FAILED")))
	assert.Equal(t, 3.0, testutil.ToFloat64(p.relayed.WithLabelValues("DATA_REMOVE")))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.peers))
}

func TestHandler_ServesRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	p := NewPrometheus(reg)
	p.Sent(wire.DataUpdate)

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	require.Equal(t, 200, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), `mixsync_messages_sent_total{type="DATA_UPDATE"} 1`))
}
