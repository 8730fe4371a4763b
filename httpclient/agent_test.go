package httpclient

import (
	"net/http"
	"reflect"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAgentConfigClamping(t *testing.T) {
	tests := []struct {
		name          string
		cfg           AgentConfig
		wantKeepAlive time.Duration
		wantFree      int
		wantTotal     int
	}{
		{
			name:          "given defaults, then values pass through",
			cfg:           DefaultAgentConfig(),
			wantKeepAlive: 30 * time.Second,
			wantFree:      256,
			wantTotal:     Unbounded,
		},
		{
			name:          "given values below bounds, then getters clamp up",
			cfg:           AgentConfig{KeepAliveMillis: 1, MaxFreeSockets: 1, MaxTotalSockets: 1},
			wantKeepAlive: time.Second,
			wantFree:      64,
			wantTotal:     65,
		},
		{
			name:          "given values above bounds, then getters clamp down",
			cfg:           AgentConfig{KeepAliveMillis: 1 << 30, MaxFreeSockets: 1 << 20, MaxTotalSockets: 1 << 21},
			wantKeepAlive: 300 * time.Second,
			wantFree:      1024,
			wantTotal:     1 << 21,
		},
		{
			name:          "given unbounded sockets, then limits stay unbounded",
			cfg:           AgentConfig{KeepAliveMillis: 5000, MaxFreeSockets: Unbounded, MaxTotalSockets: Unbounded},
			wantKeepAlive: 5 * time.Second,
			wantFree:      Unbounded,
			wantTotal:     Unbounded,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantKeepAlive, tt.cfg.KeepAliveDuration())
			assert.Equal(t, tt.wantFree, tt.cfg.FreeSocketLimit())
			assert.Equal(t, tt.wantTotal, tt.cfg.TotalSocketLimit())
		})
	}
}

func TestAgentConfigEqual(t *testing.T) {
	a := AgentConfig{KeepAlive: true, KeepAliveMillis: 30000, MaxFreeSockets: 256}
	b := AgentConfig{KeepAlive: true, KeepAliveMillis: 30000, MaxFreeSockets: 256}
	assert.True(t, a.Equal(b))

	// Clamped values compare, not raw ones.
	c := AgentConfig{KeepAlive: true, KeepAliveMillis: 1, MaxFreeSockets: 256}
	d := AgentConfig{KeepAlive: true, KeepAliveMillis: 500, MaxFreeSockets: 256}
	assert.True(t, c.Equal(d))

	// Unbounded equals unbounded however spelled.
	e := AgentConfig{MaxTotalSockets: Unbounded}
	f := AgentConfig{MaxTotalSockets: Unbounded}
	assert.True(t, e.Equal(f))

	g := AgentConfig{KeepAlive: true}
	h := AgentConfig{KeepAlive: false}
	assert.False(t, g.Equal(h))
}

func TestExtendedAgentConfig(t *testing.T) {
	cfg := DefaultExtendedAgentConfig()

	assert.Equal(t, time.Second, cfg.KeepAliveTimeoutBuffer())
	assert.Equal(t, SchedulingLIFO, cfg.SchedulingMode())
	assert.Equal(t, 15*time.Second, cfg.Timeout())

	clamped := ExtendedAgentConfig{
		KeepAliveTimeoutBufferMillis: 1,
		TimeoutMillis:                1,
	}
	assert.Equal(t, 128*time.Millisecond, clamped.KeepAliveTimeoutBuffer())
	assert.Equal(t, 5*time.Second, clamped.Timeout())
	assert.Equal(t, SchedulingLIFO, clamped.SchedulingMode())

	fifo := ExtendedAgentConfig{Scheduling: SchedulingFIFO}
	assert.Equal(t, SchedulingFIFO, fifo.SchedulingMode())
}

func TestAgentTransport(t *testing.T) {
	cfg := DefaultAgentConfig()
	tr := cfg.Transport()

	require.NotNil(t, tr)
	assert.Equal(t, 256, tr.MaxIdleConns)
	assert.False(t, tr.DisableKeepAlives)
	assert.Nil(t, tr.TLSClientConfig)

	insecure := AgentConfig{KeepAlive: true, RejectUnauthorized: false}
	itr := insecure.Transport()
	require.NotNil(t, itr.TLSClientConfig)
	assert.True(t, itr.TLSClientConfig.InsecureSkipVerify)
}

func TestFixAgent(t *testing.T) {
	// Nil transports get the process-wide defaults.
	assert.Same(t, DefaultAgent(), fixAgent(nil, false))
	assert.Same(t, DefaultDownloadAgent(), fixAgent(nil, true))

	// Real transports pass through.
	own := DefaultAgentConfig().Transport()
	assert.Same(t, http.RoundTripper(own), fixAgent(own, false))

	// Custom round trippers count as real agents.
	mock := http.RoundTripper(roundTripFunc(func(*http.Request) (*http.Response, error) { return nil, nil }))
	assert.Equal(t, reflect.ValueOf(mock).Pointer(), reflect.ValueOf(fixAgent(mock, false)).Pointer())
}

// roundTripFunc adapts a function to http.RoundTripper for tests.
type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }
