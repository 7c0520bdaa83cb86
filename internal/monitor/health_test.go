package monitor

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/kevanbtc/apexarb/internal/domain"
)

type stubHealthSource struct {
	endpoints []domain.EndpointHealth
}

func (s *stubHealthSource) Health() []domain.EndpointHealth { return s.endpoints }

func endpoint(chain domain.ChainID, url, state string) domain.EndpointHealth {
	return domain.EndpointHealth{Chain: chain, URL: url, State: state}
}

func newTestHealth(source HealthSource) *Health {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewHealth(HealthConfig{DegradedAfter: 30 * time.Second}, source, nil, logger)
}

func TestHealthAlertsAfterSustainedOutage(t *testing.T) {
	source := &stubHealthSource{endpoints: []domain.EndpointHealth{
		endpoint(domain.ChainArbitrum, "https://a", "open"),
		endpoint(domain.ChainArbitrum, "https://b", "open"),
	}}
	h := newTestHealth(source)

	now := time.Now()
	h.check(context.Background(), now)
	assert.False(t, h.alerted[domain.ChainArbitrum], "first sample only starts the clock")

	h.check(context.Background(), now.Add(10*time.Second))
	assert.False(t, h.alerted[domain.ChainArbitrum], "outage shorter than the threshold")

	h.check(context.Background(), now.Add(31*time.Second))
	assert.True(t, h.alerted[domain.ChainArbitrum])
}

func TestHealthOneClosedEndpointKeepsChainHealthy(t *testing.T) {
	source := &stubHealthSource{endpoints: []domain.EndpointHealth{
		endpoint(domain.ChainArbitrum, "https://a", "open"),
		endpoint(domain.ChainArbitrum, "https://b", "closed"),
	}}
	h := newTestHealth(source)

	now := time.Now()
	h.check(context.Background(), now)
	h.check(context.Background(), now.Add(time.Minute))
	assert.False(t, h.alerted[domain.ChainArbitrum])
}

func TestHealthRecoveryClearsAlert(t *testing.T) {
	source := &stubHealthSource{endpoints: []domain.EndpointHealth{
		endpoint(domain.ChainArbitrum, "https://a", "open"),
	}}
	h := newTestHealth(source)

	now := time.Now()
	h.check(context.Background(), now)
	h.check(context.Background(), now.Add(time.Minute))
	assert.True(t, h.alerted[domain.ChainArbitrum])

	source.endpoints[0].State = "half_open"
	h.check(context.Background(), now.Add(2*time.Minute))
	assert.False(t, h.alerted[domain.ChainArbitrum])
	assert.Empty(t, h.degradedSince)
}
