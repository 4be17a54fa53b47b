// cache_test.go - Tests fuer den Cache geladener Modelle
package server

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/nehal119/merlion-testing/fs/mcf"
	"github.com/nehal119/merlion-testing/models"
	"github.com/nehal119/merlion-testing/ts"
)

type stubForecaster struct{}

func (stubForecaster) Train(context.Context, *ts.TimeSeries) (*models.TrainStats, error) {
	return &models.TrainStats{}, nil
}

func (stubForecaster) Forecast(context.Context, int) (*ts.TimeSeries, *ts.TimeSeries, error) {
	return nil, nil, nil
}

func (stubForecaster) Save(string) error              { return nil }
func (stubForecaster) LoadCheckpoint(*mcf.File) error { return nil }

func TestCacheExpiry(t *testing.T) {
	c := newModelCache()
	c.put("m", stubForecaster{}, 20*time.Millisecond)

	_, ok := c.get("m")
	assert.True(t, ok)

	// Nach Ablauf des Keepalive ist der Eintrag weg
	time.Sleep(100 * time.Millisecond)
	_, ok = c.get("m")
	assert.False(t, ok)
}

func TestCacheNoKeepAlive(t *testing.T) {
	c := newModelCache()
	c.put("m", stubForecaster{}, 0)

	_, ok := c.get("m")
	assert.False(t, ok)
}

func TestCacheEvict(t *testing.T) {
	c := newModelCache()
	c.put("a", stubForecaster{}, time.Minute)
	c.put("b", stubForecaster{}, time.Minute)

	c.evict("a")
	_, ok := c.get("a")
	assert.False(t, ok)
	_, ok = c.get("b")
	assert.True(t, ok)

	c.evictAll()
	_, ok = c.get("b")
	assert.False(t, ok)
}
