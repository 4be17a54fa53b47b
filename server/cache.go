// cache.go - Cache geladener Modelle mit Keepalive-Ablauf
// Enthaelt:
// - loadedModel mit Ablaufzeit und Timer
// - modelCache mit get/put/evict
// Ein Modell bleibt nach der letzten Nutzung fuer die Dauer seines
// Keepalive im Speicher, danach wird es verworfen.
package server

import (
	"log/slog"
	"sync"
	"time"

	"github.com/nehal119/merlion-testing/models"
)

type loadedModel struct {
	forecaster models.Forecaster

	sessionDuration time.Duration
	expireTimer     *time.Timer
	expiresAt       time.Time
}

type modelCache struct {
	mu     sync.Mutex
	loaded map[string]*loadedModel
}

func newModelCache() *modelCache {
	return &modelCache{loaded: make(map[string]*loadedModel)}
}

// get liefert das geladene Modell und verschiebt dessen Ablauf um die
// Keepalive-Dauer nach hinten.
func (c *modelCache) get(name string) (models.Forecaster, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	m, ok := c.loaded[name]
	if !ok {
		return nil, false
	}

	m.expiresAt = time.Now().Add(m.sessionDuration)
	if m.expireTimer != nil {
		m.expireTimer.Reset(m.sessionDuration)
	}
	return m.forecaster, true
}

// put legt das Modell mit der Keepalive-Dauer in den Cache. Eine Dauer
// von 0 oder weniger bedeutet: nicht cachen.
func (c *modelCache) put(name string, f models.Forecaster, keepAlive time.Duration) {
	if keepAlive <= 0 {
		c.evict(name)
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if old, ok := c.loaded[name]; ok && old.expireTimer != nil {
		old.expireTimer.Stop()
	}

	m := &loadedModel{
		forecaster:      f,
		sessionDuration: keepAlive,
		expiresAt:       time.Now().Add(keepAlive),
	}
	m.expireTimer = time.AfterFunc(keepAlive, func() {
		c.expire(name, m)
	})
	c.loaded[name] = m
}

// expire entfernt den Eintrag, sofern er nicht zwischenzeitlich durch
// get verlaengert oder durch put ersetzt wurde.
func (c *modelCache) expire(name string, m *loadedModel) {
	c.mu.Lock()
	defer c.mu.Unlock()

	current, ok := c.loaded[name]
	if !ok || current != m {
		return
	}
	if time.Now().Before(current.expiresAt) {
		return
	}

	delete(c.loaded, name)
	slog.Debug("model expired, unloading", "model", name)
}

func (c *modelCache) evict(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if m, ok := c.loaded[name]; ok {
		if m.expireTimer != nil {
			m.expireTimer.Stop()
		}
		delete(c.loaded, name)
	}
}

func (c *modelCache) evictAll() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for name, m := range c.loaded {
		if m.expireTimer != nil {
			m.expireTimer.Stop()
		}
		delete(c.loaded, name)
	}
}
