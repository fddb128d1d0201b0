package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg, err := LoadServerConfig()
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, cfg.TrackerInterval)
	assert.Equal(t, 2*time.Second, cfg.PatrolInterval)
	assert.Equal(t, 15*time.Second, cfg.LockTTL)
	assert.Equal(t, 1.0, cfg.MinMoveMeters)
	assert.Equal(t, 2000.0, cfg.MaxMoveMeters)
	assert.Equal(t, 40.0, cfg.PatrolStepMin)
	assert.Equal(t, 60.0, cfg.PatrolStepMax)
	assert.Equal(t, 0.9, cfg.PatrolMoveProb)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("TRACKER_INTERVAL", "10s")
	t.Setenv("LOCK_TTL", "30s")
	t.Setenv("PATROL_BBOX", "44.0, 20.0, 44.5, 20.5")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092")

	cfg, err := LoadServerConfig()
	require.NoError(t, err)
	assert.Equal(t, 10*time.Second, cfg.TrackerInterval)
	assert.Equal(t, 30*time.Second, cfg.LockTTL)
	assert.Equal(t, [4]float64{44.0, 20.0, 44.5, 20.5}, cfg.PatrolBBox)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
}

func TestInvalidValuesAreReported(t *testing.T) {
	t.Setenv("TRACKER_INTERVAL", "soon")
	_, err := LoadServerConfig()
	assert.Error(t, err)
}

func TestMoveProbabilityMustBeAFraction(t *testing.T) {
	t.Setenv("PATROL_MOVE_PROB", "1.5")
	_, err := LoadServerConfig()
	assert.Error(t, err)
}

func TestThresholdOrderingIsValidated(t *testing.T) {
	t.Setenv("MIN_MOVE_METERS", "100")
	t.Setenv("MAX_MOVE_METERS", "50")
	_, err := LoadServerConfig()
	assert.Error(t, err)
}

func TestBBoxNeedsFourValues(t *testing.T) {
	t.Setenv("PATROL_BBOX", "44.0,20.0")
	_, err := LoadServerConfig()
	assert.Error(t, err)
}
