package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoadAppliesDefaultsWithoutAFile(t *testing.T) {
	cfg, err := Load("nonexistent-config-name", nil)
	assert.NoError(t, err)
	assert.Equal(t, 115200, cfg.Serial.BaudRate)
	assert.Equal(t, "socketcan", cfg.CAN.Interface)
	assert.Equal(t, 16, cfg.CVL.SeriesCellCount)
	assert.Equal(t, 3.65, cfg.CVL.CellMaxVoltageV)
}

func TestValidateSubstitutesInvalidValues(t *testing.T) {
	cfg := &Configuration{}
	cfg.Serial.BaudRate = -1
	cfg.CVL.SeriesCellCount = -5

	validate(cfg, nil)
	assert.Equal(t, 115200, cfg.Serial.BaudRate)
	assert.Equal(t, 16, cfg.CVL.SeriesCellCount)
}
