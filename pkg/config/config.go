// Package config loads the gateway's configuration once at startup, the
// same viper-based pattern as the keskad-loco pack entry's own
// pkgs/config/config.go: a viper.New() instance, SetDefault calls for
// every tunable, a YAML file read, then Unmarshal into a typed struct.
// Unknown keys are ignored by viper itself; out-of-range or wrong-typed
// values are caught by a post-unmarshal validation pass that logs and
// substitutes the default, per spec §6.5.
package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/viper"

	"github.com/vesselenergy/tinybms-gateway/pkg/cvl"
)

// SerialConfig describes the physical link to the TinyBMS module.
type SerialConfig struct {
	Device          string
	BaudRate        int
	ResponseTimeout time.Duration
	RetryCount      int
	RetryBackoff    time.Duration
}

// CANConfig describes the Victron-facing CAN link.
type CANConfig struct {
	Interface         string // "socketcan", "virtual"
	Channel           string // e.g. "can0"
	PublishIntervalMs uint32 // 0 = immediate mode, spec §4.10
	KeepAliveInterval time.Duration
	KeepAliveTimeout  time.Duration
	KeepAliveRetry    time.Duration
	BusOffBackoff     time.Duration
}

// EnergyConfig describes the energy integrator's persistence.
type EnergyConfig struct {
	PersistPath string
}

// IdentityConfig carries the product-identity strings advertised on the
// Victron bus that the TinyBMS catalogue does not itself expose.
type IdentityConfig struct {
	Manufacturer    string
	BatteryName     string
	SerialNumber    string
	BatteryFamily   string
	FirmwareVersion uint32
	ModuleCount     uint16
}

// PollConfig tunes the BMS poll cadence.
type PollConfig struct {
	Interval              time.Duration
	SettingsRefreshEvery  int
	ConsecutiveFailureLimit int
}

// Configuration is the fully parsed, defaulted configuration tree.
type Configuration struct {
	Serial   SerialConfig
	CAN      CANConfig
	Energy   EnergyConfig
	Identity IdentityConfig
	Poll     PollConfig
	CVL      cvl.Config
}

// Load reads configuration from the named file (searched as YAML in the
// current directory and $HOME/.tinybms-gateway, matching keskad-loco's search path
// convention) plus environment variable overrides, applying defaults for
// anything absent and validating the result.
func Load(configName string, logger *slog.Logger) (*Configuration, error) {
	if logger == nil {
		logger = slog.Default()
	}
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetConfigName(configName)
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.tinybms-gateway")
	v.SetEnvPrefix("TINYBMS")
	v.AutomaticEnv()

	applyDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("config: cannot parse %s: %w", configName, err)
		}
		logger.Warn("no config file found, using defaults and environment overrides", "name", configName)
	}

	var cfg Configuration
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: cannot unmarshal: %w", err)
	}

	validate(&cfg, logger)
	return &cfg, nil
}

func applyDefaults(v *viper.Viper) {
	v.SetDefault("serial.device", "/dev/ttyUSB0")
	v.SetDefault("serial.baudrate", 115200)
	v.SetDefault("serial.responsetimeout", 800*time.Millisecond)
	v.SetDefault("serial.retrycount", 3)
	v.SetDefault("serial.retrybackoff", 100*time.Millisecond)

	v.SetDefault("can.interface", "socketcan")
	v.SetDefault("can.channel", "can0")
	v.SetDefault("can.publishintervalms", 0)
	v.SetDefault("can.keepaliveinterval", 1000*time.Millisecond)
	v.SetDefault("can.keepalivetimeout", 5000*time.Millisecond)
	v.SetDefault("can.keepaliveretry", 1000*time.Millisecond)
	v.SetDefault("can.busoffbackoff", 2000*time.Millisecond)

	v.SetDefault("energy.persistpath", "/var/lib/tinybms-gateway/energy.cbor")

	v.SetDefault("identity.manufacturer", "TinyBMS")
	v.SetDefault("identity.batteryname", "TinyBMS Pack")
	v.SetDefault("identity.serialnumber", "UNKNOWN")
	v.SetDefault("identity.batteryfamily", "Li-ion")
	v.SetDefault("identity.firmwareversion", 0)
	v.SetDefault("identity.modulecount", 1)

	v.SetDefault("poll.interval", 500*time.Millisecond)
	v.SetDefault("poll.settingsrefreshevery", 5)
	v.SetDefault("poll.consecutivefailurelimit", 5)

	def := cvl.DefaultConfig()
	v.SetDefault("cvl.bulksocthreshold", def.BulkSOCThreshold)
	v.SetDefault("cvl.transitionsocthreshold", def.TransitionSOCThreshold)
	v.SetDefault("cvl.floatsocthreshold", def.FloatSOCThreshold)
	v.SetDefault("cvl.floatexitsoc", def.FloatExitSOC)
	v.SetDefault("cvl.floatapproachoffsetmv", def.FloatApproachOffsetMV)
	v.SetDefault("cvl.floatoffsetmv", def.FloatOffsetMV)
	v.SetDefault("cvl.minimumcclinfloata", def.MinimumCCLInFloatA)
	v.SetDefault("cvl.sustainsocentry", def.SustainSOCEntry)
	v.SetDefault("cvl.sustainsocexit", def.SustainSOCExit)
	v.SetDefault("cvl.sustainvoltagepercellv", def.SustainVoltagePerCellV)
	v.SetDefault("cvl.sustainccllimita", def.SustainCCLLimitA)
	v.SetDefault("cvl.sustaindcllimita", def.SustainDCLLimitA)
	v.SetDefault("cvl.maxrecoverystepv", def.MaxRecoveryStepV)
	v.SetDefault("cvl.imbalanceholdthresholdmv", def.ImbalanceHoldThresholdMV)
	v.SetDefault("cvl.imbalancereleasethresholdmv", def.ImbalanceReleaseThresholdMV)
	v.SetDefault("cvl.imbalancedroppermv", def.ImbalanceDropPerMV)
	v.SetDefault("cvl.imbalancedropmaxv", def.ImbalanceDropMaxV)
	v.SetDefault("cvl.seriescellcount", def.SeriesCellCount)
	v.SetDefault("cvl.cellmaxvoltagev", def.CellMaxVoltageV)
	v.SetDefault("cvl.cellsafetythresholdv", def.CellSafetyThresholdV)
	v.SetDefault("cvl.cellsafetyreleasev", def.CellSafetyReleaseV)
	v.SetDefault("cvl.cellminfloatvoltagev", def.CellMinFloatVoltageV)
	v.SetDefault("cvl.cellprotectionkp", def.CellProtectionKp)
	v.SetDefault("cvl.dynamiccurrentnominala", def.DynamicCurrentNominalA)
}

// validate replaces any out-of-range or nonsensical value with the default,
// logging each substitution, per spec §6.5 ("invalid values are reported
// and replaced by the default").
func validate(cfg *Configuration, logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	def := cvl.DefaultConfig()

	if cfg.Serial.BaudRate <= 0 {
		logger.Warn("invalid serial.baudrate, using default", "value", cfg.Serial.BaudRate)
		cfg.Serial.BaudRate = 115200
	}
	if cfg.Serial.ResponseTimeout <= 0 {
		logger.Warn("invalid serial.responsetimeout, using default", "value", cfg.Serial.ResponseTimeout)
		cfg.Serial.ResponseTimeout = 800 * time.Millisecond
	}
	if cfg.Serial.RetryCount <= 0 {
		logger.Warn("invalid serial.retrycount, using default", "value", cfg.Serial.RetryCount)
		cfg.Serial.RetryCount = 3
	}

	if cfg.CAN.Interface == "" {
		logger.Warn("invalid can.interface, using default", "value", cfg.CAN.Interface)
		cfg.CAN.Interface = "socketcan"
	}
	if cfg.CAN.KeepAliveInterval <= 0 {
		logger.Warn("invalid can.keepaliveinterval, using default", "value", cfg.CAN.KeepAliveInterval)
		cfg.CAN.KeepAliveInterval = time.Second
	}
	if cfg.CAN.KeepAliveTimeout <= 0 {
		logger.Warn("invalid can.keepalivetimeout, using default", "value", cfg.CAN.KeepAliveTimeout)
		cfg.CAN.KeepAliveTimeout = 5 * time.Second
	}

	if cfg.Poll.Interval <= 0 {
		logger.Warn("invalid poll.interval, using default", "value", cfg.Poll.Interval)
		cfg.Poll.Interval = 500 * time.Millisecond
	}
	if cfg.Poll.SettingsRefreshEvery <= 0 {
		logger.Warn("invalid poll.settingsrefreshevery, using default", "value", cfg.Poll.SettingsRefreshEvery)
		cfg.Poll.SettingsRefreshEvery = 5
	}
	if cfg.Poll.ConsecutiveFailureLimit <= 0 {
		logger.Warn("invalid poll.consecutivefailurelimit, using default", "value", cfg.Poll.ConsecutiveFailureLimit)
		cfg.Poll.ConsecutiveFailureLimit = 5
	}

	if cfg.CVL.SeriesCellCount <= 0 {
		logger.Warn("invalid cvl.seriescellcount, using default", "value", cfg.CVL.SeriesCellCount)
		cfg.CVL.SeriesCellCount = def.SeriesCellCount
	}
	if cfg.CVL.CellMaxVoltageV <= 0 {
		logger.Warn("invalid cvl.cellmaxvoltagev, using default", "value", cfg.CVL.CellMaxVoltageV)
		cfg.CVL.CellMaxVoltageV = def.CellMaxVoltageV
	}
	if cfg.CVL.MaxRecoveryStepV <= 0 {
		logger.Warn("invalid cvl.maxrecoverystepv, using default", "value", cfg.CVL.MaxRecoveryStepV)
		cfg.CVL.MaxRecoveryStepV = def.MaxRecoveryStepV
	}
}
