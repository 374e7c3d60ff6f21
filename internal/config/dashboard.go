package config

import (
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// DashboardConfig holds the tunables that operators may change without a restart.
type DashboardConfig struct {
	SignOutDeadline      time.Duration   `mapstructure:"signOutDeadline"`
	WatchdogTimeout      time.Duration   `mapstructure:"watchdogTimeout"`
	ProfileRetryDelays   []time.Duration `mapstructure:"profileRetryDelays"`
	ProfileRetryAttempts int             `mapstructure:"profileRetryAttempts"`
	ShadowSessionTTL     time.Duration   `mapstructure:"shadowSessionTTL"`
	ClientIdleTTL        time.Duration   `mapstructure:"clientIdleTTL"`
	MaxLiveClients       int             `mapstructure:"maxLiveClients"`

	// MasterIdentifier is the account id or email allowed to see the factory reset
	// action. Matching it is not an authorization decision.
	MasterIdentifier string `mapstructure:"masterIdentifier"`

	EmployeeLogin    LoginRateConfig `mapstructure:"employeeLogin"`
	DefaultSurcharge SurchargeRule   `mapstructure:"defaultSurcharge"`
}

type LoginRateConfig struct {
	RatePerSecond float64 `mapstructure:"ratePerSecond"`
	Burst         int     `mapstructure:"burst"`
}

type SurchargeRule struct {
	GraceDay int             `mapstructure:"graceDay"`
	Steps    []SurchargeStep `mapstructure:"steps"`
}

type SurchargeStep struct {
	Day        int     `mapstructure:"day"`
	Percentage float64 `mapstructure:"percentage"`
}

func DefaultDashboardConfig() DashboardConfig {
	return DashboardConfig{
		SignOutDeadline:      3 * time.Second,
		WatchdogTimeout:      6 * time.Second,
		ProfileRetryDelays:   []time.Duration{time.Second, 2 * time.Second},
		ProfileRetryAttempts: 3,
		ShadowSessionTTL:     12 * time.Hour,
		ClientIdleTTL:        2 * time.Hour,
		MaxLiveClients:       10_000,
		EmployeeLogin: LoginRateConfig{
			RatePerSecond: 0.1,
			Burst:         5,
		},
		DefaultSurcharge: SurchargeRule{
			GraceDay: 5,
			Steps: []SurchargeStep{
				{Day: 10, Percentage: 5},
				{Day: 20, Percentage: 10},
			},
		},
	}
}

type DashboardConfigHolder struct {
	current atomic.Value // holds DashboardConfig
}

// NewStaticDashboardConfig wraps a fixed configuration, mostly for tests.
func NewStaticDashboardConfig(cfg DashboardConfig) *DashboardConfigHolder {
	holder := &DashboardConfigHolder{}
	holder.current.Store(cfg)
	return holder
}

func NewDashboardConfigHolder(log *zap.Logger) (*DashboardConfigHolder, error) {
	log = log.Named("config.dashboard")
	v := viper.New()

	v.SetConfigName("dashboard")
	v.SetConfigType("yml")
	v.AddConfigPath("/etc/cochera-admin")
	v.AddConfigPath(".")

	v.SetEnvPrefix("COCHERA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultDashboardConfig()
	v.SetDefault("dashboard.signOutDeadline", defaults.SignOutDeadline)
	v.SetDefault("dashboard.watchdogTimeout", defaults.WatchdogTimeout)
	v.SetDefault("dashboard.profileRetryDelays", defaults.ProfileRetryDelays)
	v.SetDefault("dashboard.profileRetryAttempts", defaults.ProfileRetryAttempts)
	v.SetDefault("dashboard.shadowSessionTTL", defaults.ShadowSessionTTL)
	v.SetDefault("dashboard.clientIdleTTL", defaults.ClientIdleTTL)
	v.SetDefault("dashboard.maxLiveClients", defaults.MaxLiveClients)
	v.SetDefault("dashboard.employeeLogin.ratePerSecond", defaults.EmployeeLogin.RatePerSecond)
	v.SetDefault("dashboard.employeeLogin.burst", defaults.EmployeeLogin.Burst)
	v.SetDefault("dashboard.defaultSurcharge.graceDay", defaults.DefaultSurcharge.GraceDay)

	fromFile := true
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
		fromFile = false
	}

	cfg, err := decodeDashboardConfig(v, defaults)
	if err != nil {
		return nil, err
	}

	holder := &DashboardConfigHolder{}
	holder.current.Store(cfg)

	if fromFile {
		v.WatchConfig()
		v.OnConfigChange(func(e fsnotify.Event) {
			updated, err := decodeDashboardConfig(v, defaults)
			if err != nil {
				log.Warn("dashboard config reload ignored", zap.String("file", e.Name), zap.Error(err))
				return
			}
			holder.current.Store(updated)
			log.Info("dashboard config reloaded", zap.String("file", e.Name))
		})
	}

	return holder, nil
}

func (h *DashboardConfigHolder) Get() DashboardConfig {
	return h.current.Load().(DashboardConfig)
}

func decodeDashboardConfig(v *viper.Viper, defaults DashboardConfig) (DashboardConfig, error) {
	var cfg DashboardConfig
	if err := v.UnmarshalKey("dashboard", &cfg); err != nil {
		return DashboardConfig{}, err
	}
	if len(cfg.DefaultSurcharge.Steps) == 0 {
		cfg.DefaultSurcharge.Steps = defaults.DefaultSurcharge.Steps
	}
	if len(cfg.ProfileRetryDelays) == 0 {
		cfg.ProfileRetryDelays = defaults.ProfileRetryDelays
	}
	if err := ValidateDashboardConfig(cfg); err != nil {
		return DashboardConfig{}, err
	}
	return cfg, nil
}

func ValidateDashboardConfig(cfg DashboardConfig) error {
	if cfg.SignOutDeadline <= 0 {
		return errors.New("dashboard.signOutDeadline must be positive")
	}
	if cfg.WatchdogTimeout < 5*time.Second || cfg.WatchdogTimeout > 7*time.Second {
		return fmt.Errorf("dashboard.watchdogTimeout must be between 5s and 7s, got %s", cfg.WatchdogTimeout)
	}
	if cfg.ProfileRetryAttempts < 1 {
		return errors.New("dashboard.profileRetryAttempts must be at least 1")
	}
	if cfg.EmployeeLogin.RatePerSecond <= 0 || cfg.EmployeeLogin.Burst <= 0 {
		return errors.New("dashboard.employeeLogin rate and burst must be positive")
	}
	return nil
}
