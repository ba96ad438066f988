package commands

import (
	"fmt"
	"runtime"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/lpm24/SuperSmashTexty-sub002/internal/config"
	"github.com/lpm24/SuperSmashTexty-sub002/internal/session"
	"github.com/lpm24/SuperSmashTexty-sub002/internal/transport"
	"github.com/lpm24/SuperSmashTexty-sub002/internal/util"
)

const appVersion = "1.0.0"

var (
	configDir string
	cfg       *config.Config
)

// Execute builds the command tree and runs it.
func Execute() error {
	root := &cobra.Command{
		Use:          "smashnet",
		Short:        "SuperSmashTexty multiplayer session tools",
		Version:      appVersion,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return setup()
		},
	}

	root.PersistentFlags().StringVar(&configDir, "config-dir", config.DefaultConfigDir, "configuration directory")
	root.AddCommand(hostCmd(), joinCmd(), rendezvousCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(root.ErrOrStderr(), "Error:", err)
		return err
	}
	return nil
}

// setup initializes logging and configuration before any command runs.
func setup() error {
	if err := util.InitLogger(util.DefaultLogConfig()); err != nil {
		return fmt.Errorf("initialize logger: %w", err)
	}

	var err error
	cfg, err = config.Load(configDir)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	logCfg := cfg.GetApplicationData().Logging
	if err := util.InitLogger(util.LogConfig{
		Level:      logCfg.Level,
		Directory:  logCfg.Directory,
		MaxBackups: logCfg.MaxBackups,
		Console:    true,
	}); err != nil {
		log.Warn().Err(err).Msg("failed to reconfigure logger, using defaults")
	}

	validation := config.Validate(cfg)
	for _, w := range validation.Warnings {
		log.Warn().Str("field", w.Field).Msg(w.Message)
	}
	if !validation.IsValid() {
		for _, e := range validation.Errors {
			log.Error().Str("field", e.Field).Msg(e.Message)
		}
		return fmt.Errorf("configuration validation failed")
	}

	sysInfo := util.GetSystemInfo()
	log.Info().
		Str("version", appVersion).
		Str("platform", runtime.GOOS).
		Str("hostname", sysInfo.Hostname).
		Str("os", sysInfo.OS).
		Int("cores", sysInfo.CPUCores).
		Uint64("memory_mb", sysInfo.TotalMemory).
		Msg("starting smashnet")

	return nil
}

// sessionOptions assembles session options from the loaded configuration.
func sessionOptions() session.Options {
	netCfg := cfg.GetNetwork()
	rdv := cfg.GetApplicationData().Rendezvous

	tr := transport.NewTCPTransport(transport.TCPOptions{
		ListenAddress:    netCfg.ListenAddress,
		AdvertiseAddress: netCfg.AdvertiseAddress,
	})

	return session.Options{
		Transport: tr,
		Assist: transport.AssistConfig{
			Endpoints:         rdv.Endpoints,
			RegistrationTTL:   time.Duration(rdv.RegistrationTTLSec) * time.Second,
			HeartbeatInterval: time.Duration(rdv.HeartbeatIntervalSec) * time.Second,
		},
		CodePrefix:     netCfg.CodePrefix,
		CodeLength:     netCfg.CodeLength,
		ConnectTimeout: time.Duration(netCfg.ConnectTimeoutSec) * time.Second,
		SettleDelay:    time.Duration(netCfg.SettleDelayMS) * time.Millisecond,
		MaxCodeRetries: netCfg.MaxCodeRetries,
	}
}
