package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go1-control/internal/logger"
	"go1-control/internal/monitor"
	"go1-control/pkg/go1"
)

func main() {
	config, err := go1.LoadConfig()
	if err != nil {
		logger.NewWriter(os.Stderr, "info").Fatalf("❌ Failed to load configuration: %v", err)
	}

	log, err := logger.New(logger.Options{
		Level:      config.App.LogLevel,
		File:       config.App.LogFile,
		MaxSizeMB:  config.App.LogMaxSizeMB,
		MaxBackups: config.App.LogMaxBackups,
	})
	if err != nil {
		logger.NewWriter(os.Stderr, "info").Fatalf("❌ Failed to create logger: %v", err)
	}

	log.Infof("🚀 Go1 monitor starting...")
	log.Infof("📋 Configuration loaded")
	log.Infof("   - Environment: %s", config.App.Environment)
	log.Infof("   - MQTT Broker: %s", config.MQTT.BrokerURL)
	log.Infof("   - MQTT Client ID: %s", config.MQTT.ClientID)
	log.Infof("   - Log Level: %s", config.App.LogLevel)
	log.Infof("   - Status Interval: %ds", config.App.StatusIntervalSeconds)
	log.Infof("   - Low Battery: %d%%, Proximity Warning: %.2f", config.App.LowBatteryPercent, config.App.ProximityWarning)

	session := go1.New(config, go1.WithLogger(log))
	session.OnModeChange(func(from, to go1.Mode) {
		log.Infof("🔄 Mode set: %s -> %s", from, to)
	})

	connectTimeout := time.Duration(config.MQTT.ConnectTimeout) * time.Second
	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	err = session.Init(ctx)
	cancel()
	if err != nil {
		log.Fatalf("❌ Failed to start session: %v", err)
	}

	tracker := monitor.NewTracker(log)
	statusMonitor := monitor.NewStatusMonitor(tracker, session, session.Status, &config.App, log)
	session.On(go1.EventStateChange, statusMonitor.HandleState)

	log.Infof("🎯 Go1 monitor running")
	log.Infof("   📥 Telemetry: %s", config.Robot.TelemetryTopic)
	log.Infof("   📤 LED: %s", config.Robot.LEDTopic)
	log.Infof("   💡 Press Ctrl+C to exit")

	runCtx, stopMonitor := context.WithCancel(context.Background())
	defer stopMonitor()
	if config.App.StatusIntervalSeconds > 0 {
		go statusMonitor.Run(runCtx, time.Duration(config.App.StatusIntervalSeconds)*time.Second)
	}

	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-signalChan:
		log.Infof("🛑 Received signal: %v", sig)
	case <-session.Done():
		status, err := session.Status()
		log.Errorf("❌ Connection ended - Status: %s, Error: %v", status, err)
	}
	stopMonitor()

	log.Infof("⏳ Shutting down (timeout %ds)...", config.App.GracefulShutdownSec)

	shutdownTimeout := time.Duration(config.App.GracefulShutdownSec) * time.Second
	shutdownComplete := make(chan struct{})

	go func() {
		defer close(shutdownComplete)
		safeExit(session, log)
	}()

	select {
	case <-shutdownComplete:
		log.Infof("✅ Shutdown complete")
	case <-time.After(shutdownTimeout):
		log.Warnf("⚠️  Shutdown timed out - forcing exit")
	}

	log.Infof("👋 Go1 monitor stopped")
}

// safeExit leaves the robot lying down with the LED off
func safeExit(session *go1.Session, log logger.Logger) {
	defer session.Disconnect()

	if !session.IsConnected() {
		return
	}
	if err := session.Stop(); err != nil {
		log.Warnf("⚠️  Stop failed: %v", err)
	}
	if err := session.SetLEDColor(0, 0, 0); err != nil {
		log.Warnf("⚠️  LED off failed: %v", err)
	}
	if err := session.SetMode(go1.ModeStandDown); err != nil {
		log.Warnf("⚠️  Stand down failed: %v", err)
	}
}
