package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/cbcentral/bluetooth"
	"github.com/cbcentral/bluetooth/client"
	"github.com/cbcentral/bluetooth/internal/config"
	"github.com/cbcentral/bluetooth/internal/tracer"
)

// driverFactory replaces the platform driver when set.
var driverFactory bluetooth.DriverFactory

var (
	errPeripheralNotFound     = errors.New("peripheral not found")
	errCharacteristicNotFound = errors.New("characteristic not found")
)

const disconnectTimeout = 5 * time.Second

// session is what every command needs: the configuration, a logger and a
// client on the radio.
type session struct {
	cfg         *config.Config
	logger      *logrus.Logger
	client      *client.Client
	stopTracing func(context.Context) error
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		cfg.LogLevel = level
	}
	if format, _ := cmd.Flags().GetString("format"); format != "" {
		cfg.OutputFormat = format
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func openSession(cmd *cobra.Command) (*session, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}

	// Arguments are valid, runtime errors should not print the usage.
	cmd.SilenceUsage = true

	logger := cfg.NewLogger()
	logger.SetOutput(cmd.ErrOrStderr())

	stopTracing, err := tracer.Setup(cmd.Context(), cfg.Tracer)
	if err != nil {
		return nil, err
	}

	c, err := client.Open(&bluetooth.CentralManagerOptions{
		EventBufferSize: cfg.EventBufferSize,
		Logger:          logger,
		Driver:          driverFactory,
	}, &client.Options{
		Timeout:         cfg.OperationTimeout,
		ConnectTimeout:  cfg.ConnectTimeout,
		WriteChunkDelay: cfg.WriteChunkDelay,
		Logger:          logger,
	})
	if err != nil {
		stopTracing(context.Background())
		return nil, fmt.Errorf("open Bluetooth: %w", err)
	}
	return &session{cfg: cfg, logger: logger, client: c, stopTracing: stopTracing}, nil
}

func (s *session) Close() {
	if err := s.client.Close(); err != nil {
		s.logger.WithError(err).Warn("close central manager")
	}
	if err := s.stopTracing(context.Background()); err != nil {
		s.logger.WithError(err).Warn("flush traces")
	}
}

// signalContext is cancelled on Ctrl+C.
func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
}

// find returns the peripheral with the given identifier, scanning for it
// when the system does not know it yet.
func (s *session) find(ctx context.Context, id bluetooth.UUID) (*bluetooth.Peripheral, error) {
	if err := s.client.WaitPoweredOn(ctx); err != nil {
		return nil, err
	}
	known, err := s.client.RetrievePeripherals(ctx, []bluetooth.UUID{id})
	if err != nil {
		return nil, err
	}
	if len(known) > 0 {
		return known[0], nil
	}

	s.logger.WithField("peripheral", id).Info("peripheral unknown, scanning")
	scanCtx, cancel := context.WithTimeout(ctx, s.cfg.ScanTimeout)
	defer cancel()
	found := make(chan *bluetooth.Peripheral, 1)
	err = s.client.Scan(scanCtx, bluetooth.ScanOptions{}, func(ev bluetooth.PeripheralDiscovered) {
		if ev.Peripheral.ID() != id {
			return
		}
		select {
		case found <- ev.Peripheral:
			s.client.StopScan()
		default:
		}
	})
	select {
	case p := <-found:
		return p, nil
	default:
	}
	if err == nil || errors.Is(err, context.DeadlineExceeded) {
		return nil, fmt.Errorf("%w: %s", errPeripheralNotFound, id)
	}
	return nil, err
}

// connect connects to the peripheral named by arg. The returned function
// disconnects it.
func (s *session) connect(ctx context.Context, arg string) (*bluetooth.Peripheral, func(), error) {
	id, err := bluetooth.ParseUUID(arg)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid peripheral identifier %q: %w", arg, err)
	}
	p, err := s.find(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	s.logger.WithField("peripheral", id).Debug("connecting")
	if err := s.client.Connect(ctx, p, bluetooth.ConnectOptions{}); err != nil {
		return nil, nil, fmt.Errorf("connect %s: %w", id, err)
	}
	disconnect := func() {
		ctx, cancel := context.WithTimeout(context.Background(), disconnectTimeout)
		defer cancel()
		if err := s.client.Disconnect(ctx, p); err != nil {
			s.logger.WithError(err).Warn("disconnect")
		}
	}
	return p, disconnect, nil
}

// characteristic discovers the characteristic of p with the given UUID,
// searching the given services or all of them.
func (s *session) characteristic(ctx context.Context, p *bluetooth.Peripheral, uuid bluetooth.UUID, services ...bluetooth.UUID) (bluetooth.Characteristic, error) {
	found, err := s.client.DiscoverServices(ctx, p, services...)
	if err != nil {
		return bluetooth.Characteristic{}, err
	}
	for _, svc := range found {
		chars, err := s.client.DiscoverCharacteristics(ctx, svc, uuid)
		if err != nil {
			return bluetooth.Characteristic{}, err
		}
		if len(chars) > 0 {
			return chars[0], nil
		}
	}
	return bluetooth.Characteristic{}, fmt.Errorf("%w: %s", errCharacteristicNotFound, uuid.ShortString())
}

// target parses the characteristic argument and the --service flag of cmd.
func target(cmd *cobra.Command, arg string) (bluetooth.UUID, []bluetooth.UUID, error) {
	uuid, err := bluetooth.ParseUUID(arg)
	if err != nil {
		return bluetooth.UUID{}, nil, fmt.Errorf("invalid characteristic UUID %q: %w", arg, err)
	}
	service, _ := cmd.Flags().GetString("service")
	if service == "" {
		return uuid, nil, nil
	}
	su, err := bluetooth.ParseUUID(service)
	if err != nil {
		return bluetooth.UUID{}, nil, fmt.Errorf("invalid service UUID %q: %w", service, err)
	}
	return uuid, []bluetooth.UUID{su}, nil
}
