// Package node assembles a running syndesi node from configuration: the
// router and its interpreter chain, the IP and serial controllers, the
// optional pcap tap and the admin HTTP server.
package node

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/danmuck/syndesi/internal/admin"
	"github.com/danmuck/syndesi/internal/capture"
	"github.com/danmuck/syndesi/internal/config"
	"github.com/danmuck/syndesi/internal/device"
	"github.com/danmuck/syndesi/internal/interp"
	"github.com/danmuck/syndesi/internal/logging"
	"github.com/danmuck/syndesi/internal/observability"
	"github.com/danmuck/syndesi/internal/protocol/command"
	"github.com/danmuck/syndesi/internal/router"
	"github.com/danmuck/syndesi/internal/transport/ip"
	"github.com/danmuck/syndesi/internal/transport/stream"
	"github.com/rs/zerolog/log"
)

var ErrNotDevice = errors.New("node: config role is not device")

// DefaultHeartbeat is how often a running device logs its status.
const DefaultHeartbeat = 30 * time.Second

// Service runs a device node until its context ends.
type Service struct {
	cfg       config.Config
	Heartbeat time.Duration

	commands *command.Registry
	device   *device.Device
	router   *router.Router

	ip     *ip.Controller
	serial *stream.Controller
	tap    *capture.Writer
	admin  *admin.Server

	closeOnce sync.Once
}

// NewService builds the device stack. Nothing is opened until Open.
func NewService(cfg config.Config) (*Service, error) {
	if cfg.Node.Role != config.RoleDevice {
		return nil, fmt.Errorf("%w: %q", ErrNotDevice, cfg.Node.Role)
	}
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}

	reg := command.NewRegistry()
	dev := device.New(device.IdentityFor(cfg.Node.ID, cfg.Node.Name, cfg.Node.Description), device.DefaultOptions())
	if err := dev.Register(reg); err != nil {
		return nil, err
	}
	return &Service{
		cfg:       cfg,
		Heartbeat: DefaultHeartbeat,
		commands:  reg,
		device:    dev,
	}, nil
}

func (s *Service) Device() *device.Device { return s.device }
func (s *Service) Commands() *command.Registry { return s.commands }
func (s *Service) Router() *router.Router { return s.router }
func (s *Service) IP() *ip.Controller { return s.ip }
func (s *Service) Config() config.Config { return s.cfg }

// Open binds the listener, opens the serial line and the capture file. On
// error everything already opened is closed.
func (s *Service) Open() (err error) {
	defer func() {
		if err != nil {
			s.Close()
		}
	}()

	opts := router.Options{NodeID: s.cfg.Node.ID, Limits: s.cfg.Limits()}
	if s.cfg.Capture.Path != "" {
		if s.tap, err = capture.Create(s.cfg.Capture.Path); err != nil {
			return err
		}
		opts.Tap = s.tap
	}

	chain := interp.NewChain(
		&interp.Error{},
		interp.NewCommand(s.commands),
		&interp.Raw{OnRequest: interp.Echo},
	)
	s.router = router.New(chain, opts)

	s.ip = ip.New(s.cfg.IPOptions())
	if err = s.ip.Listen(s.cfg.ListenAddr()); err != nil {
		return err
	}
	s.router.RegisterController(s.ip)

	if s.cfg.Serial.Device != "" {
		peer, perr := s.cfg.SerialPeer()
		if perr != nil {
			return perr
		}
		if s.serial, err = stream.Open(s.cfg.SerialKind(), s.cfg.Serial.Device, peer); err != nil {
			return err
		}
		s.router.RegisterController(s.serial)
	}

	if s.cfg.Admin.Addr != "" {
		s.admin = admin.New(admin.Options{
			Addr:        s.cfg.Admin.Addr,
			CORSOrigins: s.cfg.Admin.CorsOrigins,
			Router:      s.router,
			Commands:    s.commands,
			Device:      s.device,
		})
	}
	return nil
}

// Run opens the service and serves until SIGINT or SIGTERM.
func (s *Service) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	observability.InitLogger("sdctl", s.cfg.Node.ID)
	logging.SetLevel(s.cfg.Log.Level)
	if err := s.Open(); err != nil {
		return err
	}
	defer s.Close()
	return s.Serve(ctx)
}

// Serve runs every opened component until ctx ends or one of them fails.
func (s *Service) Serve(ctx context.Context) error {
	observability.RegisterMetrics()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 3)
	var wg sync.WaitGroup
	run := func(name string, fn func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := fn(ctx)
			if err != nil && ctx.Err() == nil {
				errCh <- fmt.Errorf("%s: %w", name, err)
			}
		}()
	}

	run("ip", func(ctx context.Context) error { return s.ip.Serve(ctx, s.router) })
	if s.serial != nil {
		run("serial", func(ctx context.Context) error { return s.serial.Pump(ctx, s.router) })
	}
	if s.admin != nil {
		run("admin", s.admin.Serve)
	}

	log.Info().
		Str("node", s.cfg.Node.ID).
		Str("listen", s.ip.Addr().String()).
		Bool("serial", s.serial != nil).
		Bool("admin", s.admin != nil).
		Int("commands", s.commands.Len()).
		Msg("node.serve ready")

	ticker := time.NewTicker(s.heartbeat())
	defer ticker.Stop()

	var err error
loop:
	for {
		select {
		case <-ctx.Done():
			log.Info().Str("node", s.cfg.Node.ID).Msg("node.serve shutdown")
			break loop
		case err = <-errCh:
			log.Error().Err(err).Str("node", s.cfg.Node.ID).Msg("node.serve component failed")
			break loop
		case <-ticker.C:
			log.Info().
				Str("node", s.cfg.Node.ID).
				Int("pending", len(s.router.Pending())).
				Int("registers", len(s.device.Registers.Snapshot())).
				Msg("node.heartbeat")
		}
	}
	cancel()
	wg.Wait()
	return err
}

// Close releases the listener, the serial line and the capture file.
func (s *Service) Close() {
	s.closeOnce.Do(func() {
		if s.ip != nil {
			_ = s.ip.Close()
		}
		if s.serial != nil {
			_ = s.serial.Close()
		}
		if s.tap != nil {
			if err := s.tap.Close(); err != nil {
				log.Warn().Err(err).Str("path", s.cfg.Capture.Path).Msg("node.capture close failed")
			}
		}
	})
}

func (s *Service) heartbeat() time.Duration {
	if s.Heartbeat > 0 {
		return s.Heartbeat
	}
	return DefaultHeartbeat
}
