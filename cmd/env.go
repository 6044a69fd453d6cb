package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"fileno-manager/core/config"
	"fileno-manager/core/control"
	"fileno-manager/core/database"
	"fileno-manager/core/logger"
	"fileno-manager/core/metrics"
	"fileno-manager/core/progress"
	"fileno-manager/core/storage"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

var yesConfirm bool

// env is what every command runs with.
type env struct {
	cfg     *config.Config
	log     *zap.Logger
	db      *gorm.DB
	storage storage.Client
	redis   *redis.Client
	board   control.Board
	metrics *metrics.Metrics
}

// setup loads configuration and opens the connections a command needs.
func setup(ctx context.Context, withDB bool) (*env, error) {
	cfg, err := config.LoadConfig(".")
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	l, err := logger.New(&cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	if metricsTextfile != "" {
		cfg.Metrics.Textfile = metricsTextfile
	}

	e := &env{cfg: cfg, log: l, metrics: metrics.New()}

	if withDB {
		if e.db, err = database.Connect(cfg.Database); err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
	}

	if e.storage, err = storage.NewClient(cfg.Storage); err != nil {
		return nil, fmt.Errorf("failed to connect to storage: %w", err)
	}

	if e.redis, err = control.NewRedisClient(ctx, cfg.Redis); err != nil {
		return nil, err
	}
	if e.redis != nil {
		e.board = control.NewRedisBoard(e.redis,
			control.WithKeyPrefix(cfg.Redis.KeyPrefix),
			control.WithStatusTTL(time.Duration(cfg.Redis.StatusTTLSeconds)*time.Second),
		)
	} else {
		e.board = control.NewMemoryBoard()
	}
	return e, nil
}

func (e *env) close() {
	if e.redis != nil {
		_ = e.redis.Close()
	}
	if e.db != nil {
		if sqlDB, err := e.db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
	_ = e.log.Sync()
}

func (e *env) writeMetrics() {
	path := e.cfg.Metrics.Textfile
	if path == "" {
		return
	}
	if err := e.metrics.WriteTextfile(path); err != nil {
		e.log.Warn("Failed to write metrics", zap.String("path", path), zap.Error(err))
		return
	}
	e.log.Debug("Metrics written", zap.String("path", path))
}

// session is one locked, observable run.
type session struct {
	id        string
	kind      string
	target    string
	env       *env
	log       *zap.Logger
	sink      *progress.ChannelSink
	publisher *control.Publisher
	reporter  *progress.Reporter
}

func (e *env) newSession(kind, target, tag string) *session {
	id := uuid.NewString()
	log := logger.WithRun(e.log, id, tag).With(zap.String("kind", kind))
	sink := progress.NewChannelSink(256)
	return &session{
		id:     id,
		kind:   kind,
		target: target,
		env:    e,
		log:    log,
		sink:   sink,
		publisher: control.NewPublisher(e.board, control.Snapshot{
			RunID:  id,
			Kind:   kind,
			Target: target,
			Tag:    tag,
		}),
		reporter: progress.NewReporter(id, sink, log),
	}
}

// work is the body of a session. It returns the terminal state and counts.
type work func(ctx context.Context) (control.State, map[string]int, error)

// run locks the target, runs fn on one goroutine while others forward
// progress and poll for cancel requests, then publishes the terminal state.
// onCancel is invoked on a cancel request; nil cancels fn's context.
func (s *session) run(parent context.Context, onCancel func(), fn work) error {
	ttl := time.Duration(s.env.cfg.Redis.LockTTLSeconds) * time.Second
	if err := s.env.board.Acquire(parent, s.target, s.id, ttl); err != nil {
		return fmt.Errorf("failed to lock %s: %w", s.target, err)
	}
	defer func() {
		if err := s.env.board.Release(context.WithoutCancel(parent), s.target, s.id); err != nil {
			s.log.Warn("Failed to release lock", zap.String("target", s.target), zap.Error(err))
		}
	}()
	s.log.Info("Run started", zap.String("target", s.target))

	ctx, stop := context.WithCancel(parent)
	defer stop()
	if onCancel == nil {
		onCancel = stop
	}

	var (
		state  control.State
		counts map[string]int
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		for ev := range s.sink.Events() {
			if err := s.publisher.Emit(ev); err != nil {
				s.log.Debug("Failed to publish progress", zap.Error(err))
			}
			fields := []zap.Field{zap.String("phase", string(ev.Phase))}
			if ev.Percent != nil {
				fields = append(fields, zap.Float64("percent", *ev.Percent))
			}
			s.log.Debug(ev.Message, fields...)
		}
		return nil
	})
	g.Go(func() error {
		control.WatchCancel(gctx, s.env.board, s.id, time.Second, onCancel, s.log)
		return nil
	})
	g.Go(func() error {
		defer stop()
		defer s.sink.Close()
		var err error
		state, counts, err = fn(gctx)
		return err
	})
	err := g.Wait()

	if dropped := s.sink.Dropped(); dropped > 0 {
		s.log.Debug("Progress events dropped", zap.Int64("count", dropped))
	}
	if ferr := s.publisher.Finish(context.WithoutCancel(parent), state, counts, err); ferr != nil {
		s.log.Warn("Failed to publish final status", zap.Error(ferr))
	}
	s.env.writeMetrics()
	s.log.Info("Run finished", zap.String("state", string(state)))
	return err
}

// stateOf maps a work error onto a terminal state.
func stateOf(err error) control.State {
	switch {
	case err == nil:
		return control.StateSucceeded
	case errors.Is(err, context.Canceled):
		return control.StateCancelled
	default:
		return control.StateFailed
	}
}

// confirmDestructiveAction prompts the user for confirmation or uses --yes flag.
func confirmDestructiveAction(what string) bool {
	if yesConfirm {
		fmt.Println("\n✓ Auto-confirmed via --yes flag")
		return true
	}

	fmt.Printf("\n⚠️  %s\nType 'yes' to confirm: ", what)
	reader := bufio.NewReader(os.Stdin)
	response, err := reader.ReadString('\n')
	if err != nil {
		return false
	}

	return strings.TrimSpace(response) == "yes"
}
