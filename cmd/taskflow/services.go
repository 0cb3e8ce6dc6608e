package main

import (
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"

	"github.com/nhle/taskflow/internal/api"
	"github.com/nhle/taskflow/internal/board"
	"github.com/nhle/taskflow/internal/credential"
	"github.com/nhle/taskflow/internal/logging"
	"github.com/nhle/taskflow/internal/model"
	"github.com/nhle/taskflow/internal/notification"
	"github.com/nhle/taskflow/internal/realtime"
	"github.com/nhle/taskflow/internal/session"
	"github.com/nhle/taskflow/internal/store"
)

// services is the wired object graph shared by every subcommand.
type services struct {
	cfg     *model.AppConfig
	logger  *log.Logger
	client  *api.Client
	session *session.Store
	channel *realtime.Channel
	boards  *board.Store
	notes   *notification.Store

	closers []io.Closer
}

// loadServices reads the config at path and builds the services. When
// toFile is set the logger writes to the configured log file, since the
// TUI owns the terminal.
func loadServices(path string, toFile bool) (*services, error) {
	cfg, err := model.LoadConfig(path)
	if err != nil {
		return nil, err
	}

	svc := &services{cfg: cfg}

	if toFile {
		logger, closer, err := logging.NewFile(cfg.Log)
		if err != nil {
			return nil, err
		}
		svc.logger = logger
		svc.closers = append(svc.closers, closer)
	} else {
		svc.logger = logging.New(stderr, cfg.Log)
	}

	v, err := svc.openVault()
	if err != nil {
		svc.Close()
		return nil, err
	}

	var sess *session.Store
	svc.client = api.NewClient(
		cfg.Server.APIURL,
		api.TokenFunc(func() string { return sess.Token() }),
		api.WithTimeout(time.Duration(cfg.Server.TimeoutSec)*time.Second),
	)
	sess = session.New(svc.client, v,
		session.WithTimeouts(session.Timeouts{
			Absolute:   cfg.Session.AbsoluteTTL,
			Inactivity: cfg.Session.InactivityTTL,
		}),
		session.WithLogger(svc.logger.WithPrefix("session")),
	)
	svc.session = sess

	svc.channel = realtime.New(cfg.Server.WSURL,
		realtime.WithToken(sess.Token),
		realtime.WithLogger(svc.logger.WithPrefix("realtime")),
	)
	svc.boards = board.New(svc.client, svc.channel, sess,
		board.WithLogger(svc.logger.WithPrefix("board")),
	)
	svc.notes = notification.New(svc.client,
		notification.WithPageSize(cfg.Notifications.PageSize),
		notification.WithMaxLive(cfg.Notifications.MaxLive),
		notification.WithLogger(svc.logger.WithPrefix("notifications")),
	)

	svc.channel.Subscribe(svc.boards.Apply)
	svc.channel.Subscribe(svc.notes.Apply)

	return svc, nil
}

func (s *services) openVault() (session.Vault, error) {
	switch s.cfg.Session.Vault {
	case model.VaultSQLite:
		db, err := store.NewSQLiteStore(s.cfg.Data.DBPath)
		if err != nil {
			return nil, fmt.Errorf("opening session database: %w", err)
		}
		s.closers = append(s.closers, db)
		return db, nil
	default:
		dir := filepath.Dir(s.cfg.Data.DBPath)
		return credential.NewVault(credential.SystemKeyring(dir)), nil
	}
}

// Close releases the realtime connection, the database and the log file.
func (s *services) Close() {
	if s.channel != nil {
		if err := s.channel.Close(); err != nil {
			s.logger.Debug("closing realtime channel", "err", err)
		}
	}
	for i := len(s.closers) - 1; i >= 0; i-- {
		_ = s.closers[i].Close()
	}
}
