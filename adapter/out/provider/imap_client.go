// Package provider implements the remote mailbox port over IMAP.
package provider

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	"github.com/rs/zerolog"

	"mailflow/pkg/apperr"
)

// IMAPConfig holds connection settings for one account.
type IMAPConfig struct {
	Host     string
	Port     int
	Username string
	Password string

	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration

	KeepaliveInterval time.Duration
	IdleRenewInterval time.Duration

	MaxMessageBytes int64
	FetchBatchSize  int

	// ArchiveFolder is the destination of Archive moves. Left empty it
	// is derived from the host (Gmail keeps archived mail in All Mail).
	ArchiveFolder string
}

func (c *IMAPConfig) withDefaults() *IMAPConfig {
	out := *c
	if out.Port == 0 {
		out.Port = 993
	}
	if out.ConnectTimeout == 0 {
		out.ConnectTimeout = 30 * time.Second
	}
	if out.WriteTimeout == 0 {
		out.WriteTimeout = 30 * time.Second
	}
	if out.KeepaliveInterval == 0 {
		out.KeepaliveInterval = 10 * time.Second
	}
	if out.IdleRenewInterval == 0 {
		out.IdleRenewInterval = 4 * time.Minute
	}
	if out.ReadTimeout == 0 {
		out.ReadTimeout = 5 * time.Minute
	}
	// A read deadline shorter than the IDLE renewal would kill every
	// silent IDLE session before it renews.
	if out.ReadTimeout <= out.IdleRenewInterval {
		out.ReadTimeout = out.IdleRenewInterval + time.Minute
	}
	if out.MaxMessageBytes == 0 {
		out.MaxMessageBytes = 50 * 1024 * 1024
	}
	if out.FetchBatchSize == 0 {
		out.FetchBatchSize = 10
	}
	if out.ArchiveFolder == "" {
		if strings.Contains(strings.ToLower(out.Host), "gmail") {
			out.ArchiveFolder = "[Gmail]/All Mail"
		} else {
			out.ArchiveFolder = "Archive"
		}
	}
	return &out
}

// deadlineConn wraps a net.Conn and applies read/write deadlines on
// every operation so a dead server cannot hang a command forever.
type deadlineConn struct {
	net.Conn
	readTimeout  time.Duration
	writeTimeout time.Duration
}

func (c *deadlineConn) Read(b []byte) (int, error) {
	if c.readTimeout > 0 {
		if err := c.Conn.SetReadDeadline(time.Now().Add(c.readTimeout)); err != nil {
			return 0, err
		}
	}
	return c.Conn.Read(b)
}

func (c *deadlineConn) Write(b []byte) (int, error) {
	if c.writeTimeout > 0 {
		if err := c.Conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
			return 0, err
		}
	}
	return c.Conn.Write(b)
}

// IMAPAdapter implements out.MailboxProvider over a single shared IMAP
// connection. Commands are serialized through opMu; a running IDLE is
// broken before a command and re-entered after it.
type IMAPAdapter struct {
	cfg *IMAPConfig
	log zerolog.Logger

	// opMu serializes command traffic, including the idle loop's
	// re-entry, so only one command runs on the wire at a time.
	opMu sync.Mutex

	mu         sync.Mutex
	conn       *imapclient.Client
	pending    chan struct{}
	selected   string
	selectedRO bool
	lastCount  uint32

	idleCmd    *imapclient.IdleCommand
	idleActive bool
	newMail    chan uint32
	idleStop   chan struct{}
	idleDone   chan struct{}
	onMail     func(uint32)

	keepaliveStop chan struct{}
	closed        bool
}

// NewIMAPAdapter creates the adapter and starts its keepalive loop.
func NewIMAPAdapter(cfg *IMAPConfig, log zerolog.Logger) *IMAPAdapter {
	a := &IMAPAdapter{
		cfg:           cfg.withDefaults(),
		log:           log.With().Str("component", "imap").Logger(),
		newMail:       make(chan uint32, 16),
		keepaliveStop: make(chan struct{}),
	}
	go a.keepaliveLoop()
	return a
}

// =============================================================================
// Connection Lifecycle
// =============================================================================

// ensure returns the live connection, dialing if needed. A dial already
// in flight is shared: concurrent callers wait for it to settle instead
// of opening their own connection.
func (a *IMAPAdapter) ensure(ctx context.Context) (*imapclient.Client, error) {
	for {
		a.mu.Lock()
		if a.closed {
			a.mu.Unlock()
			return nil, apperr.ConnectionError(a.cfg.Host, fmt.Errorf("adapter closed"))
		}
		if a.conn != nil {
			conn := a.conn
			a.mu.Unlock()
			return conn, nil
		}
		if a.pending != nil {
			wait := a.pending
			a.mu.Unlock()
			select {
			case <-wait:
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			continue
		}
		settled := make(chan struct{})
		a.pending = settled
		a.mu.Unlock()

		conn, err := a.dial(ctx)

		a.mu.Lock()
		if err == nil {
			a.conn = conn
			a.selected = ""
			a.lastCount = 0
		}
		a.pending = nil
		close(settled)
		a.mu.Unlock()

		if err != nil {
			return nil, err
		}
		a.log.Info().Str("host", a.cfg.Host).Msg("imap connected")
		return conn, nil
	}
}

func (a *IMAPAdapter) dial(ctx context.Context) (*imapclient.Client, error) {
	addr := fmt.Sprintf("%s:%d", a.cfg.Host, a.cfg.Port)
	dialer := &net.Dialer{Timeout: a.cfg.ConnectTimeout}

	rawConn, err := tls.DialWithDialer(dialer, "tcp", addr, &tls.Config{ServerName: a.cfg.Host})
	if err != nil {
		return nil, apperr.ConnectionError(a.cfg.Host, err)
	}

	wrapped := &deadlineConn{
		Conn:         rawConn,
		readTimeout:  a.cfg.ReadTimeout,
		writeTimeout: a.cfg.WriteTimeout,
	}

	options := &imapclient.Options{
		UnilateralDataHandler: &imapclient.UnilateralDataHandler{
			Mailbox: func(data *imapclient.UnilateralDataMailbox) {
				if data.NumMessages != nil {
					a.handleExists(*data.NumMessages)
				}
			},
		},
	}

	conn := imapclient.New(wrapped, options)

	if err := conn.WaitGreeting(); err != nil {
		conn.Close()
		return nil, apperr.ConnectionError(a.cfg.Host, err)
	}
	if err := conn.Login(a.cfg.Username, a.cfg.Password).Wait(); err != nil {
		conn.Close()
		return nil, apperr.ConnectionError(a.cfg.Host, fmt.Errorf("login: %w", err))
	}

	if ctx.Err() != nil {
		conn.Close()
		return nil, ctx.Err()
	}
	return conn, nil
}

// dropConn discards the connection after a fatal command error. The
// next ensure call dials fresh.
func (a *IMAPAdapter) dropConn() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.conn != nil {
		a.conn.Close()
		a.conn = nil
		a.selected = ""
		a.idleCmd = nil
	}
}

// selectFolder switches the connection's selected mailbox. A read-write
// selection satisfies later read-only needs, so it only reselects when
// the folder changes or write access is missing.
func (a *IMAPAdapter) selectFolder(conn *imapclient.Client, folder string, readOnly bool) error {
	a.mu.Lock()
	current, currentRO := a.selected, a.selectedRO
	a.mu.Unlock()

	if current == folder && (readOnly || !currentRO) {
		return nil
	}

	data, err := conn.Select(folder, &imap.SelectOptions{ReadOnly: readOnly}).Wait()
	if err != nil {
		return apperr.RemoteOpError("select "+folder, err)
	}

	a.mu.Lock()
	a.selected = folder
	a.selectedRO = readOnly
	a.lastCount = data.NumMessages
	a.mu.Unlock()
	return nil
}

// do runs fn with the shared connection, breaking a running IDLE first.
// The idle loop re-enters once opMu is released.
func (a *IMAPAdapter) do(ctx context.Context, fn func(conn *imapclient.Client) error) error {
	a.opMu.Lock()
	defer a.opMu.Unlock()

	a.breakIdle()

	conn, err := a.ensure(ctx)
	if err != nil {
		return err
	}
	if err := fn(conn); err != nil {
		if isConnError(err) {
			a.dropConn()
		}
		return err
	}
	return nil
}

// breakIdle closes the in-flight IDLE command, if any. The idle loop
// observes the termination and queues behind opMu for re-entry.
func (a *IMAPAdapter) breakIdle() {
	a.mu.Lock()
	cmd := a.idleCmd
	a.idleCmd = nil
	a.mu.Unlock()
	if cmd != nil {
		cmd.Close()
	}
}

func isConnError(err error) bool {
	if err == nil {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "connection") || strings.Contains(msg, "broken pipe") ||
		strings.Contains(msg, "EOF") || strings.Contains(msg, "closed")
}

// =============================================================================
// Keepalive
// =============================================================================

// keepaliveLoop sends NOOP while the connection sits selected outside
// IDLE. TryLock keeps keepalives from queueing behind real commands.
func (a *IMAPAdapter) keepaliveLoop() {
	ticker := time.NewTicker(a.cfg.KeepaliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-a.keepaliveStop:
			return
		case <-ticker.C:
		}

		if !a.opMu.TryLock() {
			continue
		}
		a.mu.Lock()
		conn := a.conn
		idling := a.idleCmd != nil
		a.mu.Unlock()

		if conn != nil && !idling {
			if err := conn.Noop().Wait(); err != nil {
				a.log.Warn().Err(err).Msg("keepalive noop failed, dropping connection")
				a.dropConn()
			}
		}
		a.opMu.Unlock()
	}
}

// Close shuts the adapter down. Active IDLE is stopped first.
func (a *IMAPAdapter) Close() error {
	a.StopIdle()
	close(a.keepaliveStop)

	a.mu.Lock()
	a.closed = true
	conn := a.conn
	a.conn = nil
	a.mu.Unlock()

	if conn != nil {
		if err := conn.Logout().Wait(); err != nil {
			conn.Close()
		}
	}
	return nil
}
