package provider

import (
	"context"
	"time"

	"github.com/emersion/go-imap/v2/imapclient"
)

const idleReconnectDelay = 5 * time.Second

// handleExists receives unilateral EXISTS updates from the server.
// The count is a new mailbox total; the delta against the last known
// total is what the monitor callback wants.
func (a *IMAPAdapter) handleExists(numMessages uint32) {
	a.mu.Lock()
	last := a.lastCount
	a.lastCount = numMessages
	monitoring := a.idleActive
	a.mu.Unlock()

	if !monitoring || numMessages <= last {
		return
	}
	delta := numMessages - last

	select {
	case a.newMail <- delta:
	default:
		a.log.Warn().Uint32("count", delta).Msg("new-mail signal dropped, channel full")
	}
}

// StartIdle begins push monitoring of folder. The loop owns the shared
// connection while idling; commands issued elsewhere break the IDLE and
// the loop re-enters it afterwards. Connection loss is retried forever
// with a fixed delay.
func (a *IMAPAdapter) StartIdle(folder string, onMail func(count uint32)) error {
	a.mu.Lock()
	if a.idleActive {
		a.mu.Unlock()
		return nil
	}
	a.idleActive = true
	a.idleStop = make(chan struct{})
	a.idleDone = make(chan struct{})
	a.onMail = onMail
	stop, done := a.idleStop, a.idleDone
	a.mu.Unlock()

	go a.idleLoop(folder, onMail, stop, done)
	a.log.Info().Str("folder", folder).Msg("idle monitoring started")
	return nil
}

// StopIdle ends monitoring and waits for the loop to exit.
func (a *IMAPAdapter) StopIdle() {
	a.mu.Lock()
	if !a.idleActive {
		a.mu.Unlock()
		return
	}
	a.idleActive = false
	stop, done := a.idleStop, a.idleDone
	a.mu.Unlock()

	close(stop)
	a.breakIdle()
	<-done
	a.log.Info().Msg("idle monitoring stopped")
}

func (a *IMAPAdapter) IdleActive() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.idleActive
}

func (a *IMAPAdapter) idleLoop(folder string, onMail func(uint32), stop, done chan struct{}) {
	defer close(done)

	for {
		select {
		case <-stop:
			return
		default:
		}

		a.opMu.Lock()
		conn, err := a.ensure(context.Background())
		if err == nil {
			err = a.selectFolder(conn, folder, true)
		}
		if err != nil {
			a.opMu.Unlock()
			a.log.Warn().Err(err).Dur("retry_in", idleReconnectDelay).Msg("idle connect failed")
			select {
			case <-stop:
				return
			case <-time.After(idleReconnectDelay):
			}
			continue
		}

		idleCmd, err := conn.Idle()
		if err != nil {
			a.opMu.Unlock()
			a.log.Warn().Err(err).Msg("idle command rejected, falling back to noop poll")
			a.pollOnce(stop)
			continue
		}

		a.mu.Lock()
		a.idleCmd = idleCmd
		a.mu.Unlock()
		a.opMu.Unlock()

		waitCh := make(chan error, 1)
		go func() {
			waitCh <- idleCmd.Wait()
		}()

		renew := time.NewTimer(a.cfg.IdleRenewInterval)

		select {
		case <-stop:
			a.clearIdleCmd(idleCmd)
			idleCmd.Close()
			<-waitCh
			renew.Stop()
			return

		case count := <-a.newMail:
			a.clearIdleCmd(idleCmd)
			idleCmd.Close()
			<-waitCh
			renew.Stop()
			a.log.Debug().Uint32("count", count).Msg("new mail while idling")
			go onMail(count)

		case <-renew.C:
			// Servers drop silent IDLE sessions; re-enter well before
			// the RFC's 30 minute ceiling.
			a.clearIdleCmd(idleCmd)
			idleCmd.Close()
			<-waitCh

		case err := <-waitCh:
			// Either a command elsewhere broke the IDLE or the
			// connection died. breakIdle clears idleCmd first, which
			// tells the two cases apart.
			renew.Stop()
			a.mu.Lock()
			broken := a.idleCmd == nil
			a.idleCmd = nil
			a.mu.Unlock()

			if !broken || (err != nil && isConnError(err)) {
				if err != nil {
					a.log.Warn().Err(err).Msg("idle terminated, reconnecting")
				}
				a.dropConn()
				select {
				case <-stop:
					return
				case <-time.After(idleReconnectDelay):
				}
			}
		}
	}
}

func (a *IMAPAdapter) clearIdleCmd(cmd *imapclient.IdleCommand) {
	a.mu.Lock()
	if a.idleCmd == cmd {
		a.idleCmd = nil
	}
	a.mu.Unlock()
}

// pollOnce is the degraded mode for servers without IDLE: a NOOP makes
// the server flush pending EXISTS updates through the unilateral
// handler, then the loop sleeps one keepalive interval.
func (a *IMAPAdapter) pollOnce(stop chan struct{}) {
	a.opMu.Lock()
	a.mu.Lock()
	conn := a.conn
	a.mu.Unlock()
	if conn != nil {
		if err := conn.Noop().Wait(); err != nil {
			a.dropConn()
		}
	}
	a.opMu.Unlock()

	select {
	case <-stop:
	case <-time.After(30 * time.Second):
	}
}
