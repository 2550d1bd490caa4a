// Package acceptor runs the serial loop of cashless reader
// and supervises payment poller and creditor around it.
package acceptor

import (
	"runtime/debug"
	"sync"
	"time"

	"github.com/focpay/cashless/hardware/amc"
	"github.com/focpay/cashless/hardware/relay"
	"github.com/focpay/cashless/hardware/uart"
	"github.com/focpay/cashless/helpers"
	"github.com/focpay/cashless/internal/cashless"
	"github.com/focpay/cashless/internal/payment"
	"github.com/focpay/cashless/internal/tele"
	"github.com/focpay/cashless/log2"
	"github.com/juju/errors"
	"github.com/temoto/alive/v2"
)

const DefaultCooldown = 5 * time.Second

type Poller interface {
	C() <-chan *payment.Payment
	Rearm() bool
	Stop()
}

type Creditor interface {
	Credited() <-chan *payment.Outcome
	Enqueue(*payment.Outcome) error
	Start()
	Close() error
}

type Config struct {
	// sleep after unexpected error or panic in serial loop
	Cooldown time.Duration
	// log every frame event, including ACK/NAK from VMC
	LogFrames bool
	// called on every loop iteration, e.g. systemd watchdog ping
	Watchdog func()
}

type Parts struct {
	Uart     uart.Uarter
	Poller   Poller
	Creditor Creditor
	Relay    relay.Pulser
	Tele     tele.Teler
	// serial traffic log, nil = same as acceptor log
	ReaderLog *log2.Log
}

type Acceptor struct {
	Log    *log2.Log
	config Config
	parts  Parts
	alive  *alive.Alive
	reader *cashless.Reader
	once   sync.Once
}

func New(log *log2.Log, config Config, parts Parts) *Acceptor {
	if config.Cooldown <= 0 {
		config.Cooldown = DefaultCooldown
	}
	if config.Watchdog == nil {
		config.Watchdog = func() {}
	}
	readerLog := parts.ReaderLog
	if readerLog == nil {
		readerLog = log
	}
	self := &Acceptor{
		Log:    log,
		config: config,
		parts:  parts,
		alive:  alive.NewAlive(),
	}
	self.reader = cashless.NewReader(readerLog, cashless.ReaderOptions{
		Pending:  parts.Poller.C(),
		Credited: parts.Creditor.Credited(),
		Poller:   parts.Poller,
		Creditor: parts.Creditor,
		Relay:    parts.Relay,
		Tele:     parts.Tele,
	})
	return self
}

func (self *Acceptor) Reader() *cashless.Reader { return self.reader }

// Run blocks until Stop. Serial errors and panics never end the loop.
func (self *Acceptor) Run() {
	if !self.alive.Add(1) {
		return
	}
	defer self.alive.Done()

	self.start()
	self.Log.Infof("acceptor running")

	stopch := self.alive.StopChan()
	for self.alive.IsRunning() {
		if err := self.safeStep(); err != nil {
			self.Log.Errorf("acceptor %s", errors.ErrorStack(err))
			if err := self.parts.Uart.ResetRead(); err != nil {
				self.Log.Errorf("acceptor uart reset err=%v", err)
			}
			if !helpers.Sleep(self.config.Cooldown, stopch) {
				break
			}
		}
		self.config.Watchdog()
	}
	self.Log.Infof("acceptor stopping")
}

func (self *Acceptor) start() {
	self.parts.Creditor.Start()
	self.parts.Poller.Rearm()
}

// Stop ends serial loop, then poller and creditor. Safe to call many times.
func (self *Acceptor) Stop() {
	self.once.Do(func() {
		self.alive.Stop()
		self.alive.Wait()
		self.parts.Poller.Stop()
		if err := self.parts.Creditor.Close(); err != nil {
			self.Log.Errorf("acceptor creditor close err=%v", err)
		}
	})
}

// Step reads one frame and replies to data frame.
// Read timeout is not an error, VMC is silent.
func (self *Acceptor) Step() error {
	e, err := amc.ReadFrame(self.parts.Uart)
	if err != nil {
		if errors.IsTimeout(err) {
			if self.config.LogFrames {
				self.Log.Debugf("acceptor read %v", err)
			}
			return nil
		}
		return errors.Annotate(err, "read frame")
	}
	if self.config.LogFrames {
		self.Log.Debugf("acceptor frame %s", e.String())
	}
	if e.Kind != amc.EventData {
		return nil
	}
	response := self.reader.Handle(e.Packet)
	return errors.Annotate(amc.WriteFrame(self.parts.Uart, response.Bytes()), "write frame")
}

func (self *Acceptor) safeStep() (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("panic: %v\n%s", r, debug.Stack())
		}
	}()
	return self.Step()
}
