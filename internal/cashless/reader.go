// Package cashless is MDB cashless device (reader) state machine.
// VMC is bus master, reader only replies, exactly one response per command.
// Vend outcome is sent to VMC only after remote ledger confirmed the credit,
// until then POLL is answered with plain ACK.
package cashless

import (
	"encoding/binary"
	"fmt"

	"github.com/focpay/cashless/hardware/mdb"
	"github.com/focpay/cashless/hardware/relay"
	"github.com/focpay/cashless/internal/payment"
	"github.com/focpay/cashless/internal/tele"
	"github.com/focpay/cashless/log2"
	"github.com/juju/errors"
)

// wire price is in hundredths of minor currency unit
const priceScale = 100

// no price requested or fractional price
const priceNone int32 = -1

type Rearmer interface {
	Rearm() bool
}

type Outbox interface {
	Enqueue(*payment.Outcome) error
}

type ReaderOptions struct {
	// capacity 1, filled by payment poller
	Pending <-chan *payment.Payment
	// creditor confirmations
	Credited <-chan *payment.Outcome
	Poller   Rearmer
	Creditor Outbox
	Relay    relay.Pulser
	Tele     tele.Teler
}

// Reader is owned by single goroutine, no locking.
type Reader struct {
	log   *log2.Log
	opt   ReaderOptions
	state SessionState

	// dequeued from Pending, not yet decided
	payment *payment.Payment
	price   int32
	// decided, credit not confirmed yet
	awaiting *payment.Outcome
	// deferred vend response, sent on next POLL in Vend
	future *mdb.Packet
}

func NewReader(log *log2.Log, opt ReaderOptions) *Reader {
	if opt.Relay == nil {
		opt.Relay = relay.Noop{}
	}
	if opt.Tele == nil {
		opt.Tele = tele.Noop{}
	}
	return &Reader{
		log:   log,
		opt:   opt,
		state: StateInactive,
		price: priceNone,
	}
}

func (self *Reader) State() SessionState { return self.state }

// CurrentPrice returns price of accepted VEND_REQUEST in minor units, -1 if none.
func (self *Reader) CurrentPrice() int32 { return self.price }

func (self *Reader) CurrentPayment() *payment.Payment { return self.payment }

// Awaiting returns vend outcome waiting for ledger confirmation.
func (self *Reader) Awaiting() *payment.Outcome { return self.awaiting }

// Decide is the vend approval rule: paid amount equals price exactly.
func Decide(p *payment.Payment, price int32) bool {
	return p != nil && price >= 0 && p.Amount == price
}

// DecodePrice reads VEND_REQUEST price field, bytes 2-3 big endian, in hundredths.
// Price that is not a whole multiple of 100 is rejected rather than truncated,
// so e.g. 13 00 00 05 decodes to no price and the vend is denied.
func DecodePrice(b []byte) (int32, error) {
	if len(b) < 4 {
		return priceNone, errors.NotValidf("vend request length=%d", len(b))
	}
	raw := binary.BigEndian.Uint16(b[2:4])
	if raw%priceScale != 0 {
		return priceNone, errors.NotValidf("vend request price=%d/%d not whole", raw, priceScale)
	}
	return int32(raw / priceScale), nil
}

// Handle processes one command frame and returns the response.
func (self *Reader) Handle(request mdb.Packet) mdb.Packet {
	b := request.Bytes()
	var response mdb.Packet
	if mdb.Known(b) {
		self.logSerial(LogIn, b)
		response = self.dispatch(b)
	} else {
		response = self.unhandled(b)
	}
	self.logSerial(LogOut, response.Bytes())
	return response
}

func (self *Reader) dispatch(b []byte) mdb.Packet {
	switch mdb.FullCommand(b) {
	case mdb.CmdResetFull:
		self.setState(StateInactive)
		return mdb.RespAck

	case mdb.CmdSetupConfig:
		if !bytesEqual(b, mdb.SetupConfigExpect.Bytes()) {
			self.log.Warningf("cashless unexpected setup config=%x", b)
		}
		return mdb.RespSetupConfig

	case mdb.CmdSetupMaxMin:
		if !bytesEqual(b, mdb.SetupMaxMinExpect.Bytes()) {
			self.log.Warningf("cashless unexpected setup max/min=%x", b)
		}
		return mdb.RespAck

	case mdb.CmdPoll:
		return self.poll()

	case mdb.CmdVendRequest:
		if self.state != StateSessionIdle {
			return self.unhandled(b)
		}
		price, err := DecodePrice(b)
		if err != nil {
			self.log.Warningf("cashless %v, vend will be denied", err)
		}
		self.price = price
		self.setState(StateVend)
		return mdb.RespAck

	case mdb.CmdVendCancel:
		self.price = priceNone
		self.setState(StateSessionIdle)
		return mdb.RespVendDenied

	case mdb.CmdVendSuccess, mdb.CmdVendFailure:
		return mdb.RespAck

	case mdb.CmdVendSessionComplete:
		self.setState(StateEnabled)
		return mdb.RespEndSession

	case mdb.CmdVendCashSale:
		self.setState(StateEnabled)
		return mdb.RespAck

	case mdb.CmdReaderDisable:
		self.setState(StateDisabled)
		return mdb.RespAck

	case mdb.CmdReaderEnable:
		self.setState(StateEnabled)
		return mdb.RespAck

	case mdb.CmdReaderCancel:
		return mdb.RespCancelled

	case mdb.CmdExpansionRequestID:
		return mdb.RespPeripheralID

	case mdb.CmdExpansionDiagnostics:
		return mdb.RespDiagnostics
	}
	return self.unhandled(b)
}

func (self *Reader) poll() mdb.Packet {
	self.checkCredited()

	switch self.state {
	case StateInactive:
		return mdb.RespJustReset

	case StateEnabled:
		if self.payment == nil && self.awaiting == nil {
			select {
			case p := <-self.opt.Pending:
				self.payment = p
				self.log.Infof("cashless got %s", p.String())
			default:
			}
		}
		if self.payment == nil {
			return mdb.RespAck
		}
		self.setState(StateSessionIdle)
		self.opt.Relay.Pulse()
		return mdb.RespBeginSession

	case StateVend:
		switch {
		case self.payment != nil:
			self.decide()
			return mdb.RespAck
		case self.future != nil:
			response := *self.future
			self.future = nil
			return response
		}
	}
	return mdb.RespAck
}

func (self *Reader) decide() {
	o := &payment.Outcome{
		Payment:  self.payment,
		Price:    self.price,
		Approved: Decide(self.payment, self.price),
	}
	self.payment = nil
	self.price = priceNone
	self.log.Infof("cashless decided %s", o.String())
	self.opt.Tele.Vend(teleVend(o, false))
	if err := self.opt.Creditor.Enqueue(o); err != nil {
		// nothing will confirm this outcome, VMC must not wait forever
		self.log.Errorf("cashless creditor enqueue %s err=%v", o.String(), err)
		response := mdb.RespVendDenied
		self.future = &response
		self.opt.Poller.Rearm()
		return
	}
	self.awaiting = o
}

// checkCredited never blocks.
func (self *Reader) checkCredited() {
	for {
		select {
		case o := <-self.opt.Credited:
			self.credited(o)
		default:
			return
		}
	}
}

func (self *Reader) credited(o *payment.Outcome) {
	if self.awaiting == nil || o == nil || o.Payment == nil || o.Payment.ID != self.awaiting.Payment.ID {
		self.log.Infof("cashless stale confirmation %s", o.String())
		return
	}
	self.log.Infof("cashless credited %s", o.String())
	self.awaiting = nil
	self.opt.Tele.Vend(teleVend(o, true))
	if self.state == StateVend {
		response := mdb.RespVendDenied
		if o.Approved {
			response = mdb.RespVendApproved
		}
		self.future = &response
	} else {
		self.log.Infof("cashless confirmation outside vend state=%s, response dropped", self.state.String())
	}
	if !self.opt.Poller.Rearm() {
		self.log.Debugf("cashless poller already active")
	}
}

// unhandled keeps VMC from waiting for reply to a command we don't understand.
func (self *Reader) unhandled(b []byte) mdb.Packet {
	self.logSerial(LogUnhandled, b)
	return mdb.RespCmdOutOfSeq
}

func (self *Reader) setState(s SessionState) {
	if s == self.state {
		return
	}
	self.log.Debugf("cashless state %s -> %s", self.state.String(), s.String())
	self.state = s
	if s != StateVend {
		self.future = nil
	}
	self.opt.Tele.State(s.String())
}

type LogDirection uint8

const (
	LogIn LogDirection = iota
	LogOut
	LogUnhandled
)

// FormatSerial renders one line of serial traffic log.
func FormatSerial(dir LogDirection, b []byte, state SessionState) string {
	name, mark := "", "<"
	switch dir {
	case LogIn, LogUnhandled:
		name = mdb.NameOf(b)
	case LogOut:
		name, mark = mdb.NameOfResponse(b), ">"
	}
	return fmt.Sprintf("%s %-25s | %-20x | %s", mark, name, b, state.String())
}

func (self *Reader) logSerial(dir LogDirection, b []byte) {
	line := FormatSerial(dir, b, self.state)
	if dir == LogUnhandled {
		self.log.Errorf("cashless unhandled %s", line)
		return
	}
	self.log.Debug(line)
}

func teleVend(o *payment.Outcome, credited bool) tele.Vend {
	return tele.Vend{
		PaymentID: o.Payment.ID,
		Amount:    o.Payment.Amount,
		Price:     o.Price,
		Approved:  o.Approved,
		Credited:  credited,
	}
}

func bytesEqual(a, b []byte) bool { return string(a) == string(b) }
