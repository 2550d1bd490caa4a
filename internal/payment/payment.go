// Package payment connects the reader to the remote payment ledger.
//
// Poller finds one paid payment per activation and hands it to the reader.
// Creditor reports vend outcome back to the ledger, retrying until the ledger
// confirms, then returns the payment to the reader as credited.
package payment

import (
	"fmt"

	"github.com/golang/protobuf/proto"
)

// Status values used by the ledger. Comparison is case-insensitive.
const (
	StatusCreated   = "CREATED"
	StatusPaid      = "PAID"
	StatusDeclined  = "DECLINED"
	StatusError     = "ERROR"
	StatusCancelled = "CANCELLED"
	StatusCredited  = "CREDITED"
)

type Payment struct {
	ID string `json:"id" protobuf:"bytes,1,opt,name=id,proto3"`
	// minor currency units
	Amount int32  `json:"amount" protobuf:"varint,2,opt,name=amount,proto3"`
	Status string `json:"status,omitempty" protobuf:"bytes,3,opt,name=status,proto3"`
}

func (p *Payment) Reset() { *p = Payment{} }
func (p *Payment) String() string {
	if p == nil {
		return "payment=nil"
	}
	return fmt.Sprintf("payment id=%s amount=%d", p.ID, p.Amount)
}
func (*Payment) ProtoMessage() {}

// Outcome is vend decision about a payment, unit of work for Creditor.
// Stored in durable backlog as protobuf, see outcome.proto.
type Outcome struct {
	Payment  *Payment `protobuf:"bytes,1,opt,name=payment,proto3"`
	Price    int32    `protobuf:"varint,2,opt,name=price,proto3"`
	Approved bool     `protobuf:"varint,3,opt,name=approved,proto3"`
}

func (o *Outcome) Reset() { *o = Outcome{} }
func (o *Outcome) String() string {
	if o == nil {
		return "outcome=nil"
	}
	return fmt.Sprintf("outcome %s price=%d approved=%t", o.Payment.String(), o.Price, o.Approved)
}
func (*Outcome) ProtoMessage() {}

func (o *Outcome) MarshalBinary() ([]byte, error) { return proto.Marshal(o) }
func (o *Outcome) UnmarshalBinary(b []byte) error { return proto.Unmarshal(b, o) }
