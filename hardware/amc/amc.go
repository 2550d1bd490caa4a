// Package amc implements MDB converter link framing.
// Frame on the wire: STX control-code payload DLE ETX, receiver replies ACK.
package amc

import (
	"bytes"
	"fmt"
	"io"

	"github.com/focpay/cashless/hardware/mdb"
	"github.com/focpay/cashless/helpers"
	"github.com/juju/errors"
)

const (
	STX byte = 0x02 // start of frame
	ETX byte = 0x03 // end of frame, after DLE
	EOT byte = 0x04 // end of transmission
	DLE byte = 0x10
	ACK byte = 0x06
	NAK byte = 0x15

	// control code of pure data frame
	Data byte = 0x00
)

var (
	DataFrameStart = []byte{STX, Data}
	DataFrameEnd   = []byte{DLE, ETX}
)

// longest frame: marker, payload, marker
const maxFrameLength = mdb.PacketMaxLength + 4

var ErrFrameOverflow = errors.New("amc: frame larger than max packet size")

type EventKind uint8

const (
	EventNone EventKind = iota
	EventAck
	EventNak
	EventData
)

func (k EventKind) String() string {
	switch k {
	case EventNone:
		return "none"
	case EventAck:
		return "ack"
	case EventNak:
		return "nak"
	case EventData:
		return "data"
	}
	return fmt.Sprintf("EventKind(%d)", k)
}

type Event struct {
	Kind   EventKind
	Packet mdb.Packet
}

func (e Event) String() string {
	if e.Kind == EventData {
		return fmt.Sprintf("data=%s", e.Packet.Hex())
	}
	return e.Kind.String()
}

// ByteReader is what ReadFrame needs from serial line.
type ByteReader interface {
	ReadByte() (byte, error)
	ReadSlice(delim byte) ([]byte, error)
}

type ReadWriter interface {
	ByteReader
	io.Writer
}

// ReadFrame consumes one leading control byte and, for a data frame, the rest of it.
// Complete data frame is acknowledged with ACK before return.
// Read timeout is returned as error, check with errors.IsTimeout().
func ReadFrame(rw ReadWriter) (Event, error) {
	b, err := rw.ReadByte()
	if err != nil {
		return Event{}, err
	}
	switch b {
	case ACK:
		return Event{Kind: EventAck}, nil
	case NAK:
		return Event{Kind: EventNak}, nil
	case STX:
	default:
		return Event{Kind: EventNone}, nil
	}

	buf := make([]byte, 1, maxFrameLength)
	buf[0] = STX
	for !bytes.HasSuffix(buf, DataFrameEnd) {
		chunk, err := rw.ReadSlice(ETX)
		buf = append(buf, chunk...)
		if err != nil {
			return Event{}, errors.Annotatef(err, "amc frame incomplete=%x", buf)
		}
		if len(buf) > maxFrameLength {
			return Event{}, errors.Annotatef(ErrFrameOverflow, "frame=%x", buf)
		}
	}
	if err = helpers.WriteAll(rw, []byte{ACK}); err != nil {
		return Event{}, errors.Annotate(err, "amc write ACK")
	}

	if !bytes.HasPrefix(buf, DataFrameStart) || len(buf) < len(DataFrameStart)+len(DataFrameEnd) {
		// valid frame with another control code
		return Event{Kind: EventNone}, nil
	}
	payload := buf[len(DataFrameStart) : len(buf)-len(DataFrameEnd)]
	p, err := mdb.PacketFromBytes(payload)
	if err != nil {
		return Event{}, errors.Annotatef(err, "frame=%x", buf)
	}
	return Event{Kind: EventData, Packet: p}, nil
}

// WriteFrame sends payload as one data frame with single write.
func WriteFrame(w io.Writer, payload []byte) error {
	buf := make([]byte, 0, len(payload)+len(DataFrameStart)+len(DataFrameEnd))
	buf = append(buf, DataFrameStart...)
	buf = append(buf, payload...)
	buf = append(buf, DataFrameEnd...)
	return errors.Annotate(helpers.WriteAll(w, buf), "amc write frame")
}
