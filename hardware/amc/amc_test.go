package amc

import (
	"bytes"
	"encoding/hex"
	"testing"

	"github.com/focpay/cashless/hardware/mdb"
	"github.com/focpay/cashless/hardware/uart"
	"github.com/focpay/cashless/helpers"
	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundTrip(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		payload []byte
	}{
		{"len=0", []byte{}},
		{"len=1", []byte{0x12}},
		{"len=30", mdb.RespPeripheralID.Bytes()},
		{"reset-full", []byte{0x10, 0x10}},
		{"contains-etx", []byte{0x13, 0x00, 0x00, 0x03}},
	}
	helpers.RandUnix().Shuffle(len(cases), func(i int, j int) { cases[i], cases[j] = cases[j], cases[i] })
	for _, c := range cases {
		c := c
		t.Run(c.name, func(t *testing.T) {
			wire := bytes.NewBuffer(nil)
			require.NoError(t, WriteFrame(wire, c.payload))

			ackw := bytes.NewBuffer(nil)
			u := uart.NewNullUart(ackw)
			u.Feed(wire.Bytes())
			e, err := ReadFrame(u)
			require.NoError(t, err)
			assert.Equal(t, EventData, e.Kind)
			assert.Equal(t, hex.EncodeToString(c.payload), e.Packet.Hex())
			assert.Equal(t, []byte{ACK}, ackw.Bytes())
		})
	}
}

func TestWriteFrame(t *testing.T) {
	t.Parallel()

	w := bytes.NewBuffer(nil)
	require.NoError(t, WriteFrame(w, mdb.RespBeginSession.Bytes()))
	assert.Equal(t, "020003ffff1003", hex.EncodeToString(w.Bytes()))
}

func TestReadFrame(t *testing.T) {
	t.Parallel()

	type Case struct {
		name    string
		input   string
		expect  Event
		ack     bool
		timeout bool
	}
	cases := []Case{
		{"ack", "06", Event{Kind: EventAck}, false, false},
		{"nak", "15", Event{Kind: EventNak}, false, false},
		{"garbage", "ff", Event{Kind: EventNone}, false, false},
		{"eot", "04", Event{Kind: EventNone}, false, false},
		{"poll", "0200121003", Event{Kind: EventData, Packet: mdb.MustPacketFromHex("12")}, true, false},
		{"vend-request", "0200130001f41003", Event{Kind: EventData, Packet: mdb.MustPacketFromHex("130001f4")}, true, false},
		{"other-control-code", "0201121003", Event{Kind: EventNone}, true, false},
		{"empty-line", "", Event{}, false, true},
		{"unterminated", "02001213", Event{}, false, true},
	}
	helpers.RandUnix().Shuffle(len(cases), func(i int, j int) { cases[i], cases[j] = cases[j], cases[i] })
	for _, c := range cases {
		c := c
		t.Run(c.name, func(t *testing.T) {
			w := bytes.NewBuffer(nil)
			u := uart.NewNullUart(w)
			u.Feed(helpers.MustHex(c.input))
			e, err := ReadFrame(u)
			if c.timeout {
				require.Error(t, err)
				assert.True(t, errors.IsTimeout(err), errors.ErrorStack(err))
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, c.expect.Kind, e.Kind)
			assert.True(t, c.expect.Packet.Equal(&e.Packet), "packet=%s expected=%s", e.Packet.Hex(), c.expect.Packet.Hex())
			if c.ack {
				assert.Equal(t, []byte{ACK}, w.Bytes())
			} else {
				assert.Equal(t, 0, w.Len(), "unexpected write %x", w.Bytes())
			}
		})
	}
}

func TestReadFrameOverflow(t *testing.T) {
	t.Parallel()

	u := uart.NewNullUart(nil)
	long := append([]byte{STX, Data}, bytes.Repeat([]byte{0x03}, maxFrameLength)...)
	u.Feed(append(long, DLE, ETX))
	_, err := ReadFrame(u)
	require.Error(t, err)
	assert.Equal(t, ErrFrameOverflow, errors.Cause(err))
}

func TestReadFrameSequence(t *testing.T) {
	t.Parallel()

	u := uart.NewNullUart(nil)
	u.Feed(helpers.MustHex("06" + "020010101003" + "15"))
	kinds := []EventKind{}
	for i := 0; i < 3; i++ {
		e, err := ReadFrame(u)
		require.NoError(t, err)
		kinds = append(kinds, e.Kind)
		if e.Kind == EventData {
			e.Packet.TestHex(t, "1010")
		}
	}
	assert.Equal(t, []EventKind{EventAck, EventData, EventNak}, kinds)
}
