package mdb

import (
	"bytes"
	"encoding/hex"
	"strings"
	"testing"

	"github.com/juju/errors"
)

// PERIPHERAL_ID is the longest response, 30 bytes.
const PacketMaxLength = 40

var ErrPacketOverflow = errors.New("mdb: operation larger than max packet size")

// Packet is one frame payload, command or response.
type Packet struct {
	b [PacketMaxLength]byte
	l int
}

func PacketFromBytes(b []byte) (Packet, error) {
	p := Packet{}
	if _, err := p.Write(b); err != nil {
		return Packet{}, err
	}
	return p, nil
}
func MustPacketFromBytes(b []byte) Packet {
	p, err := PacketFromBytes(b)
	if err != nil {
		panic(err)
	}
	return p
}

func PacketFromHex(s string) (Packet, error) {
	b, err := hex.DecodeString(strings.Replace(s, " ", "", -1))
	if err != nil {
		return Packet{}, errors.Annotatef(err, "packet hex=%s", s)
	}
	return PacketFromBytes(b)
}
func MustPacketFromHex(s string) Packet {
	p, err := PacketFromHex(s)
	if err != nil {
		panic(err)
	}
	return p
}

func (self *Packet) Bytes() []byte { return self.b[:self.l] }

func (self *Packet) Equal(p2 *Packet) bool {
	return self.l == p2.l && bytes.Equal(self.Bytes(), p2.Bytes())
}

func (self *Packet) HasPrefix(prefix []byte) bool { return bytes.HasPrefix(self.Bytes(), prefix) }

// Write replaces packet content.
func (self *Packet) Write(p []byte) (int, error) {
	if len(p) > PacketMaxLength {
		return 0, ErrPacketOverflow
	}
	self.l = copy(self.b[:], p)
	return self.l, nil
}

func (self *Packet) Len() int { return self.l }

// Hex is compact form used in serial log lines.
func (self *Packet) Hex() string { return hex.EncodeToString(self.Bytes()) }

// Format groups hex by 4 bytes.
func (self *Packet) Format() string {
	h := self.Hex()
	hlen := len(h)
	ss := make([]string, 0, (hlen+7)/8)
	for i := 0; i < hlen; i += 8 {
		hi := i + 8
		if hi > hlen {
			hi = hlen
		}
		ss = append(ss, h[i:hi])
	}
	return strings.Join(ss, " ")
}

func (self *Packet) TestHex(t testing.TB, expect string) {
	t.Helper()
	if _, err := hex.DecodeString(expect); err != nil {
		t.Fatalf("invalid expect=%s err=%s", expect, err)
	}
	if actual := self.Hex(); actual != expect {
		t.Fatalf("Packet=%s expected=%s", actual, expect)
	}
}
