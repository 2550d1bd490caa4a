package main

import (
	"flag"
	"os"
	"strconv"
	"strings"
	"time"

	prompt "github.com/c-bata/go-prompt"
	"github.com/focpay/cashless/hardware/amc"
	"github.com/focpay/cashless/hardware/mdb"
	"github.com/focpay/cashless/hardware/uart"
	"github.com/focpay/cashless/helpers/cli"
	"github.com/focpay/cashless/log2"
	"github.com/juju/errors"
)

const usage = `syntax: commands separated by whitespace
(main)
- sN       pause N milliseconds
- @XX...   send data frame with payload hex XX..., show replies

(meta)
- loop=N   repeat N times all commands on this line
`

// converter answers ACK then data frame
const maxReplyEvents = 3

var log = log2.NewStderr(log2.LDebug)

type action struct {
	name string
	f    func() error
}

type line struct {
	actions []action
	loop    uint
}

func (l line) run() error {
	n := l.loop
	if n == 0 {
		n = 1
	}
	for i := uint(0); i < n; i++ {
		for _, a := range l.actions {
			if err := a.f(); err != nil {
				return errors.Annotate(err, a.name)
			}
		}
	}
	return nil
}

func main() {
	cmdline := flag.NewFlagSet(os.Args[0], flag.ExitOnError)
	devicePath := cmdline.String("device", "/dev/ttyUSB0", "")
	baud := cmdline.Int("baud", 115200, "")
	timeoutMs := cmdline.Int("timeout", 1000, "read timeout, milliseconds")
	_ = cmdline.Parse(os.Args[1:])

	log.SetFlags(log2.LInteractiveFlags)

	u := uart.NewFileUart(time.Duration(*timeoutMs) * time.Millisecond)
	if err := u.Open(*devicePath, *baud); err != nil {
		log.Fatal(errors.ErrorStack(err))
	}
	defer u.Close()

	cli.MainLoop("cashless-amc-cli", newExecutor(u), newCompleter())
}

func newCompleter() func(d prompt.Document) []prompt.Suggest {
	suggests := []prompt.Suggest{
		{Text: "sN", Description: "pause for N ms"},
		{Text: "loop=N", Description: "repeat line N times"},
		{Text: "@12", Description: "send POLL, show replies"},
		{Text: "@XX", Description: "send data frame, show replies"},
		{Text: "help", Description: "show syntax"},
	}

	return func(d prompt.Document) []prompt.Suggest {
		return prompt.FilterFuzzy(suggests, d.GetWordBeforeCursor(), true)
	}
}

func newExecutor(rw amc.ReadWriter) func(string) {
	return func(input string) {
		l, err := parseLine(rw, input)
		if err != nil {
			log.Errorf(errors.ErrorStack(err))
			return
		}
		if err = l.run(); err != nil {
			log.Errorf(errors.ErrorStack(err))
		}
	}
}

func newTx(rw amc.ReadWriter, request mdb.Packet) action {
	return action{name: "tx:" + request.Format(), f: func() error {
		log.Infof("> %s %s", mdb.NameOf(request.Bytes()), request.Format())
		if err := amc.WriteFrame(rw, request.Bytes()); err != nil {
			return err
		}
		for i := 0; i < maxReplyEvents; i++ {
			e, err := amc.ReadFrame(rw)
			if err != nil {
				return err
			}
			if e.Kind != amc.EventData {
				log.Infof("< %s", e.String())
				continue
			}
			log.Infof("< %s %s", mdb.NameOfResponse(e.Packet.Bytes()), e.Packet.Format())
			return nil
		}
		return nil
	}}
}

func parseLine(rw amc.ReadWriter, input string) (line, error) {
	words := strings.Fields(input)
	l := line{actions: make([]action, 0, len(words))}
	for _, word := range words {
		switch {
		case word == "help":
			return line{actions: []action{{name: "help", f: func() error { log.Infof(usage); return nil }}}}, nil
		case strings.HasPrefix(word, "loop="):
			if l.loop != 0 {
				return line{}, errors.Errorf("multiple loop commands, expected at most one")
			}
			i, err := strconv.ParseUint(word[5:], 10, 32)
			if err != nil {
				return line{}, errors.Annotatef(err, "word=%s", word)
			}
			l.loop = uint(i)
		default:
			a, err := parseCommand(rw, word)
			if err != nil {
				return line{}, err
			}
			l.actions = append(l.actions, a)
		}
	}
	return l, nil
}

func parseCommand(rw amc.ReadWriter, word string) (action, error) {
	switch {
	case word[0] == 's':
		i, err := strconv.ParseUint(word[1:], 10, 32)
		if err != nil {
			return action{}, errors.Annotatef(err, "word=%s", word)
		}
		d := time.Duration(i) * time.Millisecond
		return action{name: word, f: func() error { time.Sleep(d); return nil }}, nil
	case word[0] == '@':
		request, err := mdb.PacketFromHex(word[1:])
		if err != nil {
			return action{}, errors.Annotatef(err, "word=%s", word)
		}
		return newTx(rw, request), nil
	default:
		return action{}, errors.Errorf("error: invalid command: '%s'", word)
	}
}
