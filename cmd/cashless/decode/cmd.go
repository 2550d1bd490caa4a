// Decode creditor backlog items, hex per line, e.g. from leveldb dump.
package decode

import (
	"context"
	"encoding/hex"
	"strings"

	"github.com/c-bata/go-prompt"
	"github.com/focpay/cashless/cmd/cashless/subcmd"
	"github.com/focpay/cashless/helpers/cli"
	"github.com/focpay/cashless/internal/payment"
	"github.com/focpay/cashless/internal/state"
	"github.com/focpay/cashless/log2"
	"github.com/golang/protobuf/proto"
	"github.com/juju/errors"
)

const modName = "decode"

var Mod = subcmd.Mod{Name: modName, Main: Main}

func Main(ctx context.Context, config *state.Config) error {
	g := state.GetGlobal(ctx)
	cli.MainLoop(modName, newExecutor(g.Log), newCompleter())
	return nil
}

func newCompleter() func(d prompt.Document) []prompt.Suggest {
	return func(d prompt.Document) []prompt.Suggest { return nil }
}

func newExecutor(log *log2.Log) func(string) {
	return func(line string) {
		if strings.TrimSpace(line) == "" {
			return
		}
		text, err := Outcome(line)
		if err != nil {
			log.Errorf("%s", errors.ErrorStack(err))
			return
		}
		log.Info(text)
	}
}

// Outcome renders one backlog item as protobuf text.
func Outcome(line string) (string, error) {
	line = strings.TrimSpace(line)
	if len(line)%2 == 1 {
		line = "0" + line
	}
	b, err := hex.DecodeString(line)
	if err != nil {
		return "", errors.Annotate(err, "hex decode")
	}
	var o payment.Outcome
	if err := o.UnmarshalBinary(b); err != nil {
		return "", errors.Annotate(err, "proto unmarshal")
	}
	return proto.CompactTextString(&o), nil
}
