package payment

import (
	"context"
	"sync"
	"sync/atomic"
)

type fetchResult struct {
	p   *Payment
	err error
}

// mockLedger plays scripted results, then repeats the last one.
type mockLedger struct {
	sync.Mutex
	fetches  []fetchResult
	credits  []fetchResult // p ignored, err != nil or p == nil means not credited
	nfetch   int32
	ncredit  int32
	credited []string
}

func (self *mockLedger) OldestPaid(ctx context.Context) (*Payment, error) {
	i := int(atomic.AddInt32(&self.nfetch, 1)) - 1
	self.Lock()
	defer self.Unlock()
	if len(self.fetches) == 0 {
		return nil, nil
	}
	if i >= len(self.fetches) {
		i = len(self.fetches) - 1
	}
	r := self.fetches[i]
	return r.p, r.err
}

func (self *mockLedger) Credit(ctx context.Context, o *Outcome) (bool, error) {
	i := int(atomic.AddInt32(&self.ncredit, 1)) - 1
	self.Lock()
	defer self.Unlock()
	ok := true
	var err error
	if len(self.credits) != 0 {
		if i >= len(self.credits) {
			i = len(self.credits) - 1
		}
		err = self.credits[i].err
		ok = err == nil && self.credits[i].p != nil
	}
	if ok {
		self.credited = append(self.credited, o.Payment.ID)
	}
	return ok, err
}

func (self *mockLedger) creditedIDs() []string {
	self.Lock()
	defer self.Unlock()
	return append([]string(nil), self.credited...)
}
