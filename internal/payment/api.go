package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"io/ioutil"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/focpay/cashless/log2"
	"github.com/juju/errors"
)

const (
	PathOldestPaid = "payments/oldest-paid"
	PathCreditFmt  = "payments/%s/credit"
)

// maxBodyLength guards against misconfigured base_url pointing to some large page
const maxBodyLength = 64 << 10

type HTTPStatusError struct {
	Code int
	URL  string
}

func (e HTTPStatusError) Error() string {
	return fmt.Sprintf("http status=%d url=%s", e.Code, e.URL)
}

type MalformedJSONError struct {
	Err error
}

func (e MalformedJSONError) Error() string { return "malformed JSON: " + e.Err.Error() }

// Fetcher is what Poller needs from ledger.
type Fetcher interface {
	// OldestPaid returns nil,nil when nothing is pending.
	OldestPaid(ctx context.Context) (*Payment, error)
}

// Crediter is what Creditor needs from ledger.
type Crediter interface {
	// Credit returns true only when ledger confirms status CREDITED.
	// false,nil is rejection, worth retry.
	Credit(ctx context.Context, o *Outcome) (bool, error)
}

type Client struct {
	Log   *log2.Log
	http  *http.Client
	base  *url.URL
	token string
}

var _ Fetcher = &Client{}
var _ Crediter = &Client{}

// NewClient transport=nil uses http.DefaultTransport.
func NewClient(log *log2.Log, baseURL, token string, timeout time.Duration, transport http.RoundTripper) (*Client, error) {
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, errors.Annotatef(err, "api base_url=%s", baseURL)
	}
	if token == "" {
		return nil, errors.NotValidf("api token empty")
	}
	return &Client{
		Log:   log,
		http:  &http.Client{Transport: transport, Timeout: timeout},
		base:  base,
		token: token,
	}, nil
}

type apiPayment struct {
	ID     string      `json:"id"`
	Amount json.Number `json:"amount"`
	Status string      `json:"status"`
}

type apiPaymentResponse struct {
	Payment *apiPayment `json:"payment"`
}

type apiCreditRequest struct {
	Approved bool  `json:"approved"`
	Price    int32 `json:"price"`
}

func (self *Client) OldestPaid(ctx context.Context) (*Payment, error) {
	body, err := self.do(ctx, http.MethodGet, PathOldestPaid, nil)
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, nil
	}
	var r apiPaymentResponse
	if err = json.Unmarshal(body, &r); err != nil {
		return nil, MalformedJSONError{err}
	}
	if r.Payment == nil {
		return nil, nil
	}
	if r.Payment.ID == "" {
		return nil, MalformedJSONError{errors.Errorf("payment.id empty body=%s", body)}
	}
	amount, err := r.Payment.Amount.Int64()
	if err != nil {
		return nil, MalformedJSONError{errors.Annotatef(err, "payment.amount=%s", r.Payment.Amount)}
	}
	if amount < 0 || amount > math.MaxInt32 {
		return nil, MalformedJSONError{errors.NotValidf("payment.amount=%d", amount)}
	}
	return &Payment{ID: r.Payment.ID, Amount: int32(amount), Status: r.Payment.Status}, nil
}

func (self *Client) Credit(ctx context.Context, o *Outcome) (bool, error) {
	req, err := json.Marshal(apiCreditRequest{Approved: o.Approved, Price: o.Price})
	if err != nil {
		return false, errors.Trace(err)
	}
	path := fmt.Sprintf(PathCreditFmt, o.Payment.ID)
	body, err := self.do(ctx, http.MethodPatch, path, req)
	if err != nil {
		return false, err
	}
	var r apiPaymentResponse
	if err = json.Unmarshal(body, &r); err != nil {
		return false, MalformedJSONError{err}
	}
	if r.Payment == nil {
		return false, MalformedJSONError{errors.Errorf("payment missing body=%s", body)}
	}
	if !strings.EqualFold(r.Payment.Status, StatusCredited) {
		self.Log.Debugf("api credit id=%s status=%s", o.Payment.ID, r.Payment.Status)
		return false, nil
	}
	return true, nil
}

func (self *Client) do(ctx context.Context, method, path string, reqBody []byte) ([]byte, error) {
	u := self.base.ResolveReference(&url.URL{Path: path}).String()
	var r io.Reader
	if reqBody != nil {
		r = bytes.NewReader(reqBody)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, r)
	if err != nil {
		return nil, errors.Annotatef(err, "api %s %s", method, u)
	}
	req.Header.Set("Authorization", "Bearer "+self.token)
	req.Header.Set("Accept", "application/json")
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := self.http.Do(req)
	if err != nil {
		return nil, errors.Annotatef(err, "api %s %s", method, u)
	}
	defer resp.Body.Close()
	body, err := ioutil.ReadAll(io.LimitReader(resp.Body, maxBodyLength))
	if err != nil {
		return nil, errors.Annotatef(err, "api %s %s read body", method, u)
	}
	if resp.StatusCode/100 != 2 {
		return nil, HTTPStatusError{Code: resp.StatusCode, URL: u}
	}
	return body, nil
}
