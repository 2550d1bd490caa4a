package payment

import (
	"bytes"
	"context"
	"io/ioutil"
	"net/http"
	"testing"
	"time"

	"github.com/focpay/cashless/helpers"
	"github.com/focpay/cashless/log2"
	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testBaseURL = "https://ledger.test/api"

func testClient(t testing.TB, m *helpers.MockHTTP) *Client {
	c, err := NewClient(log2.NewTest(t, log2.LDebug), testBaseURL, "secret", time.Second, m)
	require.NoError(t, err)
	return c
}

func TestOldestPaid(t *testing.T) {
	t.Parallel()

	type Case struct {
		name      string
		mock      helpers.MockHTTP
		expect    *Payment
		expectErr func(testing.TB, error)
	}
	isMalformed := func(t testing.TB, err error) {
		_, ok := errors.Cause(err).(MalformedJSONError)
		assert.True(t, ok, "expected MalformedJSONError err=%v", err)
	}
	cases := []Case{
		{"empty", helpers.MockHTTP{}, nil, nil},
		{"no-content", helpers.MockHTTP{Header: []byte("HTTP/1.1 204 No Content\r\n\r\n")}, nil, nil},
		{"null", helpers.MockHTTP{Body: []byte(`{"payment":null}`)}, nil, nil},
		{"number", helpers.MockHTTP{Body: []byte(`{"payment":{"id":"p1","amount":10,"status":"PAID"}}`)},
			&Payment{ID: "p1", Amount: 10, Status: StatusPaid}, nil},
		{"string-amount", helpers.MockHTTP{Body: []byte(`{"payment":{"id":"p2","amount":"25","status":"PAID"}}`)},
			&Payment{ID: "p2", Amount: 25, Status: StatusPaid}, nil},
		{"html", helpers.MockHTTP{Body: []byte("<html>")}, nil, isMalformed},
		{"no-id", helpers.MockHTTP{Body: []byte(`{"payment":{"amount":5}}`)}, nil, isMalformed},
		{"overflow-amount", helpers.MockHTTP{Body: []byte(`{"payment":{"id":"p4","amount":4294967301}}`)}, nil, isMalformed},
		{"negative-amount", helpers.MockHTTP{Body: []byte(`{"payment":{"id":"p5","amount":-5}}`)}, nil, isMalformed},
		{"max-amount", helpers.MockHTTP{Body: []byte(`{"payment":{"id":"p6","amount":2147483647}}`)},
			&Payment{ID: "p6", Amount: 2147483647}, nil},
		{"float-amount", helpers.MockHTTP{Body: []byte(`{"payment":{"id":"p3","amount":2.5}}`)}, nil, isMalformed},
		{"status-500", helpers.MockHTTP{Header: []byte("HTTP/1.1 500 Internal Server Error\r\n\r\n")}, nil,
			func(t testing.TB, err error) {
				e, ok := errors.Cause(err).(HTTPStatusError)
				require.True(t, ok, "err=%v", err)
				assert.Equal(t, 500, e.Code)
				assert.Equal(t, testBaseURL+"/"+PathOldestPaid, e.URL)
			}},
		{"network", helpers.MockHTTP{Err: errors.New("dial tcp: lookup ledger.test: no such host")}, nil,
			func(t testing.TB, err error) {
				assert.Contains(t, err.Error(), "no such host")
			}},
	}
	helpers.RandUnix().Shuffle(len(cases), func(i int, j int) { cases[i], cases[j] = cases[j], cases[i] })
	for _, c := range cases {
		c := c
		t.Run(c.name, func(t *testing.T) {
			c := c
			p, err := testClient(t, &c.mock).OldestPaid(context.Background())
			if c.expectErr != nil {
				require.Error(t, err)
				c.expectErr(t, err)
				return
			}
			require.NoError(t, err, errors.ErrorStack(err))
			assert.Equal(t, c.expect, p)
		})
	}
}

func TestOldestPaidRequest(t *testing.T) {
	t.Parallel()

	var seen *http.Request
	m := &helpers.MockHTTP{Fun: func(req *http.Request) (*http.Response, error) {
		seen = req
		return &http.Response{StatusCode: 200, Body: ioutil.NopCloser(bytes.NewReader(nil)), Request: req}, nil
	}}
	p, err := testClient(t, m).OldestPaid(context.Background())
	require.NoError(t, err)
	assert.Nil(t, p)
	require.NotNil(t, seen)
	assert.Equal(t, http.MethodGet, seen.Method)
	assert.Equal(t, "https://ledger.test/api/payments/oldest-paid", seen.URL.String())
	assert.Equal(t, "Bearer secret", seen.Header.Get("Authorization"))
}

func TestCredit(t *testing.T) {
	t.Parallel()

	type Case struct {
		name   string
		status string
		body   string
		expect bool
		err    bool
	}
	cases := []Case{
		{"credited", "200 OK", `{"payment":{"id":"p1","status":"CREDITED"}}`, true, false},
		{"credited-lower", "200 OK", `{"payment":{"status":"credited"}}`, true, false},
		{"paid", "200 OK", `{"payment":{"status":"PAID"}}`, false, false},
		{"no-payment", "200 OK", `{}`, false, true},
		{"conflict", "409 Conflict", `{"error":"state"}`, false, true},
		{"garbage", "200 OK", `ok`, false, true},
	}
	helpers.RandUnix().Shuffle(len(cases), func(i int, j int) { cases[i], cases[j] = cases[j], cases[i] })
	for _, c := range cases {
		c := c
		t.Run(c.name, func(t *testing.T) {
			var reqBody []byte
			var reqMethod, reqURL, reqType string
			m := &helpers.MockHTTP{Fun: func(req *http.Request) (*http.Response, error) {
				reqMethod, reqURL, reqType = req.Method, req.URL.String(), req.Header.Get("Content-Type")
				reqBody, _ = ioutil.ReadAll(req.Body)
				return (&helpers.MockHTTP{
					Header: []byte("HTTP/1.1 " + c.status + "\r\n\r\n"),
					Body:   []byte(c.body),
				}).RoundTrip(req)
			}}
			o := &Outcome{Payment: &Payment{ID: "p1", Amount: 5}, Price: 5, Approved: true}
			ok, err := testClient(t, m).Credit(context.Background(), o)
			if c.err {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, c.expect, ok)
			assert.Equal(t, http.MethodPatch, reqMethod)
			assert.Equal(t, "https://ledger.test/api/payments/p1/credit", reqURL)
			assert.Equal(t, "application/json", reqType)
			assert.JSONEq(t, `{"approved":true,"price":5}`, string(reqBody))
		})
	}
}

func TestNewClientInvalid(t *testing.T) {
	t.Parallel()

	_, err := NewClient(nil, testBaseURL, "", time.Second, nil)
	require.Error(t, err)
	assert.True(t, errors.IsNotValid(err))
}

func TestOutcomeBinary(t *testing.T) {
	t.Parallel()

	o := &Outcome{Payment: &Payment{ID: "9f1c", Amount: 250, Status: StatusPaid}, Price: 250, Approved: true}
	b, err := o.MarshalBinary()
	require.NoError(t, err)
	var o2 Outcome
	require.NoError(t, o2.UnmarshalBinary(b))
	assert.Equal(t, o.Payment, o2.Payment)
	assert.Equal(t, o.Price, o2.Price)
	assert.True(t, o2.Approved)
	assert.Equal(t, "outcome payment id=9f1c amount=250 price=250 approved=true", o2.String())
}
