// SPDX-License-Identifier: ice License 1.0

package service

import (
	"context"
	"net/http"
	stdlibtime "time"

	"github.com/goccy/go-json"
	"github.com/imroc/req/v3"
	"github.com/pkg/errors"

	"github.com/ice-blockchain/flagsync/log"
	"github.com/ice-blockchain/flagsync/terror"
)

// NewTransport builds the default Transport. It never retries; a timeout <= 0 keeps the client's default.
func NewTransport(timeout stdlibtime.Duration) Transport {
	client := req.C().
		SetJsonMarshal(json.Marshal).
		SetJsonUnmarshal(json.Unmarshal).
		SetUserAgent(userAgent).
		SetCommonRetryCount(0)
	if timeout > 0 {
		client = client.SetTimeout(timeout)
	}

	return &reqTransport{client: client}
}

func (t *reqTransport) Execute(ctx context.Context, request *Request) (*Response, error) {
	log.Debug("making request", "method", request.Method, "url", request.URL)
	r := t.client.R().SetContext(ctx)
	for name, values := range request.Header {
		for _, value := range values {
			r = r.SetHeader(name, value)
		}
	}
	if request.Body != nil {
		r = r.SetBodyBytes(request.Body)
	}
	resp, err := r.Send(request.Method, request.URL)
	data := map[string]any{"url": request.URL}
	if err != nil {
		return nil, terror.New(ErrTransport, errors.Wrapf(err, "%v %v failed", request.Method, request.URL), data)
	}
	body, err := resp.ToBytes()
	if err != nil {
		return nil, terror.New(ErrTransport, errors.Wrapf(err, "unable to read response body of %v %v", request.Method, request.URL), data).
			With("statusCode", resp.GetStatusCode())
	}
	response := &Response{Header: resp.Header, Body: body, StatusCode: resp.GetStatusCode()}
	if resp.IsErrorState() {
		return response, terror.New(ErrTransport, errors.Errorf("%v %v responded with %v", request.Method, request.URL, resp.GetStatusCode()), data).
			With("statusCode", resp.GetStatusCode()).
			With("body", string(body))
	}

	return response, nil
}

func jsonHeader() http.Header {
	header := make(http.Header, 1+1)
	header.Set("Content-Type", jsonContentType)
	header.Set("Accept", jsonContentType)

	return header
}
