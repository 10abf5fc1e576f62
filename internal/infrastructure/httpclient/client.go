package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

const maxErrorBody = 4 << 10

// StatusError is a response outside 2xx.
type StatusError struct {
	Method string
	URL    string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s returned %d: %s", e.Method, e.URL, e.Code, e.Body)
}

// Client is a JSON client with a client span per call and W3C headers
// injected. It sets no timeout of its own; the request context bounds each call.
type Client struct {
	base       string
	peer       string
	tracer     trace.Tracer
	propagator propagation.TextMapPropagator
	http       *http.Client
}

func New(baseURL, peer string, tp trace.TracerProvider) *Client {
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	return &Client{
		base:       strings.TrimRight(baseURL, "/"),
		peer:       peer,
		tracer:     tp.Tracer("httpclient"),
		propagator: otel.GetTextMapPropagator(),
		http: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 100,
			},
		},
	}
}

// Do sends in as JSON (when non-nil) and decodes a 2xx body into out (when non-nil).
func (c *Client) Do(ctx context.Context, method, path string, header http.Header, in, out any) (int, error) {
	url := c.base + path
	ctx, span := c.tracer.Start(ctx, "call-"+c.peer, trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	span.SetAttributes(
		attribute.String("http.url", url),
		attribute.String("http.method", method),
		attribute.String("peer.service", c.peer),
	)

	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return 0, fmt.Errorf("httpclient: encode %s: %w", path, err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		span.RecordError(err)
		return 0, err
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	c.propagator.Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := c.http.Do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return 0, err
	}
	defer resp.Body.Close()
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		err := &StatusError{Method: method, URL: url, Code: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return resp.StatusCode, err
	}
	if out != nil && resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil && err != io.EOF {
			span.RecordError(err)
			return resp.StatusCode, fmt.Errorf("httpclient: decode %s: %w", path, err)
		}
	}
	return resp.StatusCode, nil
}
