package transfer

import (
	"context"
	"fmt"
	"net/http"

	"github.com/oyoms/go-officeclient/graph"
)

type fakeResult struct {
	resp *graph.Response
	err  error
}

func status(code int) fakeResult {
	return fakeResult{resp: &graph.Response{StatusCode: code, Header: http.Header{}}}
}

func body(code int, payload string) fakeResult {
	return fakeResult{resp: &graph.Response{StatusCode: code, Header: http.Header{}, Body: []byte(payload)}}
}

func invalidSession() fakeResult {
	return fakeResult{
		resp: &graph.Response{StatusCode: http.StatusNotFound},
		err:  &graph.APIError{StatusCode: http.StatusNotFound, Code: graph.CodeInvalidSession, Message: "session expired"},
	}
}

func failure(code int) fakeResult {
	return fakeResult{
		resp: &graph.Response{StatusCode: code},
		err:  &graph.APIError{StatusCode: code, Body: "boom"},
	}
}

// fakeDoer replays results in order and records every request it receives.
type fakeDoer struct {
	results  []fakeResult
	requests []*graph.Request
}

func (d *fakeDoer) Do(_ context.Context, req *graph.Request) (*graph.Response, error) {
	d.requests = append(d.requests, req)
	if len(d.requests) > len(d.results) {
		return nil, fmt.Errorf("unexpected request #%d: %s %s", len(d.requests), req.Method, req.Path)
	}
	r := d.results[len(d.requests)-1]
	return r.resp, r.err
}

type fakeOpener struct {
	openErrs []error
	closeErr error
	opened   int
	closed   []string
}

func (o *fakeOpener) OpenSession(context.Context) (string, error) {
	o.opened++
	if len(o.openErrs) >= o.opened && o.openErrs[o.opened-1] != nil {
		return "", o.openErrs[o.opened-1]
	}
	return fmt.Sprintf("handle-%d", o.opened), nil
}

func (o *fakeOpener) CloseSession(_ context.Context, handle string) error {
	o.closed = append(o.closed, handle)
	return o.closeErr
}

type fakeTarget struct {
	uploadURL   string
	openErr     error
	inlineCalls [][]byte
	openCalls   []int64
}

func (t *fakeTarget) Inline(_ context.Context, payload []byte) (*graph.Response, error) {
	t.inlineCalls = append(t.inlineCalls, payload)
	return &graph.Response{StatusCode: http.StatusCreated, Body: []byte(`{"id":"small"}`)}, nil
}

func (t *fakeTarget) Open(_ context.Context, totalSize int64) (string, error) {
	t.openCalls = append(t.openCalls, totalSize)
	if t.openErr != nil {
		return "", t.openErr
	}
	return t.uploadURL, nil
}

// createdOnlyTarget treats only 201 Created as the end of an upload.
type createdOnlyTarget struct {
	fakeTarget
}

func (t *createdOnlyTarget) UploadComplete(resp *graph.Response) bool {
	return resp.StatusCode == http.StatusCreated
}
