package delivery

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"

	"feedbackhub/internal/apperr"
	"feedbackhub/internal/livechannel"
	"feedbackhub/internal/models"
)

const defaultRequestTimeout = 30 * time.Second

// HTTPSource talks to the feedbackhub API, either as an embedded widget with a
// project API key or as a logged-in operator with a bearer token.
type HTTPSource struct {
	base   string
	api    *resty.Client
	hc     *http.Client
	stream *http.Client
	apiKey string
	token  string
	push   bool
}

// HTTPOption configures an HTTPSource
type HTTPOption func(*HTTPSource)

// WithHTTPClient sets the client used for requests. Streams reuse its
// transport without the overall timeout.
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(s *HTTPSource) {
		s.hc = c
		s.stream = &http.Client{Transport: c.Transport}
	}
}

// WithoutPush makes the source report no live-channel support
func WithoutPush() HTTPOption {
	return func(s *HTTPSource) { s.push = false }
}

// NewWidgetSource returns a source for the public widget API
func NewWidgetSource(serverURL, apiKey string, opts ...HTTPOption) *HTTPSource {
	return newHTTPSource(serverURL+"/api/widget", apiKey, "", opts)
}

// NewOperatorSource returns a source for the operator dashboard API
func NewOperatorSource(serverURL, token string, opts ...HTTPOption) *HTTPSource {
	return newHTTPSource(serverURL+"/api/admin", "", token, opts)
}

func newHTTPSource(base, apiKey, token string, opts []HTTPOption) *HTTPSource {
	s := &HTTPSource{
		base:   strings.TrimRight(base, "/"),
		stream: &http.Client{},
		apiKey: apiKey,
		token:  token,
		push:   true,
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.hc != nil {
		s.api = resty.NewWithClient(s.hc)
	} else {
		s.api = resty.New().SetTimeout(defaultRequestTimeout)
	}
	s.api.SetBaseURL(s.base).SetHeader("Accept", "application/json")
	if apiKey != "" {
		s.api.SetHeader("X-API-Key", apiKey)
	}
	if token != "" {
		s.api.SetAuthToken(token)
	}
	return s
}

// SupportsPush implements Source
func (s *HTTPSource) SupportsPush() bool { return s.push }

// ListReplies implements Source
func (s *HTTPSource) ListReplies(ctx context.Context, threadID string) ([]models.Reply, error) {
	var out models.ReplyListResponse
	req := s.request(ctx, nil, &out).SetPathParam("threadID", threadID)
	if err := s.send(req, http.MethodGet, "/threads/{threadID}/replies"); err != nil {
		return nil, err
	}
	return out.Replies, nil
}

// AppendReply implements Source. Operator sources ignore senderIdentity.
func (s *HTTPSource) AppendReply(ctx context.Context, threadID, body, senderIdentity string) (models.Reply, error) {
	var out models.Reply
	in := models.AppendReplyRequest{Body: body, SenderIdentity: senderIdentity}
	req := s.request(ctx, in, &out).SetPathParam("threadID", threadID)
	if err := s.send(req, http.MethodPost, "/threads/{threadID}/replies"); err != nil {
		return models.Reply{}, err
	}
	return out, nil
}

// SubmitThread creates a thread and returns its id
func (s *HTTPSource) SubmitThread(ctx context.Context, in models.SubmitThreadRequest) (string, error) {
	var out models.SubmitThreadResponse
	if err := s.send(s.request(ctx, in, &out), http.MethodPost, "/threads"); err != nil {
		return "", err
	}
	return out.ThreadID, nil
}

// ListThreads lists the threads visible to the caller
func (s *HTTPSource) ListThreads(ctx context.Context) ([]models.Thread, error) {
	var out models.ThreadListResponse
	if err := s.send(s.request(ctx, nil, &out), http.MethodGet, "/threads"); err != nil {
		return nil, err
	}
	return out.Threads, nil
}

// UpdateStatus changes a thread's status; operator sources only
func (s *HTTPSource) UpdateStatus(ctx context.Context, threadID, status string) error {
	req := s.request(ctx, models.UpdateStatusRequest{Status: status}, nil).SetPathParam("threadID", threadID)
	return s.send(req, http.MethodPatch, "/threads/{threadID}/status")
}

func (s *HTTPSource) request(ctx context.Context, in, out any) *resty.Request {
	req := s.api.R().
		SetContext(ctx).
		SetError(&models.ErrorResponse{})
	if in != nil {
		req.SetBody(in)
	}
	if out != nil {
		req.SetResult(out)
	}
	return req
}

func (s *HTTPSource) send(req *resty.Request, method, path string) error {
	resp, err := req.Execute(method, path)
	if resp != nil && resp.IsError() {
		e, _ := resp.Error().(*models.ErrorResponse)
		return errorFromResponse(resp.StatusCode(), resp.Status(), e)
	}
	if err != nil {
		return apperr.Wrap(apperr.KindTransientIO, err, "request failed")
	}
	return nil
}

// Subscribe implements Source. The live channel stays on net/http since the
// response body is read incrementally.
func (s *HTTPSource) Subscribe(ctx context.Context, threadID string) (Stream, error) {
	ctx, cancel := context.WithCancel(ctx)

	target := s.base + "/threads/" + url.PathEscape(threadID) + "/stream"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	if s.apiKey != "" {
		req.Header.Set("X-API-Key", s.apiKey)
	}
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	resp, err := s.stream.Do(req)
	if err != nil {
		cancel()
		return nil, apperr.Wrap(apperr.KindTransientIO, err, "failed to open live channel")
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		cancel()
		var e models.ErrorResponse
		if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(&e); err != nil {
			return nil, errorFromResponse(resp.StatusCode, resp.Status, nil)
		}
		return nil, errorFromResponse(resp.StatusCode, resp.Status, &e)
	}

	st := &httpStream{
		events: make(chan StreamEvent, 16),
		body:   resp.Body,
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go st.pump()
	return st, nil
}

// errorFromResponse rebuilds the API's error from its decoded body, falling
// back to the status code when the body carried no known code.
func errorFromResponse(code int, status string, e *models.ErrorResponse) error {
	if e != nil && e.Code != "" {
		kind := apperr.ParseKind(e.Code)
		if kind == apperr.KindValidation {
			return apperr.Validation(e.Field, e.Error)
		}
		if kind != apperr.KindUnknown {
			return apperr.New(kind, e.Error)
		}
	}

	switch {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return apperr.New(apperr.KindUnauthorized, "Unauthorized")
	case code == http.StatusNotFound:
		return apperr.New(apperr.KindNotFound, "not found")
	case code == http.StatusBadRequest:
		return apperr.Validation("", "invalid request")
	case code >= http.StatusInternalServerError:
		return apperr.Newf(apperr.KindTransientIO, "server error: %s", status)
	}
	return apperr.Newf(apperr.KindUnknown, "unexpected status: %s", status)
}

// httpStream turns an event-stream response body into StreamEvents
type httpStream struct {
	events chan StreamEvent
	body   io.ReadCloser
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

func (st *httpStream) Events() <-chan StreamEvent { return st.events }

// Close ends the stream and waits for its reader to exit
func (st *httpStream) Close() error {
	var err error
	st.once.Do(func() {
		st.cancel()
		err = st.body.Close()
	})
	<-st.done
	return err
}

func (st *httpStream) pump() {
	defer close(st.done)
	defer close(st.events)

	rd := livechannel.NewReader(st.body)
	for {
		ev, err := rd.Next()
		if err != nil {
			if err == io.EOF {
				err = errStreamEnded
			}
			st.emit(StreamEvent{Kind: StreamError, Err: apperr.Wrap(apperr.KindTransientIO, err, "live channel dropped")})
			return
		}

		switch ev.Name {
		case livechannel.EventConnected:
			if !st.emit(StreamEvent{Kind: StreamConnected}) {
				return
			}
		case livechannel.EventNewReply:
			reply, err := livechannel.DecodeReply(ev.Data)
			if err != nil {
				st.emit(StreamEvent{Kind: StreamError, Err: err})
				return
			}
			if !st.emit(StreamEvent{Kind: StreamReply, Reply: reply}) {
				return
			}
		}
	}
}

func (st *httpStream) emit(ev StreamEvent) bool {
	select {
	case st.events <- ev:
		return true
	case <-st.ctx.Done():
		return false
	}
}
