package collab

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"
)

const defaultHttpTimeout = 60 * time.Second
const defaultHttpConnectTimeout = 5 * time.Second
const defaultHttpTlsTimeout = 5 * time.Second

func defaultClient() *http.Client {
	dialer := &net.Dialer{
		Timeout: defaultHttpConnectTimeout,
	}
	transport := &http.Transport{
		DialContext:         dialer.DialContext,
		TLSHandshakeTimeout: defaultHttpTlsTimeout,
	}
	return &http.Client{
		Transport: transport,
		Timeout:   defaultHttpTimeout,
	}
}

type apiCallback[R any] interface {
	Result(result R, err error)
}

// for internal use
type simpleApiCallback[R any] struct {
	callback func(result R, err error)
}

func NewApiCallback[R any](callback func(result R, err error)) apiCallback[R] {
	return &simpleApiCallback[R]{
		callback: callback,
	}
}

func NewNoopApiCallback[R any]() apiCallback[R] {
	return &simpleApiCallback[R]{
		callback: func(result R, err error) {},
	}
}

func (self *simpleApiCallback[R]) Result(result R, err error) {
	self.callback(result, err)
}

type ApiCallbackResult[R any] struct {
	Result R
	Error  error
}

func NewBlockingApiCallback[R any](ctx context.Context) (apiCallback[R], chan ApiCallbackResult[R]) {
	c := make(chan ApiCallbackResult[R], 1)
	apiCallback := NewApiCallback[R](func(result R, err error) {
		select {
		case c <- ApiCallbackResult[R]{
			Result: result,
			Error:  err,
		}:
		case <-ctx.Done():
		}
	})
	return apiCallback, c
}

// StoreApi talks to the document store, the durable home of session records.
// The realtime channel is the fast path; this is the resting copy.
type StoreApi struct {
	ctx    context.Context
	cancel context.CancelFunc

	apiUrl string

	byJwt string
}

func NewStoreApi(apiUrl string) *StoreApi {
	return NewStoreApiWithContext(context.Background(), apiUrl)
}

func NewStoreApiWithContext(ctx context.Context, apiUrl string) *StoreApi {
	cancelCtx, cancel := context.WithCancel(ctx)

	return &StoreApi{
		ctx:    cancelCtx,
		cancel: cancel,
		apiUrl: apiUrl,
	}
}

// this gets attached to api calls that need it
func (self *StoreApi) SetByJwt(byJwt string) {
	self.byJwt = byJwt
}

func (self *StoreApi) Close() {
	self.cancel()
}

// the resting copy of one collaborative session
type SessionRecord struct {
	SessionId     string   `json:"id"`
	Name          string   `json:"name,omitempty"`
	Language      string   `json:"language,omitempty"`
	Description   string   `json:"description,omitempty"`
	OwnerUsername string   `json:"owner_username,omitempty"`
	Participants  []string `json:"participants,omitempty"`
	Code          string   `json:"code,omitempty"`
	IsActive      bool     `json:"is_active,omitempty"`
	ShareCode     string   `json:"share_code,omitempty"`
	CreatedAt     string   `json:"created_at,omitempty"`
	UpdatedAt     string   `json:"updated_at,omitempty"`
}

type CreateSessionCallback apiCallback[*SessionRecord]

type CreateSessionArgs struct {
	Name        string `json:"name"`
	Language    string `json:"language,omitempty"`
	Description string `json:"description,omitempty"`
	Code        string `json:"code,omitempty"`
}

func (self *StoreApi) CreateSession(createSession *CreateSessionArgs, callback CreateSessionCallback) {
	go post(
		self.ctx,
		fmt.Sprintf("%s/sessions", self.apiUrl),
		createSession,
		self.byJwt,
		&SessionRecord{},
		callback,
	)
}

func (self *StoreApi) CreateSessionSync(createSession *CreateSessionArgs) (*SessionRecord, error) {
	return post(
		self.ctx,
		fmt.Sprintf("%s/sessions", self.apiUrl),
		createSession,
		self.byJwt,
		&SessionRecord{},
		NewNoopApiCallback[*SessionRecord](),
	)
}

type GetSessionCallback apiCallback[*SessionRecord]

func (self *StoreApi) GetSession(sessionId string, callback GetSessionCallback) {
	go get(
		self.ctx,
		fmt.Sprintf("%s/sessions/%s", self.apiUrl, sessionId),
		self.byJwt,
		&SessionRecord{},
		callback,
	)
}

func (self *StoreApi) GetSessionSync(sessionId string) (*SessionRecord, error) {
	return get(
		self.ctx,
		fmt.Sprintf("%s/sessions/%s", self.apiUrl, sessionId),
		self.byJwt,
		&SessionRecord{},
		NewNoopApiCallback[*SessionRecord](),
	)
}

type SessionList []*SessionRecord

type ListSessionsCallback apiCallback[*SessionList]

func (self *StoreApi) ListSessions(callback ListSessionsCallback) {
	go get(
		self.ctx,
		fmt.Sprintf("%s/sessions", self.apiUrl),
		self.byJwt,
		&SessionList{},
		callback,
	)
}

func (self *StoreApi) ListSessionsSync() (*SessionList, error) {
	return get(
		self.ctx,
		fmt.Sprintf("%s/sessions", self.apiUrl),
		self.byJwt,
		&SessionList{},
		NewNoopApiCallback[*SessionList](),
	)
}

type UpdateSessionCallback apiCallback[*SessionRecord]

// nil fields are left untouched by the store
type UpdateSessionArgs struct {
	Name     *string `json:"name,omitempty"`
	Code     *string `json:"code,omitempty"`
	Language *string `json:"language,omitempty"`
	IsActive *bool   `json:"is_active,omitempty"`
}

func (self *StoreApi) UpdateSession(sessionId string, updateSession *UpdateSessionArgs, callback UpdateSessionCallback) {
	go put(
		self.ctx,
		fmt.Sprintf("%s/sessions/%s", self.apiUrl, sessionId),
		updateSession,
		self.byJwt,
		&SessionRecord{},
		callback,
	)
}

func (self *StoreApi) UpdateSessionSync(sessionId string, updateSession *UpdateSessionArgs) (*SessionRecord, error) {
	return put(
		self.ctx,
		fmt.Sprintf("%s/sessions/%s", self.apiUrl, sessionId),
		updateSession,
		self.byJwt,
		&SessionRecord{},
		NewNoopApiCallback[*SessionRecord](),
	)
}

type DeleteSessionCallback apiCallback[*DeleteSessionResult]

type DeleteSessionResult struct {
}

func (self *StoreApi) DeleteSession(sessionId string, callback DeleteSessionCallback) {
	go del(
		self.ctx,
		fmt.Sprintf("%s/sessions/%s", self.apiUrl, sessionId),
		self.byJwt,
		&DeleteSessionResult{},
		callback,
	)
}

type JoinSessionCallback apiCallback[*SessionRecord]

func (self *StoreApi) JoinSession(sessionId string, callback JoinSessionCallback) {
	go post(
		self.ctx,
		fmt.Sprintf("%s/sessions/%s/join", self.apiUrl, sessionId),
		nil,
		self.byJwt,
		&SessionRecord{},
		callback,
	)
}

func (self *StoreApi) JoinSessionSync(sessionId string) (*SessionRecord, error) {
	return post(
		self.ctx,
		fmt.Sprintf("%s/sessions/%s/join", self.apiUrl, sessionId),
		nil,
		self.byJwt,
		&SessionRecord{},
		NewNoopApiCallback[*SessionRecord](),
	)
}

type JoinSessionByCodeCallback apiCallback[*SessionRecord]

func (self *StoreApi) JoinSessionByCode(shareCode string, callback JoinSessionByCodeCallback) {
	go post(
		self.ctx,
		fmt.Sprintf("%s/sessions/join-by-code/%s", self.apiUrl, shareCode),
		nil,
		self.byJwt,
		&SessionRecord{},
		callback,
	)
}

func (self *StoreApi) JoinSessionByCodeSync(shareCode string) (*SessionRecord, error) {
	return post(
		self.ctx,
		fmt.Sprintf("%s/sessions/join-by-code/%s", self.apiUrl, shareCode),
		nil,
		self.byJwt,
		&SessionRecord{},
		NewNoopApiCallback[*SessionRecord](),
	)
}

func post[R any](ctx context.Context, url string, args any, byJwt string, result R, callback apiCallback[R]) (R, error) {
	return request(ctx, "POST", url, args, byJwt, result, callback)
}

func get[R any](ctx context.Context, url string, byJwt string, result R, callback apiCallback[R]) (R, error) {
	return request(ctx, "GET", url, nil, byJwt, result, callback)
}

func put[R any](ctx context.Context, url string, args any, byJwt string, result R, callback apiCallback[R]) (R, error) {
	return request(ctx, "PUT", url, args, byJwt, result, callback)
}

func del[R any](ctx context.Context, url string, byJwt string, result R, callback apiCallback[R]) (R, error) {
	return request(ctx, "DELETE", url, nil, byJwt, result, callback)
}

func request[R any](ctx context.Context, method string, url string, args any, byJwt string, result R, callback apiCallback[R]) (R, error) {
	var requestBodyBytes []byte
	if args == nil {
		requestBodyBytes = make([]byte, 0)
	} else {
		var err error
		requestBodyBytes, err = json.Marshal(args)
		if err != nil {
			var empty R
			callback.Result(empty, err)
			return empty, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(requestBodyBytes))
	if err != nil {
		var empty R
		callback.Result(empty, err)
		return empty, err
	}

	req.Header.Add("Content-Type", "application/json")

	if byJwt != "" {
		auth := fmt.Sprintf("Bearer %s", byJwt)
		req.Header.Add("Authorization", auth)
	}

	client := defaultClient()
	r, err := client.Do(req)
	if err != nil {
		var empty R
		callback.Result(empty, err)
		return empty, err
	}
	defer r.Body.Close()

	responseBodyBytes, err := io.ReadAll(r.Body)

	if http.StatusOK != r.StatusCode && http.StatusCreated != r.StatusCode && http.StatusNoContent != r.StatusCode {
		// the response body is the error message
		errorMessage := strings.TrimSpace(string(responseBodyBytes))
		err = errors.New(errorMessage)
		callback.Result(result, err)
		return result, err
	}

	if err != nil {
		callback.Result(result, err)
		return result, err
	}

	if len(responseBodyBytes) != 0 {
		err = json.Unmarshal(responseBodyBytes, &result)
		if err != nil {
			var empty R
			callback.Result(empty, err)
			return empty, err
		}
	}

	callback.Result(result, nil)
	return result, nil
}
