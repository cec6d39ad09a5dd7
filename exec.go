package collab

import (
	"context"
	"fmt"
)

// ExecApi submits code to the execution sandbox. One fire-and-forget
// request/response call; the sandbox owns all runtime concerns.
type ExecApi struct {
	ctx    context.Context
	cancel context.CancelFunc

	apiUrl string

	byJwt string
}

func NewExecApi(apiUrl string) *ExecApi {
	return NewExecApiWithContext(context.Background(), apiUrl)
}

func NewExecApiWithContext(ctx context.Context, apiUrl string) *ExecApi {
	cancelCtx, cancel := context.WithCancel(ctx)

	return &ExecApi{
		ctx:    cancelCtx,
		cancel: cancel,
		apiUrl: apiUrl,
	}
}

func (self *ExecApi) SetByJwt(byJwt string) {
	self.byJwt = byJwt
}

func (self *ExecApi) Close() {
	self.cancel()
}

type ExecuteCallback apiCallback[*ExecuteResult]

type ExecuteArgs struct {
	Code     string `json:"code"`
	Language string `json:"language"`
	// seconds. 0 lets the sandbox pick its default.
	Timeout int64 `json:"timeout,omitempty"`
}

type ExecuteResult struct {
	Stdout        string  `json:"stdout"`
	Stderr        string  `json:"stderr"`
	ExitCode      int     `json:"exit_code"`
	ExecutionTime float64 `json:"execution_time"`
}

func (self *ExecApi) Execute(execute *ExecuteArgs, callback ExecuteCallback) {
	go post(
		self.ctx,
		fmt.Sprintf("%s/execute", self.apiUrl),
		execute,
		self.byJwt,
		&ExecuteResult{},
		callback,
	)
}

func (self *ExecApi) ExecuteSync(execute *ExecuteArgs) (*ExecuteResult, error) {
	return post(
		self.ctx,
		fmt.Sprintf("%s/execute", self.apiUrl),
		execute,
		self.byJwt,
		&ExecuteResult{},
		NewNoopApiCallback[*ExecuteResult](),
	)
}
