package collab

import (
	"context"
	"fmt"
)

// GitApi talks to the version-control integration, an independent
// request/response service scoped by session id. It is not part of the
// realtime engine; the editor surface calls it directly.
type GitApi struct {
	ctx    context.Context
	cancel context.CancelFunc

	apiUrl string

	byJwt string
}

func NewGitApi(apiUrl string) *GitApi {
	return NewGitApiWithContext(context.Background(), apiUrl)
}

func NewGitApiWithContext(ctx context.Context, apiUrl string) *GitApi {
	cancelCtx, cancel := context.WithCancel(ctx)

	return &GitApi{
		ctx:    cancelCtx,
		cancel: cancel,
		apiUrl: apiUrl,
	}
}

func (self *GitApi) SetByJwt(byJwt string) {
	self.byJwt = byJwt
}

func (self *GitApi) Close() {
	self.cancel()
}

type GitCloneCallback apiCallback[*GitCloneResult]

type GitCloneArgs struct {
	RepoUrl string `json:"repo_url"`
	Branch  string `json:"branch,omitempty"`
}

type GitCloneResult struct {
	Success   bool   `json:"success"`
	Message   string `json:"message,omitempty"`
	Path      string `json:"path,omitempty"`
	Branch    string `json:"branch,omitempty"`
	RemoteUrl string `json:"remote_url,omitempty"`
	Error     string `json:"error,omitempty"`
}

func (self *GitApi) Clone(sessionId string, clone *GitCloneArgs, callback GitCloneCallback) {
	go post(
		self.ctx,
		fmt.Sprintf("%s/clone/%s", self.apiUrl, sessionId),
		clone,
		self.byJwt,
		&GitCloneResult{},
		callback,
	)
}

type GitStatusCallback apiCallback[*GitStatusResult]

type GitStatusResult struct {
	Success     bool     `json:"success"`
	Branch      string   `json:"branch,omitempty"`
	Modified    []string `json:"modified,omitempty"`
	Untracked   []string `json:"untracked,omitempty"`
	Staged      []string `json:"staged,omitempty"`
	IsDirty     bool     `json:"is_dirty,omitempty"`
	CommitCount int      `json:"commit_count,omitempty"`
	Error       string   `json:"error,omitempty"`
}

func (self *GitApi) Status(sessionId string, callback GitStatusCallback) {
	go get(
		self.ctx,
		fmt.Sprintf("%s/status/%s", self.apiUrl, sessionId),
		self.byJwt,
		&GitStatusResult{},
		callback,
	)
}

func (self *GitApi) StatusSync(sessionId string) (*GitStatusResult, error) {
	return get(
		self.ctx,
		fmt.Sprintf("%s/status/%s", self.apiUrl, sessionId),
		self.byJwt,
		&GitStatusResult{},
		NewNoopApiCallback[*GitStatusResult](),
	)
}

type GitCommitCallback apiCallback[*GitCommitResult]

type GitCommitArgs struct {
	Message string   `json:"message"`
	Files   []string `json:"files,omitempty"`
}

type GitCommitResult struct {
	Success       bool   `json:"success"`
	Message       string `json:"message,omitempty"`
	CommitHash    string `json:"commit_hash,omitempty"`
	CommitMessage string `json:"commit_message,omitempty"`
	Author        string `json:"author,omitempty"`
	Error         string `json:"error,omitempty"`
}

func (self *GitApi) Commit(sessionId string, commit *GitCommitArgs, callback GitCommitCallback) {
	go post(
		self.ctx,
		fmt.Sprintf("%s/commit/%s", self.apiUrl, sessionId),
		commit,
		self.byJwt,
		&GitCommitResult{},
		callback,
	)
}

type GitPushCallback apiCallback[*GitPushResult]

type GitPushArgs struct {
	Remote string `json:"remote,omitempty"`
	Branch string `json:"branch,omitempty"`
}

type GitPushResult struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Remote  string `json:"remote,omitempty"`
	Branch  string `json:"branch,omitempty"`
	Error   string `json:"error,omitempty"`
}

func (self *GitApi) Push(sessionId string, push *GitPushArgs, callback GitPushCallback) {
	go post(
		self.ctx,
		fmt.Sprintf("%s/push/%s", self.apiUrl, sessionId),
		push,
		self.byJwt,
		&GitPushResult{},
		callback,
	)
}

type GitPullCallback apiCallback[*GitPullResult]

type GitPullArgs struct {
	Remote string `json:"remote,omitempty"`
	Branch string `json:"branch,omitempty"`
}

type GitPullResult struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Remote  string `json:"remote,omitempty"`
	Branch  string `json:"branch,omitempty"`
	Error   string `json:"error,omitempty"`
}

func (self *GitApi) Pull(sessionId string, pull *GitPullArgs, callback GitPullCallback) {
	go post(
		self.ctx,
		fmt.Sprintf("%s/pull/%s", self.apiUrl, sessionId),
		pull,
		self.byJwt,
		&GitPullResult{},
		callback,
	)
}

type GitBranchesCallback apiCallback[*GitBranchesResult]

type GitBranchesResult struct {
	Success       bool     `json:"success"`
	Branches      []string `json:"branches,omitempty"`
	CurrentBranch string   `json:"current_branch,omitempty"`
	Error         string   `json:"error,omitempty"`
}

func (self *GitApi) Branches(sessionId string, callback GitBranchesCallback) {
	go get(
		self.ctx,
		fmt.Sprintf("%s/branches/%s", self.apiUrl, sessionId),
		self.byJwt,
		&GitBranchesResult{},
		callback,
	)
}

type GitCreateBranchCallback apiCallback[*GitBranchesResult]

type GitCreateBranchArgs struct {
	BranchName string `json:"branch_name"`
	Checkout   bool   `json:"checkout,omitempty"`
}

func (self *GitApi) CreateBranch(sessionId string, createBranch *GitCreateBranchArgs, callback GitCreateBranchCallback) {
	go post(
		self.ctx,
		fmt.Sprintf("%s/branches/%s", self.apiUrl, sessionId),
		createBranch,
		self.byJwt,
		&GitBranchesResult{},
		callback,
	)
}

type GitCheckoutCallback apiCallback[*GitBranchesResult]

type GitCheckoutArgs struct {
	BranchName string `json:"branch_name"`
}

func (self *GitApi) Checkout(sessionId string, checkout *GitCheckoutArgs, callback GitCheckoutCallback) {
	go post(
		self.ctx,
		fmt.Sprintf("%s/checkout/%s", self.apiUrl, sessionId),
		checkout,
		self.byJwt,
		&GitBranchesResult{},
		callback,
	)
}

type GitLogCallback apiCallback[*GitLogResult]

type GitLogCommit struct {
	Hash        string `json:"hash"`
	ShortHash   string `json:"short_hash"`
	Author      string `json:"author"`
	Email       string `json:"email"`
	Message     string `json:"message"`
	Date        string `json:"date"`
	ParentCount int    `json:"parent_count"`
}

type GitLogResult struct {
	Success bool            `json:"success"`
	Commits []*GitLogCommit `json:"commits,omitempty"`
	Count   int             `json:"count,omitempty"`
	Error   string          `json:"error,omitempty"`
}

func (self *GitApi) Log(sessionId string, callback GitLogCallback) {
	go get(
		self.ctx,
		fmt.Sprintf("%s/log/%s", self.apiUrl, sessionId),
		self.byJwt,
		&GitLogResult{},
		callback,
	)
}

type GitDiffCallback apiCallback[*GitDiffResult]

type GitDiffResult struct {
	Success bool   `json:"success"`
	Diff    string `json:"diff,omitempty"`
	Error   string `json:"error,omitempty"`
}

func (self *GitApi) Diff(sessionId string, callback GitDiffCallback) {
	go get(
		self.ctx,
		fmt.Sprintf("%s/diff/%s", self.apiUrl, sessionId),
		self.byJwt,
		&GitDiffResult{},
		callback,
	)
}
