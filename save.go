package collab

import (
	"context"
	"sync"
	"time"

	"github.com/golang/glog"
)

type SaveBridgeSettings struct {
	// quiet period after the last edit before the buffer is persisted
	SaveTimeout time.Duration
}

func DefaultSaveBridgeSettings() *SaveBridgeSettings {
	return &SaveBridgeSettings{
		SaveTimeout: 1 * time.Second,
	}
}

// SaveBridge persists the live buffer to the document store. Saves are
// debounced with a single pending timer slot: a newer edit cancels the
// pending save and re-arms it, so a burst of edits produces exactly one
// write carrying the final text. A failed save is logged and not retried;
// the next edit cycle or the exit flush is the de facto retry.
type SaveBridge struct {
	ctx    context.Context
	cancel context.CancelFunc

	sessionId string
	storeApi  *StoreApi
	clock     Clock

	settings *SaveBridgeSettings

	mutex    sync.Mutex
	pending  ClockTimer
	text     string
	language string
	loaded   bool
	flushed  bool
}

func NewSaveBridgeWithDefaults(ctx context.Context, sessionId string, storeApi *StoreApi) *SaveBridge {
	return NewSaveBridge(ctx, sessionId, storeApi, SystemClock(), DefaultSaveBridgeSettings())
}

func NewSaveBridge(ctx context.Context, sessionId string, storeApi *StoreApi, clock Clock, settings *SaveBridgeSettings) *SaveBridge {
	cancelCtx, cancel := context.WithCancel(ctx)
	return &SaveBridge{
		ctx:       cancelCtx,
		cancel:    cancel,
		sessionId: sessionId,
		storeApi:  storeApi,
		clock:     clock,
		settings:  settings,
	}
}

// Seed records the resting copy fetched from the store without scheduling
// a write back. Only after a seed or a real edit is the buffer eligible to
// be written back at all.
func (self *SaveBridge) Seed(text string, language string) {
	self.mutex.Lock()
	defer self.mutex.Unlock()
	self.text = text
	self.language = language
	self.loaded = true
}

// ScheduleSave re-arms the debounce timer with the latest buffer state.
func (self *SaveBridge) ScheduleSave(text string, language string) {
	self.mutex.Lock()
	defer self.mutex.Unlock()

	self.text = text
	self.language = language
	self.loaded = true

	if self.pending != nil {
		self.pending.Stop()
	}
	self.pending = self.clock.AfterFunc(self.settings.SaveTimeout, self.fire)
}

// SaveLanguageNow persists a language pick immediately, skipping the
// debounce. Only the language is written: the buffer may still be an
// unloaded placeholder, and a pending text save keeps its own timer.
func (self *SaveBridge) SaveLanguageNow(language string) {
	self.mutex.Lock()
	self.language = language
	self.mutex.Unlock()

	if self.storeApi == nil {
		return
	}

	update := &UpdateSessionArgs{
		Language: &language,
	}
	if _, err := self.storeApi.UpdateSessionSync(self.sessionId, update); err != nil {
		glog.Infof("[save]%s language error = %s\n", self.sessionId, err)
	}
}

func (self *SaveBridge) fire() {
	self.mutex.Lock()
	self.pending = nil
	self.mutex.Unlock()

	self.saveLatest()
}

func (self *SaveBridge) saveLatest() {
	if self.storeApi == nil {
		return
	}

	self.mutex.Lock()
	text := self.text
	language := self.language
	self.mutex.Unlock()

	update := &UpdateSessionArgs{
		Code:     &text,
		Language: &language,
	}
	if _, err := self.storeApi.UpdateSessionSync(self.sessionId, update); err != nil {
		glog.Infof("[save]%s error = %s\n", self.sessionId, err)
	} else {
		glog.V(1).Infof("[save]%s %d bytes\n", self.sessionId, len(text))
	}
}

// FlushOnExit fires one last best-effort save with the latest known state.
// It is not awaited. The text is written only when the buffer was ever
// seeded or edited, so a page that never finished loading cannot overwrite
// a saved session with an empty placeholder; a language pick alone still
// flushes as a language-only write.
func (self *SaveBridge) FlushOnExit() {
	self.mutex.Lock()
	if self.pending != nil {
		self.pending.Stop()
		self.pending = nil
	}
	if self.flushed {
		self.mutex.Unlock()
		return
	}
	self.flushed = true
	text := self.text
	language := self.language
	loaded := self.loaded
	self.mutex.Unlock()

	if !loaded && (language == "" || language == LanguagePlainText) {
		glog.V(1).Infof("[save]%s skip empty flush\n", self.sessionId)
		return
	}
	if self.storeApi == nil {
		return
	}

	update := &UpdateSessionArgs{}
	if loaded {
		update.Code = &text
	}
	if language != "" {
		update.Language = &language
	}
	self.storeApi.UpdateSession(self.sessionId, update, NewApiCallback[*SessionRecord](func(result *SessionRecord, err error) {
		if err != nil {
			glog.Infof("[save]%s flush error = %s\n", self.sessionId, err)
		}
	}))
}

func (self *SaveBridge) Close() {
	self.mutex.Lock()
	if self.pending != nil {
		self.pending.Stop()
		self.pending = nil
	}
	self.mutex.Unlock()
	self.cancel()
}
