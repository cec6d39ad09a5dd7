package collab

import (
	"sync"

	"github.com/golang/glog"
)

// DocumentSync owns the authoritative in-memory buffer and language tag for
// one session. Local edits apply immediately and broadcast the whole buffer;
// updates from other participants replace the buffer wholesale.
//
// Whole-buffer replace is last-writer-wins: two participants editing at the
// same moment can silently overwrite each other's unseen changes. That is
// the accepted product behavior, not a merge bug to fix here.
type DocumentSync struct {
	sessionId string

	send func(*Envelope)
	save *SaveBridge

	mutex           sync.Mutex
	text            string
	language        string
	textTouched     bool
	languageTouched bool

	textCallbacks     *CallbackList[func(string)]
	languageCallbacks *CallbackList[func(string)]
}

func NewDocumentSync(sessionId string, send func(*Envelope), save *SaveBridge) *DocumentSync {
	return &DocumentSync{
		sessionId:         sessionId,
		send:              send,
		save:              save,
		language:          LanguagePlainText,
		textCallbacks:     NewCallbackList[func(string)](),
		languageCallbacks: NewCallbackList[func(string)](),
	}
}

func (self *DocumentSync) Text() string {
	self.mutex.Lock()
	defer self.mutex.Unlock()
	return self.text
}

func (self *DocumentSync) Language() string {
	self.mutex.Lock()
	defer self.mutex.Unlock()
	return self.language
}

// AddTextCallback is invoked for buffer replacements that did not come from
// the local editor, i.e. remote updates and the initial seed. The editor
// widget binds its displayed value here.
func (self *DocumentSync) AddTextCallback(callback func(string)) func() {
	callbackId := self.textCallbacks.Add(callback)
	return func() {
		self.textCallbacks.Remove(callbackId)
	}
}

func (self *DocumentSync) AddLanguageCallback(callback func(string)) func() {
	callbackId := self.languageCallbacks.Add(callback)
	return func() {
		self.languageCallbacks.Remove(callbackId)
	}
}

// Seed installs the resting copy fetched from the document store. Each field
// seeds independently and only while still untouched, so a slow fetch can
// never clobber an edit or a language pick that already happened live.
func (self *DocumentSync) Seed(text string, language string) {
	self.mutex.Lock()
	seedText := !self.textTouched
	seedLanguage := language != "" && !self.languageTouched
	if !seedText && !seedLanguage {
		self.mutex.Unlock()
		glog.V(1).Infof("[d]%s seed skipped, buffer already live\n", self.sessionId)
		return
	}
	if seedText {
		self.text = text
	}
	if seedLanguage {
		self.language = language
	}
	text = self.text
	language = self.language
	self.mutex.Unlock()

	if self.save != nil {
		self.save.Seed(text, language)
	}
	if seedText {
		for _, callback := range self.textCallbacks.Get() {
			callback(text)
		}
	}
	if seedLanguage {
		for _, callback := range self.languageCallbacks.Get() {
			callback(language)
		}
	}
}

// SetLocalText applies a local edit. The buffer updates before anything hits
// the network so the local echo is instantaneous, then the full text is
// broadcast and the durable save debounce re-arms.
func (self *DocumentSync) SetLocalText(text string) {
	self.mutex.Lock()
	self.text = text
	self.textTouched = true
	language := self.language
	self.mutex.Unlock()

	self.send(&Envelope{
		Type:      MessageTypeCodeChange,
		SessionId: self.sessionId,
		Code:      text,
	})
	if self.save != nil {
		self.save.ScheduleSave(text, language)
	}
}

// SetLanguage applies a local language pick. Unlike edits this persists
// eagerly, with no debounce. Only the language is persisted here: the buffer
// may still be waiting on the store fetch, and writing it along would
// overwrite the saved document with a placeholder.
func (self *DocumentSync) SetLanguage(language string) {
	self.mutex.Lock()
	self.language = language
	self.languageTouched = true
	self.mutex.Unlock()

	self.send(&Envelope{
		Type:      MessageTypeLanguageChange,
		SessionId: self.sessionId,
		Language:  language,
	})
	if self.save != nil {
		self.save.SaveLanguageNow(language)
	}
}

// applyRemoteText replaces the buffer with another participant's full text.
// Echo suppression happens upstream at dispatch; by the time this runs the
// update is known to be from someone else.
func (self *DocumentSync) applyRemoteText(text string) {
	self.mutex.Lock()
	self.text = text
	self.textTouched = true
	self.mutex.Unlock()

	for _, callback := range self.textCallbacks.Get() {
		callback(text)
	}
}

func (self *DocumentSync) applyRemoteLanguage(language string) {
	if language == "" {
		return
	}

	self.mutex.Lock()
	self.language = language
	self.languageTouched = true
	self.mutex.Unlock()

	for _, callback := range self.languageCallbacks.Get() {
		callback(language)
	}
}
