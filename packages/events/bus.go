package events

import (
	"errors"
	"sync"
)

type (
	RunMessageHandler  func(RunMessage)
	TestResultHandler  func(TestResult)
	RunCompleteHandler func(RunComplete) error
)

// Source is the subscription side of a test host
type Source interface {
	OnRunMessage(h RunMessageHandler)
	OnTestResult(h TestResultHandler)
	OnRunComplete(h RunCompleteHandler)
}

// Bus is an in-process Source. Handlers run synchronously on the publishing
// goroutine, in registration order.
type Bus struct {
	mu          sync.RWMutex
	runMessages []RunMessageHandler
	testResults []TestResultHandler
	runComplete []RunCompleteHandler
}

// NewBus creates an empty bus
func NewBus() *Bus {
	return &Bus{}
}

func (b *Bus) OnRunMessage(h RunMessageHandler) {
	if h == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.runMessages = append(b.runMessages, h)
}

func (b *Bus) OnTestResult(h TestResultHandler) {
	if h == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.testResults = append(b.testResults, h)
}

func (b *Bus) OnRunComplete(h RunCompleteHandler) {
	if h == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.runComplete = append(b.runComplete, h)
}

// PublishRunMessage delivers msg to every run-message handler
func (b *Bus) PublishRunMessage(msg RunMessage) {
	b.mu.RLock()
	handlers := append([]RunMessageHandler(nil), b.runMessages...)
	b.mu.RUnlock()

	for _, h := range handlers {
		h(msg)
	}
}

// PublishTestResult delivers result to every test-result handler
func (b *Bus) PublishTestResult(result TestResult) {
	b.mu.RLock()
	handlers := append([]TestResultHandler(nil), b.testResults...)
	b.mu.RUnlock()

	for _, h := range handlers {
		h(result)
	}
}

// PublishRunComplete delivers ev to every run-complete handler. All handlers
// run even if one fails; their errors are joined.
func (b *Bus) PublishRunComplete(ev RunComplete) error {
	b.mu.RLock()
	handlers := append([]RunCompleteHandler(nil), b.runComplete...)
	b.mu.RUnlock()

	var errs []error
	for _, h := range handlers {
		if err := h(ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
