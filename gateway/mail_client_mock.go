package gateway

import (
	"context"
	"errors"
	"sync"
)

// MailMock records outgoing email instead of sending it. FailNext makes the
// next Send calls fail, for exercising the retry path.
type MailMock struct {
	lock     sync.Mutex
	sent     []EmailMessage
	failures int
}

func (m *MailMock) Send(_ context.Context, msg EmailMessage) error {
	m.lock.Lock()
	defer m.lock.Unlock()

	if m.failures > 0 {
		m.failures--
		return errors.New("smtp unavailable")
	}

	m.sent = append(m.sent, msg)
	return nil
}

func (m *MailMock) FailNext(n int) {
	m.lock.Lock()
	defer m.lock.Unlock()

	m.failures = n
}

func (m *MailMock) Sent() []EmailMessage {
	m.lock.Lock()
	defer m.lock.Unlock()

	return append([]EmailMessage(nil), m.sent...)
}
