package notify

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gopkg.in/gomail.v2"

	"ecotrace-api/internal/model"
)

type mockSender struct {
	mock.Mock
}

func (m *mockSender) DialAndSend(msgs ...*gomail.Message) error {
	args := m.Called(len(msgs))
	return args.Error(0)
}

func TestBuildRejectionMessage(t *testing.T) {
	m := BuildRejectionMessage("noreply@ecotrace.test", model.RejectionNotice{
		Recipient:   "alice@example.com",
		ProductName: "Kettle",
		Reason:      "We do not take kettles this month",
	})

	require.Equal(t, []string{"alice@example.com"}, m.GetHeader("To"))
	require.Equal(t, []string{"Your recycling request for Kettle was declined"}, m.GetHeader("Subject"))

	var buf bytes.Buffer
	_, err := m.WriteTo(&buf)
	require.NoError(t, err)
	require.Contains(t, buf.String(), "We do not take kettles this month")
}

func TestSMTPNotifier_Send(t *testing.T) {
	s := &mockSender{}
	s.On("DialAndSend", 1).Return(nil).Once()

	n := NewSMTPNotifier(SMTPConfig{Host: "localhost", Port: 25, User: "u@example.com"})
	n.dialer = s

	err := n.SendRejectionEmail(context.Background(), model.RejectionNotice{Recipient: "bob@example.com"})
	require.NoError(t, err)
	s.AssertExpectations(t)
}

func TestSMTPNotifier_SendFailure(t *testing.T) {
	s := &mockSender{}
	s.On("DialAndSend", 1).Return(errors.New("connection refused")).Once()

	n := NewSMTPNotifier(SMTPConfig{Host: "localhost", Port: 25})
	n.dialer = s

	err := n.SendRejectionEmail(context.Background(), model.RejectionNotice{Recipient: "bob@example.com"})
	require.ErrorContains(t, err, "connection refused")
}

func TestSMTPNotifier_NoRecipient(t *testing.T) {
	n := NewSMTPNotifier(SMTPConfig{Host: "localhost", Port: 25})
	err := n.SendRejectionEmail(context.Background(), model.RejectionNotice{})
	require.Error(t, err)
}

type blockingSender struct{ release chan struct{} }

func (b *blockingSender) DialAndSend(...*gomail.Message) error {
	<-b.release
	return nil
}

func TestSMTPNotifier_ContextTimeout(t *testing.T) {
	b := &blockingSender{release: make(chan struct{})}
	defer close(b.release)

	n := NewSMTPNotifier(SMTPConfig{Host: "localhost", Port: 25})
	n.dialer = b

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := n.SendRejectionEmail(ctx, model.RejectionNotice{Recipient: "bob@example.com"})
	require.ErrorIs(t, err, context.DeadlineExceeded)
}
