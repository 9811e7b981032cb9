package notify

import (
	"context"
	"errors"
	"testing"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/groupbot/internal/models"
)

type recordingSender struct {
	sent    []int64
	failFor map[int64]bool
}

func (r *recordingSender) Send(to tele.Recipient, _ interface{}, _ ...interface{}) (*tele.Message, error) {
	u, ok := to.(*tele.User)
	if !ok {
		return nil, errors.New("unexpected recipient type")
	}
	if r.failFor[u.ID] {
		return nil, errors.New("forbidden: bot was blocked by the user")
	}
	r.sent = append(r.sent, u.ID)
	return &tele.Message{}, nil
}

func TestDirectBeforeBind(t *testing.T) {
	n := New(nil)
	if err := n.Direct(context.Background(), 1, "hi"); !errors.Is(err, ErrNotBound) {
		t.Errorf("err = %v, want ErrNotBound", err)
	}
}

func TestDirect(t *testing.T) {
	rec := &recordingSender{}
	n := New(nil)
	n.Bind(rec)
	if err := n.Direct(context.Background(), 42, "hi"); err != nil {
		t.Fatal(err)
	}
	if len(rec.sent) != 1 || rec.sent[0] != 42 {
		t.Errorf("sent = %v", rec.sent)
	}
}

func TestBroadcastCountsAndIsolation(t *testing.T) {
	rec := &recordingSender{failFor: map[int64]bool{202: true}}
	n := New(nil)
	n.Bind(rec)

	recipients := []models.User{
		{TelegramID: 101},
		{TelegramID: 202},
		{TelegramID: 303},
	}
	sent, failed := n.Broadcast(context.Background(), recipients, "📣 hello")
	if sent != 2 || failed != 1 {
		t.Errorf("sent, failed = %d, %d, want 2, 1", sent, failed)
	}
	// The failing recipient does not stop the rest of the batch.
	if len(rec.sent) != 2 || rec.sent[0] != 101 || rec.sent[1] != 303 {
		t.Errorf("delivered to %v, want [101 303]", rec.sent)
	}
}
