package mailer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"memoria/internal/config"
	"memoria/internal/shared/queue"
)

// memQueue 内存发件箱，inflight 对应消费者组中已读取未确认的消息
type memQueue struct {
	mu       sync.Mutex
	pending  []*queue.MailMessage
	inflight map[string]*inflightMail
	acked    []string
	seq      int
}

type inflightMail struct {
	msg       *queue.MailMessage
	deliverAt time.Time
}

func (q *memQueue) track(msgs []*queue.MailMessage, now time.Time) {
	if q.inflight == nil {
		q.inflight = make(map[string]*inflightMail)
	}
	for _, m := range msgs {
		q.inflight[m.ID] = &inflightMail{msg: m, deliverAt: now}
	}
}

func (q *memQueue) EnqueueMail(ctx context.Context, msg *queue.MailMessage) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.seq++
	m := *msg
	m.ID = fmt.Sprintf("%d-0", q.seq)
	q.pending = append(q.pending, &m)
	return m.ID, nil
}

func (q *memQueue) CreateMailConsumerGroup(ctx context.Context) error { return nil }

func (q *memQueue) ConsumeMail(ctx context.Context, consumerID string, count int64, block time.Duration) ([]*queue.MailMessage, error) {
	q.mu.Lock()
	out := q.pending
	q.pending = nil
	q.track(out, time.Now())
	q.mu.Unlock()
	if len(out) == 0 {
		select {
		case <-ctx.Done():
		case <-time.After(5 * time.Millisecond):
		}
	}
	return out, nil
}

func (q *memQueue) AckMail(ctx context.Context, id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.acked = append(q.acked, id)
	delete(q.inflight, id)
	return nil
}

func (q *memQueue) ClaimStaleMail(ctx context.Context, consumerID string, minIdle time.Duration, count int64) ([]*queue.MailMessage, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	now := time.Now()
	var out []*queue.MailMessage
	for _, f := range q.inflight {
		if int64(len(out)) >= count {
			break
		}
		if now.Sub(f.deliverAt) >= minIdle {
			f.deliverAt = now
			out = append(out, f.msg)
		}
	}
	return out, nil
}

func (q *memQueue) GetMailQueueLength(ctx context.Context) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return int64(q.seq), nil
}

func (q *memQueue) GetMailPendingCount(ctx context.Context) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return int64(len(q.inflight)), nil
}

func (q *memQueue) ackedIDs() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]string(nil), q.acked...)
}

type failingMailer struct{}

func (failingMailer) Send(ctx context.Context, msg *Message) error { return errors.New("smtp down") }

// flakyMailer 前 fails 次发送失败，之后交给 next
type flakyMailer struct {
	mu    sync.Mutex
	fails int
	next  Mailer
}

func (m *flakyMailer) Send(ctx context.Context, msg *Message) error {
	m.mu.Lock()
	if m.fails > 0 {
		m.fails--
		m.mu.Unlock()
		return errors.New("smtp down")
	}
	m.mu.Unlock()
	return m.next.Send(ctx, msg)
}

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.MailConfig
		want    any
		wantErr bool
	}{
		{"默认 console", config.MailConfig{}, &Console{}, false},
		{"sendgrid", config.MailConfig{Provider: "SendGrid", SendGridAPIKey: "k"}, &SendGrid{}, false},
		{"sendgrid 缺少 key", config.MailConfig{Provider: "sendgrid"}, nil, true},
		{"未知后端", config.MailConfig{Provider: "smtp"}, nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := New(tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.IsType(t, tt.want, m)
		})
	}
}

func TestMessageValidate(t *testing.T) {
	assert.ErrorIs(t, (&Message{Text: "x"}).Validate(), ErrNoRecipient)
	assert.Error(t, (&Message{To: "a@b.c"}).Validate())
	assert.NoError(t, PasswordResetMessage("a@b.c", "http://x/reset?token=t").Validate())
}

func TestConsoleSend(t *testing.T) {
	c := NewConsole("Memoria", "no-reply@memoria.test")
	require.NoError(t, c.Send(context.Background(), PasswordResetMessage("user@memoria.test", "http://localhost/reset?token=abc")))
	assert.Error(t, c.Send(context.Background(), &Message{}))

	sent := c.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "user@memoria.test", sent[0].To)
	assert.Contains(t, sent[0].Text, "token=abc")
}

func TestSendGridSend(t *testing.T) {
	var got map[string]any
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		assert.Equal(t, sendGridEndpoint, r.URL.Path)
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &got)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	s := NewSendGrid("sg-key", "Memoria", "no-reply@memoria.test")
	s.host = srv.URL
	require.NoError(t, s.Send(context.Background(), &Message{To: "user@memoria.test", Subject: "Hi", Text: "hello"}))

	assert.Equal(t, "Bearer sg-key", auth)
	from := got["from"].(map[string]any)
	assert.Equal(t, "no-reply@memoria.test", from["email"])
	p := got["personalizations"].([]any)[0].(map[string]any)
	assert.Equal(t, "[Memoria] Hi", p["subject"])
}

func TestSendGridSend_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"errors":[{"message":"bad key"}]}`))
	}))
	defer srv.Close()

	s := NewSendGrid("bad", "Memoria", "no-reply@memoria.test")
	s.host = srv.URL
	err := s.Send(context.Background(), &Message{To: "user@memoria.test", Subject: "Hi", Text: "hello"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}

func TestQueuedMailerAndWorker(t *testing.T) {
	q := &memQueue{}
	qm := NewQueuedMailer(q)
	require.NoError(t, qm.Send(context.Background(), PasswordResetMessage("a@memoria.test", "http://x")))
	require.NoError(t, qm.Send(context.Background(), PasswordResetMessage("b@memoria.test", "http://y")))
	assert.ErrorIs(t, qm.Send(context.Background(), &Message{Text: "x"}), ErrNoRecipient)

	console := NewConsole("Memoria", "no-reply@memoria.test")
	w := NewWorker(q, console, DefaultWorkerConfig("test-1"))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Start(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return len(console.Sent()) == 2 }, time.Second, 5*time.Millisecond)
	cancel()
	<-done

	assert.Equal(t, []string{"1-0", "2-0"}, q.ackedIDs())
	assert.Equal(t, "a@memoria.test", console.Sent()[0].To)
}

func TestWorker_SendFailureIsNotAcked(t *testing.T) {
	q := &memQueue{}
	require.NoError(t, NewQueuedMailer(q).Send(context.Background(), PasswordResetMessage("a@memoria.test", "http://x")))

	w := NewWorker(q, failingMailer{}, DefaultWorkerConfig("test-2"))
	done := make(chan struct{})
	go func() {
		w.Start(context.Background())
		close(done)
	}()

	require.Eventually(t, func() bool {
		q.mu.Lock()
		defer q.mu.Unlock()
		return len(q.pending) == 0
	}, time.Second, 5*time.Millisecond)
	w.Stop()
	<-done

	assert.Empty(t, q.ackedIDs())
}

func TestWorker_RedeliversFailedSend(t *testing.T) {
	q := &memQueue{}
	require.NoError(t, NewQueuedMailer(q).Send(context.Background(), PasswordResetMessage("a@memoria.test", "http://x")))

	console := NewConsole("Memoria", "no-reply@memoria.test")
	cfg := DefaultWorkerConfig("test-3")
	cfg.ClaimIdle = 10 * time.Millisecond
	cfg.ClaimInterval = 10 * time.Millisecond

	var mu sync.Mutex
	var lastLength, lastPending int64 = -1, -1
	cfg.Report = func(length, pending int64) {
		mu.Lock()
		defer mu.Unlock()
		lastLength, lastPending = length, pending
	}

	w := NewWorker(q, &flakyMailer{fails: 1, next: console}, cfg)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Start(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return len(console.Sent()) == 1 }, 2*time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return lastLength == 1 && lastPending == 0
	}, 2*time.Second, 5*time.Millisecond)
	cancel()
	<-done

	assert.Equal(t, []string{"1-0"}, q.ackedIDs())
	assert.Equal(t, "a@memoria.test", console.Sent()[0].To)
}
