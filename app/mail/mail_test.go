package mail_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/vibast-solutions/ms-go-member/app/mail"
	"github.com/vibast-solutions/ms-go-member/config"

	gomail "github.com/emersion/go-message/mail"
	"github.com/emersion/go-smtp"
	"github.com/hibiken/asynq"
)

func TestComposeResetCode(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	msg, err := mail.ComposeResetCode("no-reply@member.test", "a@x.com", "483920", 10*time.Minute, now)
	if err != nil {
		t.Fatalf("compose failed: %v", err)
	}

	reader, err := gomail.CreateReader(bytes.NewReader(msg))
	if err != nil {
		t.Fatalf("failed to parse composed message: %v", err)
	}

	to, err := reader.Header.AddressList("To")
	if err != nil || len(to) != 1 || to[0].Address != "a@x.com" {
		t.Fatalf("unexpected recipients: %v %v", to, err)
	}
	subject, err := reader.Header.Subject()
	if err != nil || subject == "" {
		t.Fatalf("expected a subject, got %q %v", subject, err)
	}

	part, err := reader.NextPart()
	if err != nil {
		t.Fatalf("failed to read body: %v", err)
	}
	body, err := io.ReadAll(part.Body)
	if err != nil {
		t.Fatalf("failed to read body: %v", err)
	}
	if !strings.Contains(string(body), "483920") || !strings.Contains(string(body), "10 minutes") {
		t.Fatalf("unexpected body: %s", body)
	}
}

type capturedMail struct {
	from string
	to   []string
	data []byte
}

type relayBackend struct {
	mu        sync.Mutex
	delivered []capturedMail
}

func (b *relayBackend) NewSession(_ *smtp.Conn) (smtp.Session, error) {
	return &relaySession{backend: b}, nil
}

func (b *relayBackend) mails() []capturedMail {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]capturedMail(nil), b.delivered...)
}

type relaySession struct {
	backend *relayBackend
	current capturedMail
}

func (s *relaySession) AuthPlain(_, _ string) error {
	return smtp.ErrAuthUnsupported
}

func (s *relaySession) Mail(from string, _ *smtp.MailOptions) error {
	s.current.from = from
	return nil
}

func (s *relaySession) Rcpt(to string, _ *smtp.RcptOptions) error {
	s.current.to = append(s.current.to, to)
	return nil
}

func (s *relaySession) Data(r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	s.current.data = data
	s.backend.mu.Lock()
	s.backend.delivered = append(s.backend.delivered, s.current)
	s.backend.mu.Unlock()
	return nil
}

func (s *relaySession) Reset() {
	s.current = capturedMail{}
}

func (s *relaySession) Logout() error {
	return nil
}

func startRelay(t *testing.T) (*relayBackend, string, string) {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen failed: %v", err)
	}

	backend := &relayBackend{}
	server := smtp.NewServer(backend)
	server.Domain = "relay.member.test"
	go func() {
		_ = server.Serve(listener)
	}()
	t.Cleanup(func() { _ = server.Close() })

	host, port, err := net.SplitHostPort(listener.Addr().String())
	if err != nil {
		t.Fatalf("split addr failed: %v", err)
	}
	return backend, host, port
}

func TestSMTPSenderSendResetCode(t *testing.T) {
	relay, host, port := startRelay(t)

	sender := mail.NewSMTPSender(config.MailConfig{
		SMTPHost: host,
		SMTPPort: port,
		From:     "no-reply@member.test",
	}, 10*time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := sender.SendResetCode(ctx, "a@x.com", "123456"); err != nil {
		t.Fatalf("send failed: %v", err)
	}

	delivered := relay.mails()
	if len(delivered) != 1 {
		t.Fatalf("expected one delivered mail, got %d", len(delivered))
	}
	got := delivered[0]
	if got.from != "no-reply@member.test" || len(got.to) != 1 || got.to[0] != "a@x.com" {
		t.Fatalf("unexpected envelope: %s %v", got.from, got.to)
	}
	if !bytes.Contains(got.data, []byte("123456")) {
		t.Fatalf("expected code in message")
	}
}

func TestSMTPSenderSilentRelayReleasesConnection(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen failed: %v", err)
	}
	defer listener.Close()

	// The relay accepts and never greets; it reports when the client hangs up.
	closed := make(chan struct{})
	go func() {
		c, acceptErr := listener.Accept()
		if acceptErr != nil {
			return
		}
		defer c.Close()
		_, _ = io.Copy(io.Discard, c)
		close(closed)
	}()

	host, port, _ := net.SplitHostPort(listener.Addr().String())
	sender := mail.NewSMTPSender(config.MailConfig{SMTPHost: host, SMTPPort: port, From: "no-reply@member.test"}, time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	started := time.Now()
	err = sender.SendResetCode(ctx, "a@x.com", "123456")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if elapsed := time.Since(started); elapsed > 2*time.Second {
		t.Fatalf("send outlived its deadline: %s", elapsed)
	}

	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatalf("expected the relay connection to be closed after the deadline")
	}
}

func TestSMTPSenderDialFailure(t *testing.T) {
	dialErr := errors.New("connection refused")
	sender := mail.NewSMTPSender(config.MailConfig{SMTPHost: "smtp.member.test", SMTPPort: "25"}, time.Minute,
		mail.WithDialFunc(func(context.Context, string, string) (net.Conn, error) {
			return nil, dialErr
		}))

	err := sender.SendResetCode(context.Background(), "a@x.com", "123456")
	if !errors.Is(err, dialErr) {
		t.Fatalf("expected dial error, got %v", err)
	}
}

type fakeEnqueuer struct {
	tasks []*asynq.Task
	opts  [][]asynq.Option
	err   error
}

func (f *fakeEnqueuer) EnqueueContext(_ context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.tasks = append(f.tasks, task)
	f.opts = append(f.opts, opts)
	return &asynq.TaskInfo{ID: "task-1", Queue: mail.QueueName, Type: task.Type()}, nil
}

func TestQueueSenderEnqueuesTask(t *testing.T) {
	enqueuer := &fakeEnqueuer{}
	sender := mail.NewQueueSender(enqueuer, 10*time.Minute)

	before := time.Now()
	if err := sender.SendResetCode(context.Background(), "a@x.com", "654321"); err != nil {
		t.Fatalf("send failed: %v", err)
	}
	if len(enqueuer.tasks) != 1 || enqueuer.tasks[0].Type() != mail.TaskTypeResetCode {
		t.Fatalf("expected one reset code task, got %+v", enqueuer.tasks)
	}

	var deadline time.Time
	for _, opt := range enqueuer.opts[0] {
		if opt.Type() == asynq.DeadlineOpt {
			deadline, _ = opt.Value().(time.Time)
		}
	}
	if deadline.Before(before.Add(10*time.Minute)) || deadline.After(time.Now().Add(10*time.Minute)) {
		t.Fatalf("expected the task deadline to match the code expiry, got %v", deadline)
	}

	var payload map[string]string
	if err := json.Unmarshal(enqueuer.tasks[0].Payload(), &payload); err != nil {
		t.Fatalf("invalid payload: %v", err)
	}
	if payload["to"] != "a@x.com" || payload["code"] != "654321" {
		t.Fatalf("unexpected payload: %+v", payload)
	}

	enqueuer.err = errors.New("redis down")
	if err := sender.SendResetCode(context.Background(), "a@x.com", "654321"); err == nil {
		t.Fatalf("expected enqueue error to be surfaced")
	}
}

type recordingSender struct {
	to, code string
	err      error
}

func (s *recordingSender) SendResetCode(_ context.Context, to, code string) error {
	s.to, s.code = to, code
	return s.err
}

func TestWorkerHandleResetCode(t *testing.T) {
	delivered := &recordingSender{}
	worker := mail.NewWorker(asynq.RedisClientOpt{Addr: "localhost:6379"}, 1, delivered)

	task, err := mail.NewResetCodeTask("a@x.com", "111222")
	if err != nil {
		t.Fatalf("build task failed: %v", err)
	}
	if err = worker.HandleResetCode(context.Background(), task); err != nil {
		t.Fatalf("handle failed: %v", err)
	}
	if delivered.to != "a@x.com" || delivered.code != "111222" {
		t.Fatalf("unexpected delivery: %+v", delivered)
	}

	err = worker.HandleResetCode(context.Background(), asynq.NewTask(mail.TaskTypeResetCode, []byte("{")))
	if !errors.Is(err, asynq.SkipRetry) {
		t.Fatalf("expected malformed payload to skip retries, got %v", err)
	}

	delivered.err = errors.New("relay refused")
	if err = worker.HandleResetCode(context.Background(), task); err == nil || errors.Is(err, asynq.SkipRetry) {
		t.Fatalf("expected delivery failure to be retried, got %v", err)
	}
}
