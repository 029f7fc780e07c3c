package mailing

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"gatekeeper-bot/internal/domain"
	"gatekeeper-bot/internal/store"
)

type fakeStore struct {
	mu          sync.Mutex
	nextID      int64
	mailings    map[int64]*domain.Mailing
	recipients  []domain.Recipient
	checkpoints []int
	claims      int

	listErr     error
	progressErr error
	finishErr   error
}

func newFakeStore() *fakeStore {
	return &fakeStore{nextID: 1, mailings: make(map[int64]*domain.Mailing)}
}

func (f *fakeStore) CreateMailing(_ context.Context, m *domain.Mailing) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.nextID
	f.nextID++
	cp := *m
	cp.ID = id
	f.mailings[id] = &cp
	return id, nil
}

func (f *fakeStore) GetMailing(_ context.Context, id int64) (*domain.Mailing, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.mailings[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *m
	return &cp, nil
}

func (f *fakeStore) SetMailingStatus(_ context.Context, id int64, status string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if m, ok := f.mailings[id]; ok {
		m.Status = status
	}
	return nil
}

func (f *fakeStore) ClaimMailing(_ context.Context, id int64, total int) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.mailings[id]
	if !ok {
		return false, nil
	}
	if m.Status != domain.MailingDraft && m.Status != domain.MailingTestSent {
		return false, nil
	}
	m.Status = domain.MailingSending
	m.TotalCount = total
	m.SentCount = 0
	f.claims++
	return true, nil
}

func (f *fakeStore) SetMailingProgress(_ context.Context, id int64, sent int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.progressErr != nil {
		return f.progressErr
	}
	f.checkpoints = append(f.checkpoints, sent)
	if m, ok := f.mailings[id]; ok {
		m.SentCount = sent
	}
	return nil
}

func (f *fakeStore) FinishMailing(_ context.Context, id int64, sent int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.finishErr != nil {
		return f.finishErr
	}
	if m, ok := f.mailings[id]; ok {
		m.Status = domain.MailingSent
		m.SentCount = sent
	}
	return nil
}

func (f *fakeStore) DeleteMailing(_ context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.mailings, id)
	return nil
}

func (f *fakeStore) ListRecipients(_ context.Context) ([]domain.Recipient, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	return append([]domain.Recipient(nil), f.recipients...), nil
}

func (f *fakeStore) mailing(id int64) domain.Mailing {
	f.mu.Lock()
	defer f.mu.Unlock()
	return *f.mailings[id]
}

type sentMsg struct {
	chatID int64
	text   string
	photo  bool
}

type fakeSender struct {
	mu        sync.Mutex
	sent      []sentMsg
	failChats map[int64]bool
	hook      func(chatID int64) // called before every send, for gating
}

func (f *fakeSender) record(chatID int64, text string, photo bool) error {
	if f.hook != nil {
		f.hook(chatID)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failChats[chatID] {
		return errors.New("forbidden: bot was blocked by the user")
	}
	f.sent = append(f.sent, sentMsg{chatID: chatID, text: text, photo: photo})
	return nil
}

func (f *fakeSender) SendText(chatID int64, text string) error {
	return f.record(chatID, text, false)
}

func (f *fakeSender) SendPhoto(chatID int64, _, caption string) error {
	return f.record(chatID, caption, true)
}

func (f *fakeSender) messages() []sentMsg {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentMsg(nil), f.sent...)
}

const adminID = int64(900001)

func newEngine(repo *fakeStore, sender *fakeSender) *Engine {
	return New(repo, sender, 0, zap.NewNop())
}

func createDraft(t *testing.T, e *Engine, text, image string) int64 {
	t.Helper()
	id, err := e.Create(context.Background(), text, image, adminID)
	require.NoError(t, err)
	return id
}

func TestCreateReturnsID(t *testing.T) {
	repo := newFakeStore()
	e := newEngine(repo, &fakeSender{})

	id := createDraft(t, e, "Hello", "")

	m := repo.mailing(id)
	assert.Equal(t, domain.MailingDraft, m.Status)
	assert.Equal(t, "Hello", m.Text)
	assert.Equal(t, adminID, m.CreatedBy)
}

func TestSendTestTextOnly(t *testing.T) {
	repo := newFakeStore()
	sender := &fakeSender{}
	e := newEngine(repo, sender)
	id := createDraft(t, e, "Hello", "")

	ok, outcome := e.SendTest(context.Background(), id, adminID)

	assert.True(t, ok)
	assert.NotEmpty(t, outcome)
	assert.Equal(t, domain.MailingTestSent, repo.mailing(id).Status)

	msgs := sender.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, adminID, msgs[0].chatID)
	assert.False(t, msgs[0].photo)
}

func TestSendTestWithImage(t *testing.T) {
	repo := newFakeStore()
	sender := &fakeSender{}
	e := newEngine(repo, sender)
	id := createDraft(t, e, "Hello", "file-123")

	ok, _ := e.SendTest(context.Background(), id, adminID)

	assert.True(t, ok)
	msgs := sender.messages()
	require.Len(t, msgs, 1)
	assert.True(t, msgs[0].photo, "image mailings go out as photo+caption")
}

func TestSendTestTwiceSendsTwoCopies(t *testing.T) {
	repo := newFakeStore()
	sender := &fakeSender{}
	e := newEngine(repo, sender)
	id := createDraft(t, e, "Hello", "")

	ok1, _ := e.SendTest(context.Background(), id, adminID)
	ok2, _ := e.SendTest(context.Background(), id, adminID)

	assert.True(t, ok1)
	assert.True(t, ok2)
	assert.Len(t, sender.messages(), 2)
	assert.Equal(t, domain.MailingTestSent, repo.mailing(id).Status)
}

func TestSendTestUnknownMailing(t *testing.T) {
	e := newEngine(newFakeStore(), &fakeSender{})

	ok, outcome := e.SendTest(context.Background(), 404, adminID)

	assert.False(t, ok)
	assert.Contains(t, outcome, "not found")
}

func TestSendTestTransportFailureKeepsStatus(t *testing.T) {
	repo := newFakeStore()
	sender := &fakeSender{failChats: map[int64]bool{adminID: true}}
	e := newEngine(repo, sender)
	id := createDraft(t, e, "Hello", "")

	ok, _ := e.SendTest(context.Background(), id, adminID)

	assert.False(t, ok)
	assert.Equal(t, domain.MailingDraft, repo.mailing(id).Status)
}

func TestBroadcastToleratesPerRecipientFailures(t *testing.T) {
	repo := newFakeStore()
	sender := &fakeSender{failChats: make(map[int64]bool)}
	for i := int64(1); i <= 100; i++ {
		repo.recipients = append(repo.recipients, domain.Recipient{UserID: i, ChatID: i})
	}
	// 5 unreachable recipients must not abort the rest.
	for _, bad := range []int64{7, 19, 42, 66, 93} {
		sender.failChats[bad] = true
	}
	e := newEngine(repo, sender)
	id := createDraft(t, e, "Hello", "")

	ok, sent, total := e.Launch(context.Background(), id, adminID)
	require.True(t, ok)
	assert.Equal(t, 0, sent, "launch returns before any send")
	assert.Equal(t, 100, total)

	e.Wait()

	m := repo.mailing(id)
	assert.Equal(t, domain.MailingSent, m.Status)
	assert.Equal(t, 95, m.SentCount)
	assert.Equal(t, 100, m.TotalCount)

	// Progress checkpoints are non-decreasing and bounded by the total.
	prev := 0
	for _, cp := range repo.checkpoints {
		assert.GreaterOrEqual(t, cp, prev)
		assert.LessOrEqual(t, cp, 100)
		prev = cp
	}

	// Completion notice goes to the admin with the final tallies.
	msgs := sender.messages()
	last := msgs[len(msgs)-1]
	assert.Equal(t, adminID, last.chatID)
	assert.Contains(t, last.text, "95")
	assert.Contains(t, last.text, "100")
}

func TestLaunchRejectsMailingAlreadyInFlight(t *testing.T) {
	repo := newFakeStore()
	for i := int64(1); i <= 20; i++ {
		repo.recipients = append(repo.recipients, domain.Recipient{UserID: i, ChatID: i})
	}

	gate := make(chan struct{})
	sender := &fakeSender{}
	sender.hook = func(chatID int64) {
		if chatID != adminID {
			// Hold the broadcast on its first recipient until released.
			<-gate
		}
	}

	e := newEngine(repo, sender)
	id := createDraft(t, e, "Hello", "")

	ok, _, total := e.Launch(context.Background(), id, adminID)
	require.True(t, ok)
	require.Equal(t, 20, total)

	// The broadcast is blocked mid-send; a relaunch must bounce immediately.
	ok2, sent2, total2 := e.Launch(context.Background(), id, adminID)
	assert.False(t, ok2)
	assert.Equal(t, 0, sent2)
	assert.Equal(t, 0, total2)

	close(gate)
	e.Wait()

	repo.mu.Lock()
	claims := repo.claims
	repo.mu.Unlock()
	assert.Equal(t, 1, claims, "rejected launch must not touch counters")
	assert.Equal(t, domain.MailingSent, repo.mailing(id).Status)
	assert.Equal(t, 20, repo.mailing(id).SentCount)
}

func TestLaunchRejectsAlreadySentMailing(t *testing.T) {
	repo := newFakeStore()
	repo.recipients = []domain.Recipient{{UserID: 1, ChatID: 1}}
	e := newEngine(repo, &fakeSender{})
	id := createDraft(t, e, "Hello", "")

	ok, _, _ := e.Launch(context.Background(), id, adminID)
	require.True(t, ok)
	e.Wait()
	require.Equal(t, domain.MailingSent, repo.mailing(id).Status)

	// The store claim only succeeds out of draft/test_sent.
	ok2, _, _ := e.Launch(context.Background(), id, adminID)
	assert.False(t, ok2)
}

func TestLaunchSnapshotFailure(t *testing.T) {
	repo := newFakeStore()
	repo.listErr = errors.New("database is locked")
	e := newEngine(repo, &fakeSender{})
	id := createDraft(t, e, "Hello", "")

	ok, _, _ := e.Launch(context.Background(), id, adminID)

	assert.False(t, ok)
	assert.Equal(t, domain.MailingDraft, repo.mailing(id).Status)
}

func TestBroadcastStorageFailureRollsBackToDraft(t *testing.T) {
	repo := newFakeStore()
	for i := int64(1); i <= 30; i++ {
		repo.recipients = append(repo.recipients, domain.Recipient{UserID: i, ChatID: i})
	}
	repo.progressErr = errors.New("disk I/O error")
	sender := &fakeSender{}
	e := newEngine(repo, sender)
	id := createDraft(t, e, "Hello", "")

	ok, _, _ := e.Launch(context.Background(), id, adminID)
	require.True(t, ok)
	e.Wait()

	assert.Equal(t, domain.MailingDraft, repo.mailing(id).Status)

	msgs := sender.messages()
	require.NotEmpty(t, msgs)
	last := msgs[len(msgs)-1]
	assert.Equal(t, adminID, last.chatID)
	assert.Contains(t, strings.ToLower(last.text), "failed")
}

func TestTwoDistinctMailingsBroadcastConcurrently(t *testing.T) {
	repo := newFakeStore()
	for i := int64(1); i <= 5; i++ {
		repo.recipients = append(repo.recipients, domain.Recipient{UserID: i, ChatID: i})
	}
	e := newEngine(repo, &fakeSender{})

	idA := createDraft(t, e, "A", "")
	idB := createDraft(t, e, "B", "")

	okA, _, _ := e.Launch(context.Background(), idA, adminID)
	okB, _, _ := e.Launch(context.Background(), idB, adminID)
	require.True(t, okA)
	require.True(t, okB, "the in-flight set guards per mailing id, not globally")

	e.Wait()
	assert.Equal(t, domain.MailingSent, repo.mailing(idA).Status)
	assert.Equal(t, domain.MailingSent, repo.mailing(idB).Status)
}

func TestBroadcastWithImageSendsPhotos(t *testing.T) {
	repo := newFakeStore()
	repo.recipients = []domain.Recipient{{UserID: 1, ChatID: 1}, {UserID: 2, ChatID: 2}}
	sender := &fakeSender{}
	e := newEngine(repo, sender)
	id := createDraft(t, e, "caption", "file-9")

	ok, _, _ := e.Launch(context.Background(), id, adminID)
	require.True(t, ok)
	e.Wait()

	photos := 0
	for _, m := range sender.messages() {
		if m.photo {
			photos++
		}
	}
	assert.Equal(t, 2, photos)
}

func TestSendDelayIsApplied(t *testing.T) {
	repo := newFakeStore()
	for i := int64(1); i <= 5; i++ {
		repo.recipients = append(repo.recipients, domain.Recipient{UserID: i, ChatID: i})
	}
	e := New(repo, &fakeSender{}, 10*time.Millisecond, zap.NewNop())
	id := createDraft(t, e, "Hello", "")

	started := time.Now()
	ok, _, _ := e.Launch(context.Background(), id, adminID)
	require.True(t, ok)
	e.Wait()

	assert.GreaterOrEqual(t, time.Since(started), 50*time.Millisecond)
}

func TestDeleteRemovesMailing(t *testing.T) {
	repo := newFakeStore()
	e := newEngine(repo, &fakeSender{})
	id := createDraft(t, e, "Hello", "")

	require.NoError(t, e.Delete(context.Background(), id))

	_, err := e.Get(context.Background(), id)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestLaunchUnknownMailing(t *testing.T) {
	e := newEngine(newFakeStore(), &fakeSender{})
	ok, sent, total := e.Launch(context.Background(), 404, adminID)
	assert.False(t, ok)
	assert.Zero(t, sent)
	assert.Zero(t, total)
}
