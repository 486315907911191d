package service

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	sqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"community-bot/internal/common/i18n"
	"community-bot/internal/features/giveaway/models"
	"community-bot/internal/features/giveaway/repository"
	"community-bot/internal/features/giveaway/repository/gormrepo"
	"community-bot/internal/features/giveaway/wizard"
	"community-bot/internal/workers"
)

func newTestRepo(t *testing.T) repository.GiveawayRepository {
	t.Helper()
	dsn := fmt.Sprintf("file:svc_%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(models.All()...))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return gormrepo.NewGiveawayRepository(db)
}

type editCall struct {
	ChannelID string
	MessageID string
	Edit      *discordgo.MessageEdit
}

type replyCall struct {
	Token   string
	Content string
}

type fakeMessenger struct {
	mu      sync.Mutex
	nextID  int
	sent    []*discordgo.MessageSend
	edits   []editCall
	deleted []string
	replies []replyCall

	sendErr   error
	editErr   error
	deleteErr error

	hold *editHold
}

// editHold parks the next EditMessage call until release is closed.
type editHold struct {
	entered chan struct{}
	release chan struct{}
}

func (m *fakeMessenger) holdNextEdit() *editHold {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hold = &editHold{entered: make(chan struct{}), release: make(chan struct{})}
	return m.hold
}

func (m *fakeMessenger) SendMessage(_ context.Context, _ string, msg *discordgo.MessageSend) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sendErr != nil {
		return "", m.sendErr
	}
	m.nextID++
	m.sent = append(m.sent, msg)
	return "m" + strconv.Itoa(m.nextID), nil
}

func (m *fakeMessenger) EditMessage(_ context.Context, channelID, messageID string, edit *discordgo.MessageEdit) error {
	m.mu.Lock()
	hold := m.hold
	m.hold = nil
	m.mu.Unlock()
	if hold != nil {
		close(hold.entered)
		<-hold.release
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.editErr != nil {
		return m.editErr
	}
	m.edits = append(m.edits, editCall{ChannelID: channelID, MessageID: messageID, Edit: edit})
	return nil
}

func (m *fakeMessenger) DeleteMessage(_ context.Context, _, messageID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.deleteErr != nil {
		return m.deleteErr
	}
	m.deleted = append(m.deleted, messageID)
	return nil
}

func (m *fakeMessenger) EditInteractionReply(_ context.Context, _, token, content string, _ []discordgo.MessageComponent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.replies = append(m.replies, replyCall{Token: token, Content: content})
	return nil
}

func (m *fakeMessenger) editCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.edits)
}

func (m *fakeMessenger) lastEdit() editCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.edits[len(m.edits)-1]
}

type fakeRoles map[string][]string

func (f fakeRoles) MemberRoles(_ context.Context, _, userID string) ([]string, error) {
	roles, ok := f[userID]
	if !ok {
		return nil, ErrMemberNotFound
	}
	return roles, nil
}

// fakeAccounts answers ErrNotLinked for users it does not know.
type fakeAccounts map[string][]string

func (f fakeAccounts) Connections(_ context.Context, userID, _ string) ([]string, error) {
	ids, ok := f[userID]
	if !ok {
		return nil, ErrNotLinked
	}
	return ids, nil
}

type settingsMap map[string]string

func (s settingsMap) Get(key string) string { return s[key] }

// keyTranslator returns the key itself, followed by its params.
type keyTranslator struct{}

func (keyTranslator) Translate(key string, params i18n.Params, _ string) string {
	if len(params) == 0 {
		return key
	}
	return fmt.Sprintf("%s%v", key, params)
}

type recordingQueue struct {
	events chan workers.DueEvent
}

func newRecordingQueue() *recordingQueue {
	return &recordingQueue{events: make(chan workers.DueEvent, 16)}
}

func (q *recordingQueue) Publish(_ context.Context, ev workers.DueEvent) error {
	q.events <- ev
	return nil
}

func (q *recordingQueue) Run(ctx context.Context, _ workers.DueHandler) error {
	<-ctx.Done()
	return nil
}

type noopRefresher struct {
	mu  sync.Mutex
	ids []int64
}

func (r *noopRefresher) RequestUpdate(id int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ids = append(r.ids, id)
}

type testEnv struct {
	svc       *Service
	repo      repository.GiveawayRepository
	messenger *fakeMessenger
	settings  settingsMap
	roles     fakeRoles
	accounts  fakeAccounts
	pending   *MemoryPendingStore
}

func newTestEnv(t *testing.T, queue workers.DueQueue) *testEnv {
	t.Helper()
	env := &testEnv{
		repo:      newTestRepo(t),
		messenger: &fakeMessenger{},
		settings:  settingsMap{},
		roles:     fakeRoles{},
		accounts:  fakeAccounts{},
		pending:   NewMemoryPendingStore(),
	}
	if queue == nil {
		queue = newRecordingQueue()
	}
	env.svc = New(Dependencies{
		Repo:       env.repo,
		Messenger:  env.messenger,
		Roles:      env.roles,
		Accounts:   env.accounts,
		Settings:   env.settings,
		Translator: keyTranslator{},
		Pending:    env.pending,
		Queue:      queue,
		Wizards:    wizard.NewEngine(wizard.NewStore(), time.UTC),
		Config: Config{
			ThrottleMin:       20 * time.Millisecond,
			ThrottleMax:       30 * time.Millisecond,
			PendingTTL:        time.Minute,
			ResolveRetryDelay: 50 * time.Millisecond,
		},
	})
	t.Cleanup(env.svc.Stop)
	return env
}

func (e *testEnv) seed(t *testing.T, prize string, subOnly bool, endIn time.Duration) *models.Giveaway {
	t.Helper()
	g := &models.Giveaway{
		InteractionID: uuid.NewString(),
		GuildID:       "guild",
		ChannelID:     "chan",
		MessageID:     "announce",
		Prize:         prize,
		EndTime:       time.Now().Add(endIn),
		WinnerCount:   1,
		SubOnly:       subOnly,
	}
	require.NoError(t, e.repo.Create(context.Background(), g))
	return g
}

func fieldValue(embeds []*discordgo.MessageEmbed, name string) string {
	for _, e := range embeds {
		for _, f := range e.Fields {
			if f.Name == name {
				return f.Value
			}
		}
	}
	return ""
}
