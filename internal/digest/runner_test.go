package digest

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/blockedby/tg-digest/internal/collector"
	"github.com/blockedby/tg-digest/internal/models"
	"github.com/blockedby/tg-digest/internal/repository"
	"github.com/blockedby/tg-digest/internal/storage"
	"github.com/blockedby/tg-digest/internal/telegram"
	"github.com/blockedby/tg-digest/internal/window"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

var jakarta = time.FixedZone("UTC+7", 7*3600)

// 2024-01-16 00:15 in Jakarta, so yesterday is 2024-01-15
var runAt = time.Date(2024, 1, 15, 17, 15, 0, 0, time.UTC)

type MockChats struct {
	Channel *telegram.Channel
	Err     error
}

func (m *MockChats) ResolveChannel(_ context.Context, _ string) (*telegram.Channel, error) {
	return m.Channel, m.Err
}

type MockExtractor struct {
	Result     *collector.Extract
	ExtractErr error
	Members    int
	MembersOK  bool
	GotWindow  window.Window
}

func (m *MockExtractor) Extract(_ context.Context, _ *telegram.Channel, win window.Window) (*collector.Extract, error) {
	m.GotWindow = win
	if m.ExtractErr != nil {
		return nil, m.ExtractErr
	}
	m.Result.Window = win
	return m.Result, nil
}

func (m *MockExtractor) MemberCount(_ context.Context, _ *telegram.Channel) (int, bool) {
	return m.Members, m.MembersOK
}

type MockLoader struct {
	Messages    []models.ExtractRow
	MemberCount []models.MemberCountSnapshot
	Report      []models.ReportRow
	Labels      []string
	Err         error
}

func (m *MockLoader) LoadMessages(_ context.Context, label string, rows []models.ExtractRow) (int64, error) {
	m.Labels = append(m.Labels, label)
	m.Messages = rows
	return int64(len(rows)), m.Err
}

func (m *MockLoader) LoadMemberCount(_ context.Context, label string, snaps []models.MemberCountSnapshot) (int64, error) {
	m.Labels = append(m.Labels, label)
	m.MemberCount = snaps
	return int64(len(snaps)), m.Err
}

func (m *MockLoader) LoadReport(_ context.Context, label string, rows []models.ReportRow) (int64, error) {
	m.Labels = append(m.Labels, label)
	m.Report = rows
	return int64(len(rows)), m.Err
}

type MockPublisher struct {
	Events []RunCompletedEvent
	Err    error
}

func (m *MockPublisher) PublishRunCompleted(_ context.Context, event RunCompletedEvent) error {
	m.Events = append(m.Events, event)
	return m.Err
}

func ptr[T any](v T) *T { return &v }

func sampleExtract() *collector.Extract {
	return &collector.Extract{
		Topics: []telegram.Topic{{ID: 1, Title: "General"}, {ID: 2, Title: "Jobs"}, {ID: 3, Title: "Quiet"}},
		Rows: []models.ExtractRow{
			{TopicID: 1, TopicTitle: "General", MessageID: 11, DateUTC: "2024-01-14T17:00:00Z", SenderID: ptr(int64(100)), SenderUsername: ptr("alice"), Text: "a"},
			{TopicID: 1, TopicTitle: "General", MessageID: 12, DateUTC: "2024-01-15T10:00:00Z", SenderID: ptr(int64(200)), SenderUsername: ptr("200"), Text: "b"},
			{TopicID: 2, TopicTitle: "Jobs", MessageID: 20, DateUTC: "2024-01-15T11:00:00Z", SenderID: ptr(int64(100)), SenderUsername: ptr("alice"), Text: "c"},
		},
	}
}

var forumChat = &telegram.Channel{ID: 777, Username: "forum", Title: "Forum", IsForum: true}

func newTestRunner(t *testing.T, ext *MockExtractor, loader Loader, pub EventPublisher) (*Runner, *storage.ParquetStore) {
	t.Helper()
	store := storage.NewParquetStore(t.TempDir(), nil)
	r := NewRunner("forum", &MockChats{Channel: forumChat}, ext, store, loader, pub, jakarta, nil)
	r.SetClock(func() time.Time { return runAt })
	return r, store
}

func TestRun_WritesLoadsAndPublishes(t *testing.T) {
	ext := &MockExtractor{Result: sampleExtract(), Members: 1500, MembersOK: true}
	loader := &MockLoader{}
	pub := &MockPublisher{}
	r, store := newTestRunner(t, ext, loader, pub)

	event, err := r.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, time.Date(2024, 1, 14, 17, 0, 0, 0, time.UTC), ext.GotWindow.Start)
	assert.Equal(t, "2024-01-15", event.DateLabel)
	assert.Equal(t, 3, event.Topics)
	assert.Equal(t, 3, event.Messages)
	assert.Equal(t, int64(1500), *event.MembersCount)
	assert.Len(t, event.Files, 3)
	assert.FileExists(t, store.Path(storage.DatasetMessages, "20240115"))
	assert.FileExists(t, store.Path(storage.DatasetReport, "20240115"))
	assert.FileExists(t, store.Path(storage.DatasetMemberCount, "20240115"))

	assert.Equal(t, map[string]int64{
		TableMessages:    3,
		TableMemberCount: 1,
		TableReport:      int64(len(loader.Report)),
	}, event.Loaded)
	assert.Equal(t, []string{"2024-01-15", "2024-01-15", "2024-01-15"}, loader.Labels)
	assert.Equal(t, sampleExtract().Rows, loader.Messages)

	require.Len(t, loader.MemberCount, 1)
	assert.Equal(t, "2024-01-15T17:15:00Z", loader.MemberCount[0].TakenAtUTC)
	assert.Equal(t, "Forum", loader.MemberCount[0].ChatTitle)

	var topicsCount, total *int64
	for _, row := range loader.Report {
		switch row.Metric {
		case models.MetricTopicsCount:
			topicsCount = row.Value
		case models.MetricMessagesTotal:
			total = row.Value
		}
	}
	require.NotNil(t, topicsCount)
	require.NotNil(t, total)
	assert.Equal(t, int64(3), *topicsCount, "topics without messages still counted")
	assert.Equal(t, int64(3), *total)

	require.Len(t, pub.Events, 1)
	assert.Equal(t, event.RunID, pub.Events[0].RunID)
}

func TestRun_EmptyWindowKeepsMemberCount(t *testing.T) {
	ext := &MockExtractor{Result: &collector.Extract{Topics: []telegram.Topic{{ID: 1}}}}
	loader := &MockLoader{}
	r, store := newTestRunner(t, ext, loader, nil)

	event, err := r.Run(context.Background())
	require.NoError(t, err)

	assert.NoFileExists(t, store.Path(storage.DatasetMessages, "20240115"))
	assert.NoFileExists(t, store.Path(storage.DatasetReport, "20240115"))
	assert.FileExists(t, store.Path(storage.DatasetMemberCount, "20240115"))
	assert.Equal(t, map[string]int64{TableMemberCount: 1}, event.Loaded)

	require.Len(t, loader.MemberCount, 1)
	assert.Nil(t, loader.MemberCount[0].MembersCount, "absent count stays absent")
}

func TestRun_EmptyRerunDropsStaleFiles(t *testing.T) {
	ext := &MockExtractor{Result: sampleExtract(), Members: 1500, MembersOK: true}
	loader := &MockLoader{}
	r, store := newTestRunner(t, ext, loader, nil)

	_, err := r.Run(context.Background())
	require.NoError(t, err)
	require.FileExists(t, store.Path(storage.DatasetMessages, "20240115"))
	require.FileExists(t, store.Path(storage.DatasetReport, "20240115"))

	// the same day re-run now sees no messages
	ext.Result = &collector.Extract{Topics: sampleExtract().Topics}
	loader.Messages, loader.Report = nil, nil

	event, err := r.Run(context.Background())
	require.NoError(t, err)

	assert.NoFileExists(t, store.Path(storage.DatasetMessages, "20240115"))
	assert.NoFileExists(t, store.Path(storage.DatasetReport, "20240115"))
	assert.FileExists(t, store.Path(storage.DatasetMemberCount, "20240115"))
	assert.Equal(t, map[string]int64{TableMemberCount: 1}, event.Loaded)
	assert.Nil(t, loader.Messages, "stale messages are not loaded again")
	assert.Nil(t, loader.Report)
}

func TestRun_ExtractErrorWritesNothing(t *testing.T) {
	fatal := errors.New("CHANNEL_PRIVATE")
	ext := &MockExtractor{ExtractErr: fatal}
	loader := &MockLoader{}
	pub := &MockPublisher{}
	r, store := newTestRunner(t, ext, loader, pub)

	_, err := r.Run(context.Background())
	assert.ErrorIs(t, err, fatal)

	files, globErr := filepath.Glob(filepath.Join(store.Dir(), "*"))
	require.NoError(t, globErr)
	assert.Empty(t, files)
	assert.Empty(t, loader.Labels)
	assert.Empty(t, pub.Events)
}

func TestRun_ResolveError(t *testing.T) {
	store := storage.NewParquetStore(t.TempDir(), nil)
	r := NewRunner("missing", &MockChats{Err: telegram.ErrChannelMissing}, &MockExtractor{}, store, nil, nil, jakarta, nil)

	_, err := r.Run(context.Background())
	assert.ErrorIs(t, err, telegram.ErrChannelMissing)
}

func TestRun_PublishFailureIsNotFatal(t *testing.T) {
	ext := &MockExtractor{Result: sampleExtract()}
	pub := &MockPublisher{Err: errors.New("nats down")}
	r, _ := newTestRunner(t, ext, nil, pub)

	event, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Nil(t, event.Loaded)
	assert.Len(t, pub.Events, 1)
}

func TestRun_LoadErrorAborts(t *testing.T) {
	ext := &MockExtractor{Result: sampleExtract()}
	loader := &MockLoader{Err: errors.New("connection refused")}
	r, _ := newTestRunner(t, ext, loader, nil)

	_, err := r.Run(context.Background())
	assert.ErrorContains(t, err, "connection refused")
}

func TestLoad_SkipsMissingFiles(t *testing.T) {
	loader := &MockLoader{}
	r, store := newTestRunner(t, &MockExtractor{}, loader, nil)

	_, err := store.WriteReport("20240110", []models.ReportRow{{DateLabel: "2024-01-10", Metric: models.MetricMessagesTotal, Value: ptr(int64(0))}})
	require.NoError(t, err)

	loaded, err := r.Load(context.Background(), "20240110")
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{TableReport: 1}, loaded)
	assert.Equal(t, []string{"2024-01-10"}, loader.Labels)
}

func TestLoad_NoLoader(t *testing.T) {
	r, _ := newTestRunner(t, &MockExtractor{}, nil, nil)

	_, err := r.Load(context.Background(), "20240110")
	assert.Error(t, err)
}

func TestLoad_InvalidLabel(t *testing.T) {
	r, _ := newTestRunner(t, &MockExtractor{}, &MockLoader{}, nil)

	_, err := r.Load(context.Background(), "jan")
	assert.ErrorContains(t, err, "invalid file label")
}

func TestRun_SQLiteRerunIsIdempotent(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "digest.db")), &gorm.Config{})
	require.NoError(t, err)
	repo := repository.New(db, nil)
	require.NoError(t, repo.Migrate(context.Background()))

	ext := &MockExtractor{Result: sampleExtract(), Members: 10, MembersOK: true}
	r, _ := newTestRunner(t, ext, repo, nil)

	first, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(3), first.Loaded[TableMessages])

	second, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(0), second.Loaded[TableMessages])

	stats, err := repo.GetDayStats(context.Background(), "2024-01-15")
	require.NoError(t, err)
	assert.Equal(t, int64(3), stats.Messages)
	assert.Equal(t, int64(1), stats.MemberCount)
	assert.Equal(t, first.Loaded[TableReport], stats.Report)
}
