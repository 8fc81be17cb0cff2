package outbox

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/gofrs/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockRepository struct {
	events    []Event
	fetchErr  error
	markErr   error
	processed []int64
}

func (m *mockRepository) FetchUnprocessed(_ context.Context, limit int) ([]Event, error) {
	if m.fetchErr != nil {
		return nil, m.fetchErr
	}
	if len(m.events) > limit {
		return m.events[:limit], nil
	}
	return m.events, nil
}

func (m *mockRepository) MarkProcessed(_ context.Context, id int64) error {
	if m.markErr != nil {
		return m.markErr
	}
	m.processed = append(m.processed, id)
	return nil
}

type fakeWriter struct {
	messages []kafka.Message
	failOn   int // 1-based call index to fail on, 0 never
	calls    int
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.calls++
	if w.failOn != 0 && w.calls == w.failOn {
		return errors.New("broker unavailable")
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func testEvents(n int) []Event {
	events := make([]Event, n)
	for i := range events {
		events[i] = Event{
			ID:          int64(i + 1),
			AggregateID: uuid.Must(uuid.NewV4()),
			EventType:   EventOrderPlaced,
			Payload:     []byte(`{"n":1}`),
			CreatedAt:   time.Now(),
		}
	}
	return events
}

func TestPublisher_PublishPending(t *testing.T) {
	tests := []struct {
		name          string
		repo          *mockRepository
		writer        *fakeWriter
		wantPublished int
		wantProcessed []int64
	}{
		{
			name:          "all_events_published",
			repo:          &mockRepository{events: testEvents(3)},
			writer:        &fakeWriter{},
			wantPublished: 3,
			wantProcessed: []int64{1, 2, 3},
		},
		{
			name:          "stops_at_first_write_failure",
			repo:          &mockRepository{events: testEvents(3)},
			writer:        &fakeWriter{failOn: 2},
			wantPublished: 1,
			wantProcessed: []int64{1},
		},
		{
			name:          "fetch_error_publishes_nothing",
			repo:          &mockRepository{fetchErr: errors.New("db down")},
			writer:        &fakeWriter{},
			wantPublished: 0,
		},
		{
			name:          "mark_error_stops_batch",
			repo:          &mockRepository{events: testEvents(2), markErr: errors.New("db down")},
			writer:        &fakeWriter{},
			wantPublished: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewPublisher(tt.repo, tt.writer)

			got := p.PublishPending(context.Background())

			assert.Equal(t, tt.wantPublished, got)
			assert.Equal(t, tt.wantProcessed, tt.repo.processed)
		})
	}
}

func TestPublisher_MessageShape(t *testing.T) {
	events := testEvents(1)
	events[0].EventType = EventOrderStatusChanged
	w := &fakeWriter{}

	NewPublisher(&mockRepository{events: events}, w).PublishPending(context.Background())

	require.Len(t, w.messages, 1)
	msg := w.messages[0]
	assert.Equal(t, events[0].AggregateID.String(), string(msg.Key))
	assert.Equal(t, events[0].Payload, msg.Value)
	require.Len(t, msg.Headers, 1)
	assert.Equal(t, "event_type", msg.Headers[0].Key)
	assert.Equal(t, EventOrderStatusChanged, string(msg.Headers[0].Value))
}

func TestPublisher_BatchLimit(t *testing.T) {
	repo := &mockRepository{events: testEvents(defaultBatch + 20)}
	w := &fakeWriter{}

	got := NewPublisher(repo, w).PublishPending(context.Background())

	assert.Equal(t, defaultBatch, got)
}

func TestPublisher_RunStopsOnCancel(t *testing.T) {
	repo := &mockRepository{events: testEvents(1)}
	p := NewPublisher(repo, &fakeWriter{})
	p.tick = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publisher did not stop after cancel")
	}
}

type recordingExecer struct {
	sql  string
	args []any
}

func (r *recordingExecer) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	r.sql = sql
	r.args = args
	return pgconn.NewCommandTag("INSERT 0 1"), nil
}

func TestAppend(t *testing.T) {
	db := &recordingExecer{}
	id := uuid.Must(uuid.NewV4())

	err := Append(context.Background(), db, id, EventOrderPlaced, map[string]string{"status": "pending"})
	require.NoError(t, err)

	assert.Contains(t, db.sql, "INSERT INTO outbox_events")
	require.Len(t, db.args, 3)
	assert.Equal(t, id, db.args[0])
	assert.Equal(t, EventOrderPlaced, db.args[1])
	assert.JSONEq(t, `{"status":"pending"}`, string(db.args[2].([]byte)))
}

func TestAppend_UnmarshalablePayload(t *testing.T) {
	err := Append(context.Background(), &recordingExecer{}, uuid.Must(uuid.NewV4()), EventOrderPlaced, make(chan int))
	assert.Error(t, err)
}
