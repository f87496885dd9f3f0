package events

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pennywise/observability/internal/models"
	"github.com/pennywise/observability/internal/storage"
)

func TestEventBus_DeliversToTypedAndWildcardSubscribers(t *testing.T) {
	bus := NewEventBus()

	var mu sync.Mutex
	var typed, all []Event
	bus.Subscribe(EventIngested, func(e Event) {
		mu.Lock()
		typed = append(typed, e)
		mu.Unlock()
	})
	bus.SubscribeAll(func(e Event) {
		mu.Lock()
		all = append(all, e)
		mu.Unlock()
	})

	bus.PublishIngested("ev-1", "ui_error", true)
	bus.PublishFeedbackSubmitted("fb-1", "bug_report")
	bus.Wait()

	require.Len(t, typed, 1)
	assert.Equal(t, "ev-1", typed[0].Data["event_id"])
	assert.NotEmpty(t, typed[0].ID)
	assert.False(t, typed[0].Timestamp.IsZero())
	assert.Len(t, all, 2)
}

func TestEventBus_HandlerPanicIsContained(t *testing.T) {
	bus := NewEventBus()
	bus.SubscribeAll(func(Event) { panic("boom") })

	assert.NotPanics(t, func() {
		bus.PublishAlert("error", "ev-1", false, 3)
		bus.Wait()
	})
}

func TestEventBus_NilBusIsNoop(t *testing.T) {
	var bus *EventBus
	assert.NotPanics(t, func() { bus.PublishRetentionCompleted("purge", nil, "") })
}

type memStorage struct {
	stored []*models.MonitoringEvent
	err    error
}

func (m *memStorage) Store(ctx context.Context, e *models.MonitoringEvent) error {
	if m.err != nil {
		return m.err
	}
	m.stored = append(m.stored, e)
	return nil
}

func TestMultiEventStorage_PrimaryFailureReturned(t *testing.T) {
	primary := &memStorage{err: errors.New("db down")}
	mirror := &memStorage{}
	s := NewMultiEventStorage(primary, mirror)

	err := s.Store(context.Background(), &models.MonitoringEvent{ID: "a"})
	assert.Error(t, err)
	assert.Empty(t, mirror.stored, "mirrors only see persisted events")
}

func TestMultiEventStorage_MirrorFailureIgnored(t *testing.T) {
	primary := &memStorage{}
	s := NewMultiEventStorage(primary, &memStorage{err: errors.New("influx down")})

	require.NoError(t, s.Store(context.Background(), &models.MonitoringEvent{ID: "a"}))
	assert.Len(t, primary.stored, 1)
}

type memWriter struct {
	points []storage.MetricPoint
}

func (w *memWriter) WriteMetric(m storage.MetricPoint) error {
	w.points = append(w.points, m)
	return nil
}

func TestInfluxDBEventStorage_MirrorsPerformanceOnly(t *testing.T) {
	w := &memWriter{}
	s := NewInfluxDBEventStorage(w)
	now := time.Now()
	uid := "user-1"

	metric, err := models.NewMonitoringEvent(models.EventTypePerformanceMetric,
		map[string]interface{}{"metric_name": "LCP", "value": 1200.0, "path": "/"}, now)
	require.NoError(t, err)
	metric.UserID = &uid
	metric.SourceIP = "10.0.0.1"

	uiErr, err := models.NewMonitoringEvent(models.EventTypeUIError, nil, now)
	require.NoError(t, err)

	require.NoError(t, s.Store(context.Background(), metric))
	require.NoError(t, s.Store(context.Background(), uiErr))

	require.Len(t, w.points, 1)
	p := w.points[0]
	assert.Equal(t, "LCP", p.MetricName)
	require.NotNil(t, p.Value)
	assert.Equal(t, 1200.0, *p.Value)
	assert.Equal(t, metric.ID, p.EventID)
}
