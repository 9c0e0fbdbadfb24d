package producer

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"perfreview/backend/internal/telemetry/domain"
)

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.msgs = append(w.msgs, msgs...)
	return w.err
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func TestNewKafkaProducer_RequiresConfig(t *testing.T) {
	_, err := NewKafkaProducer(nil, "events")
	assert.ErrorIs(t, err, ErrNotConfigured)
	_, err = NewKafkaProducer([]string{"localhost:9092"}, "")
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestKafkaProducer_EmitKeysByUser(t *testing.T) {
	w := &fakeWriter{}
	p := newKafkaProducerWithWriter(w, "events")
	event := &domain.SecurityEvent{ID: "e1", Type: domain.EventLogin, UserID: "u1"}

	require.NoError(t, p.Emit(context.Background(), event))
	require.Len(t, w.msgs, 1)
	assert.Equal(t, "u1", string(w.msgs[0].Key))
	assert.Equal(t, "event_type", w.msgs[0].Headers[0].Key)

	var decoded domain.SecurityEvent
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &decoded))
	assert.Equal(t, "e1", decoded.ID)
	assert.Equal(t, domain.EventLogin, decoded.Type)

	require.NoError(t, p.Close())
	assert.True(t, w.closed)
}

func TestKafkaProducer_EmitError(t *testing.T) {
	w := &fakeWriter{err: errors.New("broker down")}
	p := newKafkaProducerWithWriter(w, "events")
	assert.Error(t, p.Emit(context.Background(), &domain.SecurityEvent{Type: domain.EventLogout}))
}

func TestKafkaProducer_NilSafe(t *testing.T) {
	var p *KafkaProducer
	assert.NoError(t, p.Emit(context.Background(), &domain.SecurityEvent{}))
	assert.NoError(t, p.Close())
	assert.NoError(t, newKafkaProducerWithWriter(&fakeWriter{}, "t").Emit(context.Background(), nil))
}

type fakeReader struct {
	queue     []kafka.Message
	committed []int64
	cancel    context.CancelFunc
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	if len(r.queue) == 0 {
		r.cancel()
		<-ctx.Done()
		return kafka.Message{}, ctx.Err()
	}
	m := r.queue[0]
	r.queue = r.queue[1:]
	return m, nil
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *fakeReader) Close() error { return nil }

func TestKafkaConsumer_RunCommitsHandledMessages(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r := &fakeReader{
		queue: []kafka.Message{
			{Offset: 1, Value: []byte(`{"type":"login"}`)},
			{Offset: 2, Value: []byte(`bad`)},
			{Offset: 3, Value: []byte(`{"type":"logout"}`)},
		},
		cancel: cancel,
	}
	c := newKafkaConsumerWithReader(r)

	var seen []int64
	err := c.Run(ctx, func(_ context.Context, m Message) error {
		seen = append(seen, m.Offset)
		if string(m.Value) == "bad" {
			return errors.New("unparseable")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2, 3}, seen)
	assert.Equal(t, []int64{1, 3}, r.committed)
}
