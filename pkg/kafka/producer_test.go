package kafka

import (
	"context"
	"errors"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *recordingWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *recordingWriter) Close() error {
	w.closed = true
	return nil
}

func TestProducer_PublishEncodes(t *testing.T) {
	w := &recordingWriter{}
	p := NewProducerWithWriter(w, "snappy")

	require.NoError(t, p.Publish(context.Background(), "signals", []byte("vip:EURUSD"), map[string]string{"signal": "BUY"}))
	require.NoError(t, p.Publish(context.Background(), "signals", nil, "raw"))

	require.Len(t, w.msgs, 2)
	assert.Equal(t, "signals", w.msgs[0].Topic)
	assert.Equal(t, []byte("vip:EURUSD"), w.msgs[0].Key)
	assert.JSONEq(t, `{"signal":"BUY"}`, string(w.msgs[0].Value))
	assert.Equal(t, []byte("raw"), w.msgs[1].Value)

	require.NoError(t, p.Close())
	assert.True(t, w.closed)
}

func TestProducer_Errors(t *testing.T) {
	w := &recordingWriter{err: errors.New("leader not available")}
	p := NewProducerWithWriter(w, "gzip")

	err := p.Publish(context.Background(), "signals", nil, "x")
	assert.ErrorContains(t, err, "leader not available")

	err = p.Publish(context.Background(), "signals", nil, func() {})
	assert.ErrorContains(t, err, "marshal value")

	assert.NoError(t, p.PublishBatch(context.Background(), "signals", nil))
}

func TestNewProducer_RequiresBrokers(t *testing.T) {
	_, err := NewProducer()
	assert.Error(t, err)

	p, err := NewProducer(WithBrokers([]string{"localhost:9092"}), WithHashByKey(true), WithAsync(true, func(int, error) {}))
	require.NoError(t, err)
	assert.NoError(t, p.Close())
}

func TestParseCompression(t *testing.T) {
	assert.Equal(t, kafka.Gzip, parseCompression("gzip"))
	assert.Equal(t, kafka.Zstd, parseCompression("zstd"))
	assert.Equal(t, kafka.Snappy, parseCompression("unknown"))
}
