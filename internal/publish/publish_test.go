package publish

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/janiskrasemann/vmarket/internal/fetcher"
)

var sample = fetcher.Fields{CurrentPrice: "22147.90", PriceChange: "-52.30", PriceChangePercentage: "-0.23"}

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

func TestKafkaPublish(t *testing.T) {
	w := &recordingWriter{}
	fixed := time.Date(2024, 3, 1, 9, 15, 0, 0, time.UTC)
	k := &Kafka{writer: w, now: func() time.Time { return fixed }}

	require.NoError(t, k.Publish(context.Background(), "NIFTY-50", sample))
	require.Len(t, w.msgs, 1)
	assert.Equal(t, "NIFTY-50", string(w.msgs[0].Key))

	var got map[string]any
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &got))
	assert.Equal(t, "NIFTY-50", got["source"])
	assert.Equal(t, "22147.90", got["current_price"])
	assert.Equal(t, "-52.30", got["price_change"])
	assert.Equal(t, "-0.23", got["price_change_percentage"])
	assert.Equal(t, "2024-03-01T09:15:00Z", got["scraped_at"])

	require.NoError(t, k.Close())
	assert.True(t, w.closed)
}

func TestKafkaPublishError(t *testing.T) {
	k := &Kafka{writer: &recordingWriter{err: errors.New("broker down")}, now: time.Now}
	err := k.Publish(context.Background(), "SENSEX", sample)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SENSEX")
}

func TestNewKafkaRequiresBrokers(t *testing.T) {
	_, err := NewKafka(KafkaConfig{Brokers: []string{" ", ""}})
	assert.Error(t, err)
}

func TestCleanBrokers(t *testing.T) {
	got := cleanBrokers([]string{"a:9092, b:9092", " ", "c:9092"})
	assert.Equal(t, []string{"a:9092", "b:9092", "c:9092"}, got)
}

func TestRedisKeyAndDefaults(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	r := newRedis(client, "", 0)
	defer r.Close()

	assert.Equal(t, "vmarket:BSE-500", r.Key("BSE-500"))
	assert.Equal(t, 10*time.Minute, r.ttl)
	assert.Equal(t, "redis", r.Name())
}

func TestNewRedisRequiresAddr(t *testing.T) {
	_, err := NewRedis(RedisConfig{})
	assert.Error(t, err)
}

type closeErrSink struct{ err error }

func (s closeErrSink) Name() string { return "stub" }
func (s closeErrSink) Publish(context.Context, string, fetcher.Fields) error {
	return nil
}
func (s closeErrSink) Close() error { return s.err }

func TestCloseAllJoinsErrors(t *testing.T) {
	first := errors.New("first")
	second := errors.New("second")
	err := CloseAll([]Sink{closeErrSink{first}, closeErrSink{}, closeErrSink{second}})
	assert.ErrorIs(t, err, first)
	assert.ErrorIs(t, err, second)

	assert.NoError(t, CloseAll(nil))
}
