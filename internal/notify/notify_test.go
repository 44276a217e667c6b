package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/taoyao-code/zkpush-server/internal/config"
	"github.com/taoyao-code/zkpush-server/internal/rtlog"
)

var grantedEvent = rtlog.AccessEvent{
	CardHex:     "1a2b3c",
	CardDecimal: 1715004,
	EventCode:   "0",
	Pin:         "77",
	Outcome:     rtlog.OutcomeGranted,
}

func TestWebhookSink_SignedDelivery(t *testing.T) {
	const secret = "s3cret"
	var got Notification
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		tsHeader, _ := strconv.ParseInt(r.Header.Get("X-Timestamp"), 10, 64)
		want := SignHMAC(secret, canonicalString(r.Method, r.URL.Path, tsHeader, r.Header.Get("X-Nonce"), body))
		if r.Header.Get("X-Api-Key") != "key" || r.Header.Get("X-Signature") != want {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_ = json.Unmarshal(body, &got)
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	sink := NewWebhookSink(nil, ts.URL+"/hooks/access", "key", secret)
	n := NewNotification("SN1", grantedEvent, nil, time.Unix(1700000000, 0))
	require.NoError(t, sink.Send(context.Background(), n))
	assert.Equal(t, "SN1", got.Serial)
	assert.Equal(t, n.EventID, got.EventID)
	assert.Equal(t, "normal punch open", got.Description)
	assert.Equal(t, uint64(1715004), got.Event.CardDecimal)
}

func TestWebhookSink_Retries(t *testing.T) {
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer ts.Close()

	sink := NewWebhookSink(nil, ts.URL, "", "")
	sink.Backoff = []time.Duration{time.Millisecond}
	require.NoError(t, sink.Send(context.Background(), Notification{Serial: "SN1"}))
	assert.Equal(t, int32(3), calls.Load())
}

func TestWebhookSink_ClientErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer ts.Close()

	sink := NewWebhookSink(nil, ts.URL, "", "")
	err := sink.Send(context.Background(), Notification{Serial: "SN1"})
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

type memorySink struct {
	name string
	err  error
	mu   sync.Mutex
	got  []Notification
}

func (s *memorySink) Name() string { return s.name }

func (s *memorySink) Send(_ context.Context, n Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.got = append(s.got, n)
	return s.err
}

func (s *memorySink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.got)
}

type resultCounter struct {
	mu     sync.Mutex
	counts map[string]int
}

func (r *resultCounter) NotifyResult(sink, result string) {
	r.mu.Lock()
	r.counts[sink+"/"+result]++
	r.mu.Unlock()
}

func TestDispatcher_FanOut(t *testing.T) {
	ok := &memorySink{name: "ok"}
	bad := &memorySink{name: "bad", err: errors.New("boom")}
	rec := &resultCounter{counts: map[string]int{}}

	d := NewDispatcher(8, zap.NewNop(), []Sink{ok, bad}, WithRecorder(rec), WithWorkers(1))
	d.Start(context.Background())

	d.OnAccessEvent(context.Background(), "SN1", grantedEvent)
	d.OnAccessEvent(context.Background(), "SN1", rtlog.AccessEvent{EventCode: "200", Outcome: rtlog.OutcomeNone})
	d.OnAccessEvent(context.Background(), "SN2", grantedEvent)
	d.Stop()

	assert.Equal(t, 2, ok.count())
	assert.Equal(t, 2, bad.count())
	assert.Equal(t, 2, rec.counts["ok/ok"])
	assert.Equal(t, 2, rec.counts["bad/error"])

	// Stop 之后的事件被忽略
	d.OnAccessEvent(context.Background(), "SN1", grantedEvent)
	assert.Equal(t, 2, ok.count())
}

func TestDispatcher_DropsWhenFull(t *testing.T) {
	sink := &memorySink{name: "mem"}
	rec := &resultCounter{counts: map[string]int{}}
	d := NewDispatcher(1, zap.NewNop(), []Sink{sink}, WithRecorder(rec))

	// 未启动 worker，第二个事件必然溢出
	d.OnAccessEvent(context.Background(), "SN1", grantedEvent)
	d.OnAccessEvent(context.Background(), "SN1", grantedEvent)
	assert.Equal(t, 1, rec.counts["dispatcher/dropped"])

	d.Start(context.Background())
	d.Stop()
	assert.Equal(t, 1, sink.count())
}

func TestLogObserver_Levels(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	o := NewLogObserver(zap.New(core), nil)

	o.OnAccessEvent(context.Background(), "SN1", grantedEvent)
	o.OnAccessEvent(context.Background(), "SN1", rtlog.AccessEvent{CardDecimal: 5, EventCode: "27", Outcome: rtlog.OutcomeDenied})

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, zap.InfoLevel, entries[0].Level)
	assert.Equal(t, "normal punch open", entries[0].ContextMap()["description"])
	assert.Equal(t, zap.WarnLevel, entries[1].Level)
	assert.Equal(t, "denied", entries[1].ContextMap()["outcome"])
}

type doneToken struct {
	done chan struct{}
	err  error
}

func newDoneToken(err error) *doneToken {
	t := &doneToken{done: make(chan struct{}), err: err}
	close(t.done)
	return t
}

func (t *doneToken) Wait() bool                     { return true }
func (t *doneToken) WaitTimeout(time.Duration) bool { return true }
func (t *doneToken) Done() <-chan struct{}          { return t.done }
func (t *doneToken) Error() error                   { return t.err }

type fakePublisher struct {
	topic   string
	qos     byte
	payload []byte
	err     error
}

func (p *fakePublisher) Publish(topic string, qos byte, _ bool, payload interface{}) pahomqtt.Token {
	p.topic, p.qos = topic, qos
	p.payload, _ = payload.([]byte)
	return newDoneToken(p.err)
}

func (p *fakePublisher) Disconnect(uint) {}

func TestMQTTSink_Publish(t *testing.T) {
	pub := &fakePublisher{}
	sink := newMQTTSink(pub, config.MQTTConfig{TopicPrefix: "site1", QoS: 1})

	n := NewNotification("SN1", grantedEvent, nil, time.Now())
	require.NoError(t, sink.Send(context.Background(), n))
	assert.Equal(t, "site1/SN1/events", pub.topic)
	assert.Equal(t, byte(1), pub.qos)

	var decoded Notification
	require.NoError(t, json.Unmarshal(pub.payload, &decoded))
	assert.Equal(t, n.EventID, decoded.EventID)

	pub.err = errors.New("not connected")
	assert.Error(t, sink.Send(context.Background(), n))
	assert.Equal(t, "zkpush/SN9/events", newMQTTSink(pub, config.MQTTConfig{}).Topic("SN9"))
}
