package notify_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/smartpay-gateway/internal/notify"
	"github.com/noah-isme/smartpay-gateway/internal/signing"
)

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
	return &asynq.TaskInfo{ID: "t", Type: task.Type()}, nil
}

func sampleNotification(key string) notify.Notification {
	fields := signing.NewFields("increment_id", "INV-9", "status", "paid")
	fields.Set(signing.KeySignature, signing.Sign(fields, key))
	return notify.NewNotification([]byte("raw-body"), fields, time.Unix(1700000000, 0))
}

func TestTaskEnqueuerDispatch(t *testing.T) {
	enq := &fakeEnqueuer{}
	n := sampleNotification(signKey)

	err := notify.TaskEnqueuer{Client: enq, Queue: "notifications", MaxRetry: 5}.Dispatch(context.Background(), n)
	require.NoError(t, err)
	require.Len(t, enq.tasks, 1)
	require.Equal(t, notify.TypeNotification, enq.tasks[0].Type())
	require.Len(t, enq.opts[0], 3)

	var decoded notify.Notification
	require.NoError(t, json.Unmarshal(enq.tasks[0].Payload(), &decoded))
	require.Equal(t, n.ID, decoded.ID)
	require.Equal(t, n.Fields, decoded.Fields)
}

func TestTaskEnqueuerTreatsConflictAsDone(t *testing.T) {
	err := notify.TaskEnqueuer{Client: &fakeEnqueuer{err: asynq.ErrTaskIDConflict}}.Dispatch(context.Background(), sampleNotification(signKey))
	require.NoError(t, err)

	boom := errors.New("redis down")
	err = notify.TaskEnqueuer{Client: &fakeEnqueuer{err: boom}}.Dispatch(context.Background(), sampleNotification(signKey))
	require.ErrorIs(t, err, boom)
}

func TestNotificationIDIsStablePerBody(t *testing.T) {
	fields := signing.NewFields("a", "1")
	a := notify.NewNotification([]byte("x"), fields, time.Now())
	b := notify.NewNotification([]byte("x"), fields, time.Now().Add(time.Minute))
	c := notify.NewNotification([]byte("y"), fields, time.Now())
	require.Equal(t, a.ID, b.ID)
	require.NotEqual(t, a.ID, c.ID)
}

type recordingSink struct {
	got []notify.Notification
	err error
}

func (s *recordingSink) HandleNotification(_ context.Context, n notify.Notification) error {
	s.got = append(s.got, n)
	return s.err
}

func TestTaskHandlerProcessTask(t *testing.T) {
	sink := &recordingSink{}
	verifier := &signing.Verifier{Key: signKey}
	handler := notify.TaskHandler{Sink: sink, Verifier: verifier, Logger: zerolog.Nop()}

	task, err := notify.NewNotificationTask(sampleNotification(signKey))
	require.NoError(t, err)
	require.NoError(t, handler.ProcessTask(context.Background(), task))
	require.Len(t, sink.got, 1)
}

func TestTaskHandlerSkipsRetryOnBadInput(t *testing.T) {
	handler := notify.TaskHandler{Sink: &recordingSink{}, Verifier: &signing.Verifier{Key: signKey}}

	err := handler.ProcessTask(context.Background(), asynq.NewTask(notify.TypeNotification, []byte("{")))
	require.ErrorIs(t, err, asynq.SkipRetry)

	forged, err := notify.NewNotificationTask(sampleNotification("other-key"))
	require.NoError(t, err)
	err = handler.ProcessTask(context.Background(), forged)
	require.ErrorIs(t, err, asynq.SkipRetry)
}

func TestTaskHandlerSinkErrorIsRetried(t *testing.T) {
	boom := errors.New("sink down")
	handler := notify.TaskHandler{Sink: &recordingSink{err: boom}, Logger: zerolog.Nop()}
	task, err := notify.NewNotificationTask(sampleNotification(signKey))
	require.NoError(t, err)

	err = handler.ProcessTask(context.Background(), task)
	require.ErrorIs(t, err, boom)
	require.NotErrorIs(t, err, asynq.SkipRetry)
}

func TestLogSinkOmitsSignature(t *testing.T) {
	var buf bytes.Buffer
	sink := notify.LogSink{Logger: zerolog.New(&buf)}
	require.NoError(t, sink.HandleNotification(context.Background(), sampleNotification(signKey)))
	require.Contains(t, buf.String(), `"increment_id":"INV-9"`)
	require.NotContains(t, buf.String(), `"signature"`)
}
