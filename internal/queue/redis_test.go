package queue

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRedis models lists as slices with index 0 as the LEFT end.
type fakeRedis struct {
	lists map[string][]string
}

func newFakeRedis() *fakeRedis { return &fakeRedis{lists: map[string][]string{}} }

func (f *fakeRedis) LPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd {
	for _, v := range values {
		f.lists[key] = append([]string{v.(string)}, f.lists[key]...)
	}
	return redis.NewIntResult(int64(len(f.lists[key])), nil)
}

func (f *fakeRedis) pop(key, pos string) (string, bool) {
	l := f.lists[key]
	if len(l) == 0 {
		return "", false
	}
	if pos == "RIGHT" {
		v := l[len(l)-1]
		f.lists[key] = l[:len(l)-1]
		return v, true
	}
	v := l[0]
	f.lists[key] = l[1:]
	return v, true
}

func (f *fakeRedis) push(key, pos, v string) {
	if pos == "RIGHT" {
		f.lists[key] = append(f.lists[key], v)
		return
	}
	f.lists[key] = append([]string{v}, f.lists[key]...)
}

func (f *fakeRedis) BLMove(ctx context.Context, source, destination, srcpos, destpos string, timeout time.Duration) *redis.StringCmd {
	return f.LMove(ctx, source, destination, srcpos, destpos)
}

func (f *fakeRedis) LMove(ctx context.Context, source, destination, srcpos, destpos string) *redis.StringCmd {
	v, ok := f.pop(source, srcpos)
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	f.push(destination, destpos, v)
	return redis.NewStringResult(v, nil)
}

func (f *fakeRedis) LRem(ctx context.Context, key string, count int64, value interface{}) *redis.IntCmd {
	l := f.lists[key]
	for i, v := range l {
		if v == value.(string) {
			f.lists[key] = append(l[:i:i], l[i+1:]...)
			return redis.NewIntResult(1, nil)
		}
	}
	return redis.NewIntResult(0, nil)
}

func TestRedisQueueIsFIFOAndAcksRemoveFromProcessing(t *testing.T) {
	ctx := context.Background()
	fake := newFakeRedis()
	q := NewRedis(fake, "")

	require.NoError(t, q.Send(ctx, NewMessage("first", "")))
	require.NoError(t, q.Send(ctx, NewMessage("second", "")))

	d, err := q.Receive(ctx, time.Second)
	require.NoError(t, err)
	msg, err := DecodeMessage([]byte(d.Body))
	require.NoError(t, err)
	assert.Equal(t, "first", msg.AnalysisID)
	assert.Len(t, fake.lists[DefaultRedisKey+":processing"], 1)

	require.NoError(t, q.Ack(ctx, d))
	assert.Empty(t, fake.lists[DefaultRedisKey+":processing"])
}

func TestRedisReceiveTimeout(t *testing.T) {
	q := NewRedis(newFakeRedis(), "k")
	_, err := q.Receive(context.Background(), time.Millisecond)
	assert.ErrorIs(t, err, ErrNoMessage)
}

func TestRedisRecoverRequeuesUnacked(t *testing.T) {
	ctx := context.Background()
	fake := newFakeRedis()
	q := NewRedis(fake, "k")
	require.NoError(t, q.Send(ctx, NewMessage("a", "")))
	require.NoError(t, q.Send(ctx, NewMessage("b", "")))
	_, err := q.Receive(ctx, time.Second)
	require.NoError(t, err)
	_, err = q.Receive(ctx, time.Second)
	require.NoError(t, err)

	n, err := q.Recover(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Empty(t, fake.lists["k:processing"])

	d, err := q.Receive(ctx, time.Second)
	require.NoError(t, err)
	msg, _ := DecodeMessage([]byte(d.Body))
	assert.Equal(t, "a", msg.AnalysisID, "recovered messages keep their order")
}
