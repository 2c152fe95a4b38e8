package kafka

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
)

type fakeReader struct {
	msgs      []kafka.Message
	err       error
	i         int
	committed []kafka.Message
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	if r.i < len(r.msgs) {
		m := r.msgs[r.i]
		r.i++
		return m, nil
	}
	if r.err != nil {
		return kafka.Message{}, r.err
	}
	return kafka.Message{}, errors.New("eof")
}

func (r *fakeReader) CommitMessages(ctx context.Context, msgs ...kafka.Message) error {
	r.committed = append(r.committed, msgs...)
	return nil
}

func (r *fakeReader) Close() error { return nil }

func TestConsumer_Consume_CallsHandlerAndCommits(t *testing.T) {
	fr := &fakeReader{
		msgs: []kafka.Message{{Key: []byte("k"), Value: []byte("v")}},
		err:  errors.New("stop"),
	}
	c := newConsumerWithReader(fr)

	var gotK, gotV []byte
	err := c.Consume(context.Background(), func(ctx context.Context, k, v []byte) error {
		gotK, gotV = k, v
		return nil
	})
	require.Error(t, err)
	require.Equal(t, []byte("k"), gotK)
	require.Equal(t, []byte("v"), gotV)
	require.Len(t, fr.committed, 1)
}

func TestConsumer_Consume_HandlerErrorStopsWithoutCommit(t *testing.T) {
	fr := &fakeReader{msgs: []kafka.Message{{Key: []byte("k"), Value: []byte("v")}}}
	c := newConsumerWithReader(fr)

	want := errors.New("handler failed")
	err := c.Consume(context.Background(), func(ctx context.Context, k, v []byte) error { return want })
	require.ErrorIs(t, err, want)
	require.Empty(t, fr.committed)
}

func TestConsumer_Consume_PermanentErrorIsCommitted(t *testing.T) {
	fr := &fakeReader{
		msgs: []kafka.Message{{Value: []byte("not json")}, {Value: []byte("{}")}},
		err:  errors.New("stop"),
	}
	c := newConsumerWithReader(fr)

	var seen int
	err := c.Consume(context.Background(), func(ctx context.Context, k, v []byte) error {
		seen++
		if seen == 1 {
			return Permanent(errors.New("decode"))
		}
		return nil
	})
	require.EqualError(t, err, "fetch message: stop")
	require.Equal(t, 2, seen)
	require.Len(t, fr.committed, 2)
}

func TestConsumer_Consume_SkipsForeignSchema(t *testing.T) {
	fr := &fakeReader{
		msgs: []kafka.Message{
			{Topic: "tracking.updated", Value: []byte("{}"), Headers: []kafka.Header{{Key: HeaderSchema, Value: []byte("colis.created")}}},
			{Topic: "tracking.updated", Value: []byte("{}"), Headers: []kafka.Header{{Key: HeaderSchema, Value: []byte("tracking.updated")}}},
			{Topic: "tracking.updated", Value: []byte("{}")},
		},
		err: errors.New("stop"),
	}
	c := newConsumerWithReader(fr)

	var seen int
	err := c.Consume(context.Background(), func(ctx context.Context, k, v []byte) error {
		seen++
		return nil
	})
	require.EqualError(t, err, "fetch message: stop")
	require.Equal(t, 2, seen)
	require.Len(t, fr.committed, 3)
}

func TestIsPermanent(t *testing.T) {
	err := Permanent(errors.New("decode"))
	require.True(t, IsPermanent(err))
	require.True(t, IsPermanent(fmt.Errorf("apply: %w", err)))
	require.False(t, IsPermanent(errors.New("db down")))
}

func TestPermanent_Nil(t *testing.T) {
	require.NoError(t, Permanent(nil))
}

func TestNewConsumer_Close(t *testing.T) {
	c := NewConsumer([]string{"localhost:0"}, "t", "g")
	require.NotNil(t, c)
	require.NoError(t, c.Close())
}
