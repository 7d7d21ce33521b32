package eventbus

import (
	"bytes"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

type jobEvent struct {
	Type string
}

func TestHub_PublishReachesAllSubscribersOfTopic(t *testing.T) {
	bus := New[jobEvent](Options[jobEvent]{})

	a, unsubA := bus.Subscribe("job-1")
	defer unsubA()
	b, unsubB := bus.Subscribe("job-1")
	defer unsubB()
	other, unsubOther := bus.Subscribe("job-2")
	defer unsubOther()

	delivered := bus.Publish("job-1", jobEvent{Type: "status"})
	require.Equal(t, 2, delivered)
	require.Equal(t, "status", (<-a).Type)
	require.Equal(t, "status", (<-b).Type)
	require.Empty(t, other)
}

func TestHub_PublishWithoutSubscribersIsNoop(t *testing.T) {
	bus := New[jobEvent](Options[jobEvent]{})
	require.Equal(t, 0, bus.Publish("missing", jobEvent{Type: "done"}))
}

func TestHub_UnsubscribeClosesOnlyThatChannel(t *testing.T) {
	bus := New[jobEvent](Options[jobEvent]{})

	a, unsubA := bus.Subscribe("job-1")
	b, unsubB := bus.Subscribe("job-1")
	defer unsubB()

	unsubA()
	unsubA()

	_, open := <-a
	require.False(t, open)
	require.Equal(t, 1, bus.SubscribersCount("job-1"))

	bus.Publish("job-1", jobEvent{Type: "done"})
	require.Equal(t, "done", (<-b).Type)
}

func TestHub_FullSubscriberDropsInsteadOfBlocking(t *testing.T) {
	var buf bytes.Buffer
	log := logrus.New()
	log.SetOutput(&buf)

	drops := 0
	bus := New[jobEvent](Options[jobEvent]{
		BufferSize: 1,
		Logger:     log,
		OnDrop:     func(string) { drops++ },
	})
	ch, unsub := bus.Subscribe("job-1")
	defer unsub()

	require.Equal(t, 1, bus.Publish("job-1", jobEvent{Type: "status"}))
	require.Equal(t, 0, bus.Publish("job-1", jobEvent{Type: "done"}))
	require.Equal(t, 1, drops)
	require.Contains(t, buf.String(), "event dropped")
	require.Equal(t, "status", (<-ch).Type)
}

func TestHub_ConcurrentSubscribePublish(t *testing.T) {
	bus := New[jobEvent](Options[jobEvent]{BufferSize: 64})

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, unsub := bus.Subscribe("job-1")
			unsub()
		}()
		go func() {
			defer wg.Done()
			bus.Publish("job-1", jobEvent{Type: "status"})
		}()
	}
	wg.Wait()
	require.Equal(t, 0, bus.SubscribersCount("job-1"))
}

func TestHub_ClearClosesEverything(t *testing.T) {
	bus := New[jobEvent](Options[jobEvent]{})
	ch, unsub := bus.Subscribe("job-1")

	bus.Clear()
	_, open := <-ch
	require.False(t, open)
	require.Equal(t, 0, bus.SubscribersCount("job-1"))

	unsub()
}

func TestHub_CriticalEventWaitsForRoom(t *testing.T) {
	drops := 0
	bus := New[jobEvent](Options[jobEvent]{
		BufferSize:   1,
		OnDrop:       func(string) { drops++ },
		Critical:     func(ev jobEvent) bool { return ev.Type == "done" },
		CriticalWait: 5 * time.Second,
	})
	ch, unsub := bus.Subscribe("job-1")
	defer unsub()

	require.Equal(t, 1, bus.Publish("job-1", jobEvent{Type: "status"}))

	go func() {
		time.Sleep(20 * time.Millisecond)
		<-ch
	}()
	require.Equal(t, 1, bus.Publish("job-1", jobEvent{Type: "done"}))
	require.Equal(t, "done", (<-ch).Type)
	require.Zero(t, drops)
}

func TestHub_CriticalEventDroppedAfterWait(t *testing.T) {
	drops := 0
	bus := New[jobEvent](Options[jobEvent]{
		BufferSize:   1,
		OnDrop:       func(string) { drops++ },
		Critical:     func(ev jobEvent) bool { return ev.Type == "done" },
		CriticalWait: 10 * time.Millisecond,
	})
	_, unsub := bus.Subscribe("job-1")
	defer unsub()

	bus.Publish("job-1", jobEvent{Type: "status"})
	require.Equal(t, 0, bus.Publish("job-1", jobEvent{Type: "done"}))
	require.Equal(t, 1, drops)
}
