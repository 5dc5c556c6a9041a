package events

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestPublishReachesSessionSubscribersOnly(t *testing.T) {
	h := NewHub(4, nil)
	defer h.Close()

	a, cancelA := h.Subscribe("s1")
	defer cancelA()
	b, cancelB := h.Subscribe("s2")
	defer cancelB()

	assert.Equal(t, 1, h.Publish("s1", "hello"))
	select {
	case got := <-a:
		assert.Equal(t, "hello", got)
	case <-time.After(time.Second):
		t.Fatal("subscriber did not receive event")
	}
	select {
	case got := <-b:
		t.Fatalf("other session received %v", got)
	default:
	}
}

func TestPublishDropsWhenQueueFull(t *testing.T) {
	h := NewHub(1, nil)
	defer h.Close()
	var drops int
	h.OnDrop(func(string) { drops++ })

	ch, cancel := h.Subscribe("s1")
	defer cancel()
	assert.Equal(t, 1, h.Publish("s1", 1))
	assert.Equal(t, 0, h.Publish("s1", 2))
	assert.Equal(t, 1, drops)
	assert.Equal(t, 1, <-ch)
}

func TestCancelClosesChannel(t *testing.T) {
	h := NewHub(0, nil)
	defer h.Close()
	ch, cancel := h.Subscribe("s1")
	require.Equal(t, 1, h.Subscribers("s1"))
	cancel()
	cancel()
	_, ok := <-ch
	assert.False(t, ok)
	assert.Zero(t, h.Subscribers("s1"))
}

func TestCloseSessionAndHubClose(t *testing.T) {
	h := NewHub(2, nil)
	s1, cancel1 := h.Subscribe("s1")
	defer cancel1()
	s2, cancel2 := h.Subscribe("s2")
	defer cancel2()

	h.CloseSession("s1")
	_, ok := <-s1
	assert.False(t, ok)

	h.Close()
	_, ok = <-s2
	assert.False(t, ok)
	assert.Zero(t, h.Publish("s2", "late"))

	late, _ := h.Subscribe("s3")
	_, ok = <-late
	assert.False(t, ok)
}

func TestConcurrentPublishAndSubscribe(t *testing.T) {
	h := NewHub(64, nil)
	defer h.Close()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ch, cancel := h.Subscribe("shared")
			defer cancel()
			for j := 0; j < 10; j++ {
				h.Publish("shared", j)
			}
			for len(ch) > 0 {
				<-ch
			}
		}()
	}
	wg.Wait()
	assert.Zero(t, h.Subscribers("shared"))
}
