package pubsub

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
)

func TestAcquire_BeforeConnectFlushesOnConnect(t *testing.T) {
	fake := &fakeMQTT{}
	c := newTestClient(t, fake, &fakeTokens{token: "t"})

	sub, err := c.Acquire([]string{"dev1", "dev2"})
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	defer sub.Release()

	if got := len(fake.subscribeTopics()); got != 0 {
		t.Fatalf("broker saw %d subscribes before connect, want 0", got)
	}

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	c.handleConnect()

	topics := fake.subscribeTopics()
	if len(topics) != 2 {
		t.Fatalf("broker saw %d subscribes after connect, want 2: %v", len(topics), topics)
	}
}

func TestAcquire_RefCountsShareBrokerSubscription(t *testing.T) {
	fake := &fakeMQTT{}
	c := newTestClient(t, fake, &fakeTokens{token: "t"})

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	subA, err := c.Acquire([]string{"dev1"})
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	subB, err := c.Acquire([]string{"dev1"})
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}

	if got := len(fake.subscribeTopics()); got != 1 {
		t.Errorf("broker saw %d subscribes for two handles on one device, want 1", got)
	}

	// First release keeps the broker subscription alive.
	if err := subA.Release(); err != nil {
		t.Fatalf("Release() error = %v", err)
	}
	if got := len(fake.unsubscribes); got != 0 {
		t.Errorf("broker saw %d unsubscribes with a handle still live, want 0", got)
	}
	if !c.HasSubscription("dev1") {
		t.Error("dev1 left desired set while a handle is still live")
	}

	// Last release drops it.
	if err := subB.Release(); err != nil {
		t.Fatalf("Release() error = %v", err)
	}
	if got := len(fake.unsubscribes); got != 1 {
		t.Errorf("broker saw %d unsubscribes after last release, want 1", got)
	}
	if c.HasSubscription("dev1") {
		t.Error("dev1 still in desired set after last release")
	}
}

func TestAcquireRelease_ConcurrentConsumersKeepUnion(t *testing.T) {
	fake := &fakeMQTT{}
	c := newTestClient(t, fake, &fakeTokens{token: "t"})

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	// Each consumer watches the shared device plus one of its own.
	const consumers = 8
	const shared = "dev-shared"

	subs := make([]*Subscription, consumers)
	var wg sync.WaitGroup
	for i := 0; i < consumers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sub, err := c.Acquire([]string{shared, fmt.Sprintf("dev-%d", i)})
			if err != nil {
				t.Errorf("Acquire() error = %v", err)
				return
			}
			subs[i] = sub
		}(i)
	}
	wg.Wait()

	if got := c.SubscriptionCount(); got != consumers+1 {
		t.Fatalf("SubscriptionCount() = %d after concurrent acquires, want %d", got, consumers+1)
	}

	// Release half the handles concurrently. The shared device stays in
	// the set as long as any handle holds it; each released consumer's
	// own device drops out.
	for i := 0; i < consumers; i += 2 {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if err := subs[i].Release(); err != nil {
				t.Errorf("Release() error = %v", err)
			}
		}(i)
	}
	wg.Wait()

	if !c.HasSubscription(shared) {
		t.Error("shared device left the topic set while handles still hold it")
	}
	for i := 0; i < consumers; i++ {
		want := i%2 == 1
		if got := c.HasSubscription(fmt.Sprintf("dev-%d", i)); got != want {
			t.Errorf("HasSubscription(dev-%d) = %v, want %v", i, got, want)
		}
	}

	// Releasing the rest must drain the set completely.
	for i := 1; i < consumers; i += 2 {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if err := subs[i].Release(); err != nil {
				t.Errorf("Release() error = %v", err)
			}
		}(i)
	}
	wg.Wait()

	if got := c.SubscriptionCount(); got != 0 {
		t.Errorf("SubscriptionCount() = %d after all releases, want 0", got)
	}
	if c.HasSubscription(shared) {
		t.Error("shared device still subscribed after the last release")
	}
}

func TestRelease_Twice(t *testing.T) {
	fake := &fakeMQTT{}
	c := newTestClient(t, fake, &fakeTokens{token: "t"})

	sub, err := c.Acquire([]string{"dev1"})
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}

	if err := sub.Release(); err != nil {
		t.Fatalf("first Release() error = %v", err)
	}
	if err := sub.Release(); !errors.Is(err, ErrReleased) {
		t.Errorf("second Release() error = %v, want ErrReleased", err)
	}
}

func TestAcquire_DuplicateIDsInOneCall(t *testing.T) {
	fake := &fakeMQTT{}
	c := newTestClient(t, fake, &fakeTokens{token: "t"})

	sub, err := c.Acquire([]string{"dev1", "dev1"})
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}

	if got := c.SubscriptionCount(); got != 1 {
		t.Errorf("SubscriptionCount() = %d, want 1", got)
	}

	// One release must fully retire the topic despite the duplicate ID.
	if err := sub.Release(); err != nil {
		t.Fatalf("Release() error = %v", err)
	}
	if got := c.SubscriptionCount(); got != 0 {
		t.Errorf("SubscriptionCount() after release = %d, want 0", got)
	}
}

func TestAcquire_EmptyDeviceID(t *testing.T) {
	fake := &fakeMQTT{}
	c := newTestClient(t, fake, &fakeTokens{token: "t"})

	if _, err := c.Acquire([]string{"dev1", ""}); !errors.Is(err, ErrInvalidDeviceID) {
		t.Errorf("Acquire() error = %v, want ErrInvalidDeviceID", err)
	}
	if got := c.SubscriptionCount(); got != 0 {
		t.Errorf("SubscriptionCount() = %d after failed acquire, want 0", got)
	}
}

func TestReconnect_ReissuesAllTopics(t *testing.T) {
	fake := &fakeMQTT{}
	c := newTestClient(t, fake, &fakeTokens{token: "t"})

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	sub, err := c.Acquire([]string{"dev1", "dev2"})
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	defer sub.Release()

	before := len(fake.subscribeTopics())

	// Simulate a drop and reconnect.
	c.handleDisconnect(errors.New("connection reset"))
	c.handleConnect()

	after := len(fake.subscribeTopics())
	if after-before != 2 {
		t.Errorf("reconnect reissued %d subscribes, want 2", after-before)
	}
}

func TestSubscription_Topics(t *testing.T) {
	fake := &fakeMQTT{}
	c := newTestClient(t, fake, &fakeTokens{token: "t"})

	sub, err := c.Acquire([]string{"dev2", "dev1"})
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	defer sub.Release()

	topics := sub.Topics()
	want := []string{"devices/dev1/status", "devices/dev2/status"}
	if len(topics) != len(want) {
		t.Fatalf("Topics() = %v, want %v", topics, want)
	}
	for i := range want {
		if topics[i] != want[i] {
			t.Errorf("Topics()[%d] = %q, want %q", i, topics[i], want[i])
		}
	}
}
