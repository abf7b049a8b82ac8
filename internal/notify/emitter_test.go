package notify

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asquebay/canteen-orders/internal/model"
)

type fakePlatform struct {
	mu        sync.Mutex
	answer    Permission
	answerErr error
	release   chan struct{}
	requests  int
	shown     []Notification
	dismissed []string
	showErr   error
}

func (f *fakePlatform) RequestPermission(ctx context.Context) (Permission, error) {
	f.mu.Lock()
	f.requests++
	release := f.release
	f.mu.Unlock()

	if release != nil {
		<-release
	}
	return f.answer, f.answerErr
}

func (f *fakePlatform) Show(n Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.showErr != nil {
		return f.showErr
	}
	f.shown = append(f.shown, n)
	return nil
}

func (f *fakePlatform) Dismiss(tag string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dismissed = append(f.dismissed, tag)
	return nil
}

func (f *fakePlatform) shownTags() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	tags := make([]string, 0, len(f.shown))
	for _, n := range f.shown {
		tags = append(tags, n.Tag)
	}
	return tags
}

var discard = slog.New(discardHandler)

func TestNotifyReadyRequestsPermissionFirst(t *testing.T) {
	platform := &fakePlatform{answer: PermissionGranted}
	e := NewEmitter(platform, discard, WithIcon("/favicon.ico"))

	assert.Equal(t, PermissionUnrequested, e.Permission())
	e.NotifyReady(context.Background(), 7, "Asha")

	assert.Equal(t, PermissionGranted, e.Permission())
	require.Len(t, platform.shown, 1)
	n := platform.shown[0]
	assert.Equal(t, "order-7", n.Tag)
	assert.Equal(t, "Order Ready! 🎉", n.Title)
	assert.Equal(t, "Your order #7 is ready for pickup, Asha!", n.Body)
	assert.Equal(t, "/favicon.ico", n.Icon)
	assert.True(t, n.RequireInteraction)
}

func TestSameTagIsNotStacked(t *testing.T) {
	platform := &fakePlatform{answer: PermissionGranted}
	e := NewEmitter(platform, discard)

	e.NotifyReady(context.Background(), 7, "Asha")
	e.NotifyReady(context.Background(), 7, "Asha")
	e.NotifyReady(context.Background(), 8, "Ravi")

	assert.Equal(t, []string{"order-7", "order-8"}, platform.shownTags())
	assert.Len(t, e.Active(), 2)
}

func TestDeniedPermissionIsSilent(t *testing.T) {
	platform := &fakePlatform{answer: PermissionDenied}
	e := NewEmitter(platform, discard)

	e.NotifyReady(context.Background(), 7, "Asha")
	e.NotifyReady(context.Background(), 8, "Ravi")

	assert.Empty(t, platform.shown)
	assert.Equal(t, 1, platform.requests, "denied permission is not requested again")
}

func TestDefaultPermissionIsRequestedAgain(t *testing.T) {
	platform := &fakePlatform{answer: PermissionDefault}
	e := NewEmitter(platform, discard)

	e.NotifyReady(context.Background(), 7, "Asha")
	assert.Empty(t, platform.shown)

	platform.answer = PermissionGranted
	e.NotifyReady(context.Background(), 7, "Asha")

	assert.Equal(t, 2, platform.requests)
	assert.Equal(t, []string{"order-7"}, platform.shownTags())
}

func TestConcurrentRequestsShareOnePrompt(t *testing.T) {
	platform := &fakePlatform{answer: PermissionGranted, release: make(chan struct{})}
	e := NewEmitter(platform, discard)

	var wg sync.WaitGroup
	results := make([]Permission, 3)
	for i := range results {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], _ = e.RequestPermission(context.Background())
		}()
	}

	assert.Eventually(t, func() bool { return e.Permission() == PermissionPending }, time.Second, 5*time.Millisecond)
	close(platform.release)
	wg.Wait()

	assert.Equal(t, 1, platform.requests)
	assert.Equal(t, []Permission{PermissionGranted, PermissionGranted, PermissionGranted}, results)
}

func TestPlatformFailuresAreNonFatal(t *testing.T) {
	platform := &fakePlatform{answer: PermissionGranted, showErr: errors.New("no display")}
	e := NewEmitter(platform, discard)

	e.NotifyReady(context.Background(), 7, "Asha")
	assert.Empty(t, e.Active())

	failing := &fakePlatform{answerErr: errors.New("portal unavailable")}
	e = NewEmitter(failing, discard)
	_, err := e.RequestPermission(context.Background())
	assert.Error(t, err)
	assert.Equal(t, PermissionDefault, e.Permission())
}

func TestActivateFocusesAndDismisses(t *testing.T) {
	platform := &fakePlatform{answer: PermissionGranted}
	var focused []string
	e := NewEmitter(platform, discard, WithFocusHook(func(tag string) { focused = append(focused, tag) }))

	e.NotifyReady(context.Background(), 7, "Asha")
	require.NoError(t, e.Activate("order-7"))

	assert.Equal(t, []string{"order-7"}, focused)
	assert.Equal(t, []string{"order-7"}, platform.dismissed)
	assert.Empty(t, e.Active())
	assert.ErrorIs(t, e.Activate("order-7"), model.ErrNotFound)

	// после закрытия новое уведомление снова показывается
	e.NotifyReady(context.Background(), 7, "Asha")
	assert.Len(t, platform.shown, 2)
}

func TestWithdrawDropsActiveNotification(t *testing.T) {
	platform := &fakePlatform{answer: PermissionGranted}
	e := NewEmitter(platform, discard)

	e.NotifyReady(context.Background(), 7, "Asha")
	e.NotifyReady(context.Background(), 8, "Ravi")
	e.Withdraw(7)
	// неизвестный тег платформу не трогает
	e.Withdraw(9)

	require.Len(t, e.Active(), 1)
	assert.Equal(t, "order-8", e.Active()[0].Tag)
	assert.Equal(t, []string{"order-7"}, platform.dismissed)

	e.NotifyReady(context.Background(), 7, "Asha")
	assert.Equal(t, []string{"order-7", "order-8", "order-7"}, platform.shownTags())
}
