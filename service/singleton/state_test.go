package singleton

import (
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/fedgatehq/fedgate/model"
)

func newTestState(t *testing.T) *StateClass {
	t.Helper()
	initTestSingleton(t, filepath.Join(t.TempDir(), "state.db"))
	return StateShared
}

func TestStateIssueAndValidate(t *testing.T) {
	sc := newTestState(t)

	state, err := sc.Issue(&IssueStateRequest{
		ConfigID:   1,
		Platform:   "wechat_mp",
		ClientType: model.ClientTypeWeb,
		Action:     model.Oauth2ActionLogin,
		IP:         "127.0.0.1",
	})
	require.NoError(t, err)
	require.Len(t, state.Token, 32)
	require.WithinDuration(t, time.Now().Add(model.Oauth2StateTTL), state.ExpiresAt, 5*time.Second)

	got, err := sc.Validate(state.Token)
	require.NoError(t, err)
	require.Equal(t, state.ConfigID, got.ConfigID)
	require.Equal(t, model.Oauth2ActionLogin, got.Action)

	_, err = sc.Validate("deadbeefdeadbeefdeadbeefdeadbeef")
	require.True(t, IsAuthErrorKind(err, ErrKindStateInvalid))

	_, err = sc.Validate("")
	require.True(t, IsAuthErrorKind(err, ErrKindStateInvalid))
}

func TestStateTokensAreUnique(t *testing.T) {
	sc := newTestState(t)

	seen := make(map[string]struct{})
	for i := 0; i < 50; i++ {
		state, err := sc.Issue(&IssueStateRequest{Platform: "wechat_mp", Action: model.Oauth2ActionLogin})
		require.NoError(t, err)
		_, dup := seen[state.Token]
		require.False(t, dup)
		seen[state.Token] = struct{}{}
	}
}

func TestStateConsumeOnce(t *testing.T) {
	sc := newTestState(t)

	state, err := sc.Issue(&IssueStateRequest{Platform: "wechat_mp", Action: model.Oauth2ActionLogin})
	require.NoError(t, err)

	won, err := sc.Consume(state.Token)
	require.NoError(t, err)
	require.True(t, won)

	won, err = sc.Consume(state.Token)
	require.NoError(t, err)
	require.False(t, won)

	_, err = sc.Validate(state.Token)
	require.True(t, IsAuthErrorKind(err, ErrKindStateInvalid))
}

func TestStateConsumeConcurrent(t *testing.T) {
	sc := newTestState(t)

	state, err := sc.Issue(&IssueStateRequest{Platform: "wechat_mp", Action: model.Oauth2ActionLogin})
	require.NoError(t, err)

	var winners atomic.Int64
	errCh := make(chan error, 16)
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			won, err := sc.Consume(state.Token)
			if err != nil {
				errCh <- err
				return
			}
			if won {
				winners.Add(1)
			}
		}()
	}
	wg.Wait()
	close(errCh)
	for err := range errCh {
		require.NoError(t, err)
	}
	require.EqualValues(t, 1, winners.Load())
}

func TestStateExpiry(t *testing.T) {
	sc := newTestState(t)

	state, err := sc.Issue(&IssueStateRequest{Platform: "wechat_mp", Action: model.Oauth2ActionLogin})
	require.NoError(t, err)

	expired := time.Now().Add(-time.Minute)
	require.NoError(t, DB.Model(&model.Oauth2State{}).Where("token = ?", state.Token).
		Update("expires_at", expired).Error)

	_, err = sc.Validate(state.Token)
	require.True(t, IsAuthErrorKind(err, ErrKindStateInvalid))

	won, err := sc.Consume(state.Token)
	require.NoError(t, err)
	require.False(t, won)
}

func TestStateSweep(t *testing.T) {
	sc := newTestState(t)

	live, err := sc.Issue(&IssueStateRequest{Platform: "wechat_mp", Action: model.Oauth2ActionLogin})
	require.NoError(t, err)

	stale, err := sc.Issue(&IssueStateRequest{Platform: "wechat_mp", Action: model.Oauth2ActionLogin})
	require.NoError(t, err)
	require.NoError(t, DB.Model(&model.Oauth2State{}).Where("token = ?", stale.Token).
		Update("expires_at", time.Now().Add(-time.Minute)).Error)

	used, err := sc.Issue(&IssueStateRequest{Platform: "wechat_mp", Action: model.Oauth2ActionLogin})
	require.NoError(t, err)
	won, err := sc.Consume(used.Token)
	require.NoError(t, err)
	require.True(t, won)

	removed, err := sc.Sweep()
	require.NoError(t, err)
	require.EqualValues(t, 2, removed)

	var count int64
	require.NoError(t, DB.Model(&model.Oauth2State{}).Count(&count).Error)
	require.EqualValues(t, 1, count)

	_, err = sc.Validate(live.Token)
	require.NoError(t, err)
}
