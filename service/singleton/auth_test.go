package singleton

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/fedgatehq/fedgate/model"
	"github.com/fedgatehq/fedgate/pkg/provider"
)

func newTestAuth(t *testing.T) *AuthClass {
	t.Helper()
	initTestSingleton(t, filepath.Join(t.TempDir(), "auth.db"))
	return AuthShared
}

func createTestUser(t *testing.T, username string) *model.User {
	t.Helper()
	user := &model.User{Username: username, Nickname: username, Role: model.RoleMember}
	require.NoError(t, DB.Create(user).Error)
	return user
}

func stubIdentity(openid string) *provider.Identity {
	return &provider.Identity{
		OpenID:       openid,
		Nickname:     "Stub " + openid,
		Avatar:       "https://cdn.example.com/" + openid + ".png",
		AccessToken:  "at-" + openid,
		RefreshToken: "rt-" + openid,
		ExpiresIn:    7200,
		Raw:          []byte(`{"openid":"` + openid + `"}`),
	}
}

func completeLogin(t *testing.T, a *AuthClass, stateToken string) (*LoginOutcome, error) {
	t.Helper()
	return a.CompleteLogin(context.Background(), &CompleteRequest{
		Platform:   testPlatform,
		Code:       "code-ok",
		StateToken: stateToken,
		IP:         "127.0.0.1",
	})
}

func initiateLogin(t *testing.T, a *AuthClass) *model.Oauth2InitiateResponse {
	t.Helper()
	resp, err := a.Initiate(&InitiateRequest{
		Platform: testPlatform,
		Action:   model.Oauth2ActionLogin,
		IP:       "127.0.0.1",
	})
	require.NoError(t, err)
	return resp
}

func TestLoginRoundTrip(t *testing.T) {
	a := newTestAuth(t)
	conf := createTestConfig(t, testPlatform, model.ClientTypeWeb, 0)
	testStub.set(func(s *testStubProvider) {
		s.authURL = "https://auth.example.com/authorize"
		s.identity = stubIdentity("open-1")
	})

	resp := initiateLogin(t, a)
	require.Contains(t, resp.AuthURL, "state="+resp.State)
	require.Len(t, resp.State, 32)

	outcome, err := completeLogin(t, a, resp.State)
	require.NoError(t, err)
	require.True(t, outcome.IsNewUser)
	require.NotZero(t, outcome.User.ID)
	require.True(t, outcome.User.RejectPassword)
	require.Equal(t, "Stub open-1", outcome.User.Nickname)
	require.Equal(t, conf.ID, outcome.Binding.ConfigID)
	require.Equal(t, "open-1", outcome.Binding.OpenID)
	require.EqualValues(t, 1, outcome.Binding.LoginCount)
	// 令牌不得以明文落库
	require.NotEqual(t, "at-open-1", outcome.Binding.AccessToken)
	require.NotContains(t, outcome.Binding.RawInfo, "open-1")

	resp2 := initiateLogin(t, a)
	outcome2, err := completeLogin(t, a, resp2.State)
	require.NoError(t, err)
	require.False(t, outcome2.IsNewUser)
	require.Equal(t, outcome.User.ID, outcome2.User.ID)
	require.Equal(t, outcome.Binding.ID, outcome2.Binding.ID)
	require.EqualValues(t, 2, outcome2.Binding.LoginCount)
	require.NotNil(t, outcome2.Binding.LastLoginTime)

	// 审计记录异步落库
	require.Eventually(t, func() bool {
		var count int64
		DB.Model(&model.Oauth2LoginLog{}).Where("action = ? AND success = ?", model.Oauth2LogActionLogin, true).Count(&count)
		return count == 2
	}, 3*time.Second, 50*time.Millisecond)
}

func TestLoginStateSingleUse(t *testing.T) {
	a := newTestAuth(t)
	createTestConfig(t, testPlatform, model.ClientTypeWeb, 0)
	testStub.set(func(s *testStubProvider) {
		s.identity = stubIdentity("open-reuse")
	})

	resp := initiateLogin(t, a)
	_, err := completeLogin(t, a, resp.State)
	require.NoError(t, err)

	_, err = completeLogin(t, a, resp.State)
	require.True(t, IsAuthErrorKind(err, ErrKindStateInvalid))
}

func TestLoginWrongActionState(t *testing.T) {
	a := newTestAuth(t)
	createTestConfig(t, testPlatform, model.ClientTypeWeb, 0)
	user := createTestUser(t, "alice")
	testStub.set(func(s *testStubProvider) {
		s.identity = stubIdentity("open-action")
	})

	resp, err := a.Initiate(&InitiateRequest{
		Platform: testPlatform,
		Action:   model.Oauth2ActionBind,
		UserID:   user.ID,
	})
	require.NoError(t, err)

	// 绑定流程的 state 不能用于登录
	_, err = completeLogin(t, a, resp.State)
	require.True(t, IsAuthErrorKind(err, ErrKindStateInvalid))
}

func TestLoginTransportErrorLeavesStateUsable(t *testing.T) {
	a := newTestAuth(t)
	createTestConfig(t, testPlatform, model.ClientTypeWeb, 0)
	testStub.set(func(s *testStubProvider) {
		s.exchangeErr = &provider.Error{Kind: provider.ErrorKindTransport, Message: "connection reset"}
	})

	resp := initiateLogin(t, a)
	_, err := completeLogin(t, a, resp.State)
	var pe *provider.Error
	require.ErrorAs(t, err, &pe)
	require.Equal(t, provider.ErrorKindTransport, pe.Kind)

	// 交换失败不消费 state，凭同一个 state 重试仍可成功
	testStub.set(func(s *testStubProvider) {
		s.identity = stubIdentity("open-retry")
	})
	outcome, err := completeLogin(t, a, resp.State)
	require.NoError(t, err)
	require.True(t, outcome.IsNewUser)
}

func TestLoginConfigDisabledAfterInitiate(t *testing.T) {
	a := newTestAuth(t)
	conf := createTestConfig(t, testPlatform, model.ClientTypeWeb, 0)
	testStub.set(func(s *testStubProvider) {
		s.identity = stubIdentity("open-disabled")
	})

	resp := initiateLogin(t, a)
	require.NoError(t, DB.Model(conf).Update("enabled", false).Error)
	CredentialShared.Invalidate(testPlatform, model.ClientTypeWeb)

	_, err := completeLogin(t, a, resp.State)
	require.True(t, IsAuthErrorKind(err, ErrKindConfigNotFound))
}

func TestLoginInactiveUser(t *testing.T) {
	a := newTestAuth(t)
	createTestConfig(t, testPlatform, model.ClientTypeWeb, 0)
	testStub.set(func(s *testStubProvider) {
		s.identity = stubIdentity("open-inactive")
	})

	resp := initiateLogin(t, a)
	outcome, err := completeLogin(t, a, resp.State)
	require.NoError(t, err)

	require.NoError(t, DB.Model(outcome.User).Update("disabled", true).Error)

	resp2 := initiateLogin(t, a)
	_, err = completeLogin(t, a, resp2.State)
	require.True(t, IsAuthErrorKind(err, ErrKindUserInactive))
}

func TestStatelessSDKLogin(t *testing.T) {
	a := newTestAuth(t)
	createTestConfig(t, testPlatform, model.ClientTypeMiniapp, 0)
	testStub.set(func(s *testStubProvider) {
		s.identity = stubIdentity("open-sdk")
	})

	outcome, err := a.CompleteLogin(context.Background(), &CompleteRequest{
		Platform:   testPlatform,
		Code:       "jscode",
		ClientType: model.ClientTypeMiniapp,
	})
	require.NoError(t, err)
	require.True(t, outcome.IsNewUser)

	// 网页流程必须带 state
	_, err = a.CompleteLogin(context.Background(), &CompleteRequest{
		Platform:   testPlatform,
		Code:       "jscode",
		ClientType: model.ClientTypeWeb,
	})
	require.True(t, IsAuthErrorKind(err, ErrKindInvalidRequest))
}

func TestBindRequiresState(t *testing.T) {
	a := newTestAuth(t)
	createTestConfig(t, testPlatform, model.ClientTypeMiniapp, 0)
	user := createTestUser(t, "dave")
	testStub.set(func(s *testStubProvider) {
		s.identity = stubIdentity("open-nostate")
	})

	// 绑定没有原生 SDK 豁免，缺 state 一律拒绝
	for _, clientType := range []string{"", model.ClientTypeWeb, model.ClientTypeMiniapp, model.ClientTypeApp, model.ClientTypeDesktop} {
		_, err := a.CompleteBind(context.Background(), user.ID, &CompleteRequest{
			Platform:   testPlatform,
			Code:       "code-ok",
			ClientType: clientType,
		})
		require.True(t, IsAuthErrorKind(err, ErrKindInvalidRequest), "client type %q", clientType)
	}

	var count int64
	require.NoError(t, DB.Model(&model.Oauth2Bind{}).Count(&count).Error)
	require.Zero(t, count)
}

func TestConcurrentFirstLogin(t *testing.T) {
	a := newTestAuth(t)
	createTestConfig(t, testPlatform, model.ClientTypeMiniapp, 0)
	testStub.set(func(s *testStubProvider) {
		s.identity = stubIdentity("open-race")
	})

	outcomes := make([]*LoginOutcome, 2)
	errs := make([]error, 2)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			outcomes[i], errs[i] = a.CompleteLogin(context.Background(), &CompleteRequest{
				Platform:   testPlatform,
				Code:       "jscode",
				ClientType: model.ClientTypeMiniapp,
			})
		}(i)
	}
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	require.Equal(t, outcomes[0].User.ID, outcomes[1].User.ID)

	var bindCount int64
	require.NoError(t, DB.Model(&model.Oauth2Bind{}).Where("open_id = ?", "open-race").Count(&bindCount).Error)
	require.EqualValues(t, 1, bindCount)
}

func TestBindAndUnbind(t *testing.T) {
	a := newTestAuth(t)
	createTestConfig(t, testPlatform, model.ClientTypeWeb, 0)
	user := createTestUser(t, "bob")
	testStub.set(func(s *testStubProvider) {
		s.identity = stubIdentity("open-bind")
	})

	resp, err := a.Initiate(&InitiateRequest{
		Platform: testPlatform,
		Action:   model.Oauth2ActionBind,
		UserID:   user.ID,
	})
	require.NoError(t, err)

	bind, err := a.CompleteBind(context.Background(), user.ID, &CompleteRequest{
		Platform:   testPlatform,
		Code:       "code-ok",
		StateToken: resp.State,
	})
	require.NoError(t, err)
	require.Equal(t, user.ID, bind.UserID)
	require.Equal(t, model.BindStatusBound, bind.Status)

	summaries, err := a.ListBindings(user.ID)
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	require.Equal(t, testPlatform, summaries[0].Platform)
	require.Equal(t, "Acme ID", summaries[0].PlatformName)

	require.NoError(t, a.Unbind(user.ID, testPlatform, "127.0.0.1", ""))

	summaries, err = a.ListBindings(user.ID)
	require.NoError(t, err)
	require.Empty(t, summaries)

	// 历史行保留，仅状态翻转
	var row model.Oauth2Bind
	require.NoError(t, DB.Where("id = ?", bind.ID).First(&row).Error)
	require.Equal(t, model.BindStatusUnbound, row.Status)

	err = a.Unbind(user.ID, testPlatform, "127.0.0.1", "")
	require.True(t, IsAuthErrorKind(err, ErrKindNotBound))
}

func TestRebindReusesLedgerRow(t *testing.T) {
	a := newTestAuth(t)
	createTestConfig(t, testPlatform, model.ClientTypeWeb, 0)
	user := createTestUser(t, "carol")
	testStub.set(func(s *testStubProvider) {
		s.identity = stubIdentity("open-rebind")
	})

	bindOnce := func() *model.Oauth2Bind {
		resp, err := a.Initiate(&InitiateRequest{
			Platform: testPlatform,
			Action:   model.Oauth2ActionBind,
			UserID:   user.ID,
		})
		require.NoError(t, err)
		bind, err := a.CompleteBind(context.Background(), user.ID, &CompleteRequest{
			Platform:   testPlatform,
			Code:       "code-ok",
			StateToken: resp.State,
		})
		require.NoError(t, err)
		return bind
	}

	first := bindOnce()
	require.NoError(t, a.Unbind(user.ID, testPlatform, "", ""))
	second := bindOnce()

	require.Equal(t, first.ID, second.ID)
	require.Equal(t, model.BindStatusBound, second.Status)
}

func TestReassignedLedgerRowResetsCounters(t *testing.T) {
	a := newTestAuth(t)
	createTestConfig(t, testPlatform, model.ClientTypeWeb, 0)
	testStub.set(func(s *testStubProvider) {
		s.identity = stubIdentity("open-handover")
	})

	first, err := completeLogin(t, a, initiateLogin(t, a).State)
	require.NoError(t, err)
	again, err := completeLogin(t, a, initiateLogin(t, a).State)
	require.NoError(t, err)
	require.EqualValues(t, 2, again.Binding.LoginCount)

	require.NoError(t, a.Unbind(first.User.ID, testPlatform, "", ""))

	// 解绑后的历史行被新铸账号接管，旧主人的登录计数不随行
	handover, err := completeLogin(t, a, initiateLogin(t, a).State)
	require.NoError(t, err)
	require.True(t, handover.IsNewUser)
	require.NotEqual(t, first.User.ID, handover.User.ID)
	require.Equal(t, again.Binding.ID, handover.Binding.ID)
	require.EqualValues(t, 1, handover.Binding.LoginCount)
}

func TestBindConflicts(t *testing.T) {
	a := newTestAuth(t)
	createTestConfig(t, testPlatform, model.ClientTypeWeb, 0)
	owner := createTestUser(t, "owner")
	intruder := createTestUser(t, "intruder")
	testStub.set(func(s *testStubProvider) {
		s.identity = stubIdentity("open-conflict")
	})

	bindAs := func(userID uint64) error {
		resp, err := a.Initiate(&InitiateRequest{
			Platform: testPlatform,
			Action:   model.Oauth2ActionBind,
			UserID:   userID,
		})
		require.NoError(t, err)
		_, err = a.CompleteBind(context.Background(), userID, &CompleteRequest{
			Platform:   testPlatform,
			Code:       "code-ok",
			StateToken: resp.State,
		})
		return err
	}

	require.NoError(t, bindAs(owner.ID))
	require.True(t, IsAuthErrorKind(bindAs(intruder.ID), ErrKindAlreadyBoundByOther))
	require.True(t, IsAuthErrorKind(bindAs(owner.ID), ErrKindAlreadyBoundBySelf))
}

func TestBindIdentityMismatch(t *testing.T) {
	a := newTestAuth(t)
	createTestConfig(t, testPlatform, model.ClientTypeWeb, 0)
	alice := createTestUser(t, "alice-mm")
	mallory := createTestUser(t, "mallory-mm")
	testStub.set(func(s *testStubProvider) {
		s.identity = stubIdentity("open-mm")
	})

	resp, err := a.Initiate(&InitiateRequest{
		Platform: testPlatform,
		Action:   model.Oauth2ActionBind,
		UserID:   alice.ID,
	})
	require.NoError(t, err)

	_, err = a.CompleteBind(context.Background(), mallory.ID, &CompleteRequest{
		Platform:   testPlatform,
		Code:       "code-ok",
		StateToken: resp.State,
		IP:         "198.51.100.7",
	})
	require.True(t, IsAuthErrorKind(err, ErrKindIdentityMismatch))

	// 冒用绑定触发封禁记录
	require.Error(t, model.CheckIP(DB, "198.51.100.7"))
}

func TestRefreshToken(t *testing.T) {
	a := newTestAuth(t)
	createTestConfig(t, testPlatform, model.ClientTypeWeb, 0)
	testStub.set(func(s *testStubProvider) {
		s.identity = stubIdentity("open-refresh")
	})

	resp := initiateLogin(t, a)
	outcome, err := completeLogin(t, a, resp.State)
	require.NoError(t, err)

	testStub.set(func(s *testStubProvider) {
		s.pair = &provider.TokenPair{AccessToken: "at-new", RefreshToken: "rt-new", ExpiresIn: 3600}
	})
	result, err := a.RefreshToken(context.Background(), outcome.User.ID, outcome.Binding.ID)
	require.NoError(t, err)
	require.Equal(t, "at-new", result.AccessToken)
	require.EqualValues(t, 3600, result.ExpiresIn)

	var row model.Oauth2Bind
	require.NoError(t, DB.Where("id = ?", outcome.Binding.ID).First(&row).Error)
	require.NotEqual(t, "at-new", row.AccessToken)
	access, err := SecretBox.Decrypt(row.AccessToken)
	require.NoError(t, err)
	require.Equal(t, "at-new", access)
	refresh, err := BindShared.DecryptRefreshToken(&row)
	require.NoError(t, err)
	require.Equal(t, "rt-new", refresh)
	require.NotNil(t, row.TokenExpiresAt)

	// 属主校验
	_, err = a.RefreshToken(context.Background(), outcome.User.ID+1, outcome.Binding.ID)
	require.True(t, IsAuthErrorKind(err, ErrKindNotBound))
}

func TestRefreshTokenUnsupported(t *testing.T) {
	a := newTestAuth(t)
	createTestConfig(t, testPlatform, model.ClientTypeWeb, 0)
	testStub.set(func(s *testStubProvider) {
		s.identity = stubIdentity("open-nosupport")
	})

	resp := initiateLogin(t, a)
	outcome, err := completeLogin(t, a, resp.State)
	require.NoError(t, err)

	testStub.set(func(s *testStubProvider) {
		s.refreshErr = provider.ErrRefreshUnsupported
	})
	_, err = a.RefreshToken(context.Background(), outcome.User.ID, outcome.Binding.ID)
	require.True(t, IsAuthErrorKind(err, ErrKindRefreshUnsupported))
}

func TestRefreshTokenMissing(t *testing.T) {
	a := newTestAuth(t)
	createTestConfig(t, testPlatform, model.ClientTypeWeb, 0)
	identity := stubIdentity("open-norefresh")
	identity.RefreshToken = ""
	testStub.set(func(s *testStubProvider) {
		s.identity = identity
	})

	resp := initiateLogin(t, a)
	outcome, err := completeLogin(t, a, resp.State)
	require.NoError(t, err)

	_, err = a.RefreshToken(context.Background(), outcome.User.ID, outcome.Binding.ID)
	require.True(t, IsAuthErrorKind(err, ErrKindNoRefreshToken))
}

func TestInitiateValidation(t *testing.T) {
	a := newTestAuth(t)
	createTestConfig(t, testPlatform, model.ClientTypeWeb, 0)

	_, err := a.Initiate(&InitiateRequest{Platform: testPlatform, Action: "delete"})
	require.True(t, IsAuthErrorKind(err, ErrKindInvalidRequest))

	_, err = a.Initiate(&InitiateRequest{Platform: testPlatform, Action: model.Oauth2ActionBind})
	require.True(t, IsAuthErrorKind(err, ErrKindInvalidRequest))

	_, err = a.Initiate(&InitiateRequest{Platform: testPlatform, Action: model.Oauth2ActionLogin, ClientType: "toaster"})
	require.True(t, IsAuthErrorKind(err, ErrKindInvalidRequest))
}

func TestUnbindDoesNotTouchOtherUsers(t *testing.T) {
	a := newTestAuth(t)
	createTestConfig(t, testPlatform, model.ClientTypeWeb, 0)
	u1 := createTestUser(t, "dave")
	u2 := createTestUser(t, "erin")

	for i, u := range []*model.User{u1, u2} {
		testStub.set(func(s *testStubProvider) {
			s.identity = stubIdentity("open-multi-" + strings.Repeat("x", i+1))
		})
		resp, err := a.Initiate(&InitiateRequest{
			Platform: testPlatform,
			Action:   model.Oauth2ActionBind,
			UserID:   u.ID,
		})
		require.NoError(t, err)
		_, err = a.CompleteBind(context.Background(), u.ID, &CompleteRequest{
			Platform:   testPlatform,
			Code:       "code-ok",
			StateToken: resp.State,
		})
		require.NoError(t, err)
	}

	require.NoError(t, a.Unbind(u1.ID, testPlatform, "", ""))

	summaries, err := a.ListBindings(u2.ID)
	require.NoError(t, err)
	require.Len(t, summaries, 1)
}

func TestErrorKindLabels(t *testing.T) {
	require.Equal(t, "state_invalid", errorKindOf(newAuthError(ErrKindStateInvalid, "x")))
	require.Equal(t, "provider_transport", errorKindOf(&provider.Error{Kind: provider.ErrorKindTransport, Message: "x"}))
	require.Equal(t, "internal", errorKindOf(errors.New("boom")))
}
