package handler

import (
	"context"

	"github.com/hitoshi/newsletter/internal/auth"
	"github.com/hitoshi/newsletter/internal/model"
	"github.com/hitoshi/newsletter/internal/newsletter"
)

// --- モック定義 ---

// mockAuthService はAuthServiceInterfaceのモック実装。
type mockAuthService struct {
	registerFn    func(ctx context.Context, email, name, password string) (*auth.TokenPair, error)
	loginFn       func(ctx context.Context, email, password string) (*auth.TokenPair, error)
	refreshFn     func(ctx context.Context, refreshToken string) (*auth.TokenPair, error)
	logoutFn      func(ctx context.Context, refreshToken string) error
	logoutAllFn   func(ctx context.Context, userID string) (int64, error)
	currentUserFn func(ctx context.Context, userID string) (*model.User, error)
}

func (m *mockAuthService) Register(ctx context.Context, email, name, password string) (*auth.TokenPair, error) {
	if m.registerFn != nil {
		return m.registerFn(ctx, email, name, password)
	}
	return nil, nil
}

func (m *mockAuthService) Login(ctx context.Context, email, password string) (*auth.TokenPair, error) {
	if m.loginFn != nil {
		return m.loginFn(ctx, email, password)
	}
	return nil, nil
}

func (m *mockAuthService) Refresh(ctx context.Context, refreshToken string) (*auth.TokenPair, error) {
	if m.refreshFn != nil {
		return m.refreshFn(ctx, refreshToken)
	}
	return nil, nil
}

func (m *mockAuthService) Logout(ctx context.Context, refreshToken string) error {
	if m.logoutFn != nil {
		return m.logoutFn(ctx, refreshToken)
	}
	return nil
}

func (m *mockAuthService) LogoutAll(ctx context.Context, userID string) (int64, error) {
	if m.logoutAllFn != nil {
		return m.logoutAllFn(ctx, userID)
	}
	return 0, nil
}

func (m *mockAuthService) CurrentUser(ctx context.Context, userID string) (*model.User, error) {
	if m.currentUserFn != nil {
		return m.currentUserFn(ctx, userID)
	}
	return nil, nil
}

// mockSubscriptionService はSubscriptionServiceInterfaceのモック実装。
type mockSubscriptionService struct {
	subscribeFn func(ctx context.Context, email, name string) (*model.Subscriber, error)
	confirmFn   func(ctx context.Context, token string) error
}

func (m *mockSubscriptionService) Subscribe(ctx context.Context, email, name string) (*model.Subscriber, error) {
	if m.subscribeFn != nil {
		return m.subscribeFn(ctx, email, name)
	}
	return &model.Subscriber{ID: "sub-1", Email: email, Name: name, Status: model.SubscriberPending}, nil
}

func (m *mockSubscriptionService) Confirm(ctx context.Context, token string) error {
	if m.confirmFn != nil {
		return m.confirmFn(ctx, token)
	}
	return nil
}

// mockNewsletterService はNewsletterServiceInterfaceのモック実装。
type mockNewsletterService struct {
	publishFn func(ctx context.Context, subject, htmlContent string) (*newsletter.Result, error)
}

func (m *mockNewsletterService) Publish(ctx context.Context, subject, htmlContent string) (*newsletter.Result, error) {
	if m.publishFn != nil {
		return m.publishFn(ctx, subject, htmlContent)
	}
	return &newsletter.Result{}, nil
}

// mockPinger はPingerのモック実装。
type mockPinger struct {
	err error
}

func (m *mockPinger) PingContext(ctx context.Context) error {
	return m.err
}
