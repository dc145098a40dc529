package security

import (
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiterConfig はクライアントアドレス単位のレート制限設定を保持する。
type RateLimiterConfig struct {
	RequestsPerMinute int           // バケット容量。補充レートは RequestsPerMinute/60 トークン毎秒
	CleanupInterval   time.Duration // アイドルなバケットの掃除間隔。0 の場合は掃除ゴルーチンを起動しない
	IdleTTL           time.Duration // この時間アクセスのないバケットを削除する
}

// DefaultRateLimiterConfig はデフォルトのレート制限設定を返す。
func DefaultRateLimiterConfig() RateLimiterConfig {
	return RateLimiterConfig{
		RequestsPerMinute: 10,
		CleanupInterval:   5 * time.Minute,
		IdleTTL:           10 * time.Minute,
	}
}

// addressLimiter はアドレスごとのトークンバケットと最終アクセス時刻を保持する。
// rate.Limiter は内部にロックを持つため、アドレス間で処理が直列化されることはない。
type addressLimiter struct {
	limiter  *rate.Limiter
	lastSeen atomic.Int64 // UnixNano
}

// RateLimiter はクライアントアドレス単位のトークンバケットを管理する。
// 補充は経過時間に応じて連続的に行われ、分単位の区切りでリセットされることはない。
type RateLimiter struct {
	config RateLimiterConfig
	limit  rate.Limit
	now    func() time.Time

	mu       sync.RWMutex
	limiters map[string]*addressLimiter

	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewRateLimiter は新しいRateLimiterを生成する。
// CleanupInterval が正の場合、バックグラウンドでアイドルなバケットの掃除を開始する。
func NewRateLimiter(config RateLimiterConfig) *RateLimiter {
	if config.RequestsPerMinute <= 0 {
		config.RequestsPerMinute = DefaultRateLimiterConfig().RequestsPerMinute
	}
	if config.IdleTTL <= 0 {
		config.IdleTTL = config.CleanupInterval * 2
	}
	// 満杯まで補充される時間より短いと、削除で余分なトークンを与えてしまう
	if config.IdleTTL < time.Minute {
		config.IdleTTL = time.Minute
	}

	rl := &RateLimiter{
		config:   config,
		limit:    rate.Limit(float64(config.RequestsPerMinute) / 60.0),
		now:      time.Now,
		limiters: make(map[string]*addressLimiter),
		stopCh:   make(chan struct{}),
	}

	if config.CleanupInterval > 0 {
		go rl.cleanupLoop()
	}

	return rl
}

// Stop は掃除のバックグラウンドゴルーチンを停止する。複数回呼んでもよい。
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stopCh) })
}

// Allow は現在時刻でアドレスのトークンを1つ消費できるかを判定する。
func (rl *RateLimiter) Allow(addr string) bool {
	return rl.AllowAt(addr, rl.now())
}

// AllowAt は指定時刻でアドレスのトークンを1つ消費できるかを判定する。
// 拒否された場合はトークンも補充時刻も変化しない。
func (rl *RateLimiter) AllowAt(addr string, now time.Time) bool {
	al := rl.getOrCreate(addr, now)
	return al.limiter.AllowN(now, 1)
}

// RetryAfter はトークンが1つ補充されるまでの時間を返す。
func (rl *RateLimiter) RetryAfter() time.Duration {
	return time.Minute / time.Duration(rl.config.RequestsPerMinute)
}

// Len は現在管理しているバケット数を返す。テストおよびメトリクス用。
func (rl *RateLimiter) Len() int {
	rl.mu.RLock()
	defer rl.mu.RUnlock()
	return len(rl.limiters)
}

func (rl *RateLimiter) getOrCreate(addr string, now time.Time) *addressLimiter {
	rl.mu.RLock()
	al, exists := rl.limiters[addr]
	rl.mu.RUnlock()

	if exists {
		al.lastSeen.Store(now.UnixNano())
		return al
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	// ダブルチェック
	if al, exists := rl.limiters[addr]; exists {
		al.lastSeen.Store(now.UnixNano())
		return al
	}

	al = &addressLimiter{
		limiter: rate.NewLimiter(rl.limit, rl.config.RequestsPerMinute),
	}
	al.lastSeen.Store(now.UnixNano())
	rl.limiters[addr] = al

	return al
}

// cleanupLoop はバックグラウンドでアイドルなバケットを定期的に削除する。
func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(rl.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.Sweep(rl.now())
		case <-rl.stopCh:
			return
		}
	}
}

// Sweep は最終アクセスから IdleTTL を超えたバケットを削除し、削除件数を返す。
func (rl *RateLimiter) Sweep(now time.Time) int {
	cutoff := now.Add(-rl.config.IdleTTL).UnixNano()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	removed := 0
	for addr, al := range rl.limiters {
		if al.lastSeen.Load() < cutoff {
			delete(rl.limiters, addr)
			removed++
		}
	}
	return removed
}
