// Package cache は外部APIレスポンスのread-throughキャッシュを提供する。
// 本番ではRedis、REDIS_URL未設定時はプロセス内のfastcacheを使用する。
package cache

import (
	"context"
	"time"
)

// KeyPrefix は探索プロキシ用のキャッシュ領域。
const KeyPrefix = "explore:"

// Cache はTTL付きのキーバリューストア。
// 同じキーへの同時書き込みは後勝ちで、重複フェッチは許容する。
type Cache interface {
	// Get はキーの値を返す。存在しないか期限切れの場合はokがfalseになる。
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)
	// Set はキーに値をttlの期限付きで保存する。
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}
