package cache

import (
	"context"
	"encoding/binary"
	"time"

	"github.com/VictoriaMetrics/fastcache"
)

// defaultLocalBytes はfastcacheの既定の最大サイズ（32MB）。
const defaultLocalBytes = 32 * 1024 * 1024

// expiryHeader は値の先頭に付与する有効期限（UnixNano）のバイト数。
const expiryHeader = 8

// LocalCache はfastcacheを使用したプロセス内キャッシュ。
// 有効期限は値の先頭8バイトに埋め込み、読み出し時に判定する。
// APIの1ページは64KBを超えうるため、SetBig/GetBigで保存する。
type LocalCache struct {
	cache  *fastcache.Cache
	prefix string
	now    func() time.Time
}

// NewLocalCache はLocalCacheを生成する。maxBytesが0以下の場合は既定値を使用する。
func NewLocalCache(maxBytes int, prefix string) *LocalCache {
	if maxBytes <= 0 {
		maxBytes = defaultLocalBytes
	}
	return &LocalCache{
		cache:  fastcache.New(maxBytes),
		prefix: prefix,
		now:    time.Now,
	}
}

// Get はキーの値を返す。期限切れのエントリは削除する。
func (c *LocalCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	k := []byte(c.prefix + key)
	entry := c.cache.GetBig(nil, k)
	if len(entry) < expiryHeader {
		return nil, false, nil
	}

	expiresAt := int64(binary.BigEndian.Uint64(entry[:expiryHeader]))
	if expiresAt > 0 && c.now().UnixNano() >= expiresAt {
		c.cache.Del(k)
		return nil, false, nil
	}
	return entry[expiryHeader:], true, nil
}

// Set はキーに値を保存する。ttlが0以下の場合は期限なしで保存する。
func (c *LocalCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	var expiresAt int64
	if ttl > 0 {
		expiresAt = c.now().Add(ttl).UnixNano()
	}

	entry := make([]byte, expiryHeader+len(value))
	binary.BigEndian.PutUint64(entry[:expiryHeader], uint64(expiresAt))
	copy(entry[expiryHeader:], value)
	c.cache.SetBig([]byte(c.prefix+key), entry)
	return nil
}

var _ Cache = (*LocalCache)(nil)
