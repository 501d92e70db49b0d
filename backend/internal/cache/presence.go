package cache

import (
	"context"
	"strconv"
	"time"

	redis "github.com/redis/go-redis/v9"
)

type PresenceMember struct {
	UserID   uint64
	Username string
}

// PresenceCache mirrors room membership and cursor state into Redis so
// every service instance sees the same picture. Membership carries a
// logical TTL (ZSET score = expireAt); refreshing is just re-adding.
type PresenceCache interface {
	AddProjectMember(ctx context.Context, projectID string, userID uint64, username string, ttl time.Duration) error
	RemoveProjectMember(ctx context.Context, projectID string, userID uint64) error
	AliveProjectMembers(ctx context.Context, projectID string) ([]PresenceMember, error)

	AddFileMember(ctx context.Context, projectID, fileID string, userID uint64, username string, ttl time.Duration) error
	RemoveFileMember(ctx context.Context, projectID, fileID string, userID uint64) error
	AliveFileMembers(ctx context.Context, projectID, fileID string) ([]PresenceMember, error)

	SetCursor(ctx context.Context, projectID, fileID string, userID uint64, jsonData []byte, ttl time.Duration) error
	GetCursor(ctx context.Context, projectID, fileID string, userID uint64) ([]byte, error)
	SetSelection(ctx context.Context, projectID, fileID string, userID uint64, jsonData []byte, ttl time.Duration) error
	GetSelection(ctx context.Context, projectID, fileID string, userID uint64) ([]byte, error)
}

type redisPresence struct {
	rdb *redis.Client
}

func NewRedisPresence(rdb *redis.Client) PresenceCache {
	return &redisPresence{rdb: rdb}
}

// sweepScript drops members whose expireAt score has passed, together
// with their username hash entries.
//
// KEYS[1] = room ZSet, KEYS[2] = names Hash, ARGV[1] = now (unix secs)
var sweepScript = redis.NewScript(`
local expired = redis.call("ZRANGEBYSCORE", KEYS[1], "-inf", ARGV[1])
if #expired > 0 then
	redis.call("ZREMRANGEBYSCORE", KEYS[1], "-inf", ARGV[1])
	redis.call("HDEL", KEYS[2], unpack(expired))
end
return #expired
`)

func (p *redisPresence) addMember(ctx context.Context, roomKey, namesKey string, userID uint64, username string, ttl time.Duration) error {
	tx := p.rdb.TxPipeline()
	expireAt := time.Now().Add(ttl).Unix()
	tx.ZAdd(ctx, roomKey, redis.Z{Score: float64(expireAt), Member: userID})
	tx.HSet(ctx, namesKey, userID, username)
	_, err := tx.Exec(ctx)
	return err
}

func (p *redisPresence) removeMember(ctx context.Context, roomKey, namesKey string, userID uint64) error {
	tx := p.rdb.TxPipeline()
	tx.ZRem(ctx, roomKey, userID)
	tx.HDel(ctx, namesKey, strconv.FormatUint(userID, 10))
	_, err := tx.Exec(ctx)
	return err
}

func (p *redisPresence) aliveMembers(ctx context.Context, roomKey, namesKey string) ([]PresenceMember, error) {
	now := time.Now().Unix()
	if _, err := sweepScript.Run(ctx, p.rdb, []string{roomKey, namesKey}, now).Int(); err != nil && err != redis.Nil {
		return nil, err
	}

	aliveIDs, err := p.rdb.ZRangeByScore(ctx, roomKey, &redis.ZRangeBy{
		Min: "(" + strconv.FormatInt(now, 10),
		Max: "+inf",
	}).Result()
	if err != nil && err != redis.Nil {
		return nil, err
	}
	if len(aliveIDs) == 0 {
		return nil, nil
	}

	ids := make([]uint64, 0, len(aliveIDs))
	for _, raw := range aliveIDs {
		id, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	names, err := p.rdb.HMGet(ctx, namesKey, aliveIDs...).Result()
	if err != nil && err != redis.Nil {
		return nil, err
	}
	members := make([]PresenceMember, 0, len(ids))
	for i, v := range names {
		name := ""
		if v != nil {
			name, _ = v.(string)
		}
		members = append(members, PresenceMember{UserID: ids[i], Username: name})
	}
	return members, nil
}

func (p *redisPresence) AddProjectMember(ctx context.Context, projectID string, userID uint64, username string, ttl time.Duration) error {
	return p.addMember(ctx, projectRoomKey(projectID), projectNamesKey(projectID), userID, username, ttl)
}

func (p *redisPresence) RemoveProjectMember(ctx context.Context, projectID string, userID uint64) error {
	return p.removeMember(ctx, projectRoomKey(projectID), projectNamesKey(projectID), userID)
}

func (p *redisPresence) AliveProjectMembers(ctx context.Context, projectID string) ([]PresenceMember, error) {
	return p.aliveMembers(ctx, projectRoomKey(projectID), projectNamesKey(projectID))
}

func (p *redisPresence) AddFileMember(ctx context.Context, projectID, fileID string, userID uint64, username string, ttl time.Duration) error {
	return p.addMember(ctx, fileRoomKey(projectID, fileID), fileNamesKey(projectID, fileID), userID, username, ttl)
}

func (p *redisPresence) RemoveFileMember(ctx context.Context, projectID, fileID string, userID uint64) error {
	return p.removeMember(ctx, fileRoomKey(projectID, fileID), fileNamesKey(projectID, fileID), userID)
}

func (p *redisPresence) AliveFileMembers(ctx context.Context, projectID, fileID string) ([]PresenceMember, error) {
	return p.aliveMembers(ctx, fileRoomKey(projectID, fileID), fileNamesKey(projectID, fileID))
}

func (p *redisPresence) SetCursor(ctx context.Context, projectID, fileID string, userID uint64, jsonData []byte, ttl time.Duration) error {
	return p.rdb.Set(ctx, cursorKey(projectID, fileID, userID), jsonData, ttl).Err()
}

func (p *redisPresence) GetCursor(ctx context.Context, projectID, fileID string, userID uint64) ([]byte, error) {
	return p.rdb.Get(ctx, cursorKey(projectID, fileID, userID)).Bytes()
}

func (p *redisPresence) SetSelection(ctx context.Context, projectID, fileID string, userID uint64, jsonData []byte, ttl time.Duration) error {
	return p.rdb.Set(ctx, selectionKey(projectID, fileID, userID), jsonData, ttl).Err()
}

func (p *redisPresence) GetSelection(ctx context.Context, projectID, fileID string, userID uint64) ([]byte, error) {
	return p.rdb.Get(ctx, selectionKey(projectID, fileID, userID)).Bytes()
}
