package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type MockRedisClient struct {
	mock.Mock
}

func (m *MockRedisClient) Get(ctx context.Context, key string) *redis.StringCmd {
	args := m.Called(ctx, key)
	return args.Get(0).(*redis.StringCmd)
}


func (m *MockRedisClient) SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd {
	args := m.Called(ctx, key, value, expiration)
	return args.Get(0).(*redis.BoolCmd)
}

func (m *MockRedisClient) MGet(ctx context.Context, keys ...string) *redis.SliceCmd {
	args := m.Called(ctx, keys)
	return args.Get(0).(*redis.SliceCmd)
}

func (m *MockRedisClient) ZAdd(ctx context.Context, key string, members ...redis.Z) *redis.IntCmd {
	args := m.Called(ctx, key, members)
	return args.Get(0).(*redis.IntCmd)
}

func (m *MockRedisClient) ZRevRange(ctx context.Context, key string, start, stop int64) *redis.StringSliceCmd {
	args := m.Called(ctx, key, start, stop)
	return args.Get(0).(*redis.StringSliceCmd)
}

func (m *MockRedisClient) ZRemRangeByScore(ctx context.Context, key, min, max string) *redis.IntCmd {
	args := m.Called(ctx, key, min, max)
	return args.Get(0).(*redis.IntCmd)
}

func (m *MockRedisClient) Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd {
	called := m.Called(ctx, script, keys, args)
	return called.Get(0).(*redis.Cmd)
}

func evalCmd(val int64) *redis.Cmd {
	cmd := redis.NewCmd(context.Background())
	cmd.SetVal(val)
	return cmd
}

func boolCmd(val bool) *redis.BoolCmd {
	cmd := redis.NewBoolCmd(context.Background())
	cmd.SetVal(val)
	return cmd
}

func intCmd(val int64) *redis.IntCmd {
	cmd := redis.NewIntCmd(context.Background())
	cmd.SetVal(val)
	return cmd
}

func stringCmd(t *testing.T, job Job) *redis.StringCmd {
	raw, err := json.Marshal(job)
	require.NoError(t, err)
	cmd := redis.NewStringCmd(context.Background())
	cmd.SetVal(string(raw))
	return cmd
}

func missingCmd() *redis.StringCmd {
	cmd := redis.NewStringCmd(context.Background())
	cmd.SetErr(redis.Nil)
	return cmd
}

func TestRedisStore_Create_Success(t *testing.T) {
	mockRedis := new(MockRedisClient)
	store := NewRedisStore(mockRedis, "test-prefix", 24*time.Hour, zap.NewNop())
	job := newJob("abc", epoch)

	mockRedis.On("SetNX", mock.Anything, "test-prefix:job:abc", mock.Anything, 24*time.Hour).Return(boolCmd(true))
	mockRedis.On("ZAdd", mock.Anything, "test-prefix:jobs", []redis.Z{{Score: float64(epoch.UnixMilli()), Member: "abc"}}).Return(intCmd(1))
	mockRedis.On("ZRemRangeByScore", mock.Anything, "test-prefix:jobs", "-inf", mock.AnythingOfType("string")).Return(intCmd(0))

	require.NoError(t, store.Create(context.Background(), job))
	mockRedis.AssertExpectations(t)
}

func TestRedisStore_Create_Duplicate(t *testing.T) {
	mockRedis := new(MockRedisClient)
	store := NewRedisStore(mockRedis, "test-prefix", 0, zap.NewNop())

	mockRedis.On("SetNX", mock.Anything, "test-prefix:job:abc", mock.Anything, time.Duration(0)).Return(boolCmd(false))

	err := store.Create(context.Background(), newJob("abc", epoch))
	assert.ErrorIs(t, err, ErrDuplicateID)
	mockRedis.AssertNotCalled(t, "ZAdd", mock.Anything, mock.Anything, mock.Anything)
}

func TestRedisStore_Create_NoPruneWithoutTTL(t *testing.T) {
	mockRedis := new(MockRedisClient)
	store := NewRedisStore(mockRedis, "", 0, nil)

	mockRedis.On("SetNX", mock.Anything, "slareport:job:abc", mock.Anything, time.Duration(0)).Return(boolCmd(true))
	mockRedis.On("ZAdd", mock.Anything, "slareport:jobs", mock.Anything).Return(intCmd(1))

	require.NoError(t, store.Create(context.Background(), newJob("abc", epoch)))
	mockRedis.AssertNotCalled(t, "ZRemRangeByScore", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestRedisStore_Get_NotFound(t *testing.T) {
	mockRedis := new(MockRedisClient)
	store := NewRedisStore(mockRedis, "test-prefix", 0, zap.NewNop())

	mockRedis.On("Get", mock.Anything, "test-prefix:job:missing").Return(missingCmd())

	_, err := store.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRedisStore_Get_RedisError(t *testing.T) {
	mockRedis := new(MockRedisClient)
	store := NewRedisStore(mockRedis, "test-prefix", 0, zap.NewNop())

	cmd := redis.NewStringCmd(context.Background())
	cmd.SetErr(errors.New("connection refused"))
	mockRedis.On("Get", mock.Anything, "test-prefix:job:abc").Return(cmd)

	_, err := store.Get(context.Background(), "abc")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestRedisStore_Finalize_SwapsReadDocument(t *testing.T) {
	mockRedis := new(MockRedisClient)
	store := NewRedisStore(mockRedis, "test-prefix", time.Hour, zap.NewNop())

	read := stringCmd(t, newJob("abc", epoch))
	mockRedis.On("Get", mock.Anything, "test-prefix:job:abc").Return(read)

	var written Job
	mockRedis.On("Eval", mock.Anything, finalizeScript, []string{"test-prefix:job:abc"}, mock.MatchedBy(func(args []interface{}) bool {
		if len(args) != 2 || args[0] != read.Val() {
			return false
		}
		raw, ok := args[1].(string)
		return ok && json.Unmarshal([]byte(raw), &written) == nil
	})).Return(evalCmd(1))

	require.NoError(t, store.Finalize(context.Background(), "abc", Completed(sampleData(), epoch.Add(time.Minute))))
	mockRedis.AssertExpectations(t)

	assert.Equal(t, StatusCompleted, written.Status)
	require.NotNil(t, written.FinishedAt)
	assert.Len(t, written.Data, 1)
}

func TestRedisStore_Finalize_LosesRace(t *testing.T) {
	mockRedis := new(MockRedisClient)
	store := NewRedisStore(mockRedis, "test-prefix", time.Hour, zap.NewNop())

	finished := newJob("abc", epoch)
	require.NoError(t, finished.apply(Failed("boom", epoch)))
	mockRedis.On("Get", mock.Anything, "test-prefix:job:abc").Return(stringCmd(t, newJob("abc", epoch))).Once()
	mockRedis.On("Get", mock.Anything, "test-prefix:job:abc").Return(stringCmd(t, finished)).Once()
	mockRedis.On("Eval", mock.Anything, finalizeScript, mock.Anything, mock.Anything).Return(evalCmd(0)).Once()

	err := store.Finalize(context.Background(), "abc", Completed(sampleData(), epoch))
	assert.ErrorIs(t, err, ErrAlreadyFinalized)
	mockRedis.AssertExpectations(t)
}

func TestRedisStore_Finalize_Expired(t *testing.T) {
	mockRedis := new(MockRedisClient)
	store := NewRedisStore(mockRedis, "test-prefix", time.Hour, zap.NewNop())

	mockRedis.On("Get", mock.Anything, "test-prefix:job:abc").Return(stringCmd(t, newJob("abc", epoch)))
	mockRedis.On("Eval", mock.Anything, finalizeScript, mock.Anything, mock.Anything).Return(evalCmd(-1))

	err := store.Finalize(context.Background(), "abc", Completed(nil, epoch))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRedisStore_Finalize_Twice(t *testing.T) {
	mockRedis := new(MockRedisClient)
	store := NewRedisStore(mockRedis, "test-prefix", 0, zap.NewNop())

	finished := newJob("abc", epoch)
	require.NoError(t, finished.apply(Failed("boom", epoch)))
	mockRedis.On("Get", mock.Anything, "test-prefix:job:abc").Return(stringCmd(t, finished))

	err := store.Finalize(context.Background(), "abc", Completed(nil, epoch))
	assert.ErrorIs(t, err, ErrAlreadyFinalized)
	mockRedis.AssertNotCalled(t, "Eval", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestRedisStore_List(t *testing.T) {
	mockRedis := new(MockRedisClient)
	store := NewRedisStore(mockRedis, "test-prefix", 0, zap.NewNop())

	ids := redis.NewStringSliceCmd(context.Background())
	ids.SetVal([]string{"new", "expired", "old"})
	mockRedis.On("ZRevRange", mock.Anything, "test-prefix:jobs", int64(0), int64(2)).Return(ids)

	newRaw, _ := json.Marshal(newJob("new", epoch.Add(time.Hour)))
	oldRaw, _ := json.Marshal(newJob("old", epoch))
	values := redis.NewSliceCmd(context.Background())
	values.SetVal([]interface{}{string(newRaw), nil, string(oldRaw)})
	mockRedis.On("MGet", mock.Anything, []string{"test-prefix:job:new", "test-prefix:job:expired", "test-prefix:job:old"}).Return(values)

	jobs, err := store.List(context.Background(), 3)
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, "new", jobs[0].ID)
	assert.Equal(t, "old", jobs[1].ID)
}

func TestRedisStore_List_NonPositiveLimit(t *testing.T) {
	mockRedis := new(MockRedisClient)
	store := NewRedisStore(mockRedis, "test-prefix", 0, zap.NewNop())

	jobs, err := store.List(context.Background(), 0)
	require.NoError(t, err)
	assert.Empty(t, jobs)
	mockRedis.AssertNotCalled(t, "ZRevRange", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}
