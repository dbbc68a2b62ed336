package cache

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/suite"

	skerr "github.com/cory-johannsen/skirmish/internal/errors"
)

type SnapshotCacheTestSuite struct {
	suite.Suite
	client *redis.Client
	mock   redismock.ClientMock
	cache  *SnapshotCache
}

func (s *SnapshotCacheTestSuite) SetupTest() {
	s.client, s.mock = redismock.NewClientMock()
	s.cache = NewSnapshotCache(s.client, time.Hour)
}

func (s *SnapshotCacheTestSuite) TearDownTest() {
	s.NoError(s.mock.ExpectationsWereMet())
}

func TestSnapshotCacheTestSuite(t *testing.T) {
	suite.Run(t, new(SnapshotCacheTestSuite))
}

func (s *SnapshotCacheTestSuite) TestSave() {
	ctx := context.Background()
	data := map[string]any{"id": "arena", "round": 3}
	b, err := json.Marshal(data)
	s.Require().NoError(err)

	s.mock.ExpectTxPipeline()
	s.mock.ExpectSet("skirmish:encounter:arena", b, time.Hour).SetVal("OK")
	s.mock.ExpectSAdd("skirmish:encounters", "arena").SetVal(1)
	s.mock.ExpectTxPipelineExec()

	s.NoError(s.cache.Save(ctx, "arena", data))

	s.True(skerr.IsInvalidArgument(s.cache.Save(ctx, "", data)))
}

func (s *SnapshotCacheTestSuite) TestSave_RedisError() {
	ctx := context.Background()
	data := map[string]any{"id": "arena"}
	b, err := json.Marshal(data)
	s.Require().NoError(err)

	s.mock.ExpectTxPipeline()
	s.mock.ExpectSet("skirmish:encounter:arena", b, time.Hour).SetErr(errors.New("redis down"))

	s.Error(s.cache.Save(ctx, "arena", data))
}

func (s *SnapshotCacheTestSuite) TestLoad() {
	ctx := context.Background()
	s.mock.ExpectGet("skirmish:encounter:arena").SetVal(`{"id":"arena","round":2}`)
	s.mock.ExpectExpire("skirmish:encounter:arena", time.Hour).SetVal(true)

	data, err := s.cache.Load(ctx, "arena")
	s.Require().NoError(err)
	s.Equal("arena", data["id"])
	s.Equal(float64(2), data["round"])
}

func (s *SnapshotCacheTestSuite) TestLoad_Missing() {
	s.mock.ExpectGet("skirmish:encounter:gone").RedisNil()
	_, err := s.cache.Load(context.Background(), "gone")
	s.True(skerr.IsNotFound(err))
}

func (s *SnapshotCacheTestSuite) TestLoad_Corrupt() {
	s.mock.ExpectGet("skirmish:encounter:bad").SetVal("{not json")
	_, err := s.cache.Load(context.Background(), "bad")
	s.Error(err)
	s.False(skerr.IsNotFound(err))
}

func (s *SnapshotCacheTestSuite) TestDelete() {
	s.mock.ExpectTxPipeline()
	s.mock.ExpectDel("skirmish:encounter:arena").SetVal(1)
	s.mock.ExpectSRem("skirmish:encounters", "arena").SetVal(1)
	s.mock.ExpectTxPipelineExec()
	s.NoError(s.cache.Delete(context.Background(), "arena"))
}

func (s *SnapshotCacheTestSuite) TestIDs() {
	s.mock.ExpectSMembers("skirmish:encounters").SetVal([]string{"b", "a"})
	ids, err := s.cache.IDs(context.Background())
	s.Require().NoError(err)
	s.Equal([]string{"a", "b"}, ids)
}

func TestNewSnapshotCache_PanicsWithoutClient(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic")
		}
	}()
	NewSnapshotCache(nil, 0)
}
