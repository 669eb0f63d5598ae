package storage

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/summergraph/grag/pkg/types"
)

func newMaster(t *testing.T) *MasterStore {
	t.Helper()
	s, err := NewMasterStore(t.TempDir())
	require.NoError(t, err)
	return s
}

func TestMasterStore_DedupOnFullKey(t *testing.T) {
	s := newMaster(t)

	a := makeQuintuple("小明", "是", "学生", types.MemoryTypeFact, 0.7)
	dup := makeQuintuple("小明", "是", "学生", types.MemoryTypeFact, 0.3)
	// Same subject|predicate|object but different object type: distinct
	// record on the five-field key.
	variant := makeQuintuple("小明", "是", "学生", types.MemoryTypeFact, 0.5)
	variant.ObjectType = "职业"

	added, err := s.StoreQuintuples([]*types.Quintuple{a, dup, variant})
	require.NoError(t, err)
	assert.Equal(t, 2, added)

	added, err = s.StoreQuintuples([]*types.Quintuple{a})
	require.NoError(t, err)
	assert.Equal(t, 0, added, "re-storing an existing key adds nothing")

	count, err := s.Count()
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestMasterStore_MergesExistingKey(t *testing.T) {
	s := newMaster(t)

	first := makeQuintuple("小明", "是", "学生", types.MemoryTypeFact, 0.9)
	first.SetTime(time.Now().Add(-time.Minute))
	added, err := s.StoreQuintuples([]*types.Quintuple{first})
	require.NoError(t, err)
	require.Equal(t, 1, added)

	second := makeQuintuple("小明", "是", "学生", types.MemoryTypeFact, 0.5)
	second.SessionID = "s2"
	added, err = s.StoreQuintuples([]*types.Quintuple{second})
	require.NoError(t, err)
	assert.Equal(t, 0, added, "a key collision merges instead of appending")

	all, err := s.GetAll()
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, 0.9, all[0].ImportanceScore, "merge keeps the maximum importance")
	assert.ElementsMatch(t, []string{"s1", "s2"}, all[0].AllSessionIDs())
}

func TestMasterStore_SearchFilters(t *testing.T) {
	s := newMaster(t)

	recent := makeQuintuple("小明", "喜欢", "足球", types.MemoryTypeEmotion, 0.8)
	old := makeQuintuple("小明", "学习", "英语", types.MemoryTypeProcess, 0.4)
	old.SetTime(time.Now().Add(-72 * time.Hour))

	_, err := s.StoreQuintuples([]*types.Quintuple{recent, old})
	require.NoError(t, err)

	got, err := s.SearchQuintuples(QuintupleFilter{Keywords: []string{"小明"}})
	require.NoError(t, err)
	assert.Len(t, got, 2)

	got, err = s.SearchQuintuples(QuintupleFilter{
		Keywords:    []string{"小明"},
		MemoryTypes: []types.MemoryType{types.MemoryTypeEmotion},
	})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "足球", got[0].Object)

	got, err = s.SearchQuintuples(QuintupleFilter{ImportanceThreshold: 0.5})
	require.NoError(t, err)
	assert.Len(t, got, 1)

	window := 24 * time.Hour
	got, err = s.SearchQuintuples(QuintupleFilter{TimeWindow: &window})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "足球", got[0].Object)
}

func TestMasterStore_LoadsLegacyArrayRecords(t *testing.T) {
	dir := t.TempDir()
	legacy := `[["小明", "人物", "踢", "足球", "运动"]]`
	require.NoError(t, os.WriteFile(filepath.Join(dir, MasterFileName), []byte(legacy), 0o644))

	s, err := NewMasterStore(dir)
	require.NoError(t, err)

	all, err := s.GetAll()
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "小明", all[0].Subject)
	assert.Equal(t, types.MemoryTypeFact, all[0].MemoryType)
	assert.Equal(t, 0.5, all[0].ImportanceScore)
	assert.NotEmpty(t, all[0].SessionID)
}

func TestMasterStore_CorruptFileLoadsEmpty(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, MasterFileName), []byte("{not json"), 0o644))

	s, err := NewMasterStore(dir)
	require.NoError(t, err)

	all, err := s.GetAll()
	require.NoError(t, err)
	assert.Empty(t, all)
}
