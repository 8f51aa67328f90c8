package filestore_test

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/jrsteele09/taskboard/token"
	"github.com/jrsteele09/taskboard/token/filestore"
	"github.com/jrsteele09/taskboard/users"
	"github.com/stretchr/testify/require"
)

func TestStore_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "session.json")
	store := filestore.New(path)

	rec, err := store.Load()
	require.NoError(t, err)
	require.True(t, rec.Empty())

	want := token.Record{
		AccessToken:  "T1",
		RefreshToken: "R1",
		User:         &users.User{ID: 1, Username: "amy", Email: "a@x.com", Role: users.RoleEmployee},
	}
	require.NoError(t, store.Save(want))

	got, err := store.Load()
	require.NoError(t, err)
	require.Equal(t, want, got)

	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	var keys map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(raw, &keys))
	require.Contains(t, keys, token.AccessTokenKey)
	require.Contains(t, keys, token.RefreshTokenKey)
	require.Contains(t, keys, token.UserKey)
}

func TestStore_ClearRemovesBothKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	store := filestore.New(path)

	require.NoError(t, store.Save(token.Record{AccessToken: "T1", RefreshToken: "R1"}))
	require.NoError(t, store.Clear())
	require.NoError(t, store.Clear())

	_, err := os.Stat(path)
	require.True(t, os.IsNotExist(err))

	rec, err := store.Load()
	require.NoError(t, err)
	require.Equal(t, token.Record{}, rec)
}

func TestStore_SaveEmptyDeletes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	store := filestore.New(path)

	require.NoError(t, store.Save(token.Record{AccessToken: "T1"}))
	require.NoError(t, store.Save(token.Record{}))
	_, err := os.Stat(path)
	require.True(t, os.IsNotExist(err))
}

func TestStore_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	_, err := filestore.New(path).Load()
	require.Error(t, err)
}
