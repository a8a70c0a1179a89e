package users

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashPassword(t *testing.T) {
	assert.Equal(t, "5ebe2294ecd0e0f08eab7690d2a6ee69", HashPassword("secret"))
	assert.Equal(t, "d41d8cd98f00b204e9800998ecf8427e", HashPassword(""))
}

func TestAddIsUpsertByKey(t *testing.T) {
	s := NewStore()
	key, err := s.Add("  Alice ", "one", false)
	require.NoError(t, err)
	assert.Equal(t, "alice", key)

	_, err = s.Add("ALICE", "two", true)
	require.NoError(t, err)
	assert.Equal(t, []string{"alice"}, s.Keys())

	r, ok := s.Get("alice")
	require.True(t, ok)
	assert.Equal(t, "ALICE", r.Name)
	assert.Equal(t, "two", r.Password)
	assert.True(t, r.Control)
}

func TestAddRejectsEmptyName(t *testing.T) {
	_, err := NewStore().Add("   ", "x", true)
	assert.ErrorIs(t, err, ErrEmptyName)
}

func TestRemove(t *testing.T) {
	s := NewStore()
	_, _ = s.Add("bob", "pw", true)
	key, ok := s.Remove(" BOB")
	assert.True(t, ok)
	assert.Equal(t, "bob", key)
	_, ok = s.Remove("bob")
	assert.False(t, ok)
	_, ok = s.Remove("")
	assert.False(t, ok)
}

func TestVerify(t *testing.T) {
	s := NewStore()
	_, _ = s.Add("alice", "secret", true)

	r, ok := s.Verify("alice", HashPassword("secret"))
	assert.True(t, ok)
	assert.True(t, r.Control)

	_, ok = s.Verify("alice", "secret")
	assert.False(t, ok, "plain password is not accepted")
	_, ok = s.Verify("alice", HashPassword("wrong"))
	assert.False(t, ok)
	_, ok = s.Verify("nobody", HashPassword("secret"))
	assert.False(t, ok)
}
