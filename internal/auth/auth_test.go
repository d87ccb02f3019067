package auth

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProvider struct {
	name  string
	token string
	calls int
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) Token(_ context.Context) (string, bool) {
	f.calls++
	return f.token, f.token != ""
}

func TestChain_FirstPresentWins(t *testing.T) {
	empty := &fakeProvider{name: "empty"}
	first := &fakeProvider{name: "first", token: "one"}
	second := &fakeProvider{name: "second", token: "two"}

	tok, ok := Chain{empty, first, second}.Token(context.Background())
	require.True(t, ok)
	assert.Equal(t, "one", tok)
	assert.Equal(t, 1, empty.calls)
	assert.Equal(t, 0, second.calls)
}

func TestChain_Absent(t *testing.T) {
	tok, ok := Chain{&fakeProvider{name: "a"}, Static("")}.Token(context.Background())
	assert.False(t, ok)
	assert.Empty(t, tok)
}

func TestEnv(t *testing.T) {
	t.Setenv("REPOSYNC_TEST_A", "")
	t.Setenv("REPOSYNC_TEST_B", " secret ")

	tok, ok := Env("REPOSYNC_TEST_A", "REPOSYNC_TEST_B").Token(context.Background())
	require.True(t, ok)
	assert.Equal(t, "secret", tok)
}

func TestFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token")

	_, ok := File(path).Token(context.Background())
	assert.False(t, ok)

	require.NoError(t, os.WriteFile(path, []byte("abc\n"), 0600))
	tok, ok := File(path).Token(context.Background())
	require.True(t, ok)
	assert.Equal(t, "abc", tok)
}

func TestGitCredential_IgnoresNonHTTPS(t *testing.T) {
	_, ok := GitCredential("git@example.com:me/repo.git").Token(context.Background())
	assert.False(t, ok)
}

func TestParseCredential(t *testing.T) {
	tok, ok := parseCredential([]byte("protocol=https\nhost=example.com\nusername=me\npassword=p4ss\n"))
	require.True(t, ok)
	assert.Equal(t, "p4ss", tok)

	_, ok = parseCredential([]byte("protocol=https\nhost=example.com\n"))
	assert.False(t, ok)
}

func TestChain_Func(t *testing.T) {
	fn := Chain{Static("xyz")}.Func(context.Background())
	tok, ok := fn()
	assert.True(t, ok)
	assert.Equal(t, "xyz", tok)
}
