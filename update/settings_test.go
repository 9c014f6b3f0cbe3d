package update

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"markestedt/membrain/secrets"
)

func newSettingsStore(t *testing.T) (*SettingsStore, secrets.Store, string) {
	t.Helper()
	dir := t.TempDir()
	sec := secrets.NewFileStore(filepath.Join(dir, "secrets.bin"))
	path := filepath.Join(dir, "update-settings.json")
	return NewSettingsStore(path, sec), sec, path
}

func TestSettingsStoreRoundTrip(t *testing.T) {
	store, sec, path := newSettingsStore(t)

	assert.Equal(t, Settings{}, store.Load())

	require.NoError(t, store.Save(Settings{
		RepoURL:           "https://github.com/acme/membrain",
		Token:             "tok",
		IncludePrerelease: true,
	}))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "acme")
	assert.NotContains(t, string(raw), "tok")

	v, err := sec.Get(secrets.Token)
	require.NoError(t, err)
	assert.Equal(t, "tok", v)

	got := store.Load()
	assert.Equal(t, "https://github.com/acme/membrain", got.RepoURL)
	assert.Equal(t, "tok", got.Token)
	assert.True(t, got.IncludePrerelease)
}

func TestSettingsStoreMigratesLegacyRepo(t *testing.T) {
	store, sec, path := newSettingsStore(t)
	require.NoError(t, os.WriteFile(path, []byte(`{"repoUrl":"acme/membrain","includePrerelease":false}`), 0644))

	got := store.Load()
	assert.Equal(t, "acme/membrain", got.RepoURL)

	v, err := sec.Get(secrets.RepoURL)
	require.NoError(t, err)
	assert.Equal(t, "acme/membrain", v)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "acme")
	assert.NotContains(t, string(raw), "repoUrl")

	assert.Equal(t, "acme/membrain", store.Load().RepoURL)
}

func TestSettingsStoreScrubsLegacyRepoWhenSecretExists(t *testing.T) {
	store, sec, path := newSettingsStore(t)
	require.NoError(t, sec.Put(secrets.RepoURL, "stored/repo"))
	require.NoError(t, os.WriteFile(path, []byte(`{"repoUrl":"old/repo","includePrerelease":true}`), 0644))

	got := store.Load()
	assert.Equal(t, "stored/repo", got.RepoURL)
	assert.True(t, got.IncludePrerelease)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "old/repo")
	assert.Contains(t, string(raw), `"includePrerelease": true`)
}

func TestSettingsStoreCorruptFile(t *testing.T) {
	store, _, path := newSettingsStore(t)
	require.NoError(t, os.WriteFile(path, []byte("{nope"), 0644))
	assert.Equal(t, Settings{}, store.Load())
}

func TestParseRepoURL(t *testing.T) {
	tests := []struct {
		in         string
		owner      string
		repo       string
		enterprise string
		wantErr    bool
	}{
		{in: "acme/membrain", owner: "acme", repo: "membrain"},
		{in: "https://github.com/acme/membrain", owner: "acme", repo: "membrain"},
		{in: "https://github.com/acme/membrain.git/", owner: "acme", repo: "membrain"},
		{in: "https://git.corp.example/acme/membrain", owner: "acme", repo: "membrain", enterprise: "https://git.corp.example/api/v3/"},
		{in: "membrain", wantErr: true},
		{in: "https://github.com/acme", wantErr: true},
		{in: "a/b/c", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			owner, repo, enterprise, err := ParseRepoURL(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.owner, owner)
			assert.Equal(t, tt.repo, repo)
			assert.Equal(t, tt.enterprise, enterprise)
		})
	}
}

func TestResolve(t *testing.T) {
	env := map[string]string{
		EnvRepo:       "env/repo",
		EnvToken:      " envtok ",
		EnvUpdateURL:  "https://github.com/url/repo",
		EnvPrerelease: "TRUE",
	}
	getenv := func(k string) string { return env[k] }

	src := Resolve(Settings{}, getenv)
	assert.Equal(t, "env", src.Owner)
	assert.Equal(t, "repo", src.Repo)
	assert.Equal(t, "envtok", src.Token)
	assert.True(t, src.Prerelease)

	src = Resolve(Settings{RepoURL: "stored/repo", Token: "stok"}, getenv)
	assert.Equal(t, "stored", src.Owner)
	assert.Equal(t, "stok", src.Token)
	assert.Equal(t, "stored/repo", src.Label)

	delete(env, EnvRepo)
	src = Resolve(Settings{}, getenv)
	assert.Equal(t, "url", src.Owner)

	src = Resolve(Settings{}, func(string) string { return "" })
	assert.False(t, src.Configured())
}
