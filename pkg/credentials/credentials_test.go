package credentials

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forest6511/vaultsync/pkg/crypto"
)

func testProvider() crypto.Provider {
	return crypto.NewProvider(crypto.KDFParams{Memory: 1024, Iterations: 1, Parallelism: 1})
}

func TestNewAllowsAllPurposes(t *testing.T) {
	c := New(Data{"k": "v"}, "master")
	defer c.Destroy()

	for _, p := range AllPurposes() {
		assert.True(t, c.AllowsPurpose(p), p)
	}
	assert.NotEmpty(t, c.ID())
}

func TestRestrictPurposesOnlyNarrows(t *testing.T) {
	c := New(nil, "master")
	defer c.Destroy()

	c.RestrictPurposes(PurposeDecryptVault, PurposeEncryptVault)
	assert.False(t, c.AllowsPurpose(PurposeSecureExport))

	c.RestrictPurposes(PurposeDecryptVault, PurposeSecureExport)
	assert.Equal(t, []Purpose{PurposeDecryptVault}, c.Purposes())
	assert.False(t, c.AllowsPurpose(PurposeSecureExport), "removed purpose cannot come back")
}

func TestMasterSecret(t *testing.T) {
	c := New(nil, "master")
	defer c.Destroy()

	got, err := c.MasterSecret(PurposeDecryptVault)
	require.NoError(t, err)
	assert.Equal(t, "master", got)

	c.RestrictPurposes(PurposeEncryptVault)
	_, err = c.MasterSecret(PurposeDecryptVault)
	assert.ErrorIs(t, err, ErrPurposeNotAllowed)

	noMaster := New(nil, "")
	defer noMaster.Destroy()
	_, err = noMaster.MasterSecret(PurposeDecryptVault)
	assert.ErrorIs(t, err, ErrNoMasterSecret)
}

func TestSecureStringRoundTrip(t *testing.T) {
	ctx := context.Background()
	p := testProvider()

	c := FromDatasource(map[string]any{"type": "file", "path": "/tmp/v.bcup"}, "master")
	defer c.Destroy()

	s, err := c.ToSecureString(ctx, p)
	require.NoError(t, err)
	assert.Contains(t, s, SecureStringPrefix)

	restored, err := FromSecureString(ctx, p, s, "master", WithEnvironment(ClosedEnvironment))
	require.NoError(t, err)
	defer restored.Destroy()

	ds, ok := restored.Data()["datasource"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "/tmp/v.bcup", ds["path"])

	_, err = FromSecureString(ctx, p, s, "wrong")
	assert.ErrorIs(t, err, crypto.ErrDecryptionFailed)

	_, err = FromSecureString(ctx, p, "no-signature", "master")
	assert.ErrorIs(t, err, ErrInvalidSecureString)
}

func TestSecureExportGating(t *testing.T) {
	ctx := context.Background()
	p := testProvider()

	c := New(Data{"a": 1}, "master")
	defer c.Destroy()
	c.RestrictPurposes(PurposeDecryptVault)
	_, err := c.ToSecureString(ctx, p)
	assert.ErrorIs(t, err, ErrPurposeNotAllowed)

	noMaster := New(Data{"a": 1}, "")
	defer noMaster.Destroy()
	_, err = noMaster.ToSecureString(ctx, p)
	assert.ErrorIs(t, err, ErrNoMasterSecret)
}

func TestFromSecureStringMigratesLegacyPayload(t *testing.T) {
	ctx := context.Background()
	p := testProvider()

	legacy := `{"datasource":"{\"type\":\"webdav\",\"endpoint\":\"https://dav\"}","username":"user","password":"pass"}`
	ct, err := p.Encrypt(ctx, []byte(legacy), "master")
	require.NoError(t, err)

	c, err := FromSecureString(ctx, p, LegacySecureStringPrefix+ct, "master", WithEnvironment(ClosedEnvironment))
	require.NoError(t, err)
	defer c.Destroy()

	data := c.Data()
	assert.NotContains(t, data, "username")
	assert.NotContains(t, data, "password")
	ds := data["datasource"].(map[string]any)
	assert.Equal(t, "webdav", ds["type"])
	assert.Equal(t, "user", ds["username"])
	assert.Equal(t, "pass", ds["password"])
}

func TestDataVisibility(t *testing.T) {
	hidden := FromPassword("pw", "")
	defer hidden.Destroy()
	assert.Nil(t, hidden.Data())
	assert.Nil(t, hidden.Payload())
	assert.ErrorIs(t, hidden.SetData(Data{}), ErrInsecureEnvironment)

	open := FromPassword("pw", "", WithOpen(true))
	defer open.Destroy()
	assert.Equal(t, Data{"password": "pw"}, open.Data())
	require.NoError(t, open.SetData(Data{"password": "new"}))
	assert.Equal(t, "new", open.Payload().Data["password"])

	closed := FromPassword("pw", "", WithEnvironment(ClosedEnvironment))
	defer closed.Destroy()
	assert.NotNil(t, closed.Data())
	master, err := closed.MasterSecret(PurposeEncryptVault)
	require.NoError(t, err)
	assert.Equal(t, "pw", master, "password doubles as master")
}

func TestFromCredentials(t *testing.T) {
	c := New(Data{"nested": map[string]any{"k": "v"}}, "master")
	defer c.Destroy()

	_, err := FromCredentials(c, "wrong")
	assert.ErrorIs(t, err, ErrMasterMismatch)
	_, err = FromCredentials(c, "")
	assert.ErrorIs(t, err, ErrMasterRequired)

	clone, err := FromCredentials(c, "master", WithEnvironment(ClosedEnvironment))
	require.NoError(t, err)
	defer clone.Destroy()
	assert.NotEqual(t, c.ID(), clone.ID())
	assert.Equal(t, "v", clone.Data()["nested"].(map[string]any)["k"])
}

func TestDestroy(t *testing.T) {
	c := New(Data{"a": "b"}, "master", WithOpen(true))
	c.Destroy()

	assert.Nil(t, c.Data())
	_, err := c.MasterSecret(PurposeDecryptVault)
	assert.ErrorIs(t, err, ErrDestroyed)
	assert.False(t, c.AllowsPurpose(PurposeDecryptVault))
}

func TestDataReturnsCopy(t *testing.T) {
	c := New(Data{"password": "pw"}, "master", WithEnvironment(ClosedEnvironment))
	defer c.Destroy()

	data := c.Data()
	data["password"] = "changed"
	assert.Equal(t, "pw", c.Data()["password"])
	c.Payload().Data["password"] = "changed"
	assert.Equal(t, "pw", c.Data()["password"])
}

// Run with -race: readers and Destroy share the registry record.
func TestConcurrentAccessAndDestroy(t *testing.T) {
	ctx := context.Background()
	p := testProvider()
	for i := 0; i < 20; i++ {
		c := New(Data{"password": "pw"}, "master", WithEnvironment(ClosedEnvironment))
		var wg sync.WaitGroup
		wg.Add(5)
		go func() {
			defer wg.Done()
			_, _ = c.MasterSecret(PurposeEncryptVault)
		}()
		go func() {
			defer wg.Done()
			_ = c.Data()
			_ = c.Payload()
		}()
		go func() {
			defer wg.Done()
			_ = c.SetData(Data{"password": "other"})
		}()
		go func() {
			defer wg.Done()
			_, _ = c.ToSecureString(ctx, p)
		}()
		go func() {
			defer wg.Done()
			c.Destroy()
		}()
		wg.Wait()

		_, err := c.MasterSecret(PurposeEncryptVault)
		assert.ErrorIs(t, err, ErrDestroyed)
	}
}
