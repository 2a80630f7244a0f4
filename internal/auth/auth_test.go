package auth_test

import (
	"context"
	"fmt"
	"os"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tracehub-ai/tracehub/internal/auth"
	"github.com/tracehub-ai/tracehub/internal/model"
	"github.com/tracehub-ai/tracehub/internal/storage"
	"github.com/tracehub-ai/tracehub/internal/testutil"
)

const adminSeed = "test-admin-seed"

var (
	testDB       *storage.DB
	testResolver *auth.Resolver
)

func TestMain(m *testing.M) {
	tc := testutil.MustStartPostgres()
	defer tc.Terminate()

	var err error
	testDB, err = tc.NewTestDB(context.Background(), testutil.TestLogger())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create test DB: %v\n", err)
		tc.Terminate()
		os.Exit(1)
	}
	defer testDB.Close()

	testResolver = auth.NewResolver(testDB, adminSeed, true, testutil.TestLogger())
	os.Exit(m.Run())
}

func createProjectWithKey(t *testing.T) (model.Project, string) {
	t.Helper()
	key, hash, err := auth.GenerateKey()
	require.NoError(t, err)

	var p model.Project
	err = testDB.WithTx(context.Background(), func(st *storage.Store) error {
		var err error
		p, err = st.CreateProject(context.Background(), "auth-"+uuid.NewString()[:8], hash, key)
		return err
	})
	require.NoError(t, err)
	return p, key
}

func TestGenerateKeyShape(t *testing.T) {
	key, hash, err := auth.GenerateKey()
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(key, auth.KeyPrefix))
	assert.Len(t, key, len(auth.KeyPrefix)+48)
	assert.Len(t, hash, 64)
	assert.Equal(t, auth.HashKey(key), hash)

	key2, _, err := auth.GenerateKey()
	require.NoError(t, err)
	assert.NotEqual(t, key, key2)
}

func TestResolveByKey(t *testing.T) {
	ctx := context.Background()
	p, key := createProjectWithKey(t)

	got, err := testResolver.Resolve(ctx, key, "")
	require.NoError(t, err)
	assert.Equal(t, p.ID, got.ID)

	// Matching project header is accepted, a mismatch is refused.
	_, err = testResolver.Resolve(ctx, key, p.ID.String())
	require.NoError(t, err)
	_, err = testResolver.Resolve(ctx, key, uuid.NewString())
	assert.ErrorIs(t, err, auth.ErrForbidden)

	_, err = testResolver.Resolve(ctx, "", "")
	assert.ErrorIs(t, err, auth.ErrUnauthorized)
	_, err = testResolver.Resolve(ctx, "proj_bogus", "")
	assert.ErrorIs(t, err, auth.ErrUnauthorized)
}

func TestResolveInactiveProjectRefused(t *testing.T) {
	ctx := context.Background()
	p, key := createProjectWithKey(t)

	require.NoError(t, testDB.Store().SetProjectActive(ctx, p.ID, false))

	_, err := testResolver.Resolve(ctx, key, "")
	assert.ErrorIs(t, err, auth.ErrUnauthorized)

	// Admin acting on behalf of an inactive project is also refused.
	_, err = testResolver.Resolve(ctx, adminSeed, p.ID.String())
	assert.ErrorIs(t, err, auth.ErrForbidden)
}

func TestResolveIngestActivatesKeyOnFirstUse(t *testing.T) {
	ctx := context.Background()
	p, key := createProjectWithKey(t)

	got, err := testResolver.ResolveIngest(ctx, key, "")
	require.NoError(t, err)
	assert.True(t, got.KeyActivated)

	stored, err := testDB.Store().GetProject(ctx, p.ID)
	require.NoError(t, err)
	assert.True(t, stored.KeyActivated)
}

func TestResolveIngestAdminRequiresActivatedKey(t *testing.T) {
	ctx := context.Background()
	p, key := createProjectWithKey(t)

	// Before the project key is ever used, the admin cannot ingest on the
	// project's behalf.
	_, err := testResolver.ResolveIngest(ctx, adminSeed, p.ID.String())
	assert.ErrorIs(t, err, auth.ErrKeyNotProvisioned)

	_, err = testResolver.ResolveIngest(ctx, key, "")
	require.NoError(t, err)

	got, err := testResolver.ResolveIngest(ctx, adminSeed, p.ID.String())
	require.NoError(t, err)
	assert.Equal(t, p.ID, got.ID)
}

func TestAdminResolveOnBehalf(t *testing.T) {
	ctx := context.Background()
	p, _ := createProjectWithKey(t)

	got, err := testResolver.Resolve(ctx, adminSeed, p.ID.String())
	require.NoError(t, err)
	assert.Equal(t, p.ID, got.ID)

	// The dev shortcut works because the resolver runs in dev mode.
	got, err = testResolver.Resolve(ctx, "dev-key", p.ID.String())
	require.NoError(t, err)
	assert.Equal(t, p.ID, got.ID)

	_, err = testResolver.Resolve(ctx, adminSeed, "not-a-uuid")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestRequireAdmin(t *testing.T) {
	ctx := context.Background()
	p, key := createProjectWithKey(t)

	target, err := testResolver.RequireAdmin(ctx, adminSeed, "")
	require.NoError(t, err)
	assert.Nil(t, target)

	target, err = testResolver.RequireAdmin(ctx, adminSeed, p.ID.String())
	require.NoError(t, err)
	require.NotNil(t, target)
	assert.Equal(t, p.ID, target.ID)

	_, err = testResolver.RequireAdmin(ctx, key, "")
	assert.ErrorIs(t, err, auth.ErrForbidden)
	_, err = testResolver.RequireAdmin(ctx, "", "")
	assert.ErrorIs(t, err, auth.ErrUnauthorized)
}

func TestProdResolverRejectsDevKey(t *testing.T) {
	prod := auth.NewResolver(testDB, adminSeed, false, testutil.TestLogger())
	assert.False(t, prod.IsAdmin("dev-key"))
	assert.True(t, prod.IsAdmin(adminSeed))
}
