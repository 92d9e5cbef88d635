package profile

import (
	"context"
	"io"
	"testing"

	"github.com/mosaicnetworks/homenode/src/common"
	"github.com/mosaicnetworks/homenode/src/identity"
	"github.com/mosaicnetworks/homenode/src/signer"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func persona(t *testing.T, seed string) identity.Profile {
	t.Helper()
	p, err := signer.Profile(signer.NewTestSigner(seed), identity.Persona{})
	require.NoError(t, err)
	return p
}

func TestInmemRepoLoad(t *testing.T) {
	ctx := context.Background()
	alice := persona(t, "alice")
	repo := NewInmemRepo(alice)

	p, err := repo.Load(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, alice, p)

	bob := persona(t, "bob")
	_, err = repo.Load(ctx, bob.ID)
	assert.ErrorIs(t, err, common.ErrNotFound)

	require.NoError(t, repo.Insert(bob))
	err = repo.Insert(bob)
	assert.True(t, common.IsStore(err, common.KeyAlreadyExists))

	bob.Persona.Data = []byte("updated")
	require.NoError(t, repo.Set(bob))
	p, err = repo.Load(ctx, bob.ID)
	require.NoError(t, err)
	assert.Equal(t, []byte("updated"), p.Persona.Data)
}

func TestInmemRepoResolve(t *testing.T) {
	ctx := context.Background()
	alice := persona(t, "alice")
	repo := NewInmemRepo(alice)
	repo.AddAlias("alice@example", alice.ID)

	p, err := repo.Resolve(ctx, Locator(alice.ID))
	require.NoError(t, err)
	assert.True(t, p.ID.Equal(alice.ID))

	p, err = repo.Resolve(ctx, "alice@example")
	require.NoError(t, err)
	assert.True(t, p.ID.Equal(alice.ID))

	_, err = repo.Resolve(ctx, "nobody@example")
	assert.ErrorIs(t, err, common.ErrResolutionFailed)
	assert.NotErrorIs(t, err, common.ErrNotFound)

	_, err = repo.Resolve(ctx, Locator(persona(t, "bob").ID))
	assert.ErrorIs(t, err, common.ErrResolutionFailed)
}

func TestInmemRepoList(t *testing.T) {
	ctx := context.Background()
	repo := NewInmemRepo(persona(t, "a"), persona(t, "b"), persona(t, "c"))

	s := repo.List(ctx)
	seen := 0
	for {
		_, err := s.Next(ctx)
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		seen++
	}
	assert.Equal(t, 3, seen)

	// stopping early
	s = repo.List(ctx)
	_, err := s.Next(ctx)
	require.NoError(t, err)
	s.Cancel()
	_, err = s.Next(ctx)
	assert.ErrorIs(t, err, common.ErrStreamCancelled)
}

type countingRepo struct {
	Repo
	loads int
}

func (c *countingRepo) Load(ctx context.Context, id identity.ProfileID) (identity.Profile, error) {
	c.loads++
	return c.Repo.Load(ctx, id)
}

func TestCachingRepo(t *testing.T) {
	ctx := context.Background()
	alice := persona(t, "alice")
	backend := &countingRepo{Repo: NewInmemRepo(alice)}

	repo, err := NewCachingRepo(backend, 8, common.NewTestEntry(t, logrus.DebugLevel))
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		p, err := repo.Load(ctx, alice.ID)
		require.NoError(t, err)
		assert.True(t, p.ID.Equal(alice.ID))
	}
	assert.Equal(t, 1, backend.loads)

	_, err = repo.Load(ctx, persona(t, "bob").ID)
	assert.ErrorIs(t, err, common.ErrNotFound)

	repo.Invalidate(alice.ID)
	_, err = repo.Load(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, backend.loads)

	carol := persona(t, "carol")
	require.NoError(t, repo.Set(carol))
	_, err = backend.Repo.Load(ctx, carol.ID)
	require.NoError(t, err, "Set goes through to a writable backend")
}

func TestMultiRepo(t *testing.T) {
	ctx := context.Background()
	alice := persona(t, "alice")
	bob := persona(t, "bob")

	repo := NewMultiRepo(NewInmemRepo(alice), NewInmemRepo(bob))

	_, err := repo.Load(ctx, bob.ID)
	require.NoError(t, err)

	_, err = repo.Resolve(ctx, Locator(alice.ID))
	require.NoError(t, err)

	_, err = repo.Load(ctx, persona(t, "carol").ID)
	assert.ErrorIs(t, err, common.ErrNotFound)

	s := repo.List(ctx)
	n := 0
	for {
		if _, err := s.Next(ctx); err != nil {
			break
		}
		n++
	}
	assert.Equal(t, 2, n)
}
