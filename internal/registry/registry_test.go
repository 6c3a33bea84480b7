package registry_test

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mxcop/flow/internal/registry"
)

type stubSink struct{}

func (stubSink) Send([]byte) error { return nil }

func TestAddUserAssignsFreshIDs(t *testing.T) {
	r := registry.New()

	alice, roster, err := r.AddUser("10.0.0.1:1111", "Alice", stubSink{})
	require.NoError(t, err)
	assert.Empty(t, roster)
	assert.NotEmpty(t, alice.ID)
	assert.Equal(t, "Alice", alice.Name)
	assert.Equal(t, "10.0.0.1:1111", alice.Addr)

	bob, roster, err := r.AddUser("10.0.0.2:2222", "Bob", stubSink{})
	require.NoError(t, err)
	assert.NotEqual(t, alice.ID, bob.ID)

	// Bob's roster holds exactly the users present before his login.
	require.Len(t, roster, 1)
	assert.Equal(t, alice.ID, roster[0].ID)
	assert.Equal(t, "Alice", roster[0].Name)
}

func TestAddUserRejectsOccupiedAddr(t *testing.T) {
	r := registry.New()

	_, _, err := r.AddUser("10.0.0.1:1111", "Alice", stubSink{})
	require.NoError(t, err)

	_, _, err = r.AddUser("10.0.0.1:1111", "Mallory", stubSink{})
	assert.ErrorIs(t, err, registry.ErrAddrInUse)

	// Duplicate login is a no-op for state.
	assert.Equal(t, 1, r.UserCount())
	u, ok := r.UserByAddr("10.0.0.1:1111")
	require.True(t, ok)
	assert.Equal(t, "Alice", u.Name)
}

func TestLookupsByAddrAndID(t *testing.T) {
	r := registry.New()

	alice, _, err := r.AddUser("10.0.0.1:1111", "Alice", stubSink{})
	require.NoError(t, err)

	byAddr, ok := r.UserByAddr(alice.Addr)
	require.True(t, ok)
	byID, ok2 := r.UserByID(alice.ID)
	require.True(t, ok2)
	assert.Same(t, byAddr, byID)

	_, ok = r.UserByAddr("1.2.3.4:5")
	assert.False(t, ok)
	_, ok = r.UserByID("nope")
	assert.False(t, ok)
}

func TestRemoveUserPurgesDependentOffers(t *testing.T) {
	r := registry.New()

	alice, _, err := r.AddUser("10.0.0.1:1111", "Alice", stubSink{})
	require.NoError(t, err)
	bob, _, err := r.AddUser("10.0.0.2:2222", "Bob", stubSink{})
	require.NoError(t, err)
	carol, _, err := r.AddUser("10.0.0.3:3333", "Carol", stubSink{})
	require.NoError(t, err)

	aliceToBob := r.AddOffer(alice.ID, bob.ID)
	bobToCarol := r.AddOffer(bob.ID, carol.ID)
	carolToAlice := r.AddOffer(carol.ID, alice.ID)
	require.Equal(t, 3, r.OfferCount())

	// Removing Alice takes out every offer she participates in, in the
	// same atomic step.
	removed, ok := r.RemoveUser(alice.Addr)
	require.True(t, ok)
	assert.Equal(t, alice.ID, removed.ID)

	_, ok = r.OfferByID(aliceToBob.ID)
	assert.False(t, ok)
	_, ok = r.OfferByID(carolToAlice.ID)
	assert.False(t, ok)
	_, ok = r.OfferByID(bobToCarol.ID)
	assert.True(t, ok, "unrelated offer must survive")

	// Removing a gone user is a no-op.
	_, ok = r.RemoveUser(alice.Addr)
	assert.False(t, ok)
}

func TestOfferLifecycle(t *testing.T) {
	r := registry.New()

	alice, _, _ := r.AddUser("10.0.0.1:1111", "Alice", stubSink{})
	bob, _, _ := r.AddUser("10.0.0.2:2222", "Bob", stubSink{})

	first := r.AddOffer(alice.ID, bob.ID)
	second := r.AddOffer(alice.ID, bob.ID)

	// Concurrent offers between the same pair are allowed and distinct.
	assert.NotEqual(t, first.ID, second.ID)

	got, ok := r.OfferByID(first.ID)
	require.True(t, ok)
	assert.Equal(t, alice.ID, got.Origin)
	assert.Equal(t, bob.ID, got.Target)

	removed, ok := r.RemoveOffer(first.ID)
	require.True(t, ok)
	assert.Equal(t, first.ID, removed.ID)

	// Second removal loses the claim.
	_, ok = r.RemoveOffer(first.ID)
	assert.False(t, ok)
	assert.Equal(t, 1, r.OfferCount())
}

func TestSinksExcludesSender(t *testing.T) {
	r := registry.New()

	for i := 0; i < 4; i++ {
		_, _, err := r.AddUser(fmt.Sprintf("10.0.0.%d:1000", i), fmt.Sprintf("user-%d", i), stubSink{})
		require.NoError(t, err)
	}

	assert.Len(t, r.Sinks("10.0.0.0:1000"), 3)
	assert.Len(t, r.Sinks("unknown"), 4)
}

func TestSnapshotMatchesBothIndexes(t *testing.T) {
	r := registry.New()

	for i := 0; i < 8; i++ {
		_, _, err := r.AddUser(fmt.Sprintf("10.0.0.%d:1000", i), fmt.Sprintf("user-%d", i), stubSink{})
		require.NoError(t, err)
	}
	r.RemoveUser("10.0.0.3:1000")

	snap := r.Snapshot()
	assert.Len(t, snap, 7)
	assert.Equal(t, 7, r.UserCount())

	seen := make(map[string]bool)
	for _, info := range snap {
		u, ok := r.UserByID(info.ID)
		require.True(t, ok)
		assert.Equal(t, info.Name, u.Name)
		seen[info.ID] = true
	}
	assert.Len(t, seen, 7, "ids must be unique")
}

func TestConcurrentChurn(t *testing.T) {
	r := registry.New()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			addr := fmt.Sprintf("10.0.%d.1:999", n)
			for j := 0; j < 100; j++ {
				u, _, err := r.AddUser(addr, "churner", stubSink{})
				if err != nil {
					continue
				}
				offer := r.AddOffer(u.ID, u.ID)
				r.OfferByID(offer.ID)
				r.Snapshot()
				r.Sinks(addr)
				r.RemoveUser(addr)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 0, r.UserCount())
	assert.Equal(t, 0, r.OfferCount(), "offers must not outlive their users")
}
