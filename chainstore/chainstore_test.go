package chainstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGatekeeperRoundTrip(t *testing.T) {
	s, err := Open(t.TempDir())
	require.NoError(t, err)
	defer s.Close()

	ok, err := s.IsGatekeeper("abcd")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.PutGatekeeper("abcd"))

	ok, err = s.IsGatekeeper("abcd")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestClusterRoundTrip(t *testing.T) {
	s, err := Open(t.TempDir())
	require.NoError(t, err)
	defer s.Close()

	_, found, err := s.GetCluster("cluster-1")
	require.NoError(t, err)
	assert.False(t, found)

	rec := ClusterRecord{ID: "cluster-1", Config: []byte("cfg"), Members: []string{"a", "b"}}
	require.NoError(t, s.PutCluster(rec))

	got, found, err := s.GetCluster("cluster-1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, rec, got)
}
