package x402

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNetworkParse(t *testing.T) {
	namespace, reference, err := Network("solana:EtWTRABZaYq6iMfeYKouRu166VU2xqa1").Parse()
	require.NoError(t, err)
	assert.Equal(t, "solana", namespace)
	assert.Equal(t, "EtWTRABZaYq6iMfeYKouRu166VU2xqa1", reference)

	_, _, err = Network("no-separator").Parse()
	assert.Error(t, err)

	_, _, err = Network("too:many:parts").Parse()
	assert.Error(t, err)
}

func TestNetworkMatch(t *testing.T) {
	devnet := Network("solana:EtWTRABZaYq6iMfeYKouRu166VU2xqa1")

	tests := []struct {
		network Network
		pattern Network
		want    bool
	}{
		{devnet, devnet, true},
		{devnet, Network("solana:*"), true},
		{Network("solana:*"), devnet, true},
		{devnet, Network("eip155:*"), false},
		{devnet, Network("solana:other"), false},
		{Network("solana:*"), Network("solana:*"), true},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.network.Match(tt.pattern),
			"%s match %s", tt.network, tt.pattern)
	}
}
