package protocol

import (
	"sort"
	"strconv"

	"github.com/pkg/errors"
	"github.com/taurusgroup/multi-party-sig/pkg/party"
)

// PartyID maps a relay party index to the round machine's party id.
func PartyID(index uint16) party.ID {
	return party.ID(strconv.FormatUint(uint64(index), 10))
}

// PartyIndex is the inverse of PartyID.
func PartyIndex(id party.ID) (uint16, error) {
	v, err := strconv.ParseUint(string(id), 10, 16)
	if err != nil || v == 0 {
		return 0, errors.Errorf("invalid party id %q", id)
	}
	return uint16(v), nil
}

func PartyIDs(indices []uint16) []party.ID {
	ids := make([]party.ID, 0, len(indices))
	for _, idx := range indices {
		ids = append(ids, PartyID(idx))
	}
	return ids
}

// PartyIndices converts ids, skipping any that are not party indices, in ascending order.
func PartyIndices(ids []party.ID) []uint16 {
	out := make([]uint16, 0, len(ids))
	for _, id := range ids {
		if idx, err := PartyIndex(id); err == nil {
			out = append(out, idx)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// AllParties returns 1..n.
func AllParties(n int) []uint16 {
	out := make([]uint16, 0, n)
	for i := 1; i <= n; i++ {
		out = append(out, uint16(i))
	}
	return out
}
