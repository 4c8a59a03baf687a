package udptracker

import (
	"encoding/binary"
	"testing"

	"github.com/al002/ztracker/internal/tracker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeConnectRequest(t *testing.T) {
	b, id := encodeConnectRequest()

	require.Len(t, b, connectRequestSize)
	assert.Equal(t, uint64(0x41727101980), binary.BigEndian.Uint64(b[0:8]))
	assert.Equal(t, uint32(0), binary.BigEndian.Uint32(b[8:12]))
	assert.Equal(t, id, binary.BigEndian.Uint32(b[12:16]))
}

func TestEncodeConnectRequestFreshTransactionID(t *testing.T) {
	seen := make(map[uint32]struct{})
	for i := 0; i < 64; i++ {
		_, id := encodeConnectRequest()
		seen[id] = struct{}{}
	}
	assert.Greater(t, len(seen), 60)
}

func TestEncodeAnnounceRequest(t *testing.T) {
	var infoHash, peerID [20]byte
	for i := range infoHash {
		infoHash[i] = byte(i + 1)
		peerID[i] = byte(0xa0 + i)
	}

	b, id := encodeAnnounceRequest(0x0102030405060708, infoHash, 12345, peerID, 6881)

	require.Len(t, b, announceRequestSize)
	assert.Equal(t, uint64(0x0102030405060708), binary.BigEndian.Uint64(b[0:8]))
	assert.Equal(t, uint32(1), binary.BigEndian.Uint32(b[8:12]))
	assert.Equal(t, id, binary.BigEndian.Uint32(b[12:16]))
	assert.Equal(t, infoHash[:], b[16:36])
	assert.Equal(t, peerID[:], b[36:56])
	assert.Equal(t, uint64(0), binary.BigEndian.Uint64(b[56:64]), "downloaded")
	assert.Equal(t, uint64(12345), binary.BigEndian.Uint64(b[64:72]), "left")
	assert.Equal(t, uint64(0), binary.BigEndian.Uint64(b[72:80]), "uploaded")
	assert.Equal(t, uint32(0), binary.BigEndian.Uint32(b[80:84]), "event")
	assert.Equal(t, uint32(0), binary.BigEndian.Uint32(b[84:88]), "ip")
	assert.Equal(t, int32(-1), int32(binary.BigEndian.Uint32(b[92:96])), "num_want")
	assert.Equal(t, uint16(6881), binary.BigEndian.Uint16(b[96:98]))
}

func TestEncodeAnnounceRequestKey(t *testing.T) {
	var infoHash, peerID [20]byte

	keys := make(map[uint32]struct{})
	for i := 0; i < 8; i++ {
		b, _ := encodeAnnounceRequest(1, infoHash, 0, peerID, 6881)
		require.Len(t, b, announceRequestSize)

		// neighbours of the key keep their fixed values
		assert.Equal(t, uint32(0), binary.BigEndian.Uint32(b[84:88]), "ip")
		assert.Equal(t, int32(-1), int32(binary.BigEndian.Uint32(b[92:96])), "num_want")

		keys[binary.BigEndian.Uint32(b[88:92])] = struct{}{}
	}

	assert.Greater(t, len(keys), 1, "key is random per request")
}

func TestDecodeConnectResponse(t *testing.T) {
	b := make([]byte, connectResponseSize)
	binary.BigEndian.PutUint32(b[4:8], 0xdeadbeef)
	binary.BigEndian.PutUint64(b[8:16], 0x0102030405060708)

	res, err := decodeConnectResponse(b)
	require.NoError(t, err)
	assert.Equal(t, actionConnect, res.Action)
	assert.Equal(t, uint32(0xdeadbeef), res.TransactionID)
	assert.Equal(t, uint64(0x0102030405060708), res.ConnectionID)
}

func TestDecodeAnnounceResponse(t *testing.T) {
	header := func(extra ...byte) []byte {
		b := make([]byte, announceResponseSize)
		binary.BigEndian.PutUint32(b[0:4], uint32(actionAnnounce))
		binary.BigEndian.PutUint32(b[4:8], 42)
		binary.BigEndian.PutUint32(b[8:12], 1800)
		binary.BigEndian.PutUint32(b[12:16], 3)
		binary.BigEndian.PutUint32(b[16:20], 7)
		return append(b, extra...)
	}

	testCases := []struct {
		name        string
		input       []byte
		expected    []tracker.Peer
		expectedErr error
	}{
		{
			name:     "No peers",
			input:    header(),
			expected: []tracker.Peer{},
		},
		{
			name:     "One peer",
			input:    header(192, 168, 1, 1, 0x1f, 0x90),
			expected: []tracker.Peer{{IP: "192.168.1.1", Port: 8080}},
		},
		{
			name:  "Two peers",
			input: header(10, 0, 0, 1, 0x1a, 0xe1, 1, 2, 3, 4, 0x00, 0x50),
			expected: []tracker.Peer{
				{IP: "10.0.0.1", Port: 6881},
				{IP: "1.2.3.4", Port: 80},
			},
		},
		{
			name:        "Truncated peer",
			input:       header(192, 168, 1, 1, 0x1f),
			expectedErr: ErrMalformedPeerList,
		},
		{
			name:        "Too short",
			input:       make([]byte, 19),
			expectedErr: ErrTooShort,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			res, err := decodeAnnounceResponse(tc.input)
			if tc.expectedErr != nil {
				assert.ErrorIs(t, err, tc.expectedErr)
				assert.ErrorIs(t, err, tracker.ErrDecode)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, actionAnnounce, res.Action)
			assert.Equal(t, uint32(42), res.TransactionID)
			assert.Equal(t, int32(1800), res.Interval)
			assert.Equal(t, int32(3), res.Leechers)
			assert.Equal(t, int32(7), res.Seeders)
			assert.Equal(t, tc.expected, res.Peers)
		})
	}
}

func TestDecodeErrorResponse(t *testing.T) {
	b := make([]byte, headerSize)
	binary.BigEndian.PutUint32(b[0:4], uint32(actionError))
	binary.BigEndian.PutUint32(b[4:8], 9)
	b = append(b, []byte("torrent not registered\x00")...)

	res, err := decodeErrorResponse(b)
	require.NoError(t, err)
	assert.Equal(t, actionError, res.Action)
	assert.Equal(t, uint32(9), res.TransactionID)
	assert.Equal(t, "torrent not registered", res.Message)
}

func TestPeekHeader(t *testing.T) {
	_, _, err := peekHeader(make([]byte, 7))
	assert.ErrorIs(t, err, ErrTooShort)

	b := make([]byte, 10)
	binary.BigEndian.PutUint32(b[0:4], uint32(actionAnnounce))
	binary.BigEndian.PutUint32(b[4:8], 77)
	act, id, err := peekHeader(b)
	require.NoError(t, err)
	assert.Equal(t, actionAnnounce, act)
	assert.Equal(t, uint32(77), id)
}
