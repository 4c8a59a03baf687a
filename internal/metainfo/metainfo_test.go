package metainfo

import (
	"bytes"
	"crypto/sha1"
	"os"
	"path/filepath"
	"testing"

	"github.com/anacrolix/torrent/bencode"
	"github.com/anacrolix/torrent/metainfo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testTorrent(t *testing.T, announce string, announceList [][]string) ([]byte, [20]byte) {
	t.Helper()

	private := true
	info := metainfo.Info{
		Name:        "ubuntu.iso",
		Length:      1 << 20,
		PieceLength: 1 << 18,
		Pieces:      make([]byte, 4*20),
		Private:     &private,
	}
	infoBytes := bencode.MustMarshal(info)

	mi := metainfo.MetaInfo{
		Announce:     announce,
		AnnounceList: announceList,
		InfoBytes:    infoBytes,
	}

	var buf bytes.Buffer
	require.NoError(t, mi.Write(&buf))
	return buf.Bytes(), sha1.Sum(infoBytes)
}

func TestNew(t *testing.T) {
	b, infoHash := testTorrent(t, "", [][]string{
		{"udp://tracker.example:6969/announce", "http://tracker.example/announce"},
		{"udp://backup.example:1337", "udp://tracker.example:6969/announce", ""},
		{"udp4://other.example:80"},
	})

	mi, err := New(bytes.NewReader(b))
	require.NoError(t, err)

	assert.Equal(t, infoHash, mi.InfoHash)
	assert.Equal(t, "ubuntu.iso", mi.Name)
	assert.Equal(t, int64(1<<20), mi.Length)
	assert.True(t, mi.Private)
	assert.Len(t, mi.AnnounceList, 3)
	assert.Equal(t, []string{"udp://backup.example:1337", "udp://tracker.example:6969/announce"}, mi.AnnounceList[1])
	assert.Equal(t, []string{
		"udp://tracker.example:6969/announce",
		"udp://backup.example:1337",
		"udp4://other.example:80",
	}, mi.UDPTrackers())
	assert.Len(t, mi.InfoHashHex(), 40)
}

func TestNewSingleAnnounce(t *testing.T) {
	b, _ := testTorrent(t, "udp://tracker.example:6969", nil)

	mi, err := New(bytes.NewReader(b))
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"udp://tracker.example:6969"}}, mi.AnnounceList)
	assert.Equal(t, []string{"udp://tracker.example:6969"}, mi.UDPTrackers())
}

func TestNewErrors(t *testing.T) {
	_, err := New(bytes.NewReader([]byte("not bencode")))
	assert.Error(t, err)

	var buf bytes.Buffer
	require.NoError(t, (&metainfo.MetaInfo{Announce: "udp://tracker.example:6969"}).Write(&buf))
	_, err = New(&buf)
	assert.ErrorIs(t, err, errNoInfo)
}

func TestLoadFromFile(t *testing.T) {
	b, infoHash := testTorrent(t, "udp://tracker.example:6969", nil)
	path := filepath.Join(t.TempDir(), "test.torrent")
	require.NoError(t, os.WriteFile(path, b, 0644))

	mi, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, infoHash, mi.InfoHash)

	_, err = LoadFromFile(filepath.Join(t.TempDir(), "missing.torrent"))
	assert.Error(t, err)
}
