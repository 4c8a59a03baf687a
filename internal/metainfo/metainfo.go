package metainfo

import (
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"

	"github.com/anacrolix/torrent/metainfo"
)

var errNoInfo = errors.New("no info dict in torrent file")

// MetaInfo is what announcing needs from a torrent file.
type MetaInfo struct {
	InfoHash     [20]byte
	Name         string
	Length       int64
	Private      bool
	AnnounceList [][]string
}

func New(r io.Reader) (*MetaInfo, error) {
	mi, err := metainfo.Load(r)
	if err != nil {
		return nil, err
	}

	if len(mi.InfoBytes) == 0 {
		return nil, errNoInfo
	}

	info, err := mi.UnmarshalInfo()
	if err != nil {
		return nil, fmt.Errorf("decoding info dict: %w", err)
	}

	ret := &MetaInfo{
		InfoHash: mi.HashInfoBytes(),
		Name:     info.Name,
		Length:   info.TotalLength(),
	}
	if info.Private != nil {
		ret.Private = *info.Private
	}

	for _, tier := range mi.UpvertedAnnounceList() {
		var ti []string
		for _, t := range tier {
			if t != "" {
				ti = append(ti, t)
			}
		}
		if len(ti) > 0 {
			ret.AnnounceList = append(ret.AnnounceList, ti)
		}
	}

	return ret, nil
}

func LoadFromFile(filename string) (*MetaInfo, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return New(f)
}

// UDPTrackers lists the distinct udp:// and udp4:// announce urls across all tiers.
func (m *MetaInfo) UDPTrackers() []string {
	var ret []string
	seen := make(map[string]struct{})

	for _, tier := range m.AnnounceList {
		for _, t := range tier {
			if _, ok := seen[t]; ok {
				continue
			}
			seen[t] = struct{}{}

			u, err := url.Parse(t)
			if err != nil || !isUDPScheme(u.Scheme) {
				continue
			}
			ret = append(ret, t)
		}
	}

	return ret
}

func (m *MetaInfo) InfoHashHex() string {
	return fmt.Sprintf("%x", m.InfoHash[:])
}

func isUDPScheme(scheme string) bool {
	return scheme == "udp" || scheme == "udp4"
}
