package blocklist

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"net"
	"os"
	"sort"
	"sync"

	"github.com/anacrolix/torrent/iplist"
)

var errNotIPv4Address = errors.New("address is not ipv4")

// Blocklist holds IPv4 ranges trackers must not be contacted on.
type Blocklist struct {
	m     sync.RWMutex
	list  *iplist.IPList
	count int
}

func New() *Blocklist {
	return &Blocklist{}
}

// Load reads a blocklist file, see Reload for the format.
func Load(path string) (*Blocklist, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	b := New()
	if _, err := b.Reload(f); err != nil {
		return nil, err
	}
	return b, nil
}

func (b *Blocklist) Len() int {
	b.m.RLock()
	defer b.m.RUnlock()
	return b.count
}

func (b *Blocklist) Blocked(ip net.IP) bool {
	b.m.RLock()
	defer b.m.RUnlock()

	ip = ip.To4()
	if ip == nil || b.list == nil {
		return false
	}

	_, ok := b.list.Lookup(ip)
	return ok
}

// Reload replaces the rules with the ones read from r. Each line is a CIDR
// ("10.0.0.0/8") or a P2P range ("some description:1.2.3.0-1.2.3.255").
// Blank lines and lines starting with '#' are ignored.
func (b *Blocklist) Reload(r io.Reader) (int, error) {
	ranges, err := load(r)
	if err != nil {
		return 0, err
	}

	b.m.Lock()
	defer b.m.Unlock()

	b.list = iplist.New(ranges)
	b.count = len(ranges)
	return b.count, nil
}

func load(r io.Reader) ([]iplist.Range, error) {
	var ranges []iplist.Range
	var hasError bool

	scanner := bufio.NewScanner(r)

	for scanner.Scan() {
		l := bytes.TrimSpace(scanner.Bytes())
		if len(l) == 0 || l[0] == '#' {
			continue
		}

		rg, err := parseLine(l)
		if err != nil {
			hasError = true
			continue
		}

		ranges = append(ranges, rg)
	}

	if err := scanner.Err(); err != nil {
		return nil, err
	}

	if len(ranges) == 0 && hasError {
		return nil, errors.New("no valid rules")
	}

	sort.Slice(ranges, func(i, j int) bool {
		return bytes.Compare(ranges[i].First, ranges[j].First) < 0
	})
	return ranges, nil
}

func parseLine(l []byte) (iplist.Range, error) {
	if rg, err := parseCIDR(l); err == nil {
		return rg, nil
	}

	rg, ok, err := iplist.ParseBlocklistP2PLine(l)
	if err != nil {
		return iplist.Range{}, err
	}
	if !ok {
		return iplist.Range{}, errors.New("not a blocklist rule")
	}

	first, last := rg.First.To4(), rg.Last.To4()
	if first == nil || last == nil {
		return iplist.Range{}, errNotIPv4Address
	}
	rg.First, rg.Last = first, last
	return rg, nil
}

func parseCIDR(b []byte) (iplist.Range, error) {
	_, ipnet, err := net.ParseCIDR(string(b))
	if err != nil {
		return iplist.Range{}, err
	}

	if len(ipnet.IP) != net.IPv4len || len(ipnet.Mask) != net.IPv4len {
		return iplist.Range{}, errNotIPv4Address
	}

	first := binary.BigEndian.Uint32(ipnet.IP)
	last := first | ^binary.BigEndian.Uint32(ipnet.Mask)

	rg := iplist.Range{
		First:       make(net.IP, net.IPv4len),
		Last:        make(net.IP, net.IPv4len),
		Description: string(b),
	}
	binary.BigEndian.PutUint32(rg.First, first)
	binary.BigEndian.PutUint32(rg.Last, last)
	return rg, nil
}
