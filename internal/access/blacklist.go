package access

import (
	"encoding/binary"
	"fmt"
	"net/netip"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
)

// Range is an inclusive IPv4 address range.
type Range struct {
	Lo, Hi uint32
}

func (r Range) String() string {
	if r.Lo == r.Hi {
		return formatIP(r.Lo)
	}
	return formatIP(r.Lo) + "-" + formatIP(r.Hi)
}

// Blacklist is a sorted set of disjoint IPv4 ranges refused at connect.
type Blacklist struct {
	mu     sync.RWMutex
	file   watchedFile
	ranges []Range
}

// NewBlacklist creates a blacklist backed by path. Nothing is read until Load.
func NewBlacklist(path string) *Blacklist {
	return &Blacklist{file: watchedFile{path: path}}
}

// ParseRange parses "a.b.c.d", "a.b.c.d-e.f.g.h" or "a.b.c.d/bits".
func ParseRange(s string) (Range, error) {
	s = strings.TrimSpace(s)
	if lo, hi, ok := strings.Cut(s, "-"); ok {
		l, err := parseIP(lo)
		if err != nil {
			return Range{}, err
		}
		h, err := parseIP(hi)
		if err != nil {
			return Range{}, err
		}
		if l > h {
			return Range{}, fmt.Errorf("inverted range %q", s)
		}
		return Range{l, h}, nil
	}
	if addr, bits, ok := strings.Cut(s, "/"); ok {
		ip, err := parseIP(addr)
		if err != nil {
			return Range{}, err
		}
		m, err := strconv.Atoi(strings.TrimSpace(bits))
		if err != nil || m <= 0 || m > 32 {
			return Range{}, fmt.Errorf("invalid mask in %q", s)
		}
		host := uint32(uint64(1)<<(32-uint(m)) - 1)
		return Range{ip &^ host, ip | host}, nil
	}
	ip, err := parseIP(s)
	if err != nil {
		return Range{}, err
	}
	return Range{ip, ip}, nil
}

// Merge sorts ranges and joins overlapping ones.
func Merge(ranges []Range) []Range {
	sorted := append([]Range(nil), ranges...)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Lo == sorted[j].Lo {
			return sorted[i].Hi > sorted[j].Hi
		}
		return sorted[i].Lo < sorted[j].Lo
	})
	out := sorted[:0]
	for _, r := range sorted {
		if n := len(out); n > 0 && r.Lo <= out[n-1].Hi {
			if r.Hi > out[n-1].Hi {
				out[n-1].Hi = r.Hi
			}
			continue
		}
		out = append(out, r)
	}
	return out
}

// Set replaces the list with ranges.
func (b *Blacklist) Set(ranges []Range) {
	merged := Merge(ranges)
	b.mu.Lock()
	b.ranges = merged
	b.mu.Unlock()
}

// Load rereads the backing file. Unless force is set, an unchanged file is
// skipped. Invalid lines are logged and ignored.
func (b *Blacklist) Load(force bool) error {
	if !force && !b.file.changed() {
		return nil
	}
	lines, err := b.file.load()
	if err != nil {
		return err
	}
	var ranges []Range
	for _, l := range lines {
		r, err := ParseRange(l.text)
		if err != nil {
			log.Warn().Str("file", b.file.path).Int("line", l.number).Err(err).Msg("ignoring blacklist entry")
			continue
		}
		ranges = append(ranges, r)
	}
	b.Set(ranges)
	log.Info().
		Str("file", b.file.path).
		Int("entries", len(ranges)).
		Int("ranges", b.Len()).
		Msg("blacklist loaded")
	return nil
}

// Contains reports whether the IPv4 address addr is blacklisted. Addresses
// that do not parse are never blacklisted.
func (b *Blacklist) Contains(addr string) bool {
	ip, err := parseIP(addr)
	if err != nil {
		return false
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	i := sort.Search(len(b.ranges), func(i int) bool { return b.ranges[i].Hi >= ip })
	return i < len(b.ranges) && b.ranges[i].Lo <= ip
}

// Len returns the number of merged ranges.
func (b *Blacklist) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.ranges)
}

// Ranges returns a copy of the merged ranges.
func (b *Blacklist) Ranges() []Range {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]Range(nil), b.ranges...)
}

func parseIP(s string) (uint32, error) {
	a, err := netip.ParseAddr(strings.TrimSpace(s))
	if err != nil {
		return 0, err
	}
	if !a.Is4() {
		return 0, fmt.Errorf("%s is not an IPv4 address", s)
	}
	b := a.As4()
	return binary.BigEndian.Uint32(b[:]), nil
}

func formatIP(ip uint32) string {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], ip)
	return netip.AddrFrom4(b).String()
}
