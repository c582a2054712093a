package ecs

import (
	"encoding/binary"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/argus-labs/ecstore/pkg/assert"
	"github.com/cespare/xxhash/v2"
	"github.com/kelindar/bitmap"
)

// Signature is an interned set of component and tag kinds. Two signatures built from the same
// members, in any order, are the same pointer, so == is set equality. Signatures are immutable.
type Signature struct {
	id         uint32
	hash       uint64
	components []uint32      // Sorted component indexes
	tags       []uint32      // Sorted tag indexes
	compBits   bitmap.Bitmap // Membership bitmaps mirror the sorted slices for O(1) lookups
	tagBits    bitmap.Bitmap
	table      *signatureTable

	// Structural move edges, guarded by table.mu.
	with    map[Member]*Signature
	without map[Member]*Signature
}

// ID returns the interning order of the signature within its registry. The empty signature is 0.
func (s *Signature) ID() uint32 {
	return s.id
}

// Components returns the sorted component indexes. The slice must not be modified.
func (s *Signature) Components() []uint32 {
	return s.components
}

// Tags returns the sorted tag indexes. The slice must not be modified.
func (s *Signature) Tags() []uint32 {
	return s.tags
}

func (s *Signature) HasComponent(id uint32) bool {
	return s.compBits.Contains(id)
}

func (s *Signature) HasTag(id uint32) bool {
	return s.tagBits.Contains(id)
}

// Has reports whether the member is part of the signature.
func (s *Signature) Has(m Member) bool {
	if m.Tag {
		return s.HasTag(m.ID)
	}
	return s.HasComponent(m.ID)
}

func (s *Signature) ComponentCount() int {
	return len(s.components)
}

func (s *Signature) TagCount() int {
	return len(s.tags)
}

// Len returns the number of members.
func (s *Signature) Len() int {
	return len(s.components) + len(s.tags)
}

// ContainsAll reports whether s is a superset of other.
func (s *Signature) ContainsAll(other *Signature) bool {
	if s == other {
		return true
	}
	if len(other.components) > len(s.components) || len(other.tags) > len(s.tags) {
		return false
	}
	for _, c := range other.components {
		if !s.compBits.Contains(c) {
			return false
		}
	}
	for _, t := range other.tags {
		if !s.tagBits.Contains(t) {
			return false
		}
	}
	return true
}

// With returns the signature with m added. Results are cached on both signatures.
func (s *Signature) With(m Member) *Signature {
	if s.Has(m) {
		return s
	}

	t := s.table
	t.mu.Lock()
	defer t.mu.Unlock()

	if next, ok := s.with[m]; ok {
		return next
	}
	components, tags := s.components, s.tags
	if m.Tag {
		tags = insertSorted(tags, m.ID)
	} else {
		components = insertSorted(components, m.ID)
	}
	next := t.intern(components, tags)
	s.link(m, next)
	return next
}

// Without returns the signature with m removed. Results are cached on both signatures.
func (s *Signature) Without(m Member) *Signature {
	if !s.Has(m) {
		return s
	}

	t := s.table
	t.mu.Lock()
	defer t.mu.Unlock()

	if prev, ok := s.without[m]; ok {
		return prev
	}
	components, tags := s.components, s.tags
	if m.Tag {
		tags = removeSorted(tags, m.ID)
	} else {
		components = removeSorted(components, m.ID)
	}
	prev := t.intern(components, tags)
	prev.link(m, s)
	return prev
}

// link records that adding m to s yields next. Expects table.mu to be held.
func (s *Signature) link(m Member, next *Signature) {
	if s.with == nil {
		s.with = make(map[Member]*Signature, 4)
	}
	if next.without == nil {
		next.without = make(map[Member]*Signature, 4)
	}
	s.with[m] = next
	next.without[m] = s
}

func (s *Signature) String() string {
	var sb strings.Builder
	sb.WriteString("{")
	for i, c := range s.components {
		if i > 0 {
			sb.WriteString(",")
		}
		sb.WriteString("c")
		sb.WriteString(strconv.FormatUint(uint64(c), 10))
	}
	if len(s.tags) > 0 {
		sb.WriteString("|")
	}
	for i, t := range s.tags {
		if i > 0 {
			sb.WriteString(",")
		}
		sb.WriteString("t")
		sb.WriteString(strconv.FormatUint(uint64(t), 10))
	}
	sb.WriteString("}")
	return sb.String()
}

// -------------------------------------------------------------------------------------------------
// Interning
// -------------------------------------------------------------------------------------------------

// signatureTable interns signatures by the xxhash of their canonical member list.
type signatureTable struct {
	mu      sync.Mutex
	buckets map[uint64][]*Signature
	all     []*Signature
}

// Signature returns the interned signature for the given members. Order and duplicates do not
// matter. Members are not checked against the registry here; CreateEntity rejects signatures with
// unknown or relation members.
func (r *Registry) Signature(members ...Member) *Signature {
	components := make([]uint32, 0, len(members))
	var tags []uint32
	for _, m := range members {
		if m.Tag {
			tags = append(tags, m.ID)
		} else {
			components = append(components, m.ID)
		}
	}
	slices.Sort(components)
	components = slices.Compact(components)
	slices.Sort(tags)
	tags = slices.Compact(tags)

	r.signatures.mu.Lock()
	defer r.signatures.mu.Unlock()
	return r.signatures.intern(components, tags)
}

// EmptySignature returns the signature with no members.
func (r *Registry) EmptySignature() *Signature {
	return r.Signature()
}

// SignatureCount returns the number of interned signatures.
func (r *Registry) SignatureCount() int {
	r.signatures.mu.Lock()
	defer r.signatures.mu.Unlock()
	return len(r.signatures.all)
}

// intern returns the existing signature for the sorted, deduplicated member lists or creates it.
// The slices are copied when a new signature is created. Expects mu to be held.
func (t *signatureTable) intern(components, tags []uint32) *Signature {
	h := hashMembers(components, tags)
	for _, s := range t.buckets[h] {
		if slices.Equal(s.components, components) && slices.Equal(s.tags, tags) {
			return s
		}
	}

	s := &Signature{
		id:         uint32(len(t.all)), //nolint:gosec // bounded by memory
		hash:       h,
		components: slices.Clone(components),
		tags:       slices.Clone(tags),
		table:      t,
	}
	for _, c := range components {
		s.compBits.Set(c)
	}
	for _, tag := range tags {
		s.tagBits.Set(tag)
	}
	assert.That(s.compBits.Count() == len(components), "signature components are not deduplicated")

	t.buckets[h] = append(t.buckets[h], s)
	t.all = append(t.all, s)
	return s
}

func hashMembers(components, tags []uint32) uint64 {
	var stack [64]byte
	buf := stack[:0]
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(components))) //nolint:gosec // small
	for _, c := range components {
		buf = binary.LittleEndian.AppendUint32(buf, c)
	}
	for _, t := range tags {
		buf = binary.LittleEndian.AppendUint32(buf, t)
	}
	return xxhash.Sum64(buf)
}

func insertSorted(s []uint32, v uint32) []uint32 {
	i, _ := slices.BinarySearch(s, v)
	return slices.Insert(slices.Clone(s), i, v)
}

func removeSorted(s []uint32, v uint32) []uint32 {
	i, found := slices.BinarySearch(s, v)
	assert.That(found, "removing a member the signature does not have")
	return slices.Delete(slices.Clone(s), i, i+1)
}
