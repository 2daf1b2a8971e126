package tlv

import (
	"errors"
)

var (
	ErrShortTag         = errors.New("tlv: short tag")
	ErrInvalidTag       = errors.New("tlv: invalid tag")
	ErrTagTooLong       = errors.New("tlv: tag too long")
	ErrShortLength      = errors.New("tlv: short length")
	ErrIndefiniteLength = errors.New("tlv: indefinite length not supported")
	ErrLengthTooLarge   = errors.New("tlv: length too large")
	ErrShortValue       = errors.New("tlv: short value")
	ErrTooDeep          = errors.New("tlv: nesting too deep")
)

const (
	maxLengthOctets = 3
	maxDepth        = 16
	none            = -1
)

// ParseLength decodes a definite BER length starting at b[off] and returns the
// length together with the offset of the first value octet.
func ParseLength(b []byte, off int) (int, int, error) {
	if off < 0 || off >= len(b) {
		return 0, off, ErrShortLength
	}
	l := b[off]
	if l < 0x80 {
		return int(l), off + 1, nil
	}
	if l == 0x80 {
		return 0, off, ErrIndefiniteLength
	}
	n := int(l & 0x7F)
	if n > maxLengthOctets {
		return 0, off, ErrLengthTooLarge
	}
	if off+1+n > len(b) {
		return 0, off, ErrShortLength
	}
	v := 0
	for _, octet := range b[off+1 : off+1+n] {
		v = v<<8 | int(octet)
	}
	return v, off + 1 + n, nil
}

// EncodeLength returns the shortest definite BER length encoding of n.
func EncodeLength(n int) []byte {
	switch {
	case n < 0x80:
		return []byte{byte(n)}
	case n <= 0xFF:
		return []byte{0x81, byte(n)}
	case n <= 0xFFFF:
		return []byte{0x82, byte(n >> 8), byte(n)}
	default:
		return []byte{0x83, byte(n >> 16), byte(n >> 8), byte(n)}
	}
}

// Encode returns one TLV object.
func Encode(tag Tag, value []byte) []byte {
	id := EncodeTag(tag)
	l := EncodeLength(len(value))
	out := make([]byte, 0, len(id)+len(l)+len(value))
	out = append(out, id...)
	out = append(out, l...)
	out = append(out, value...)
	return out
}

type node struct {
	tag        Tag
	start, end int
	parent     int
	child      int
	next       int
	depth      int
}

// Tree is a decoded BER-TLV buffer. Nodes live in one flat slice in
// depth-first order and reference each other by index. A Tree owns a private
// copy of the decoded bytes and is never mutated after Decode.
type Tree struct {
	data  []byte
	nodes []node
	roots []int
}

// Node is a read-only handle to one object of a Tree.
type Node struct {
	tree *Tree
	idx  int
}

// Decode parses every TLV object in b. Constructed objects are decoded
// recursively. 0x00 and 0xFF octets between objects are skipped as padding.
func Decode(b []byte) (*Tree, error) {
	t := &Tree{data: make([]byte, len(b))}
	copy(t.data, b)
	if err := t.decodeLevel(0, len(t.data), none, 0); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *Tree) decodeLevel(start, end, parent, depth int) error {
	if depth > maxDepth {
		return ErrTooDeep
	}
	prev := none
	for i := start; i < end; {
		if t.data[i] == 0x00 || t.data[i] == 0xFF {
			i++
			continue
		}
		tag, next, err := ParseTag(t.data[:end], i)
		if err != nil {
			return err
		}
		length, valueStart, err := ParseLength(t.data[:end], next)
		if err != nil {
			return err
		}
		if length > end-valueStart {
			return ErrShortValue
		}
		idx := len(t.nodes)
		t.nodes = append(t.nodes, node{
			tag:    tag,
			start:  valueStart,
			end:    valueStart + length,
			parent: parent,
			child:  none,
			next:   none,
			depth:  depth,
		})
		switch {
		case prev != none:
			t.nodes[prev].next = idx
		case parent != none:
			t.nodes[parent].child = idx
		}
		if parent == none {
			t.roots = append(t.roots, idx)
		}
		prev = idx
		if tag.Constructed() {
			if err := t.decodeLevel(valueStart, valueStart+length, idx, depth+1); err != nil {
				return err
			}
		}
		i = valueStart + length
	}
	return nil
}

// Len returns the number of decoded objects.
func (t *Tree) Len() int {
	return len(t.nodes)
}

// Roots returns the top-level objects in encounter order.
func (t *Tree) Roots() []Node {
	out := make([]Node, 0, len(t.roots))
	for _, idx := range t.roots {
		out = append(out, Node{tree: t, idx: idx})
	}
	return out
}

// Find returns the first object with tag in depth-first order.
func (t *Tree) Find(tag Tag) (Node, bool) {
	if t == nil {
		return Node{}, false
	}
	for idx := range t.nodes {
		if t.nodes[idx].tag == tag {
			return Node{tree: t, idx: idx}, true
		}
	}
	return Node{}, false
}

// Walk visits every object depth-first.
func (t *Tree) Walk(fn func(n Node, depth int)) {
	for idx := range t.nodes {
		fn(Node{tree: t, idx: idx}, t.nodes[idx].depth)
	}
}

func (n Node) get() node {
	return n.tree.nodes[n.idx]
}

func (n Node) Tag() Tag {
	return n.get().tag
}

// Value returns a copy of the object's value octets.
func (n Node) Value() []byte {
	nd := n.get()
	out := make([]byte, nd.end-nd.start)
	copy(out, n.tree.data[nd.start:nd.end])
	return out
}

// Len returns the length of the value octets.
func (n Node) Len() int {
	nd := n.get()
	return nd.end - nd.start
}

// Next returns the next sibling carrying the same tag.
func (n Node) Next() (Node, bool) {
	tag := n.get().tag
	for idx := n.get().next; idx != none; idx = n.tree.nodes[idx].next {
		if n.tree.nodes[idx].tag == tag {
			return Node{tree: n.tree, idx: idx}, true
		}
	}
	return Node{}, false
}

// NextSibling returns the next object at the same level regardless of tag.
func (n Node) NextSibling() (Node, bool) {
	idx := n.get().next
	if idx == none {
		return Node{}, false
	}
	return Node{tree: n.tree, idx: idx}, true
}

func (n Node) FirstChild() (Node, bool) {
	idx := n.get().child
	if idx == none {
		return Node{}, false
	}
	return Node{tree: n.tree, idx: idx}, true
}

// Child returns the first direct child carrying tag.
func (n Node) Child(tag Tag) (Node, bool) {
	for idx := n.get().child; idx != none; idx = n.tree.nodes[idx].next {
		if n.tree.nodes[idx].tag == tag {
			return Node{tree: n.tree, idx: idx}, true
		}
	}
	return Node{}, false
}

// Children returns the direct children in encounter order.
func (n Node) Children() []Node {
	var out []Node
	for idx := n.get().child; idx != none; idx = n.tree.nodes[idx].next {
		out = append(out, Node{tree: n.tree, idx: idx})
	}
	return out
}
