package emv

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/danmuck/emvtap/internal/protocol/tlv"
)

// Response template and data object tags read by the cycle.
const (
	TagFCITemplate            tlv.Tag = 0x6F
	TagDFName                 tlv.Tag = 0x84
	TagApplicationTemplate    tlv.Tag = 0x61
	TagAID                    tlv.Tag = 0x4F
	TagApplicationLabel       tlv.Tag = 0x50
	TagApplicationPriority    tlv.Tag = 0x87
	TagPDOL                   tlv.Tag = 0x9F38
	TagResponseFormat1        tlv.Tag = 0x80
	TagResponseFormat2        tlv.Tag = 0x77
	TagApplicationInterchange tlv.Tag = 0x82
	TagAFL                    tlv.Tag = 0x94
	TagRecordTemplate         tlv.Tag = 0x70
)

const (
	minAIDLen = 5
	maxAIDLen = 16

	// absentPriority ranks one step below the lowest explicit priority.
	absentPriority = 0x100
)

// Candidate is one application listed by the discovery response.
type Candidate struct {
	AID         []byte
	Label       string
	Priority    uint8
	HasPriority bool
}

func (c Candidate) rank() int {
	if !c.HasPriority {
		return absentPriority
	}
	return int(c.Priority)
}

func (c Candidate) AIDHex() string {
	return strings.ToUpper(hex.EncodeToString(c.AID))
}

func (c Candidate) String() string {
	prio := "none"
	if c.HasPriority {
		prio = fmt.Sprintf("%d", c.Priority)
	}
	if c.Label == "" {
		return fmt.Sprintf("%s (priority %s)", c.AIDHex(), prio)
	}
	return fmt.Sprintf("%s %q (priority %s)", c.AIDHex(), c.Label, prio)
}

// Candidates lists every application template carrying a usable AID, in
// encounter order. Templates are the first 61 found depth-first and its
// same-tag siblings.
func Candidates(tree *tlv.Tree) []Candidate {
	var out []Candidate
	node, ok := tree.Find(TagApplicationTemplate)
	for ok {
		if c, valid := candidateFrom(node); valid {
			out = append(out, c)
		}
		node, ok = node.Next()
	}
	return out
}

func candidateFrom(template tlv.Node) (Candidate, bool) {
	aid, ok := template.Child(TagAID)
	if !ok || aid.Len() < minAIDLen || aid.Len() > maxAIDLen {
		return Candidate{}, false
	}
	c := Candidate{AID: aid.Value()}
	if label, ok := template.Child(TagApplicationLabel); ok {
		c.Label = string(label.Value())
	}
	if prio, ok := template.Child(TagApplicationPriority); ok && prio.Len() > 0 {
		c.Priority = prio.Value()[0]
		c.HasPriority = true
	}
	return c, true
}

// SelectCandidate picks the preferred application: the lowest priority value
// wins, a missing priority loses to any explicit one, and ties go to the
// first candidate encountered.
func SelectCandidate(tree *tlv.Tree) (Candidate, error) {
	var (
		best  Candidate
		found bool
	)
	for _, c := range Candidates(tree) {
		if !found || c.rank() < best.rank() {
			best = c
			found = true
		}
	}
	if !found {
		return Candidate{}, ErrNoCandidate
	}
	return best, nil
}
