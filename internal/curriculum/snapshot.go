package curriculum

import (
	"encoding/binary"
	"encoding/hex"
	"math"
	"sort"

	"golang.org/x/crypto/blake2b"
)

// Snapshot holds one learner's submissions and scores as read at some
// instant. Missing records simply mean "not yet submitted" or "not played".
type Snapshot struct {
	UserID      string
	submissions map[string]Submission
	scores      map[string][]ScoreRecord
}

// NewSnapshot indexes records by item. Records belonging to other learners
// are ignored. When several submissions exist for an item, the most advanced
// one wins.
func NewSnapshot(userID string, submissions []Submission, scores []ScoreRecord) Snapshot {
	s := Snapshot{
		UserID:      userID,
		submissions: make(map[string]Submission),
		scores:      make(map[string][]ScoreRecord),
	}
	for _, sub := range submissions {
		if sub.UserID != userID {
			continue
		}
		prev, ok := s.submissions[sub.ItemID]
		if !ok || sub.Status.rank() > prev.Status.rank() {
			s.submissions[sub.ItemID] = sub
		}
	}
	for _, sc := range scores {
		if sc.UserID != userID {
			continue
		}
		s.scores[sc.ItemID] = append(s.scores[sc.ItemID], sc)
	}
	return s
}

// Evidence returns the records known for an item.
func (s Snapshot) Evidence(itemID string) Evidence {
	ev := Evidence{Scores: s.scores[itemID]}
	if sub, ok := s.submissions[itemID]; ok {
		ev.Submission = &sub
	}
	return ev
}

// Submission returns the learner's submission for an item, if any.
func (s Snapshot) Submission(itemID string) (Submission, bool) {
	sub, ok := s.submissions[itemID]
	return sub, ok
}

// Scores returns the learner's score records for an item.
func (s Snapshot) Scores(itemID string) []ScoreRecord {
	return s.scores[itemID]
}

// Fingerprint is a stable digest of the course layout and the snapshot
// contents, independent of the order records were read in. Anything that can
// change the learner's progress changes the digest, so handlers use it as an
// ETag.
func (s Snapshot) Fingerprint(c Course) string {
	h, _ := blake2b.New256(nil)
	h.Write([]byte(c.ID))
	h.Write([]byte{0})
	h.Write([]byte(s.UserID))
	h.Write([]byte{0})
	for _, m := range c.Modules {
		h.Write([]byte(m.ID))
		h.Write([]byte{2})
		for _, it := range m.Items {
			h.Write([]byte(it.ID))
			h.Write([]byte{0})
			h.Write([]byte(it.Kind))
			if it.Published {
				h.Write([]byte{1})
			} else {
				h.Write([]byte{0})
			}
		}
	}

	var buf [8]byte
	for _, itemID := range sortedKeys(s.submissions) {
		sub := s.submissions[itemID]
		h.Write([]byte(itemID))
		h.Write([]byte{0})
		h.Write([]byte(sub.Status))
		h.Write([]byte{0})
		if sub.Grade != nil {
			binary.BigEndian.PutUint64(buf[:], math.Float64bits(*sub.Grade))
			h.Write(buf[:])
		}
	}
	for _, itemID := range sortedKeys(s.scores) {
		values := make([]float64, 0, len(s.scores[itemID]))
		for _, sc := range s.scores[itemID] {
			values = append(values, sc.Score)
		}
		sort.Float64s(values)
		h.Write([]byte(itemID))
		h.Write([]byte{1})
		for _, v := range values {
			binary.BigEndian.PutUint64(buf[:], math.Float64bits(v))
			h.Write(buf[:])
		}
	}
	return hex.EncodeToString(h.Sum(nil))
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
