package diff

import (
	difflib "github.com/pmezard/go-difflib/difflib"
)

// editScript returns the opcodes of a shortest edit script turning a into b,
// in the form difflib's SequenceMatcher reports them. Lines are compared
// whole, terminators included.
//
// The search is Myers' O(ND) algorithm in its linear-space, divide and
// conquer form: find the middle snake of the shortest path, split there and
// recurse on both halves.
func editScript(a, b []string) []difflib.OpCode {
	ids := make(map[string]int, len(a)+len(b))
	intern := func(lines []string) []int {
		out := make([]int, len(lines))
		for i, l := range lines {
			id, ok := ids[l]
			if !ok {
				id = len(ids)
				ids[l] = id
			}
			out[i] = id
		}
		return out
	}

	m := &myers{
		a:        intern(a),
		b:        intern(b),
		deleted:  make([]bool, len(a)),
		inserted: make([]bool, len(b)),
	}
	m.compare(0, len(a), 0, len(b))
	return m.opCodes()
}

// myers marks the lines of a that are deleted and the lines of b that are
// inserted. Unmarked lines pair up in order and form a longest common
// subsequence.
type myers struct {
	a, b     []int
	deleted  []bool
	inserted []bool
}

func (m *myers) compare(aLo, aHi, bLo, bHi int) {
	for aLo < aHi && bLo < bHi && m.a[aLo] == m.b[bLo] {
		aLo++
		bLo++
	}
	for aLo < aHi && bLo < bHi && m.a[aHi-1] == m.b[bHi-1] {
		aHi--
		bHi--
	}

	switch {
	case aLo == aHi:
		m.insert(bLo, bHi)
	case bLo == bHi:
		m.delete(aLo, aHi)
	case aHi-aLo == 1:
		m.single(aLo, bLo, bHi, m.a, m.b, m.inserted, m.deleted)
	case bHi-bLo == 1:
		m.single(bLo, aLo, aHi, m.b, m.a, m.deleted, m.inserted)
	default:
		x, y, ok := m.middleSnake(aLo, aHi, bLo, bHi)
		if !ok || (x == aLo && y == bLo) || (x == aHi && y == bHi) {
			m.delete(aLo, aHi)
			m.insert(bLo, bHi)
			return
		}
		m.compare(aLo, x, bLo, y)
		m.compare(x, aHi, y, bHi)
	}
}

// single handles a one-line side: the line survives if the other side holds
// it anywhere, and everything else on the other side is an edit.
func (m *myers) single(at, lo, hi int, one, other []int, otherMarks, oneMarks []bool) {
	keep := -1
	for i := lo; i < hi; i++ {
		if other[i] == one[at] {
			keep = i
			break
		}
	}
	for i := lo; i < hi; i++ {
		if i != keep {
			otherMarks[i] = true
		}
	}
	if keep < 0 {
		oneMarks[at] = true
	}
}

func (m *myers) insert(lo, hi int) {
	for j := lo; j < hi; j++ {
		m.inserted[j] = true
	}
}

func (m *myers) delete(lo, hi int) {
	for i := lo; i < hi; i++ {
		m.deleted[i] = true
	}
}

// middleSnake runs the forward and reverse searches until they overlap and
// returns the point where the forward path reached the overlap. ok is false
// when the two ranges share no line at all.
func (m *myers) middleSnake(aLo, aHi, bLo, bHi int) (x, y int, ok bool) {
	a, b := m.a[aLo:aHi], m.b[bLo:bHi]
	n, mm := len(a), len(b)

	maxD := (n + mm + 1) / 2
	vOffset := maxD
	vLength := 2*maxD + 2
	v1 := make([]int, vLength)
	v2 := make([]int, vLength)
	for i := range v1 {
		v1[i] = -1
		v2[i] = -1
	}
	v1[vOffset+1] = 0
	v2[vOffset+1] = 0

	delta := n - mm
	// With an odd delta the paths meet while extending forward.
	front := delta%2 != 0
	var k1start, k1end, k2start, k2end int

	for d := 0; d < maxD; d++ {
		for k1 := -d + k1start; k1 <= d-k1end; k1 += 2 {
			k1Offset := vOffset + k1
			var x1 int
			if k1 == -d || (k1 != d && v1[k1Offset-1] < v1[k1Offset+1]) {
				x1 = v1[k1Offset+1]
			} else {
				x1 = v1[k1Offset-1] + 1
			}
			y1 := x1 - k1
			for x1 < n && y1 < mm && a[x1] == b[y1] {
				x1++
				y1++
			}
			v1[k1Offset] = x1

			switch {
			case x1 > n:
				k1end += 2
			case y1 > mm:
				k1start += 2
			case front:
				k2Offset := vOffset + delta - k1
				if k2Offset >= 0 && k2Offset < vLength && v2[k2Offset] != -1 && x1 >= n-v2[k2Offset] {
					return aLo + x1, bLo + y1, true
				}
			}
		}

		for k2 := -d + k2start; k2 <= d-k2end; k2 += 2 {
			k2Offset := vOffset + k2
			var x2 int
			if k2 == -d || (k2 != d && v2[k2Offset-1] < v2[k2Offset+1]) {
				x2 = v2[k2Offset+1]
			} else {
				x2 = v2[k2Offset-1] + 1
			}
			y2 := x2 - k2
			for x2 < n && y2 < mm && a[n-x2-1] == b[mm-y2-1] {
				x2++
				y2++
			}
			v2[k2Offset] = x2

			switch {
			case x2 > n:
				k2end += 2
			case y2 > mm:
				k2start += 2
			case !front:
				k1Offset := vOffset + delta - k2
				if k1Offset >= 0 && k1Offset < vLength && v1[k1Offset] != -1 {
					x1 := v1[k1Offset]
					y1 := x1 - (k1Offset - vOffset)
					if x1 >= n-x2 {
						return aLo + x1, bLo + y1, true
					}
				}
			}
		}
	}
	return 0, 0, false
}

// opCodes turns the marks into equal/replace/delete/insert runs.
func (m *myers) opCodes() []difflib.OpCode {
	n, mm := len(m.a), len(m.b)
	var codes []difflib.OpCode

	i, j := 0, 0
	for i < n || j < mm {
		i0, j0 := i, j
		if i < n && j < mm && !m.deleted[i] && !m.inserted[j] {
			for i < n && j < mm && !m.deleted[i] && !m.inserted[j] {
				i++
				j++
			}
			codes = append(codes, difflib.OpCode{Tag: 'e', I1: i0, I2: i, J1: j0, J2: j})
			continue
		}

		for i < n && m.deleted[i] {
			i++
		}
		for j < mm && m.inserted[j] {
			j++
		}
		if i == i0 && j == j0 {
			// Unpaired lines on one side only; close out the rest as an edit.
			i, j = n, mm
		}

		tag := byte('r')
		switch {
		case i == i0:
			tag = 'i'
		case j == j0:
			tag = 'd'
		}
		codes = append(codes, difflib.OpCode{Tag: tag, I1: i0, I2: i, J1: j0, J2: j})
	}
	return codes
}

// groupOpCodes splits codes into hunks with up to n lines of context, the
// way difflib's GetGroupedOpCodes does.
func groupOpCodes(codes []difflib.OpCode, n int) [][]difflib.OpCode {
	if len(codes) == 0 {
		return nil
	}
	codes = append([]difflib.OpCode(nil), codes...)

	if c := codes[0]; c.Tag == 'e' {
		codes[0] = difflib.OpCode{Tag: 'e', I1: max(c.I1, c.I2-n), I2: c.I2, J1: max(c.J1, c.J2-n), J2: c.J2}
	}
	if c := codes[len(codes)-1]; c.Tag == 'e' {
		codes[len(codes)-1] = difflib.OpCode{Tag: 'e', I1: c.I1, I2: min(c.I2, c.I1+n), J1: c.J1, J2: min(c.J2, c.J1+n)}
	}

	var groups [][]difflib.OpCode
	var group []difflib.OpCode
	for _, c := range codes {
		i1, i2, j1, j2 := c.I1, c.I2, c.J1, c.J2
		if c.Tag == 'e' && i2-i1 > 2*n {
			group = append(group, difflib.OpCode{Tag: 'e', I1: i1, I2: min(i2, i1+n), J1: j1, J2: min(j2, j1+n)})
			groups = append(groups, group)
			group = nil
			i1, j1 = max(i1, i2-n), max(j1, j2-n)
		}
		group = append(group, difflib.OpCode{Tag: c.Tag, I1: i1, I2: i2, J1: j1, J2: j2})
	}
	if len(group) > 0 && !(len(group) == 1 && group[0].Tag == 'e') {
		groups = append(groups, group)
	}
	return groups
}
