// Package chaos corrupts SQL sources so tests can check that scanning,
// parsing and resolution survive malformed input without panicking.
package chaos

import (
	"bytes"
	"math/rand/v2"
)

// Mutation is one kind of corruption.
type Mutation int

const (
	ByteFlip Mutation = iota
	ByteDelete
	ByteInsert
	Truncate
	DropParen
	InjectKeyword
	InjectQuote
	SwapLines
	mutationCount
)

// fragments are spliced into sources by InjectKeyword. They open the
// constructs the parser and resolver treat specially.
var fragments = [][]byte{
	[]byte(" SELECT "), []byte(" FROM "), []byte(" WITH "), []byte(" AS "),
	[]byte(" JOIN "), []byte(" USING ("), []byte(" NATURAL "), []byte("."),
	[]byte(".*"), []byte(" CREATE VIEW "), []byte(" CREATE TABLE "),
	[]byte("\nlabel:\n"), []byte(";"), []byte(","), []byte(" ? "),
	[]byte("`"), []byte("["), []byte("-- "), []byte("/*"),
}

// Corruptor applies seeded, reproducible mutations.
type Corruptor struct {
	rng *rand.Rand
}

// NewCorruptor creates a Corruptor with the given seed.
func NewCorruptor(seed uint64) *Corruptor {
	return &Corruptor{rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

// Corrupt returns a copy of input with one random mutation applied.
func (c *Corruptor) Corrupt(input []byte) []byte {
	return c.Apply(Mutation(c.rng.IntN(int(mutationCount))), input)
}

// Apply returns a copy of input with mutation m applied.
func (c *Corruptor) Apply(m Mutation, input []byte) []byte {
	out := bytes.Clone(input)
	if len(out) == 0 {
		return c.splice(out, fragments[c.rng.IntN(len(fragments))])
	}
	switch m {
	case ByteFlip:
		for range c.rng.IntN(3) + 1 {
			out[c.rng.IntN(len(out))] ^= byte(1 << c.rng.IntN(8))
		}
	case ByteDelete:
		i := c.rng.IntN(len(out))
		out = append(out[:i], out[i+1:]...)
	case ByteInsert:
		out = c.splice(out, []byte{byte(c.rng.IntN(256))})
	case Truncate:
		out = out[:c.rng.IntN(len(out))]
	case DropParen:
		out = c.dropOne(out, '(', ')')
	case InjectKeyword:
		out = c.splice(out, fragments[c.rng.IntN(len(fragments))])
	case InjectQuote:
		out = c.splice(out, [][]byte{{'\''}, {'"'}}[c.rng.IntN(2)])
	case SwapLines:
		lines := bytes.Split(out, []byte("\n"))
		if len(lines) > 1 {
			i, j := c.rng.IntN(len(lines)), c.rng.IntN(len(lines))
			lines[i], lines[j] = lines[j], lines[i]
		}
		out = bytes.Join(lines, []byte("\n"))
	}
	return out
}

// CorruptN applies n random mutations in sequence.
func (c *Corruptor) CorruptN(input []byte, n int) []byte {
	out := input
	for range n {
		out = c.Corrupt(out)
	}
	return bytes.Clone(out)
}

// GenerateCorpus returns count corruptions of valid with one to five
// mutations each.
func (c *Corruptor) GenerateCorpus(valid []byte, count int) [][]byte {
	corpus := make([][]byte, count)
	for i := range corpus {
		corpus[i] = c.CorruptN(valid, c.rng.IntN(5)+1)
	}
	return corpus
}

func (c *Corruptor) splice(input, fragment []byte) []byte {
	i := c.rng.IntN(len(input) + 1)
	out := make([]byte, 0, len(input)+len(fragment))
	out = append(out, input[:i]...)
	out = append(out, fragment...)
	return append(out, input[i:]...)
}

// dropOne removes one randomly chosen occurrence of opening or closing.
func (c *Corruptor) dropOne(input []byte, opening, closing byte) []byte {
	var at []int
	for i, b := range input {
		if b == opening || b == closing {
			at = append(at, i)
		}
	}
	if len(at) == 0 {
		return input
	}
	i := at[c.rng.IntN(len(at))]
	return append(input[:i], input[i+1:]...)
}
