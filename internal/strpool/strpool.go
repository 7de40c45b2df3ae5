// internal/strpool/strpool.go
package strpool

import "fmt"

// StrID is a dense handle into the pool. Equal strings intern to equal IDs.
type StrID int

const InvalidStrID StrID = -1

// MaxStrings bounds the pool for one compilation session.
const MaxStrings = 256

// Pool is an append-only interning table. It owns all string storage for the
// session; every downstream component borrows from it read-only.
type Pool struct {
	strings []string
	ids     map[string]StrID
}

func NewPool() *Pool {
	return &Pool{
		strings: make([]string, 0, 16),
		ids:     make(map[string]StrID, 16),
	}
}

// Intern returns the ID for text, allocating one if the content is new.
func (p *Pool) Intern(text string) StrID {
	if id, ok := p.ids[text]; ok {
		return id
	}
	if len(p.strings) >= MaxStrings {
		panic(fmt.Sprintf("strpool: pool is full (%d strings), can't intern more", MaxStrings))
	}
	id := StrID(len(p.strings))
	p.strings = append(p.strings, text)
	p.ids[text] = id
	return id
}

// Find returns the text for a previously interned ID.
func (p *Pool) Find(id StrID) string {
	if id < 0 || int(id) >= len(p.strings) {
		panic(fmt.Sprintf("strpool: unknown string id %d", id))
	}
	return p.strings[id]
}

// Len reports how many distinct strings have been interned.
func (p *Pool) Len() int {
	return len(p.strings)
}
