package execctx

import (
	"github.com/uber-go/atomic"
)

// Progress tracks rows and bytes processed so far by one query. Every handle cloned
// from the same context shares these counters.
type Progress struct {
	rows  *atomic.Int64
	bytes *atomic.Int64
}

func NewProgress() *Progress {
	return &Progress{
		rows:  atomic.NewInt64(0),
		bytes: atomic.NewInt64(0),
	}
}

func (p *Progress) IncrRows(n int64) {
	p.rows.Add(n)
}

func (p *Progress) IncrBytes(n int64) {
	p.bytes.Add(n)
}

func (p *Progress) Rows() int64 {
	return p.rows.Load()
}

func (p *Progress) Bytes() int64 {
	return p.bytes.Load()
}

func (p *Progress) Reset() {
	p.rows.Store(0)
	p.bytes.Store(0)
}
