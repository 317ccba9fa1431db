package dict

import (
	"math"
	"math/bits"
	"unsafe"

	"github.com/pkg/errors"
)

// nextExp returns the smallest exponent e with 2^e >= max(size, initialSize).
// Sizes at or below the initial size short-circuit to initialExp before the
// bit-length computation so size==1 never reaches Len64(0). Sizes of
// math.MaxInt64 and above saturate to 63.
func nextExp(size uint64) int8 {
	if size <= initialSize {
		return initialExp
	}
	if size >= math.MaxInt64 {
		return 63
	}
	return int8(bits.Len64(size - 1))
}

// expand grows (or shrinks, via Resize) the Dict to hold size entries. The
// new bucket array becomes T[1] and migration starts, except for the very
// first allocation which installs T[0] directly.
func (d *Dict) expand(size uint64) error {
	if d.IsRehashing() || d.ht[0].used > size {
		return ErrInvalidOperation
	}

	exp := nextExp(size)
	newSize := uint64(1) << uint(exp)
	if newSize < size {
		return errors.Wrap(ErrInvalidOperation, "table size overflow")
	}

	// Rehashing to the same exponent is pointless.
	if exp == d.ht[0].exp {
		return ErrInvalidOperation
	}

	buckets := make([]*Entry, newSize)

	if d.ht[0].exp == -1 {
		// First allocation: no migration needed.
		d.ht[0] = table{buckets: buckets, exp: exp}
		return nil
	}

	d.ht[1] = table{buckets: buckets, exp: exp}
	d.rehashIdx = 0

	if exp > d.ht[0].exp {
		metricGrows.Inc()
	} else {
		metricShrinks.Inc()
	}
	d.migration.resizeStarted(d.ht[0].size(), newSize, d.ht[0].used)
	return nil
}

// Expand grows the Dict so that at least size entries fit without another
// resize. Growing to the current size is an error.
func (d *Dict) Expand(size uint64) error {
	return d.expand(size)
}

// TryExpand is the error-returning expansion entry point. It behaves exactly
// like Expand and returns the same errors; a failed bucket allocation is not
// turned into an error by either.
func (d *Dict) TryExpand(size uint64) error {
	return d.expand(size)
}

// Resize shrinks (or grows) the table to the smallest power of two holding
// the current entries.
func (d *Dict) Resize() error {
	if d.cfg.ResizePolicy != ResizeEnable || d.IsRehashing() {
		return ErrInvalidOperation
	}
	minimal := d.ht[0].used
	if minimal < initialSize {
		minimal = initialSize
	}
	return d.expand(minimal)
}

// expandIfNeeded is the insertion fast-path growth trigger.
func (d *Dict) expandIfNeeded() error {
	if d.IsRehashing() {
		return nil
	}

	if d.ht[0].exp == -1 {
		return d.expand(initialSize)
	}

	used, size := d.ht[0].used, d.ht[0].size()
	if (d.cfg.ResizePolicy == ResizeEnable && used >= size) ||
		(d.cfg.ResizePolicy != ResizeForbid && used > forceResizeRatio*size) {
		if !d.expandAllowed(used+1, float64(used)/float64(size)) {
			return nil
		}
		return d.expand(used + 1)
	}
	return nil
}

// expandAllowed consults the type's veto for an expansion to hold size
// entries. A veto is not an error: the insert proceeds on the current table.
func (d *Dict) expandAllowed(size uint64, usedRatio float64) bool {
	if d.typ.ExpandAllowed == nil {
		return true
	}
	allocBytes := (uint64(1) << uint(nextExp(size))) * uint64(unsafe.Sizeof((*Entry)(nil)))
	return d.typ.ExpandAllowed(allocBytes, usedRatio)
}
