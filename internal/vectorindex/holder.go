package vectorindex

import "sync/atomic"

// Holder publishes the active index. Readers call Current once per query
// and keep using that snapshot; a rebuild prepares a new index and Swaps it
// in without blocking or disturbing in-flight searches.
type Holder struct {
	active atomic.Pointer[FlatIndex]
}

func NewHolder(ix *FlatIndex) *Holder {
	h := &Holder{}
	if ix != nil {
		h.active.Store(ix)
	}
	return h
}

// Current returns the active index, or nil before the first load.
func (h *Holder) Current() *FlatIndex {
	return h.active.Load()
}

// Swap installs ix and returns the previous index.
func (h *Holder) Swap(ix *FlatIndex) *FlatIndex {
	return h.active.Swap(ix)
}

// Len is the record count of the active index, 0 when none is loaded.
func (h *Holder) Len() int {
	if ix := h.Current(); ix != nil {
		return ix.Len()
	}
	return 0
}
