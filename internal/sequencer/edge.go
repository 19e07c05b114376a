package sequencer

// EdgeDetector turns raw active-low button samples into one-shot press
// events. Sampling at the step period is the debounce.
type EdgeDetector struct {
	prev bool // logical pressed level of the previous sample
}

// Sample records one raw line level and reports whether it is the first
// pressed sample after a released one. A held button yields one event.
func (e *EdgeDetector) Sample(raw bool) bool {
	pressed := !raw
	edge := pressed && !e.prev
	e.prev = pressed
	return edge
}

// Pressed returns the logical level of the last sample.
func (e *EdgeDetector) Pressed() bool {
	return e.prev
}
