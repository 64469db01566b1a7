package dsp

// DelayLine implements a circular buffer for delay
type DelayLine struct {
	buffer   []float64
	writePos int
}

// NewDelayLine creates a new delay line holding size samples.
func NewDelayLine(size int) *DelayLine {
	if size < 1 {
		size = 1
	}
	return &DelayLine{buffer: make([]float64, size)}
}

// Len returns the capacity in samples.
func (d *DelayLine) Len() int { return len(d.buffer) }

// Write writes a sample to the delay line
func (d *DelayLine) Write(sample float64) {
	d.buffer[d.writePos] = sample
	d.writePos = (d.writePos + 1) % len(d.buffer)
}

// Read reads the sample written delay samples ago (1 = most recent).
func (d *DelayLine) Read(delay int) float64 {
	n := len(d.buffer)
	if delay < 1 {
		delay = 1
	}
	if delay > n {
		delay = n
	}
	return d.buffer[(d.writePos-delay+n)%n]
}

// ReadFractional reads with fractional delay using linear interpolation
func (d *DelayLine) ReadFractional(delay float64) float64 {
	intDelay := int(delay)
	frac := delay - float64(intDelay)
	s1 := d.Read(intDelay)
	s2 := d.Read(intDelay + 1)
	return s1 + frac*(s2-s1)
}

// Reset clears the delay line
func (d *DelayLine) Reset() {
	for i := range d.buffer {
		d.buffer[i] = 0
	}
	d.writePos = 0
}
