package executor

import (
	"bytes"
	"sync"
)

const (
	binaryMarker     = "[Binary Content]"
	binarySampleSize = 8000
)

// collector captures one output stream with a size cap and binary detection.
type collector struct {
	mu        sync.Mutex
	buffer    bytes.Buffer
	maxBytes  int
	truncated bool
	isBinary  bool

	bytesChecked int
}

func newCollector(maxBytes int) *collector {
	return &collector{maxBytes: maxBytes}
}

// Write never fails so the child is never blocked on a full pipe; bytes past
// the cap are counted as truncated and dropped.
func (c *collector) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.isBinary {
		return len(p), nil
	}

	if c.bytesChecked < binarySampleSize {
		toCheck := p
		if remaining := binarySampleSize - c.bytesChecked; len(toCheck) > remaining {
			toCheck = toCheck[:remaining]
		}
		if bytes.IndexByte(toCheck, 0) >= 0 {
			c.isBinary = true
			c.truncated = true
			c.buffer.Reset()
			return len(p), nil
		}
		c.bytesChecked += len(toCheck)
	}

	remainingSpace := c.maxBytes - c.buffer.Len()
	if remainingSpace <= 0 {
		c.truncated = true
		return len(p), nil
	}

	toWrite := p
	if len(toWrite) > remainingSpace {
		toWrite = toWrite[:remainingSpace]
		c.truncated = true
	}
	c.buffer.Write(toWrite)
	return len(p), nil
}

func (c *collector) String() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.isBinary {
		return binaryMarker
	}
	return c.buffer.String()
}

func (c *collector) Truncated() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.truncated
}
