package bytestore

import (
	"strings"
	"sync"
)

// Counting wraps a Store and counts operations per key suffix (".unlinked",
// ".linked", ".errors"). Tests use it to assert that cache hits skip
// recomputation and that content twins produce a single write.
type Counting struct {
	inner Store

	mu     sync.Mutex
	gets   map[string]int
	hits   map[string]int
	puts   map[string]int
	putLog []string
}

func NewCounting(inner Store) *Counting {
	return &Counting{
		inner: inner,
		gets:  make(map[string]int),
		hits:  make(map[string]int),
		puts:  make(map[string]int),
	}
}

func (c *Counting) Get(key string) ([]byte, bool) {
	data, ok := c.inner.Get(key)
	c.mu.Lock()
	c.gets[suffix(key)]++
	if ok {
		c.hits[suffix(key)]++
	}
	c.mu.Unlock()
	return data, ok
}

func (c *Counting) Put(key string, data []byte) {
	c.mu.Lock()
	c.puts[suffix(key)]++
	c.putLog = append(c.putLog, key)
	c.mu.Unlock()
	c.inner.Put(key, data)
}

// Gets returns the number of Get calls for keys with the given suffix.
func (c *Counting) Gets(suffix string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gets[suffix]
}

// Hits returns the number of successful Gets for keys with the given suffix.
func (c *Counting) Hits(suffix string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits[suffix]
}

// Puts returns the number of Put calls for keys with the given suffix.
func (c *Counting) Puts(suffix string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.puts[suffix]
}

// PutKeys returns every key written, in order.
func (c *Counting) PutKeys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.putLog...)
}

// Reset clears all counters but not the underlying store.
func (c *Counting) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gets = make(map[string]int)
	c.hits = make(map[string]int)
	c.puts = make(map[string]int)
	c.putLog = nil
}

func suffix(key string) string {
	if i := strings.LastIndexByte(key, '.'); i >= 0 {
		return key[i:]
	}
	return ""
}
