package docstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MemoryStore keeps JSON-encoded documents in process memory. It backs
// STORE_DRIVER=memory and every service test.
type MemoryStore struct {
	mu          sync.Mutex
	collections map[string]*memoryCollection
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{collections: make(map[string]*memoryCollection)}
}

func (s *MemoryStore) Collection(name string) Collection {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.collections[name]
	if !ok {
		c = &memoryCollection{name: name}
		s.collections[name] = c
	}
	return c
}

func (s *MemoryStore) Ping(context.Context) error  { return nil }
func (s *MemoryStore) Close(context.Context) error { return nil }

type memoryEntry struct {
	id  string
	raw []byte
}

type memoryCollection struct {
	name string
	mu   sync.RWMutex
	docs []memoryEntry
}

func (c *memoryCollection) Name() string { return c.name }

func (c *memoryCollection) Insert(_ context.Context, doc Document) error {
	if doc.DocumentID() == "" {
		doc.SetDocumentID(uuid.NewString())
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode %s document: %w", c.name, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, e := range c.docs {
		if e.id == doc.DocumentID() {
			return fmt.Errorf("insert %s: duplicate id %s", c.name, e.id)
		}
	}
	c.docs = append(c.docs, memoryEntry{id: doc.DocumentID(), raw: raw})
	return nil
}

func (c *memoryCollection) FindOne(_ context.Context, f Filter, out Document) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, e := range c.docs {
		ok, err := matches(e.raw, f)
		if err != nil {
			return err
		}
		if ok {
			return json.Unmarshal(e.raw, out)
		}
	}
	return ErrNotFound
}

func (c *memoryCollection) Find(_ context.Context, f Filter, opts FindOptions, out interface{}) error {
	c.mu.RLock()
	var hits [][]byte
	for _, e := range c.docs {
		ok, err := matches(e.raw, f)
		if err != nil {
			c.mu.RUnlock()
			return err
		}
		if ok {
			hits = append(hits, e.raw)
		}
	}
	c.mu.RUnlock()

	if opts.Sort != nil {
		if err := sortDocs(hits, *opts.Sort); err != nil {
			return err
		}
	}
	if opts.Limit > 0 && len(hits) > opts.Limit {
		hits = hits[:opts.Limit]
	}

	var buf bytes.Buffer
	buf.WriteByte('[')
	buf.Write(bytes.Join(hits, []byte(",")))
	buf.WriteByte(']')
	return json.Unmarshal(buf.Bytes(), out)
}

func (c *memoryCollection) Replace(_ context.Context, doc Document) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode %s document: %w", c.name, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for i, e := range c.docs {
		if e.id == doc.DocumentID() {
			c.docs[i].raw = raw
			return nil
		}
	}
	return ErrNotFound
}

func (c *memoryCollection) Delete(_ context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, e := range c.docs {
		if e.id == id {
			c.docs = append(c.docs[:i], c.docs[i+1:]...)
			return nil
		}
	}
	return ErrNotFound
}

func (c *memoryCollection) Count(_ context.Context, f Filter) (int64, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var n int64
	for _, e := range c.docs {
		ok, err := matches(e.raw, f)
		if err != nil {
			return 0, err
		}
		if ok {
			n++
		}
	}
	return n, nil
}

func decodeFields(raw []byte) (map[string]interface{}, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var m map[string]interface{}
	if err := dec.Decode(&m); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	return m, nil
}

// fieldText mirrors Postgres' ->> operator: scalars become text, null and
// missing fields do not match anything.
func fieldText(m map[string]interface{}, field string) (string, bool) {
	v, ok := m[field]
	if !ok || v == nil {
		return "", false
	}
	switch x := v.(type) {
	case string:
		return x, true
	case json.Number:
		return x.String(), true
	case bool:
		return textValue(x), true
	default:
		b, _ := json.Marshal(x)
		return string(b), true
	}
}

func matches(raw []byte, f Filter) (bool, error) {
	if len(f) == 0 {
		return true, nil
	}
	m, err := decodeFields(raw)
	if err != nil {
		return false, err
	}
	for _, cond := range f {
		got, ok := fieldText(m, cond.Field)
		if !ok {
			return false, nil
		}
		switch cond.Op {
		case OpEq:
			if got != textValue(cond.Value) {
				return false, nil
			}
		case OpGt:
			have, err := decimal.NewFromString(got)
			if err != nil {
				return false, nil
			}
			want, err := decimal.NewFromString(textValue(cond.Value))
			if err != nil {
				return false, fmt.Errorf("docstore: non-numeric bound for %s: %v", cond.Field, cond.Value)
			}
			if !have.GreaterThan(want) {
				return false, nil
			}
		default:
			return false, fmt.Errorf("docstore: unsupported operator %d", cond.Op)
		}
	}
	return true, nil
}

func sortDocs(docs [][]byte, s Sort) error {
	keys := make([]string, len(docs))
	for i, raw := range docs {
		m, err := decodeFields(raw)
		if err != nil {
			return err
		}
		keys[i], _ = fieldText(m, s.Field)
	}

	less := func(a, b string) bool { return strings.Compare(a, b) < 0 }
	if s.Chrono {
		less = func(a, b string) bool { return parseInstant(a).Before(parseInstant(b)) }
	}

	idx := make([]int, len(docs))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(i, j int) bool {
		a, b := keys[idx[i]], keys[idx[j]]
		if s.Desc {
			return less(b, a)
		}
		return less(a, b)
	})

	sorted := make([][]byte, len(docs))
	for i, j := range idx {
		sorted[i] = docs[j]
	}
	copy(docs, sorted)
	return nil
}

func parseInstant(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
