package testutil

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// Update records one UpdateDoc call.
type Update struct {
	Class string
	Space string
	ID    string
	Attrs map[string]any
}

// Connection is an in-memory workspace transactor. Documents are held as
// decoded JSON objects per class.
type Connection struct {
	mu     sync.Mutex
	docs   map[string][]map[string]any
	closed bool

	FindErr   error
	UpdateErr error
	Updates   []Update
	Closes    int
}

func NewConnection() *Connection {
	return &Connection{docs: map[string][]map[string]any{}}
}

// Add stores doc (any JSON-encodable value) under class.
func (c *Connection) Add(class string, doc any) {
	raw, err := json.Marshal(doc)
	if err != nil {
		panic(err)
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		panic(err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.docs[class] = append(c.docs[class], m)
}

func matches(doc, query map[string]any) bool {
	for k, v := range query {
		if fmt.Sprint(doc[k]) != fmt.Sprint(v) {
			return false
		}
	}
	return true
}

func (c *Connection) find(class string, query map[string]any) []map[string]any {
	var out []map[string]any
	for _, d := range c.docs[class] {
		if matches(d, query) {
			out = append(out, d)
		}
	}
	return out
}

func (c *Connection) FindOne(ctx context.Context, class string, query map[string]any, dest any) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.FindErr != nil {
		return false, c.FindErr
	}
	found := c.find(class, query)
	if len(found) == 0 {
		return false, nil
	}
	return true, remarshal(found[0], dest)
}

func (c *Connection) FindAll(ctx context.Context, class string, query map[string]any, dest any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.FindErr != nil {
		return c.FindErr
	}
	found := c.find(class, query)
	if found == nil {
		found = []map[string]any{}
	}
	return remarshal(found, dest)
}

func (c *Connection) UpdateDoc(ctx context.Context, class, space, id string, attrs map[string]any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.UpdateErr != nil {
		return c.UpdateErr
	}
	c.Updates = append(c.Updates, Update{Class: class, Space: space, ID: id, Attrs: attrs})
	for _, d := range c.docs[class] {
		if d["_id"] == id {
			for k, v := range attrs {
				d[k] = v
			}
		}
	}
	return nil
}

func (c *Connection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.Closes++
	return nil
}

func (c *Connection) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Connection) UpdateCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.Updates)
}

// Doc returns the stored document with the given id.
func (c *Connection) Doc(class, id string) map[string]any {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, d := range c.docs[class] {
		if d["_id"] == id {
			return d
		}
	}
	return nil
}

func remarshal(src, dest any) error {
	raw, err := json.Marshal(src)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, dest)
}
