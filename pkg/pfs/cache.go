package pfs

import (
	"sync"

	"golang.org/x/sync/singleflight"
)

// ClientCache hands out one shared Client per gateway address. Entries live
// for the life of the process; a configuration whose address changes simply
// leaves its old entry idle.
type ClientCache struct {
	mu      sync.RWMutex
	clients map[string]*Client
	group   singleflight.Group
}

func NewClientCache() *ClientCache {
	return &ClientCache{
		clients: make(map[string]*Client),
	}
}

// Get returns the client for address, constructing it on first use.
// Concurrent first calls for the same address construct exactly one client.
func (c *ClientCache) Get(address string) (*Client, error) {
	c.mu.RLock()
	client, ok := c.clients[address]
	c.mu.RUnlock()
	if ok {
		return client, nil
	}

	v, err, _ := c.group.Do(address, func() (interface{}, error) {
		client, err := NewClient(address)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.clients[address] = client
		c.mu.Unlock()
		return client, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Client), nil
}
