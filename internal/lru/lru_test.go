// Copyright (c) 2025 The cqlexec Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package lru

import (
	"strconv"
	"sync"
	"testing"
)

var getTests = []struct {
	name       string
	keyToAdd   string
	keyToGet   string
	expectedOk bool
}{
	{"hit", "mykey", "mykey", true},
	{"miss", "mykey", "nonsense", false},
}

func TestGet(t *testing.T) {
	for _, tt := range getTests {
		lru := New(0)
		lru.Add(tt.keyToAdd, 1234)
		val, ok := lru.Get(tt.keyToGet)
		if ok != tt.expectedOk {
			t.Fatalf("%s: cache hit = %v; want %v", tt.name, ok, !ok)
		} else if ok && val != 1234 {
			t.Fatalf("%s expected get to return 1234 but got %v", tt.name, val)
		}
	}
}

var evictTests = []struct {
	name        string
	maxElems    int
	elemsToAdd  int
	expectedLen int
}{
	{"only_one", 10, 1, 1},
	{"just_full", 10, 10, 10},
	{"overflow", 10, 20, 10},
	{"unbounded", 0, 20, 20},
}

func TestAutomaticEviction(t *testing.T) {
	for _, tt := range evictTests {
		lru := New(tt.maxElems)
		for i := 0; i < tt.elemsToAdd; i++ {
			lru.Add(strconv.Itoa(i), i)
		}
		if lru.Len() != tt.expectedLen {
			t.Fatalf("automatic eviction, %s: expected %d got %d", tt.name, tt.expectedLen, lru.Len())
		}
	}
}

func TestEvictionOrder(t *testing.T) {
	lru := New(2)
	lru.Add("a", 1)
	lru.Add("b", 2)
	// touching a makes b the eviction candidate
	if _, ok := lru.Get("a"); !ok {
		t.Fatal("a missing before eviction")
	}
	lru.Add("c", 3)
	if _, ok := lru.Get("b"); ok {
		t.Fatal("b survived eviction despite being least recently used")
	}
	if _, ok := lru.Get("a"); !ok {
		t.Fatal("a evicted despite recent use")
	}
}

func TestRemove(t *testing.T) {
	lru := New(0)
	lru.Add("mykey", 1234)
	if val, ok := lru.Get("mykey"); !ok {
		t.Fatal("TestRemove returned no match")
	} else if val != 1234 {
		t.Fatalf("TestRemove failed. Expected %d, got %v", 1234, val)
	}

	if !lru.Remove("mykey") {
		t.Fatal("Remove reported missing entry")
	}
	if _, ok := lru.Get("mykey"); ok {
		t.Fatal("TestRemove returned a removed entry")
	}
}

func TestOnEvicted(t *testing.T) {
	var evicted []string
	lru := New(1)
	lru.OnEvicted = func(key string, _ interface{}) {
		evicted = append(evicted, key)
	}
	lru.Add("a", 1)
	lru.Add("b", 2)
	lru.RemoveOldest()
	if len(evicted) != 2 || evicted[0] != "a" || evicted[1] != "b" {
		t.Fatalf("evicted = %v, want [a b]", evicted)
	}
}

func TestConcurrentAccess(t *testing.T) {
	lru := New(32)
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				key := strconv.Itoa((g*200 + i) % 64)
				switch i % 3 {
				case 0:
					lru.Add(key, i)
				case 1:
					lru.Get(key)
				default:
					lru.Remove(key)
				}
			}
		}(g)
	}
	wg.Wait()
	if lru.Len() > 32 {
		t.Fatalf("cache grew past its bound: %d", lru.Len())
	}
}
