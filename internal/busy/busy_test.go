package busy_test

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/notorious-go/hwop/internal/busy"
)

func Example() {
	f := busy.New()
	fmt.Println("Created:", f)

	fmt.Println("First raise:", f.TryRaise(), f)
	// A second transfer is rejected while the first is in flight.
	fmt.Println("Second raise:", f.TryRaise(), f)

	f.Lower()
	fmt.Println("After lower:", f)
	// Lowering twice is harmless.
	f.Lower()
	fmt.Println("After second lower:", f)

	// Output:
	// Created: idle
	// First raise: true busy
	// Second raise: false busy
	// After lower: idle
	// After second lower: idle
}

func TestNilFlag(t *testing.T) {
	var f busy.Flag
	for range 3 {
		if !f.TryRaise() {
			t.Fatal("nil Flag refused to raise")
		}
	}
	if f.Busy() {
		t.Error("nil Flag reports busy")
	}
	f.Lower()
	if got := f.String(); got != "unbounded" {
		t.Errorf("String = %q; want \"unbounded\"", got)
	}
}

func TestSingleWinner(t *testing.T) {
	f := busy.New()
	var (
		wg  sync.WaitGroup
		won atomic.Int32
	)
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if f.TryRaise() {
				won.Add(1)
			}
		}()
	}
	wg.Wait()
	if got := won.Load(); got != 1 {
		t.Fatalf("%d goroutines raised the flag; want 1", got)
	}
	if !f.Busy() {
		t.Fatal("flag not busy after a successful raise")
	}
}
