package book

import (
	"sync"
	"testing"

	"twap_go/internal/domain"
)

func TestSetGet(t *testing.T) {
	s := New()

	if _, ok := s.Get("BTCUSDT"); ok {
		t.Error("unknown symbol should not be tracked")
	}

	s.Init("BTCUSDT")
	e, ok := s.Get("BTCUSDT")
	if !ok {
		t.Fatal("initialized symbol should be tracked")
	}
	if e.Bid != 0 || e.Ask != 0 {
		t.Error("initialized entry must be zero until first ticker")
	}

	s.Set("BTCUSDT", 50000, 50001)
	e, _ = s.Get("BTCUSDT")
	if e.Bid != 50000 || e.Ask != 50001 {
		t.Errorf("unexpected entry after Set: %+v", e)
	}
}

func TestInitDoesNotClobber(t *testing.T) {
	s := New()
	s.Set("ETHUSDT", 3000, 3001)
	s.Init("ETHUSDT")

	e, _ := s.Get("ETHUSDT")
	if e.Bid != 3000 {
		t.Error("Init must not reset an entry that already has data")
	}
}

func TestSnapshotIsCopy(t *testing.T) {
	s := New()
	s.Set("BTCUSDT", 1, 2)

	snap := s.Snapshot()
	snap["BTCUSDT"] = domain.OrderBookEntry{Bid: 9, Ask: 9}

	e, _ := s.Get("BTCUSDT")
	if e.Bid != 1 {
		t.Error("mutating a snapshot must not touch live state")
	}
}

// Readers must always observe a consistent {bid, ask} pair while a writer
// replaces entries. Run with -race.
func TestConcurrentReadWrite(t *testing.T) {
	s := New()
	s.Set("BTCUSDT", 100, 101)

	stop := make(chan struct{})
	writerDone := make(chan struct{})

	go func() {
		defer close(writerDone)
		for i := 0; ; i++ {
			select {
			case <-stop:
				return
			default:
			}
			v := float64(100 + i%10)
			s.Set("BTCUSDT", v, v+1)
		}
	}()

	var wg sync.WaitGroup
	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 1000; i++ {
				e, ok := s.Get("BTCUSDT")
				if !ok {
					t.Error("symbol vanished during reads")
					return
				}
				if e.Ask != e.Bid+1 {
					t.Errorf("torn read: %+v", e)
					return
				}
			}
		}()
	}

	wg.Wait()
	close(stop)
	<-writerDone
}
