package broadcast

import (
	"testing"

	"github.com/malbeclabs/l2switch/internal/frameio/fake"
	"github.com/malbeclabs/l2switch/internal/iface"
)

func TestSendSkipsIngressOnly(t *testing.T) {
	s := iface.NewStack()
	a := iface.New("a", fake.NewHandle(4))
	hb := fake.NewHandle(4)
	b := iface.New("b", hb)
	hc := fake.NewHandle(4)
	c := iface.New("c", hc)
	s.Add(a)
	s.Add(b)
	s.Add(c)

	bc := New(s)
	bc.Send([]byte("frame"), a)

	select {
	case <-hb.Outbound:
	default:
		t.Fatal("expected b to receive the frame")
	}
	select {
	case <-hc.Outbound:
	default:
		t.Fatal("expected c to receive the frame")
	}
}
