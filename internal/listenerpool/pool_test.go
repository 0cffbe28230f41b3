package listenerpool

import (
	"context"
	"net"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/taxygo/taxy/internal/model"
	"github.com/taxygo/taxy/internal/multiaddr"
	"github.com/taxygo/taxy/internal/shortid"
)

func TestUpdateBindsAndClosesListeners(t *testing.T) {
	id, _ := shortid.Parse("port1")
	listen, _ := multiaddr.Parse("/ip4/127.0.0.1/tcp/0")

	pool := New(zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ports := []model.PortEntry{{ID: id, Port: model.Port{Active: true, Listen: listen}}}
	pool.Update(ctx, ports, nil, nil, multiaddr.Multiaddr{}, false, nil)
	time.Sleep(20 * time.Millisecond)

	status := pool.Status()
	st, ok := status[id]
	if !ok {
		t.Fatal("expected port to be tracked")
	}
	if st.State.Socket != model.SocketListening {
		t.Fatalf("expected listening, got %v", st.State.Socket)
	}

	pool.Update(ctx, nil, nil, nil, multiaddr.Multiaddr{}, false, nil)
	status = pool.Status()
	if _, ok := status[id]; ok {
		t.Fatal("expected port to be removed after update with no ports")
	}
}

func TestClassifyListenErrorAddressInUse(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()

	_, err = net.Listen("tcp", ln.Addr().String())
	if err == nil {
		t.Fatal("expected bind failure on already-used address")
	}
	if got := classifyListenError(err); got != model.SocketAddressAlreadyInUse {
		t.Fatalf("expected address-in-use, got %v", got)
	}
}
