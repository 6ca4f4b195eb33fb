package portscan

import (
	"net"
	"sync"
	"time"

	"github.com/netrecon/netrecon/internal/packet"
)

// rawDemux shares one packet.RawSocket across every concurrent probe
// for its protocol (§5: "Raw sockets: shared by protocol; writes are
// serialized per socket because the OS layer expects one writer at a
// time"). Send is serialized through send's mutex; a single background
// reader drains the socket and fans each received packet out to every
// currently-subscribed probe, since the OS only lets one reader drain
// a given raw socket's queue and per-port readers would otherwise
// race each other for the same replies.
type rawDemux struct {
	sock packet.RawSocket

	sendMu sync.Mutex

	subMu  sync.Mutex
	subs   map[int]chan []byte
	nextID int

	stop     chan struct{}
	stopOnce sync.Once
}

func newRawDemux(sock packet.RawSocket) *rawDemux {
	d := &rawDemux{
		sock: sock,
		subs: make(map[int]chan []byte),
		stop: make(chan struct{}),
	}
	go d.loop()
	return d
}

// loop is the demux's sole reader: it owns every Recv call on sock for
// the lifetime of the demux.
func (d *rawDemux) loop() {
	buf := make([]byte, 65535)
	for {
		select {
		case <-d.stop:
			return
		default:
		}
		n, _, err := d.sock.Recv(buf, 250*time.Millisecond)
		if err != nil {
			// Timeout is expected idle polling; any other error (socket
			// closing underneath us, etc.) just means try again until
			// Close stops the loop.
			continue
		}
		pkt := append([]byte(nil), buf[:n]...)
		d.subMu.Lock()
		for _, ch := range d.subs {
			select {
			case ch <- pkt:
			default: // a slow/backed-up subscriber drops packets rather than stalling the reader
			}
		}
		d.subMu.Unlock()
	}
}

// subscribe registers a new listener for every packet the demux reads
// from here on. The caller must unsubscribe when done to stop leaking
// the channel.
func (d *rawDemux) subscribe() (id int, ch chan []byte) {
	d.subMu.Lock()
	defer d.subMu.Unlock()
	id = d.nextID
	d.nextID++
	ch = make(chan []byte, 32)
	d.subs[id] = ch
	return id, ch
}

func (d *rawDemux) unsubscribe(id int) {
	d.subMu.Lock()
	defer d.subMu.Unlock()
	delete(d.subs, id)
}

// send serializes writes to the shared socket per §5.
func (d *rawDemux) send(dst net.IP, pkt []byte) error {
	d.sendMu.Lock()
	defer d.sendMu.Unlock()
	return d.sock.Send(dst, pkt)
}

func (d *rawDemux) close() error {
	d.stopOnce.Do(func() { close(d.stop) })
	return d.sock.Close()
}
