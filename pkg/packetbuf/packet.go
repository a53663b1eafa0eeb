package packetbuf

import "io"

// packetKind identifies how a packet's payload is produced and released.
type packetKind uint8

const (
	// packetCopy holds a pooled copy of caller data.
	packetCopy packetKind = iota
	// packetOwned holds caller data whose ownership moved to the buffer.
	packetOwned
	// packetFile streams an open file in bounded chunks.
	packetFile
	// packetClose marks the point after which the connection should close.
	packetClose
)

// packet is one scheduled unit of output. Memory packets carry their whole
// payload in data; file packets load one chunk at a time into data and keep
// the source file open until it reports EOF.
type packet struct {
	kind packetKind

	data   []byte
	off    int
	pooled bool

	// File packets only.
	file    io.ReadCloser
	started bool
	eof     bool
}

// unsent returns the not-yet-consumed part of the loaded payload.
func (p *packet) unsent() []byte {
	return p.data[p.off:]
}

// inFlight reports whether transmission of this packet has begun. An urgent
// insert must not displace an in-flight packet, or the receiver would see
// its bytes interleaved with the newcomer's.
func (p *packet) inFlight() bool {
	if p.kind == packetFile {
		return p.started
	}
	return p.off > 0
}

// release frees the packet's resources. Pooled slabs go back to their pool
// and an open file is closed. The packet must not be used afterwards.
func (p *packet) release() {
	if p.pooled && p.data != nil {
		recycleSlab(p.data)
	}
	p.data = nil
	p.pooled = false
	if p.file != nil {
		_ = p.file.Close()
		p.file = nil
	}
}
