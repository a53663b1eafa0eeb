package sink

import (
	"testing"

	"github.com/vnykmshr/outbound/internal/testutil"
	"github.com/vnykmshr/outbound/pkg/packetbuf"
)

func TestDiscardAcceptsEverything(t *testing.T) {
	n, err := Discard.Send(nil, nil, []byte("hello"))
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, n, 5)

	n, err = Discard.Send(nil, nil, nil)
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, n, 0)
}

func TestDiscardDrainsBuffer(t *testing.T) {
	buf := packetbuf.New(nil)
	defer func() { _ = buf.Close() }()
	buf.SetHook(Discard)

	_, err := buf.Write([]byte("alpha"))
	testutil.AssertNoError(t, err)
	_, err = buf.Write([]byte("beta"))
	testutil.AssertNoError(t, err)

	// No destination is needed when every byte is dropped.
	n, err := buf.Flush(nil)
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, n, 9)
	testutil.AssertEqual(t, buf.IsEmpty(), true)
}
