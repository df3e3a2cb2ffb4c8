package emac_test

import (
	"bytes"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/knieriem/tinygo-emac/emac"
	"github.com/knieriem/tinygo-emac/emac/dmasim"
	"github.com/knieriem/tinygo-emac/internal/phy/lan8742a"
)

var testHWAddr = [6]byte{0x02, 0x80, 0xe1, 0x00, 0x00, 0x01}

func testBuffers(nrx, ntx, size int) emac.Buffers {
	return emac.Buffers{
		RxDesc:     make([]emac.RxDescriptor, nrx),
		RxBuf:      make([]byte, nrx*size),
		TxDesc:     make([]emac.TxDescriptor, ntx),
		TxBuf:      make([]byte, ntx*size),
		BufferSize: size,
	}
}

func testConfig(b emac.Buffers, sim *dmasim.Sim) emac.Config {
	return emac.Config{
		Buffers:          b,
		HardwareAddr:     testHWAddr,
		HCLK:             168_000_000,
		Speed:            emac.Speed100,
		Duplex:           emac.FullDuplex,
		LinkPollInterval: time.Millisecond,
		LinkTimeout:      20 * time.Millisecond,
		Delay:            sim.Delay,
	}
}

// newTestEmac returns a started Emac with rings of the given sizes,
// backed by a hardware model. A LAN8742A driver talks to the model's
// PHY through the Emac's management interface.
func newTestEmac(t *testing.T, nrx, ntx, size int) (*emac.Emac, *dmasim.Sim) {
	t.Helper()
	b := testBuffers(nrx, ntx, size)
	sim := dmasim.New(b)
	m := new(emac.Emac)
	cfg := testConfig(b, sim)
	cfg.PHY = &lan8742a.PHY{MDIO: m.MDIO()}
	require.NoError(t, m.Init(sim.Regs(), cfg))
	require.NoError(t, m.Start())
	return m, sim
}

func testFrame(n int) []byte {
	f := make([]byte, n)
	for i := range f {
		f[i] = byte(i*7 + 3)
	}
	return f
}

// captureLog directs the driver's log records of at least level to the
// returned buffer until the test ends.
func captureLog(t *testing.T, level slog.Level) *bytes.Buffer {
	t.Helper()
	prev := emac.CurrentLogger()
	var buf bytes.Buffer
	emac.SetLogger(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: level})))
	t.Cleanup(func() { emac.SetLogger(prev) })
	return &buf
}
