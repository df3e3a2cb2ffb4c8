package emac

import (
	"encoding/hex"
	"io"
)

// hwAddrString formats a MAC address using ':' separator.
func hwAddrString(hw [6]byte) string {
	var buf [17]byte
	for i, b := range hw {
		if i > 0 {
			buf[i*3-1] = ':'
		}
		hex.Encode(buf[i*3:], []byte{b})
	}
	return string(buf[:])
}

// DumpFrame writes an Ethernet frame to w: addresses and EtherType
// first, then the remaining bytes in hex.
func DumpFrame(w io.Writer, frame []byte) {
	if len(frame) < 14 {
		io.WriteString(w, "short frame\n")
		DumpHex(w, frame)
		return
	}
	var src, dst [6]byte
	copy(dst[:], frame[0:6])
	copy(src[:], frame[6:12])
	io.WriteString(w, "Source:      "+hwAddrString(src)+"\n")
	io.WriteString(w, "Destination: "+hwAddrString(dst)+"\n")
	io.WriteString(w, "EtherType: 0x"+hex.EncodeToString(frame[12:14])+"\n\nData:\n")
	DumpHex(w, frame[14:])
}

// DumpHex writes data in lines of 32 bytes, grouped by eight, each line
// prefixed by its offset.
func DumpHex(w io.Writer, data []byte) {
	var line []byte
	for i := 0; i < len(data); i += 32 {
		end := min(i+32, len(data))

		line = hex.AppendEncode(line[:0], []byte{byte(i >> 8), byte(i)})
		line = append(line, ':', ' ')
		for j := i; j < end; j++ {
			if j > i {
				if (j-i)%8 == 0 {
					line = append(line, ' ')
				}
				if (j-i)%16 == 0 {
					line = append(line, ' ', ' ')
				}
			}
			line = hex.AppendEncode(line, data[j:j+1])
			line = append(line, ' ')
		}
		line = append(line, '\n')
		w.Write(line)
	}
}

// Dump writes the descriptor words to w.
func (d *RxDescriptor) Dump(w io.Writer) {
	io.WriteString(w, "RX descriptor:\n")
	dumpDescWord(w, 0, d.rdes0.Get())
	dumpDescWord(w, 1, d.rdes1.Get())
	dumpDescWord(w, 2, d.rdes2.Get())
	dumpDescWord(w, 3, d.rdes3.Get())
}

func (d *TxDescriptor) Dump(w io.Writer) {
	io.WriteString(w, "TX descriptor:\n")
	dumpDescWord(w, 0, d.tdes0.Get())
	dumpDescWord(w, 1, d.tdes1.Get())
	dumpDescWord(w, 2, d.tdes2.Get())
	dumpDescWord(w, 3, d.tdes3.Get())
}

func dumpDescWord(w io.Writer, i int, v uint32) {
	var outbuf [24]byte

	b := append(outbuf[:0], "  Word "...)
	b = append(b, '0'+byte(i), ':', ' ', '0', 'x')
	b = hex.AppendEncode(b, []byte{byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v)})
	b = append(b, '\n')
	w.Write(b)
}
