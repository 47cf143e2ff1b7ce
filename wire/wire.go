// Package wire holds the formats knob exchanges with the outside world:
// raw samples shared by the daemon, the serial source and the firmware,
// and the JSON event message sent to listeners. A sample is the level of
// the CLK, DT and SW pins at one instant, as read on the pins.
package wire

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

const (
	bitCLK = 1 << iota
	bitDT
	bitSW

	bitsMask = bitCLK | bitDT | bitSW
)

// Sample holds three pin levels.
type Sample struct {
	CLK, DT, SW bool
}

// Byte packs s as bit0 CLK, bit1 DT, bit2 SW.
func (s Sample) Byte() byte {
	var b byte
	if s.CLK {
		b |= bitCLK
	}
	if s.DT {
		b |= bitDT
	}
	if s.SW {
		b |= bitSW
	}
	return b
}

// FromByte unpacks b. It reports false when any of bits 3-7 is set.
func FromByte(b byte) (Sample, bool) {
	if b&^bitsMask != 0 {
		return Sample{}, false
	}
	return Sample{CLK: b&bitCLK != 0, DT: b&bitDT != 0, SW: b&bitSW != 0}, true
}

// String returns the text form "<clk> <dt> <sw>", each level 0 or 1.
func (s Sample) String() string {
	return level(s.CLK) + " " + level(s.DT) + " " + level(s.SW)
}

// Level reads one pin out of a sample held elsewhere. It satisfies
// encoder.Pin, so an encoder can be bound to samples instead of hardware.
type Level struct {
	s    *Sample
	mask byte
}

// Get reports the level of the pin.
func (l Level) Get() bool {
	return l.s.Byte()&l.mask != 0
}

// Pins returns the three pins of s. They read s at the time of the call to
// Get, not at the time Pins was called.
func (s *Sample) Pins() (clk, dt, sw Level) {
	return Level{s, bitCLK}, Level{s, bitDT}, Level{s, bitSW}
}

// ParseSample reads the three levels from fields.
func ParseSample(fields []string) (Sample, error) {
	if len(fields) != 3 {
		return Sample{}, fmt.Errorf("want 3 levels, got %d", len(fields))
	}
	var v [3]bool
	for i, f := range fields {
		switch f {
		case "0":
		case "1":
			v[i] = true
		default:
			return Sample{}, fmt.Errorf("bad level %q", f)
		}
	}
	return Sample{CLK: v[0], DT: v[1], SW: v[2]}, nil
}

func level(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

// Tick is a sample taken at a millisecond timestamp.
type Tick struct {
	Millis uint32
	Sample Sample
}

// String returns the trace line form "tick <ms> <clk> <dt> <sw>".
func (t Tick) String() string {
	return "tick " + strconv.FormatUint(uint64(t.Millis), 10) + " " + t.Sample.String()
}

// ParseTick parses one trace line.
func ParseTick(line string) (Tick, error) {
	fields := strings.Fields(line)
	if len(fields) != 5 || fields[0] != "tick" {
		return Tick{}, fmt.Errorf("not a tick line: %q", line)
	}
	ms, err := strconv.ParseUint(fields[1], 10, 32)
	if err != nil {
		return Tick{}, fmt.Errorf("bad timestamp %q: %w", fields[1], err)
	}
	s, err := ParseSample(fields[2:])
	if err != nil {
		return Tick{}, err
	}
	return Tick{Millis: uint32(ms), Sample: s}, nil
}

// ParseTrace reads a trace: one tick line per sample, blank lines and
// lines starting with '#' ignored. Errors name the offending line.
func ParseTrace(r io.Reader) ([]Tick, error) {
	var ticks []Tick
	sc := bufio.NewScanner(r)
	n := 0
	for sc.Scan() {
		n++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		t, err := ParseTick(line)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", n, err)
		}
		ticks = append(ticks, t)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read trace: %w", err)
	}
	return ticks, nil
}

// WriteTick writes t as one trace line.
func WriteTick(w io.Writer, t Tick) error {
	_, err := io.WriteString(w, t.String()+"\n")
	return err
}
