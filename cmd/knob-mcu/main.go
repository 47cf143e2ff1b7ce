//go:build tinygo

// Command knob-mcu runs the encoder on a microcontroller. In decode mode it
// prints events on the console and flashes a WS2812 pixel; in forward mode
// it streams raw samples over the serial port for the "serial" source of
// knobd.
//
//	tinygo flash -target pico ./cmd/knob-mcu
//	tinygo flash -target pico -ldflags "-X main.mode=forward" ./cmd/knob-mcu
package main

import (
	"image/color"
	"machine"
	"time"

	"tinygo.org/x/drivers/ws2812"

	"knob/encoder"
	"knob/wire"
)

const (
	pinCLK   = machine.GPIO2
	pinDT    = machine.GPIO3
	pinSW    = machine.GPIO4
	pinPixel = machine.GPIO16
)

var mode = "decode"

var (
	colorOff   = color.RGBA{}
	colorRight = color.RGBA{G: 0x40}
	colorLeft  = color.RGBA{B: 0x40}
	colorFast  = color.RGBA{R: 0x40, G: 0x40}
	colorPress = color.RGBA{R: 0x40}
	colorHold  = color.RGBA{R: 0x40, B: 0x40}
)

func main() {
	time.Sleep(2 * time.Second)

	for _, p := range []machine.Pin{pinCLK, pinDT, pinSW} {
		p.Configure(machine.PinConfig{Mode: machine.PinInputPullup})
	}

	if mode == "forward" {
		forward()
	}
	decode()
}

// forward writes one sample byte per level change.
func forward() {
	serial := machine.Serial
	var last byte = 0xFF
	for {
		s := wire.Sample{CLK: pinCLK.Get(), DT: pinDT.Get(), SW: pinSW.Get()}
		if b := s.Byte(); b != last {
			if _, err := serial.Write([]byte{b}); err != nil {
				println("serial write:", err.Error())
			}
			last = b
		}
		time.Sleep(200 * time.Microsecond)
	}
}

func decode() {
	pinPixel.Configure(machine.PinConfig{Mode: machine.PinOutput})
	pixel := ws2812.New(pinPixel)
	show := func(c color.RGBA) {
		if err := pixel.WriteColors([]color.RGBA{c}); err != nil {
			println("pixel:", err.Error())
		}
	}
	show(colorOff)

	enc := encoder.NewEncoderWithButton(pinCLK, pinDT, pinSW)
	events := make([]encoder.Event, 0, 16)
	var litAt time.Time
	for {
		enc.Poll()
		events = enc.Events(events[:0])
		for _, ev := range events {
			println(ev.String())
			if c, ok := eventColor(ev); ok {
				show(c)
				litAt = time.Now()
			}
		}
		if !litAt.IsZero() && time.Since(litAt) > 50*time.Millisecond && !enc.IsHolding() {
			show(colorOff)
			litAt = time.Time{}
		}
		time.Sleep(time.Millisecond)
	}
}

func eventColor(ev encoder.Event) (color.RGBA, bool) {
	switch ev {
	case encoder.FastRight, encoder.FastLeft:
		return colorFast, true
	case encoder.Right, encoder.RightHeld:
		return colorRight, true
	case encoder.Left, encoder.LeftHeld:
		return colorLeft, true
	case encoder.Press:
		return colorPress, true
	case encoder.Hold:
		return colorHold, true
	}
	return color.RGBA{}, false
}
