package main

import (
	"fmt"
	"machine"

	"libdb.so/ufosync/ledserial"
	"libdb.so/ufosync/ring/internal/uartio"
	"tinygo.org/x/drivers/ws2812"
)

// Device stores the current state of the ring controller.
type Device struct {
	serial *uartio.Stream
	ring   ws2812.Device

	// pix is the last received frame, 3 bytes per LED.
	pix        []byte
	numLEDs    uint16
	brightness uint8
}

// NewDevice creates a new ring controller on the given data pin.
func NewDevice(serial machine.Serialer, ringPin machine.Pin) *Device {
	ringPin.Configure(machine.PinConfig{Mode: machine.PinOutput})
	return &Device{
		serial: uartio.Wrap(serial),
		ring:   ws2812.New(ringPin),
	}
}

// Run runs the controller loop forever.
func (d *Device) Run() {
	for {
		p, err := d.readPacket()
		if err != nil {
			d.logError(err)
			continue
		}

		if err := d.handlePacket(p); err != nil {
			d.logError(err)
		}
	}
}

func (d *Device) log(msg string) {
	d.sendPacket(ledserial.LogPacket{Message: msg})
}

func (d *Device) logError(err error) {
	d.sendPacket(ledserial.ErrorPacket{Message: err.Error()})
}

func (d *Device) sendPacket(p ledserial.OutgoingPacket) {
	ledserial.WriteOutgoingPacket(d.serial, p)
}

func (d *Device) readPacket() (ledserial.IncomingPacket, error) {
	return ledserial.ReadIncomingPacket(d.serial, ledserial.ReadContext{
		NumLEDs: d.numLEDs,
	})
}

func (d *Device) handlePacket(p ledserial.IncomingPacket) error {
	switch p := p.(type) {
	case ledserial.InitializePacket:
		if p.NumLEDs < 1 {
			return fmt.Errorf("invalid number of LEDs: %d", p.NumLEDs)
		}
		d.numLEDs = p.NumLEDs
		d.brightness = p.Brightness
		d.pix = make([]byte, 3*int(p.NumLEDs))
		d.show()
		d.log(fmt.Sprintf("ring ready: %d LEDs", p.NumLEDs))

	case ledserial.ClearPacket:
		if d.pix == nil {
			return fmt.Errorf("clear before initialize")
		}
		for i := range d.pix {
			d.pix[i] = 0
		}
		d.show()

	case ledserial.FramePacket:
		if d.pix == nil {
			return fmt.Errorf("frame before initialize")
		}
		copy(d.pix, p.Pix)
		d.show()

	case ledserial.BrightnessPacket:
		if d.pix == nil {
			return fmt.Errorf("brightness before initialize")
		}
		d.brightness = p.Brightness
		d.show()

	default:
		return fmt.Errorf("unknown packet type: %T", p)
	}

	d.sendPacket(ledserial.AckPacket{
		IncomingPacketType: p.Type(),
	})
	return nil
}

// show pushes the frame to the strip, scaling each channel by the global
// brightness on the way out. The frame itself keeps full range so brightness
// changes do not accumulate rounding loss.
func (d *Device) show() {
	for _, b := range d.pix {
		d.ring.WriteByte(scale(b, d.brightness))
	}
}

func scale(channel, brightness uint8) uint8 {
	return uint8(uint16(channel) * uint16(brightness) / 255)
}
