package main

import "machine"

// ringPin is the NeoPixel data pin. D0 on the XIAO RP2040.
var ringPin = machine.GPIO26

func main() {
	machine.Serial.Configure(machine.UARTConfig{})

	d := NewDevice(machine.Serial, ringPin)
	d.Run()
}
