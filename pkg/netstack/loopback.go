/**
 * Copyright (c) 2022, Xerra Earth Observation Institute.
 * Copyright (c) 2025, Simeon Miteff.
 *
 * See LICENSE.TXT in the root directory of this source tree.
 */

package netstack

import "fmt"

// LoopbackDevice is a vfs.NetDevice with no real link: every frame
// handed to Transmit is handed straight back to an attached Stack's
// DeliverFrame, for demos and tests that want a working send/receive
// round trip without real hardware.
type LoopbackDevice struct {
	name  string
	stack *Stack
}

// NewLoopbackDevice constructs a named loopback device. Attach must be
// called before any frame is transmitted through it.
func NewLoopbackDevice(name string) *LoopbackDevice {
	return &LoopbackDevice{name: name}
}

// Name returns the device's configured name, matched against
// ipv4.Route.Device by Stack.Send.
func (d *LoopbackDevice) Name() string { return d.name }

// Attach binds the Stack that receives every frame this device
// transmits.
func (d *LoopbackDevice) Attach(s *Stack) { d.stack = s }

// Transmit hands frame straight to the attached Stack's DeliverFrame.
func (d *LoopbackDevice) Transmit(frame []byte) error {
	if d.stack == nil {
		return fmt.Errorf("netstack: loopback device %q has no attached stack", d.name)
	}
	cp := make([]byte, len(frame))
	copy(cp, frame)
	return d.stack.DeliverFrame(cp)
}
