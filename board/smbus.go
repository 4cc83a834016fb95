package board

import "tribot.dev/pci"

// SMBusDevice is the generic register-transaction surface every board
// exposes its local I2C segment through for the wire protocol's SMBus
// passthrough commands (0xC0-0xC4 read, 0xD0-0xD4 write). driver/i2cdev.
// Bridge satisfies it directly.
type SMBusDevice interface {
	ReadByte(addr uint8) (byte, error)
	WriteByte(addr uint8, data byte) error
	ReadByteData(addr, reg uint8) (byte, error)
	WriteByteData(addr, reg, data uint8) error
	ReadWordData(addr, reg uint8) (uint16, error)
	WriteWordData(addr, reg uint8, data uint16) error
	ReadBlockData(addr, reg uint8, maxLen int) ([]byte, error)
	WriteBlockData(addr, reg uint8, data []byte) error
	ReadI2CBlockData(addr, reg uint8, n int) ([]byte, error)
	WriteI2CBlockData(addr, reg uint8, data []byte) error
}

// maxSMBusBlock bounds block-read lengths requested over the wire to the
// frame payload budget (pci.RecvBufferCapacity minus the framing and
// addressing bytes).
const maxSMBusBlock = 24

// registerSMBusHandlers wires the ten passthrough command types (0xC0-0xC4,
// 0xD0-0xD4) to dev, on every board that exposes one. Malformed or
// over-length payloads are silently ignored, same as every other handler;
// a device-level error also drops the reply rather than propagating,
// since the wire protocol has no error-reply shape.
func registerSMBusHandlers(d *Dispatcher, dev SMBusDevice) {
	d.handle(pci.ReadSMBusByte, func(data []byte) {
		if len(data) != 1 {
			return
		}
		v, err := dev.ReadByte(data[0])
		if err != nil {
			return
		}
		d.reply(pci.ReadSMBusByte, []byte{v})
	})

	d.handle(pci.ReadSMBusByteData, func(data []byte) {
		if len(data) != 2 {
			return
		}
		v, err := dev.ReadByteData(data[0], data[1])
		if err != nil {
			return
		}
		d.reply(pci.ReadSMBusByteData, []byte{v})
	})

	d.handle(pci.ReadSMBusWordData, func(data []byte) {
		if len(data) != 2 {
			return
		}
		v, err := dev.ReadWordData(data[0], data[1])
		if err != nil {
			return
		}
		// SMBus word order is little-endian on the bus; mirrored as-is
		// on the wire rather than converted to the protocol's usual
		// big-endian, since this is a direct register passthrough.
		d.reply(pci.ReadSMBusWordData, []byte{byte(v), byte(v >> 8)})
	})

	d.handle(pci.ReadSMBusBlockData, func(data []byte) {
		if len(data) != 3 {
			return
		}
		n := int(data[2])
		if n > maxSMBusBlock {
			n = maxSMBusBlock
		}
		block, err := dev.ReadBlockData(data[0], data[1], n)
		if err != nil {
			return
		}
		d.reply(pci.ReadSMBusBlockData, block)
	})

	d.handle(pci.ReadSMBusI2CBlockData, func(data []byte) {
		if len(data) != 3 {
			return
		}
		n := int(data[2])
		if n > maxSMBusBlock {
			n = maxSMBusBlock
		}
		block, err := dev.ReadI2CBlockData(data[0], data[1], n)
		if err != nil {
			return
		}
		d.reply(pci.ReadSMBusI2CBlockData, block)
	})

	d.handle(pci.WriteSMBusByte, func(data []byte) {
		if len(data) != 2 {
			return
		}
		dev.WriteByte(data[0], data[1])
	})

	d.handle(pci.WriteSMBusByteData, func(data []byte) {
		if len(data) != 3 {
			return
		}
		dev.WriteByteData(data[0], data[1], data[2])
	})

	d.handle(pci.WriteSMBusWordData, func(data []byte) {
		if len(data) != 4 {
			return
		}
		v := uint16(data[2]) | uint16(data[3])<<8
		dev.WriteWordData(data[0], data[1], v)
	})

	d.handle(pci.WriteSMBusBlockData, func(data []byte) {
		if len(data) < 2 {
			return
		}
		dev.WriteBlockData(data[0], data[1], data[2:])
	})

	d.handle(pci.WriteSMBusI2CBlockData, func(data []byte) {
		if len(data) < 2 {
			return
		}
		dev.WriteI2CBlockData(data[0], data[1], data[2:])
	})
}
