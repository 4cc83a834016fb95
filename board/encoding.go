package board

import (
	"encoding/binary"
	"math"

	"tribot.dev/pci"
)

// Shared big-endian wire encoding helpers. spec.md §6: "multi-byte
// integers are big-endian on the wire... PID gains are sent as 4-byte
// IEEE-754 single-precision in network byte order."

func putUint16(b []byte, v uint16) { binary.BigEndian.PutUint16(b, v) }
func getUint16(b []byte) uint16    { return binary.BigEndian.Uint16(b) }

func putInt16(b []byte, v int16) { binary.BigEndian.PutUint16(b, uint16(v)) }
func getInt16(b []byte) int16    { return int16(binary.BigEndian.Uint16(b)) }

func putFloat32(b []byte, v float32) { binary.BigEndian.PutUint32(b, math.Float32bits(v)) }
func getFloat32(b []byte) float32    { return math.Float32frombits(binary.BigEndian.Uint32(b)) }

func putUint32(b []byte, v uint32) { binary.BigEndian.PutUint32(b, v) }

// BatteryReader reports a board's locally-monitored battery/supply voltage
// in millivolts. Sensact and Manip have no PMIC of their own — each reads
// a simple local voltage-divider ADC channel for GET_BATT_LVL; the PM
// board's own reading is its system battery, read through the same
// interface for uniformity.
type BatteryReader interface {
	MilliVolts() uint16
}

// batteryHandler builds the shared GET_BATT_LVL handler: no payload in,
// 2-byte big-endian millivolt reading out.
func batteryHandler(d *Dispatcher, batt BatteryReader) Handler {
	return func(data []byte) {
		if len(data) != 0 {
			return
		}
		var reply [2]byte
		putUint16(reply[:], batt.MilliVolts())
		d.reply(pci.GetBattLvl, reply[:])
	}
}

// uptimeHandler builds the shared GET_UPTIME handler: no payload in,
// 4-byte big-endian millisecond uptime out.
func uptimeHandler(d *Dispatcher) Handler {
	return func(data []byte) {
		if len(data) != 0 {
			return
		}
		var reply [4]byte
		putUint32(reply[:], d.uptimeMillis())
		d.reply(pci.GetUptime, reply[:])
	}
}
