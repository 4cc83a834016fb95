// Package pci implements the framed packet control interface shared by the
// three boards: a byte-streaming parser with resync and checksum validation
// on the receive side, and a simple assembler on the send side.
package pci

// Type identifies the kind of command or telemetry a Packet carries.
type Type uint8

// Command identifiers, big-endian on the wire. Unknown values decode to
// Invalid.
const (
	GetUptime  Type = 0x00
	GetBattLvl Type = 0x01

	GetAccelReading Type = 0x20

	SetDDSEnable  Type = 0x10
	SetDDSSpeed   Type = 0x11
	GetDDSSpeed   Type = 0x13
	SetDDSParams  Type = 0x14
	GetDDSParams  Type = 0x15

	SetSystemPowerEnable          Type = 0x39
	SetActuatorPowerEnable        Type = 0x40
	SetActuatorInputLimitOverride Type = 0x41
	SetUSBIFEnable                Type = 0x42
	ReqSoftPWDN                   Type = 0x43
	GetPMStatus                   Type = 0x44
	GetUSBStatus                  Type = 0x45

	GetChargerStatus        Type = 0x60
	SetLiftActuatorPosition Type = 0x70
	GetLiftActuatorPosition Type = 0x71
	SetLiftActuatorSpeed    Type = 0x72
	GetLimitSwitchState     Type = 0x73
	CalibrateLiftActuator   Type = 0x74
	EmerStopLiftActuator    Type = 0x75
	GetLiftActuatorState    Type = 0x76

	SetEMChargeEnable  Type = 0x80
	SetEMDischargeMode Type = 0x81
	GetEMAccumVoltage  Type = 0x82

	GetRFRange   Type = 0x90
	GetRFAmbient Type = 0x91

	ReadNFC  Type = 0xA0
	WriteNFC Type = 0xA1

	ReadSMBusByte         Type = 0xC0
	ReadSMBusByteData     Type = 0xC1
	ReadSMBusWordData     Type = 0xC2
	ReadSMBusBlockData    Type = 0xC3
	ReadSMBusI2CBlockData Type = 0xC4

	WriteSMBusByte         Type = 0xD0
	WriteSMBusByteData     Type = 0xD1
	WriteSMBusWordData     Type = 0xD2
	WriteSMBusBlockData    Type = 0xD3
	WriteSMBusI2CBlockData Type = 0xD4

	// Invalid is returned for any type_id not recognized above.
	Invalid Type = 0xFF
)

var knownTypes = map[Type]bool{
	GetUptime: true, GetBattLvl: true, GetAccelReading: true,
	SetDDSEnable: true, SetDDSSpeed: true, GetDDSSpeed: true, SetDDSParams: true, GetDDSParams: true,
	SetSystemPowerEnable: true, SetActuatorPowerEnable: true, SetActuatorInputLimitOverride: true,
	SetUSBIFEnable: true, ReqSoftPWDN: true, GetPMStatus: true, GetUSBStatus: true,
	GetChargerStatus: true, SetLiftActuatorPosition: true, GetLiftActuatorPosition: true,
	SetLiftActuatorSpeed: true, GetLimitSwitchState: true, CalibrateLiftActuator: true,
	EmerStopLiftActuator: true, GetLiftActuatorState: true,
	SetEMChargeEnable: true, SetEMDischargeMode: true, GetEMAccumVoltage: true,
	GetRFRange: true, GetRFAmbient: true, ReadNFC: true, WriteNFC: true,
	ReadSMBusByte: true, ReadSMBusByteData: true, ReadSMBusWordData: true,
	ReadSMBusBlockData: true, ReadSMBusI2CBlockData: true,
	WriteSMBusByte: true, WriteSMBusByteData: true, WriteSMBusWordData: true,
	WriteSMBusBlockData: true, WriteSMBusI2CBlockData: true,
}

// resolveType maps a raw wire type_id to a known Type, or Invalid.
func resolveType(raw uint8) Type {
	t := Type(raw)
	if knownTypes[t] {
		return t
	}
	return Invalid
}

// Packet is a parsed, type-tagged frame.
type Packet struct {
	Type Type
	Data []byte
}

// Wire framing constants, matching the host tooling's sentinels.
const (
	Preamble1  byte = 0xF0
	Preamble2  byte = 0xCA
	Postamble1 byte = 0x53
	Postamble2 byte = 0x0F

	// NonDataSize is the number of non-payload bytes in a frame:
	// 2 preamble + 1 type + 1 length + 1 checksum + 2 postamble.
	NonDataSize = 7

	typeOffset      = 2
	dataLengthOff   = 3
	dataStartOffset = 4

	// RecvBufferCapacity bounds the largest frame the parser can hold.
	RecvBufferCapacity = 32
	// TxCapacity bounds the largest frame Send can assemble.
	TxCapacity = 32
)

// checksum is the 8-bit wrapping sum of buf[typeOffset:typeOffset+n].
func checksum(buf []byte, n int) byte {
	var sum byte
	for _, b := range buf[typeOffset : typeOffset+n] {
		sum += b
	}
	return sum
}
