// Command pmd runs the power-management board's firmware core: the
// system/actuator PMIC arbitration loop, USB hub and charger detection,
// indicator LEDs, and the power button, dispatched against the host over
// the framed packet control interface.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"

	"tribot.dev/board"
	"tribot.dev/driver/adc"
	"tribot.dev/driver/i2cdev"
	"tribot.dev/driver/pmic"
	"tribot.dev/driver/rgbled"
	"tribot.dev/driver/serialport"
	"tribot.dev/driver/usbhub"
	"tribot.dev/power"
)

var (
	serialDev = flag.String("serial", "", "host link serial device (platform default if empty)")
	i2cBus    = flag.String("i2c-bus", "", "periph.io i2c bus name (first available if empty)")

	sysPMICAddr = flag.Uint("sys-pmic-addr", 0x6B, "system BQ24161 i2c address")
	actPMICAddr = flag.Uint("act-pmic-addr", 0x6A, "actuator BQ24250 i2c address")

	hubExpanderAddr = flag.Uint("hub-expander-addr", 0x20, "USB hub's MCP23008 expander i2c address")
	hubAddr         = flag.Uint("hub-addr", 0x2C, "USB2532 hub i2c address")
	hubEnablePin    = flag.String("hub-enable-pin", "GPIO5", "USB hub power-enable gpio")
	hubResetPin     = flag.String("hub-reset-pin", "GPIO6", "USB hub reset gpio")

	inputLEDAddr = flag.Uint("input-led-addr", 0x62, "input-status PCA9633 i2c address")
	battLEDAddr  = flag.Uint("batt-led-addr", 0x63, "battery-status PCA9633 i2c address")

	sysBattADCAddr = flag.Uint("sys-batt-adc-addr", 0x48, "system battery adc i2c address")
	actBattADCAddr = flag.Uint("act-batt-adc-addr", 0x49, "actuator battery adc i2c address")

	systemRailPin      = flag.String("system-rail-pin", "GPIO17", "system power rail enable gpio")
	actuatorRailPin    = flag.String("actuator-rail-pin", "GPIO27", "actuator power rail enable gpio")
	passthroughRailPin = flag.String("passthrough-rail-pin", "GPIO22", "USB passthrough power rail enable gpio")

	switchPin = flag.String("power-switch-pin", "GPIO3", "power button gpio")

	smbusPass = flag.Bool("smbus-passthrough", false, "enable SMBus passthrough on the main bus")
)

const battMVPerADCCount = power.BattMVPerADCCount

type localBattery struct{ ch *adc.Channel }

func (b localBattery) MilliVolts() uint16 { return b.ch.Sample() * battMVPerADCCount }

type gpioRail struct {
	p     gpio.PinOut
	state bool
}

func (r *gpioRail) Set(enabled bool) {
	r.state = enabled
	if enabled {
		r.p.Out(gpio.High)
	} else {
		r.p.Out(gpio.Low)
	}
}

func (r *gpioRail) Get() bool { return r.state }

type gpioEnablePin struct{ p gpio.PinOut }

func (g gpioEnablePin) Set(enabled bool) {
	if enabled {
		g.p.Out(gpio.High)
	} else {
		g.p.Out(gpio.Low)
	}
}

type gpioSwitch struct{ p gpio.PinIn }

func (s gpioSwitch) Pressed() bool { return bool(s.p.Read()) }

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "run: %v", err)
		os.Exit(2)
	}
}

func run() error {
	log.SetFlags(log.Flags() &^ (log.Ldate | log.Ltime))
	flag.Parse()

	log.Println("pmd: starting")
	if _, err := host.Init(); err != nil {
		return fmt.Errorf("host init: %w", err)
	}

	port, err := serialport.Open(*serialDev)
	if err != nil {
		return fmt.Errorf("open serial link: %w", err)
	}
	defer port.Close()
	link := serialport.NewStream(port)

	bus, err := i2creg.Open(*i2cBus)
	if err != nil {
		return fmt.Errorf("open i2c bus: %w", err)
	}
	defer bus.Close()
	smbus := i2cdev.New(bus)

	sysPMIC := pmic.NewBQ24161(smbus, uint8(*sysPMICAddr))
	actPMIC := pmic.NewBQ24250(smbus, uint8(*actPMICAddr))

	hub := usbhub.New(smbus, uint8(*hubExpanderAddr), uint8(*hubAddr),
		gpioEnablePin{p: mustOutPin(*hubEnablePin)}, gpioEnablePin{p: mustOutPin(*hubResetPin)})

	inputLEDs := rgbled.New(smbus, uint8(*inputLEDAddr))
	battLEDs := rgbled.New(smbus, uint8(*battLEDAddr))

	sysBattADC := adc.New(smbus, uint8(*sysBattADCAddr))
	actBattADC := adc.New(smbus, uint8(*actBattADCAddr))
	batt := localBattery{ch: sysBattADC.On(0)}

	systemRail := &gpioRail{p: mustOutPin(*systemRailPin)}
	actuatorRail := &gpioRail{p: mustOutPin(*actuatorRailPin)}
	passthroughRail := &gpioRail{p: mustOutPin(*passthroughRailPin)}

	sys := power.New(sysPMIC, actPMIC, hub, hub, inputLEDs, battLEDs,
		sysBattADC.On(0), actBattADC.On(0), systemRail, actuatorRail, passthroughRail)

	sw := gpioSwitch{p: mustPin(*switchPin)}

	var passthrough board.SMBusDevice
	if *smbusPass {
		passthrough = smbus
	}

	b := board.NewPM(link, link, sys, sw, batt, passthrough)

	log.Println("pmd: ready")
	return b.Run(context.Background())
}

func mustPin(name string) gpio.PinIn {
	p := gpioreg.ByName(name)
	if p == nil {
		log.Fatalf("pmd: gpio %q not found", name)
	}
	return p
}

func mustOutPin(name string) gpio.PinOut {
	p := gpioreg.ByName(name)
	if p == nil {
		log.Fatalf("pmd: gpio %q not found", name)
	}
	return p
}
