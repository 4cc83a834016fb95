// Command manipd runs the manipulator board's firmware core: the
// lift-actuator state machine, its electromagnetic clutch, the RF
// range/ambient sensor, and the NFC transceiver, dispatched against the
// host over the framed packet control interface.
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
	"tribot.dev/driver/mux"
	"tribot.dev/driver/nfc"
	"tribot.dev/driver/rf"
	"tribot.dev/driver/serialport"
	"tribot.dev/driver/tmc2209"
	"tribot.dev/lift"
)

var (
	serialDev       = flag.String("serial", "", "host link serial device (platform default if empty)")
	i2cBus          = flag.String("i2c-bus", "", "periph.io i2c bus name (first available if empty)")
	muxAddr         = flag.Uint("mux-addr", 0x70, "TWI channel selector address")
	mainChan        = flag.Int("mux-mainboard-channel", 0, "mux channel carrying the mainboard peripherals")
	ifaceChan       = flag.Int("mux-interfaceboard-channel", 1, "mux channel carrying the interfaceboard peripherals")
	rfAddr          = flag.Uint("rf-addr", 0x13, "VCNL40x0 rf sensor i2c address")
	nfcAddr         = flag.Uint("nfc-addr", 0x24, "PN532 nfc i2c address")
	adcAddr         = flag.Uint("adc-addr", 0x48, "battery/electromagnet-voltage adc i2c address")
	stepperUART     = flag.String("stepper-uart", "", "serial device for the TMC2209 stepper driver")
	stepperAddr     = flag.Uint("stepper-addr", 0, "TMC2209 UART slave address")
	stepperMA       = flag.Int("stepper-current-ma", 800, "stepper run current in mA")
	senseMOhm       = flag.Int("stepper-sense-mohm", 110, "stepper driver sense resistor in milliohms")
	upperPin        = flag.String("upper-limit-pin", "GPIO16", "upper limit switch gpio")
	lowerPin        = flag.String("lower-limit-pin", "GPIO20", "lower limit switch gpio")
	stepCountPin    = flag.String("step-count-pin", "GPIO21", "stepper step-pulse (channel A) count gpio")
	stepPhasePin    = flag.String("step-phase-pin", "GPIO12", "stepper channel-B phase gpio, sampled for quadrature direction")
	chargeEnablePin = flag.String("em-charge-enable-pin", "GPIO26", "electromagnet charge regulator enable gpio")
	coilAPin        = flag.String("em-coil-a-pin", "GPIO19", "electromagnet coil driver select A")
	coilBPin        = flag.String("em-coil-b-pin", "GPIO13", "electromagnet coil driver select B")
	smbusPass       = flag.Bool("smbus-passthrough", false, "enable SMBus passthrough on the mainboard segment")
)

type limitPin struct{ p gpio.PinIn }

func (l limitPin) Read() bool { return bool(l.p.Read()) }

type localBattery struct{ ch *adc.Channel }

const battMVPerCount = 22

func (b localBattery) MilliVolts() uint16 { return b.ch.Sample() * battMVPerCount }

type gpioChargePin struct{ p gpio.PinOut }

func (g gpioChargePin) Set(enabled bool) {
	if enabled {
		g.p.Out(gpio.High)
	} else {
		g.p.Out(gpio.Low)
	}
}

// coilDriver drives two select lines choosing discharge polarity, off
// when both are low: a simple two-relay/two-FET discharge path selector.
type coilDriver struct{ a, b gpio.PinOut }

func (c coilDriver) Drive(mode lift.DischargeMode) {
	switch mode {
	case lift.Constructive:
		c.a.Out(gpio.High)
		c.b.Out(gpio.Low)
	case lift.Destructive:
		c.a.Out(gpio.Low)
		c.b.Out(gpio.High)
	default:
		c.a.Out(gpio.Low)
		c.b.Out(gpio.Low)
	}
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "run: %v", err)
		os.Exit(2)
	}
}

func run() error {
	log.SetFlags(log.Flags() &^ (log.Ldate | log.Ltime))
	flag.Parse()

	log.Println("manipd: starting")
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

	sel := mux.New(bus, uint16(*muxAddr))
	mainBus := i2cdev.New(sel.Segment(*mainChan))
	ifaceBus := i2cdev.New(sel.Segment(*ifaceChan))

	rfSensor := rf.New(ifaceBus, uint8(*rfAddr))
	nfcDev := nfc.New(sel.Segment(*ifaceChan), uint16(*nfcAddr))
	nfcDev.ConfigureSAM()

	adcDev := adc.New(mainBus, uint8(*adcAddr))
	batt := localBattery{ch: adcDev.On(0)}
	emVoltage := adc.Voltage8{Channel: adcDev.On(1)}

	upper := limitPin{p: mustPin(*upperPin)}
	lower := limitPin{p: mustPin(*lowerPin)}
	limits := lift.NewLimitSwitches(upper, lower)
	counter := lift.NewStepCounter()

	var waveform lift.Waveform
	if *stepperUART != "" {
		stepperPort, err := serialport.Open(*stepperUART)
		if err != nil {
			return fmt.Errorf("open stepper uart: %w", err)
		}
		dev := &tmc2209.Device{Bus: stepperPort, Addr: uint8(*stepperAddr), Sense: *senseMOhm}
		if err := dev.Configure(); err != nil {
			return fmt.Errorf("configure stepper: %w", err)
		}
		if err := dev.Enable(*stepperMA); err != nil {
			return fmt.Errorf("enable stepper: %w", err)
		}
		waveform = tmc2209.NewWaveform(dev)
	} else {
		waveform = lift.NewSoftwareWaveform()
	}

	sys := lift.New(waveform, limits, counter)
	sys.AttachElectromagnet(lift.NewElectromagnet(
		emVoltage,
		gpioChargePin{p: mustOutPin(*chargeEnablePin)},
		coilDriver{a: mustOutPin(*coilAPin), b: mustOutPin(*coilBPin)},
	))

	// stepCountPin (channel A) and stepPhasePin (channel B) watch the
	// driver's two step-monitor lines; when waveform is TMC2209-backed
	// (VACTUAL velocity mode) the chip still toggles these the same as
	// a STEP/DIR driver would, so both waveform implementations produce
	// the same quadrature pair for the counter to sample.
	stepChA := mustPin(*stepCountPin)
	stepChB := mustPin(*stepPhasePin)
	stepChA.In(gpio.PullNoChange, gpio.Both)
	stepChB.In(gpio.PullNoChange, gpio.None)
	go func() {
		for stepChA.WaitForEdge(-1) {
			var port uint8
			if stepChA.Read() {
				port |= 0x01
			}
			if stepChB.Read() {
				port |= 0x02
			}
			counter.HandleStep(lift.QuadratureSample(port, 0x02))
		}
	}()
	for _, p := range []gpio.PinIn{upper.p, lower.p} {
		p.In(gpio.PullNoChange, gpio.Both)
	}
	go watchLimitEdges(upper.p, lower.p, limits)

	var passthrough board.SMBusDevice
	if *smbusPass {
		passthrough = mainBus
	}

	b := board.NewManip(link, link, sys, rfSensor, nfcDev, batt, passthrough)

	log.Println("manipd: ready")
	return b.Run(context.Background())
}

func watchLimitEdges(upper, lower gpio.PinIn, limits *lift.LimitSwitches) {
	for {
		upper.WaitForEdge(0)
		lower.WaitForEdge(0)
		limits.HandleEdge()
	}
}

func mustPin(name string) gpio.PinIn {
	p := gpioreg.ByName(name)
	if p == nil {
		log.Fatalf("manipd: gpio %q not found", name)
	}
	return p
}

func mustOutPin(name string) gpio.PinOut {
	p := gpioreg.ByName(name)
	if p == nil {
		log.Fatalf("manipd: gpio %q not found", name)
	}
	return p
}
